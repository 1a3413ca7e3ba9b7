package service

import (
	"context"
	"errors"
	"strings"
)

// Classification is the three-way result of an attempted action.
type Classification string

const (
	Succeeded      Classification = "succeeded"
	AlreadyInState Classification = "already_in_state"
	Failed         Classification = "failed"
)

// Error text the docker CLI prints when an action was a no-op. The CLI exits
// non-zero for these just as it does for real failures.
const (
	notRunningMarker     = "is not running"
	alreadyRunningMarker = "is already running"
)

// Verdict is the classified result of one control-plane action call.
type Verdict struct {
	Classification Classification
	Reason         string // failure text; empty unless Failed
	TimedOut       bool
}

// Classify maps one control-plane call onto a Verdict. The structured
// Result.Noop signal wins over error-text matching; the text markers are
// only consulted for non-zero exits.
func Classify(action Action, res Result, err error) Verdict {
	switch {
	case err != nil && (errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)):
		return Verdict{Classification: Failed, Reason: "timed out", TimedOut: true}
	case err != nil:
		return Verdict{Classification: Failed, Reason: err.Error()}
	case res.Noop:
		return Verdict{Classification: AlreadyInState}
	case res.ExitCode == 0:
		return Verdict{Classification: Succeeded}
	}

	msg := strings.TrimSpace(res.Stderr)
	switch {
	case action == ActionStop && strings.Contains(msg, notRunningMarker):
		return Verdict{Classification: AlreadyInState}
	case action == ActionStart && strings.Contains(msg, alreadyRunningMarker):
		return Verdict{Classification: AlreadyInState}
	}
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	return Verdict{Classification: Failed, Reason: msg}
}
