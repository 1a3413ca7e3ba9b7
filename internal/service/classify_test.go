package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vpnconsole/vpnconsole/internal/service"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		action   service.Action
		res      service.Result
		err      error
		want     service.Classification
		timedOut bool
	}{
		{"success", service.ActionStart, service.Result{}, nil, service.Succeeded, false},
		{"noop signal", service.ActionStop, service.Result{Noop: true}, nil, service.AlreadyInState, false},
		{"stop not running", service.ActionStop, service.Result{ExitCode: 1, Stderr: "Error response from daemon: container frpc is not running"}, nil, service.AlreadyInState, false},
		{"start already running", service.ActionStart, service.Result{ExitCode: 1, Stderr: "container frpc is already running\n"}, nil, service.AlreadyInState, false},
		{"start with not-running text", service.ActionStart, service.Result{ExitCode: 1, Stderr: "container frpc is not running"}, nil, service.Failed, false},
		{"restart with not-running text", service.ActionRestart, service.Result{ExitCode: 1, Stderr: "is not running"}, nil, service.Failed, false},
		{"other failure", service.ActionStop, service.Result{ExitCode: 1, Stderr: "permission denied"}, nil, service.Failed, false},
		{"timeout sentinel", service.ActionStart, service.Result{}, fmt.Errorf("docker start: %w", service.ErrTimeout), service.Failed, true},
		{"deadline exceeded", service.ActionStart, service.Result{}, context.DeadlineExceeded, service.Failed, true},
		{"invocation error", service.ActionStart, service.Result{}, errors.New("fork failed"), service.Failed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := service.Classify(tt.action, tt.res, tt.err)
			if v.Classification != tt.want {
				t.Errorf("classification = %s, want %s", v.Classification, tt.want)
			}
			if v.TimedOut != tt.timedOut {
				t.Errorf("TimedOut = %v, want %v", v.TimedOut, tt.timedOut)
			}
		})
	}
}

func TestClassifyFailureReasonFallsBackToStdout(t *testing.T) {
	v := service.Classify(service.ActionStart, service.Result{ExitCode: 125, Stdout: "something broke"}, nil)
	if v.Reason != "something broke" {
		t.Errorf("Reason = %q, want stdout text", v.Reason)
	}
}
