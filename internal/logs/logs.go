// Package logs collects recent output from one or more containers into a
// single ordered text bundle.
package logs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/vpnconsole/vpnconsole/internal/service"
)

const (
	// DefaultLines is used when the caller does not ask for a line count.
	DefaultLines = 100
	// MaxLines caps a single request.
	MaxLines = 10000

	DefaultExistsTimeout = 10 * time.Second
	DefaultFetchTimeout  = 30 * time.Second
)

// Placeholder is the only content of a bundle that produced no sections.
const Placeholder = "No log content available"

// Kind identifies what a Section holds.
type Kind string

const (
	KindLogs        Kind = "logs"
	KindErrors      Kind = "errors"
	KindAbsent      Kind = "absent"
	KindFailed      Kind = "failed"
	KindTimeout     Kind = "timeout"
	KindError       Kind = "error"
	KindPlaceholder Kind = "placeholder"
)

// Section is one labelled block of a Bundle.
type Section struct {
	Source string `json:"source"`
	Kind   Kind   `json:"kind"`
	Header string `json:"header"`
	Body   string `json:"body,omitempty"`
}

// Bundle is an ordered list of sections. Sections are appended in source
// order and never reordered.
type Bundle struct {
	Sections []Section `json:"sections"`
}

// String renders the bundle as text: each section's header, its body when
// present, then a blank line. A placeholder bundle renders as the bare
// placeholder text.
func (b Bundle) String() string {
	if len(b.Sections) == 1 && b.Sections[0].Kind == KindPlaceholder {
		return b.Sections[0].Header
	}
	lines := make([]string, 0, len(b.Sections)*3)
	for _, s := range b.Sections {
		lines = append(lines, s.Header)
		if s.Body != "" {
			lines = append(lines, s.Body)
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// ParseLines converts the optional lines query parameter. Empty means
// DefaultLines; anything that is not an integer in [1, MaxLines] is a
// *service.ValidationError.
func ParseLines(s string) (int, error) {
	if s == "" {
		return DefaultLines, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > MaxLines {
		return 0, &service.ValidationError{Field: "lines", Value: s}
	}
	return n, nil
}

// Options tunes an Aggregator. Zero values select defaults.
type Options struct {
	ExistsTimeout time.Duration
	FetchTimeout  time.Duration
	Parallelism   int // concurrent sources; <= 0 means one per source
	Logger        *log.Logger
}

// Aggregator fetches logs for a target through the control plane.
type Aggregator struct {
	topo *service.Topology
	cp   service.ControlPlane
	opts Options
	log  *log.Logger
}

// NewAggregator returns an Aggregator over topo.
func NewAggregator(topo *service.Topology, cp service.ControlPlane, opts Options) *Aggregator {
	if opts.ExistsTimeout == 0 {
		opts.ExistsTimeout = DefaultExistsTimeout
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	l := opts.Logger
	if l == nil {
		l = log.New(io.Discard)
	}
	return &Aggregator{topo: topo, cp: cp, opts: opts, log: l}
}

// Logs returns the last maxLines lines of every container target resolves to.
// Only an unknown target or an out-of-range maxLines is an error; failures
// of individual sources are reported as sections.
func (a *Aggregator) Logs(ctx context.Context, target string, maxLines int) (Bundle, error) {
	if maxLines <= 0 || maxLines > MaxLines {
		return Bundle{}, &service.ValidationError{Field: "lines", Value: strconv.Itoa(maxLines)}
	}
	containers, err := a.topo.LogTargets(target)
	if err != nil {
		return Bundle{}, err
	}
	single := target != service.GroupAll

	perSource := make([][]Section, len(containers))
	var g errgroup.Group
	if a.opts.Parallelism > 0 {
		g.SetLimit(a.opts.Parallelism)
	}
	for i, name := range containers {
		g.Go(func() error {
			perSource[i] = a.collect(ctx, name, maxLines, single)
			return nil
		})
	}
	_ = g.Wait()

	var b Bundle
	for _, secs := range perSource {
		b.Sections = append(b.Sections, secs...)
	}
	if len(b.Sections) == 0 {
		b.Sections = []Section{{Kind: KindPlaceholder, Header: Placeholder}}
	}
	return b, nil
}

// collect produces the sections for one container.
func (a *Aggregator) collect(ctx context.Context, name string, maxLines int, single bool) []Section {
	label := strings.ToUpper(name)

	if !a.exists(ctx, name) {
		if !single {
			return nil
		}
		return []Section{{Source: name, Kind: KindAbsent, Header: fmt.Sprintf("=== %s - CONTAINER NOT FOUND OR NOT RUNNING ===", label)}}
	}

	fctx, cancel := context.WithTimeout(ctx, a.opts.FetchTimeout)
	defer cancel()
	res, err := a.cp.FetchLog(fctx, name, maxLines)
	switch {
	case errors.Is(err, service.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		a.log.Warn("log fetch timed out", "container", name)
		return []Section{{Source: name, Kind: KindTimeout, Header: fmt.Sprintf("=== %s - LOG FETCH TIMED OUT ===", label)}}
	case err != nil:
		a.log.Warn("log fetch failed", "container", name, "err", err)
		return []Section{{Source: name, Kind: KindError, Header: fmt.Sprintf("=== %s - ERROR ===", label), Body: "Error: " + err.Error()}}
	case res.ExitCode != 0:
		return []Section{{Source: name, Kind: KindFailed, Header: fmt.Sprintf("=== %s - FAILED TO FETCH LOGS ===", label), Body: "Error: " + strings.TrimSpace(res.Stderr)}}
	}

	var out []Section
	if body := strings.TrimSpace(res.Stdout); body != "" {
		out = append(out, Section{Source: name, Kind: KindLogs, Header: fmt.Sprintf("=== %s LOGS ===", label), Body: body})
	}
	if body := strings.TrimSpace(res.Stderr); body != "" {
		out = append(out, Section{Source: name, Kind: KindErrors, Header: fmt.Sprintf("=== %s ERRORS ===", label), Body: body})
	}
	return out
}

// exists reports whether a container with exactly this name is known to the
// control plane. A failed query counts as absent.
func (a *Aggregator) exists(ctx context.Context, name string) bool {
	ctx, cancel := context.WithTimeout(ctx, a.opts.ExistsTimeout)
	defer cancel()
	entries, err := a.cp.Query(ctx, service.Filter{Name: name, All: true})
	if err != nil {
		a.log.Warn("existence check failed", "container", name, "err", err)
		return false
	}
	_, ok := service.FindExact(entries, name)
	return ok
}
