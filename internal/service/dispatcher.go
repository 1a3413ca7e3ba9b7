package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// DefaultActionTimeout bounds a single start/stop/restart call.
const DefaultActionTimeout = 30 * time.Second

// Outcome is the classified result of applying an action to one service.
type Outcome struct {
	Service        string         `json:"service"`
	Classification Classification `json:"classification"`
	Detail         string         `json:"detail"`
}

// Report collects the outcomes of one dispatch, in topology order.
type Report struct {
	Action   Action    `json:"action"`
	Target   string    `json:"target"`
	Outcomes []Outcome `json:"outcomes"`
	// AllSucceeded is false when any outcome is Failed. A dispatch that ran
	// is otherwise still reported as a success, with failures in Detail.
	AllSucceeded bool `json:"all_succeeded"`
}

// Message joins the outcome details, one per line.
func (r Report) Message() string {
	lines := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		lines[i] = o.Detail
	}
	return strings.Join(lines, "\n")
}

// Dispatcher applies lifecycle actions to services through a ControlPlane.
type Dispatcher struct {
	topo    *Topology
	cp      ControlPlane
	timeout time.Duration
	limit   int
	logger  *log.Logger
}

// DispatcherOptions tunes a Dispatcher. Zero values select defaults.
type DispatcherOptions struct {
	Timeout     time.Duration // per-service call; default DefaultActionTimeout
	Parallelism int           // concurrent calls; <= 0 means sequential
	Logger      *log.Logger
}

// NewDispatcher returns a Dispatcher for topo.
func NewDispatcher(topo *Topology, cp ControlPlane, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultActionTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Dispatcher{
		topo:    topo,
		cp:      cp,
		timeout: opts.Timeout,
		limit:   opts.Parallelism,
		logger:  logger(opts.Logger),
	}
}

// Dispatch validates action and target, then applies the action to every
// service the target expands to. It returns a *ValidationError, without
// touching the control plane, for an unknown action or target; every other
// failure is recorded in the returned Report.
func (d *Dispatcher) Dispatch(ctx context.Context, action, target string) (Report, error) {
	act, err := ParseAction(action)
	if err != nil {
		return Report{}, err
	}
	services, err := d.topo.Expand(target)
	if err != nil {
		return Report{}, err
	}

	outcomes := make([]Outcome, len(services))
	var g errgroup.Group
	g.SetLimit(d.limit)
	for i, svc := range services {
		g.Go(func() error {
			outcomes[i] = d.apply(ctx, act, svc)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Action: act, Target: target, Outcomes: outcomes, AllSucceeded: true}
	for _, o := range outcomes {
		if o.Classification == Failed {
			report.AllSucceeded = false
		}
	}
	return report, nil
}

func (d *Dispatcher) apply(ctx context.Context, act Action, svc Service) Outcome {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res, err := d.cp.Act(ctx, act, svc.Container)
	v := Classify(act, res, err)
	o := Outcome{Service: svc.ID, Classification: v.Classification, Detail: detail(svc, act, v)}
	if v.Classification == Failed {
		d.logger.Warn("action failed", "service", svc.ID, "action", act, "reason", v.Reason)
	} else {
		d.logger.Info("action applied", "service", svc.ID, "action", act, "classification", v.Classification)
	}
	return o
}

func detail(svc Service, act Action, v Verdict) string {
	switch v.Classification {
	case Succeeded:
		return fmt.Sprintf("%s %s", svc.Name, act.pastTense())
	case AlreadyInState:
		if act == ActionStop {
			return svc.Name + " already stopped"
		}
		return svc.Name + " already running"
	}
	if v.TimedOut {
		return fmt.Sprintf("%s %s timed out", svc.Name, act)
	}
	return fmt.Sprintf("%s %s failed: %s", svc.Name, act, v.Reason)
}
