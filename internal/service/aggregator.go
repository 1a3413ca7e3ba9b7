package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Aggregator probes every service in a topology and merges the results.
type Aggregator struct {
	topo   *Topology
	prober Prober
	limit  int
	now    func() time.Time
}

// NewAggregator returns an Aggregator that probes with p, running at most
// limit probes at once (limit <= 0 means one per service).
func NewAggregator(topo *Topology, p Prober, limit int) *Aggregator {
	return &Aggregator{topo: topo, prober: p, limit: limit, now: time.Now}
}

// Snapshot probes every service. Probers absorb their own failures, so every
// service id is present in the result.
func (a *Aggregator) Snapshot(ctx context.Context) Snapshot {
	services := a.topo.Services()
	results := make([]ServiceStatus, len(services))

	var g errgroup.Group
	if a.limit > 0 {
		g.SetLimit(a.limit)
	}
	for i, svc := range services {
		g.Go(func() error {
			results[i] = a.prober.Probe(ctx, svc)
			return nil
		})
	}
	_ = g.Wait()

	snap := Snapshot{
		Services:   make(map[string]ServiceStatus, len(services)),
		CapturedAt: a.now(),
	}
	for i, svc := range services {
		snap.Services[svc.ID] = results[i]
	}
	return snap
}
