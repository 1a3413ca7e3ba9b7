package service

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultNetworkTimeout bounds a network reachability probe.
	DefaultNetworkTimeout = time.Second
	// DefaultQueryTimeout bounds a control-plane query.
	DefaultQueryTimeout = 10 * time.Second
)

// Prober determines the current state of one service. Implementations absorb
// every failure into the returned status and never block past their timeout.
type Prober interface {
	Probe(ctx context.Context, svc Service) ServiceStatus
}

// NetworkProbe checks reachability by connecting to the service's address.
type NetworkProbe struct {
	Timeout time.Duration
	Logger  *log.Logger
}

// Probe dials svc.Address. A successful connection is Up, a refused,
// unreachable or timed-out connection is Down, and anything else (bad address,
// failed name resolution) is Unknown.
func (p *NetworkProbe) Probe(ctx context.Context, svc Service) ServiceStatus {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = DefaultNetworkTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	network := svc.Network
	if network == "" {
		network = "tcp"
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, svc.Address)
	if err != nil {
		st := classifyDialErr(err, svc.Ports)
		logger(p.Logger).Debug("network probe failed", "service", svc.ID, "address", svc.Address, "status", st.Status, "err", err)
		return st
	}
	defer func() { _ = conn.Close() }()

	if network == "udp" || network == "udp4" || network == "udp6" {
		return probeUDP(ctx, conn, svc.Ports)
	}
	return Up(svc.Ports)
}

// probeUDP sends one datagram and waits for the remaining deadline. An ICMP
// port-unreachable surfaces as ECONNREFUSED on read; silence or any reply
// means something is bound to the port.
func probeUDP(ctx context.Context, conn net.Conn, ports string) ServiceStatus {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := conn.Write([]byte{0}); err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return Down(ports)
		}
		return Unknown(ports)
	}
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	if err == nil {
		return Up(ports)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return Down(ports)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Up(ports)
	}
	return Unknown(ports)
}

func classifyDialErr(err error, ports string) ServiceStatus {
	var (
		addrErr *net.AddrError
		dnsErr  *net.DNSError
		netErr  net.UnknownNetworkError
	)
	switch {
	case errors.As(err, &addrErr), errors.As(err, &dnsErr), errors.As(err, &netErr):
		return Unknown(ports)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, context.DeadlineExceeded) {
		return Down(ports)
	}
	return Unknown(ports)
}

// ControlPlaneProbe asks the control plane for the service's container.
type ControlPlaneProbe struct {
	ControlPlane ControlPlane
	Timeout      time.Duration
	Logger       *log.Logger
}

// Probe looks the container up by exact name. Found and up is Up, found but
// not up (or not found) is Down, and a failed or timed-out query is Unknown.
func (p *ControlPlaneProbe) Probe(ctx context.Context, svc Service) ServiceStatus {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = DefaultQueryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries, err := p.ControlPlane.Query(ctx, Filter{Name: svc.Container, All: true})
	if err != nil {
		logger(p.Logger).Warn("control-plane probe failed", "service", svc.ID, "err", err)
		return Unknown(svc.Ports)
	}
	e, ok := FindExact(entries, svc.Container)
	ports := svc.Ports
	if ports == "" && ok {
		ports = e.Ports
	}
	if ok && e.IsUp() {
		return Up(ports)
	}
	return Down(ports)
}

// ProbeSet routes each service to the Prober matching its ProbeKind.
type ProbeSet struct {
	Network      Prober
	ControlPlane Prober
}

// Probe dispatches svc to the configured strategy.
func (s ProbeSet) Probe(ctx context.Context, svc Service) ServiceStatus {
	var p Prober
	switch svc.Probe {
	case ProbeNetwork:
		p = s.Network
	case ProbeControlPlane:
		p = s.ControlPlane
	}
	if p == nil {
		return Unknown(svc.Ports)
	}
	return p.Probe(ctx, svc)
}

var discard = log.New(io.Discard)

func logger(l *log.Logger) *log.Logger {
	if l == nil {
		return discard
	}
	return l
}
