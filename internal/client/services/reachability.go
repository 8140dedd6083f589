package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/netx"
)

// Reachability answers whether the remote identity store is worth trying.
// The orchestrator asks once per login attempt.
type Reachability interface {
	Reachable(ctx context.Context) bool
}

type pinger interface {
	Ping(ctx context.Context) error
}

// PingReachability pings the gateway, bounded by timeout.
type PingReachability struct {
	gw      pinger
	timeout time.Duration
}

func NewPingReachability(gw pinger, timeout time.Duration) *PingReachability {
	return &PingReachability{gw: gw, timeout: timeout}
}

func (r *PingReachability) Reachable(ctx context.Context) bool {
	if r.gw == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.gw.Ping(ctx) == nil
}

// TCPReachability only checks that the backend port accepts connections.
// Cheaper than a ping when the backend sits behind a slow proxy.
type TCPReachability struct {
	addr    string
	timeout time.Duration
}

func NewTCPReachability(addr string, timeout time.Duration) *TCPReachability {
	return &TCPReachability{addr: addr, timeout: timeout}
}

func (r *TCPReachability) Reachable(ctx context.Context) bool {
	return netx.ProbeTCP(ctx, r.addr, r.timeout) == nil
}

// Offline is a Reachability that always says no.
type Offline struct{}

func (Offline) Reachable(context.Context) bool { return false }

// Online always says yes; whether the remote store really answers is left
// to the gateway call.
type Online struct{}

func (Online) Reachable(context.Context) bool { return true }
