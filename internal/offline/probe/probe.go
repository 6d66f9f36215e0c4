// Package probe tracks whether the check-in gateway is reachable.
package probe

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Probe polls the gateway health endpoint and exposes the last observed
// state. Callers branch on Online() at capture time; a flip to online is what
// triggers the sync cycle.
type Probe struct {
	healthURL string
	client    *http.Client
	logger    *slog.Logger
	interval  time.Duration
	online    atomic.Bool
}

// DefaultInterval is the polling cadence used when none is configured.
const DefaultInterval = 5 * time.Second

// New builds a probe for the gateway at gatewayURL. A zero or negative
// interval falls back to DefaultInterval.
func New(gatewayURL string, interval, timeout time.Duration, logger *slog.Logger) *Probe {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Probe{
		healthURL: gatewayURL + "/healthz",
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		interval:  interval,
	}
}

// Online reports the last observed connectivity state.
func (p *Probe) Online() bool {
	return p.online.Load()
}

// Check probes the gateway once and records the result.
func (p *Probe) Check(ctx context.Context) bool {
	online := p.check(ctx)
	was := p.online.Swap(online)
	if was != online {
		if online {
			p.logger.InfoContext(ctx, "gateway reachable")
		} else {
			p.logger.WarnContext(ctx, "gateway unreachable, capturing offline")
		}
	}
	return online
}

// Run polls until the context is cancelled.
func (p *Probe) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
