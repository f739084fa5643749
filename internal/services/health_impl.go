package services

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthImplementation implements the health service
type HealthImplementation struct {
	checks map[string]Pinger
}

// NewHealthService creates a new health service implementation
func NewHealthService(checks map[string]Pinger) *HealthImplementation {
	if checks == nil {
		checks = map[string]Pinger{}
	}
	return &HealthImplementation{checks: checks}
}

// Healthz implements the liveness probe
func (h *HealthImplementation) Healthz(ctx context.Context) (*HealthResult, error) {
	return &HealthResult{Status: "ok"}, nil
}

// Readyz pings every dependency
func (h *HealthImplementation) Readyz(ctx context.Context) (*HealthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	res := &HealthResult{Status: "ok", Checks: make(map[string]string, len(names))}
	var failed []string
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			res.Checks[name] = err.Error()
			failed = append(failed, name)
			continue
		}
		res.Checks[name] = "ok"
	}
	if len(failed) > 0 {
		return nil, MakeUnavailable(fmt.Errorf("not ready: %v", failed))
	}
	return res, nil
}
