// SPDX-License-Identifier: Apache-2.0
package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthProvider aggregates health checks for the configured capabilities.
// Checkers are registered at startup; checks may run concurrently afterwards.
type HealthProvider struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	order    []string
	cache    map[string]HealthResult
	cacheTTL time.Duration
}

// NewHealthProvider creates a health provider with the given cache TTL.
func NewHealthProvider(cacheTTL time.Duration) *HealthProvider {
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Second
	}
	return &HealthProvider{
		checkers: make(map[string]HealthChecker),
		cache:    make(map[string]HealthResult),
		cacheTTL: cacheTTL,
	}
}

// Register registers a health checker for a component.
func (p *HealthProvider) Register(name string, checker HealthChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.checkers[name]; !exists {
		p.order = append(p.order, name)
	}
	p.checkers[name] = checker
}

// Check checks the health of a specific component, serving a cached result
// when one is fresh enough.
func (p *HealthProvider) Check(ctx context.Context, name string) (HealthResult, error) {
	p.mu.RLock()
	checker, exists := p.checkers[name]
	cached, hasCached := p.cache[name]
	p.mu.RUnlock()

	if !exists {
		return HealthResult{}, fmt.Errorf("health checker not registered: %s", name)
	}
	if hasCached && time.Since(cached.LastCheck) < p.cacheTTL {
		return cached, nil
	}

	result := checker.Check(ctx)
	result.Component = name
	if result.LastCheck.IsZero() {
		result.LastCheck = time.Now()
	}

	p.mu.Lock()
	p.cache[name] = result
	p.mu.Unlock()
	return result, nil
}

// CheckAll checks the health of all registered components in registration
// order. The overall state is healthy only if every component is healthy.
func (p *HealthProvider) CheckAll(ctx context.Context) ([]HealthResult, HealthState) {
	p.mu.RLock()
	names := append([]string(nil), p.order...)
	p.mu.RUnlock()

	results := make([]HealthResult, 0, len(names))
	overall := HealthHealthy
	for _, name := range names {
		result, err := p.Check(ctx, name)
		if err != nil {
			continue
		}
		results = append(results, result)
		if result.State != HealthHealthy {
			overall = HealthUnhealthy
		}
	}
	if len(results) == 0 {
		overall = HealthUnknown
	}
	return results, overall
}
