// SPDX-License-Identifier: Apache-2.0
// Package core provides the capability model and contracts for Concierge.
package core

import (
	"context"
	"time"
)

// HealthState represents the health state of a capability.
type HealthState string

const (
	// HealthUnknown indicates no health check has completed yet.
	HealthUnknown HealthState = "UNKNOWN"

	// HealthHealthy indicates the capability is fully operational.
	HealthHealthy HealthState = "HEALTHY"

	// HealthUnhealthy indicates the capability is not operational.
	HealthUnhealthy HealthState = "UNHEALTHY"
)

// HealthResult represents the result of a health check.
type HealthResult struct {
	State     HealthState
	Component string
	Message   string
	ToolCount int
	LastCheck time.Time
	Error     error
}

// HealthChecker checks the health of a component.
type HealthChecker interface {
	// Check returns the current health state of the component.
	// The context can be used to implement timeouts.
	Check(ctx context.Context) HealthResult
}

// HealthFunc wraps a function as a HealthChecker.
type HealthFunc func(ctx context.Context) HealthResult

// Check calls the underlying function.
func (f HealthFunc) Check(ctx context.Context) HealthResult {
	result := f(ctx)
	if result.LastCheck.IsZero() {
		result.LastCheck = time.Now()
	}
	return result
}
