// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the routing agent: it takes one user utterance,
// selects capability tools with an LLM, executes them, and hands the outcome
// to a composer for the final answer.
package agent

import (
	"time"

	"github.com/carebridge/concierge/pkg/core"
)

// InvocationStatus tracks the lifecycle of one tool invocation.
type InvocationStatus string

const (
	InvocationPending   InvocationStatus = "pending"
	InvocationSucceeded InvocationStatus = "succeeded"
	InvocationFailed    InvocationStatus = "failed"
)

// Invocation records one tool call made during a turn, including its outcome.
type Invocation struct {
	// ID uniquely identifies this invocation within the turn.
	ID string
	// ToolName is the namespaced registry name that was selected.
	ToolName string
	// CapabilityID and Operation are the split form of ToolName, kept so
	// downstream consumers never have to re-parse the separator.
	CapabilityID string
	Operation    string
	Category     core.Category
	// Description is the tool's registry description, carried for the
	// composer's suggestion lists.
	Description string
	Arguments   map[string]any
	// CallID is the provider-assigned tool call id, echoed back in the
	// transcript so the model can correlate results.
	CallID string

	Status  InvocationStatus
	Result  *core.Result
	Err     error
	Latency time.Duration
}

// Turn is the full record of handling one utterance.
type Turn struct {
	ID        string
	Utterance string
	StartedAt time.Time
	// Invocations are ordered by selection, not by completion.
	Invocations []*Invocation
	// Rounds is the number of selection rounds the agent ran.
	Rounds int
	// Incomplete is set when the round bound cut the agent off while the
	// model still wanted more tool calls.
	Incomplete bool
	// DecisionErr is set when the selection procedure itself failed and
	// the turn had to stop early.
	DecisionErr error
	// FinalText is the model's own closing message, when it produced one.
	FinalText string
}

// Failures returns the invocations that did not succeed.
func (t *Turn) Failures() []*Invocation {
	var out []*Invocation
	for _, inv := range t.Invocations {
		if inv.Status == InvocationFailed {
			out = append(out, inv)
		}
	}
	return out
}

// Successes returns the invocations that completed successfully.
func (t *Turn) Successes() []*Invocation {
	var out []*Invocation
	for _, inv := range t.Invocations {
		if inv.Status == InvocationSucceeded {
			out = append(out, inv)
		}
	}
	return out
}

// Source attributes part of an answer to the capability tool that produced it.
type Source struct {
	CapabilityID string `json:"capability_id"`
	ToolName     string `json:"tool_name"`
}

// Answer is the single user-facing result of a turn.
type Answer struct {
	Text           string   `json:"text"`
	Sources        []Source `json:"sources"`
	PartialFailure bool     `json:"partial_failure"`
}

// Composer turns a finished Turn into the user-facing Answer. Implementations
// must not fail: a degraded answer is always preferable to none.
type Composer interface {
	Compose(turn *Turn) Answer
}
