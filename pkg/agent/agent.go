// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carebridge/concierge/pkg/errors"
	"github.com/carebridge/concierge/pkg/registry"
	"github.com/carebridge/concierge/pkg/telemetry"
)

const (
	// DefaultMaxRounds bounds the number of selection rounds per turn.
	DefaultMaxRounds = 3
	// DefaultTurnTimeout bounds the whole turn, all rounds included.
	DefaultTurnTimeout = 60 * time.Second
	// DefaultInvocationTimeout bounds a single tool call.
	DefaultInvocationTimeout = 15 * time.Second
)

// Option configures a Router.
type Option func(*Router)

// WithMaxRounds overrides the selection round bound.
func WithMaxRounds(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxRounds = n
		}
	}
}

// WithTurnTimeout overrides the whole-turn deadline.
func WithTurnTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.turnTimeout = d
		}
	}
}

// WithInvocationTimeout overrides the per-tool-call deadline.
func WithInvocationTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.invocationTimeout = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches turn metrics. Metrics are optional; a nil recorder
// disables them.
func WithMetrics(m *telemetry.TurnMetrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// Router drives one utterance through selection rounds and tool execution,
// then composes the final answer. A Router is safe for sequential use; turns
// are not concurrent with each other.
type Router struct {
	procedure Procedure
	tools     *registry.Registry
	composer  Composer
	logger    *slog.Logger
	metrics   *telemetry.TurnMetrics
	tracer    trace.Tracer

	maxRounds         int
	turnTimeout       time.Duration
	invocationTimeout time.Duration
}

// NewRouter creates a router over the given procedure, tool registry, and
// composer.
func NewRouter(procedure Procedure, tools *registry.Registry, composer Composer, opts ...Option) *Router {
	r := &Router{
		procedure:         procedure,
		tools:             tools,
		composer:          composer,
		logger:            slog.Default(),
		tracer:            otel.Tracer("concierge/agent"),
		maxRounds:         DefaultMaxRounds,
		turnTimeout:       DefaultTurnTimeout,
		invocationTimeout: DefaultInvocationTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one utterance end to end and returns the composed answer
// together with the turn record. Handle never returns an error caused by a
// capability: backend failures degrade the answer instead.
func (r *Router) Handle(ctx context.Context, utterance string) (Answer, *Turn, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Answer{}, nil, errors.New(errors.CodeInvalidArgument, "utterance is empty", nil)
	}

	turn := &Turn{
		ID:        uuid.NewString(),
		Utterance: utterance,
		StartedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, r.turnTimeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "agent.turn",
		trace.WithAttributes(attribute.String("turn.id", turn.ID)))
	defer span.End()

	r.runRounds(ctx, turn)

	answer := r.composer.Compose(turn)
	span.SetAttributes(
		attribute.Int("turn.rounds", turn.Rounds),
		attribute.Int("turn.invocations", len(turn.Invocations)),
		attribute.Bool("turn.partial_failure", answer.PartialFailure),
	)
	r.metrics.RecordTurn(ctx, len(turn.Invocations), answer.PartialFailure)
	r.logger.InfoContext(ctx, "turn complete",
		"turn_id", turn.ID,
		"rounds", turn.Rounds,
		"invocations", len(turn.Invocations),
		"partial_failure", answer.PartialFailure,
		"duration", time.Since(turn.StartedAt))
	return answer, turn, nil
}

func (r *Router) runRounds(ctx context.Context, turn *Turn) {
	transcript := OpenTranscript(turn.Utterance)
	definitions := r.tools.Definitions()

	for round := 1; ; round++ {
		decision, err := r.procedure.Decide(ctx, transcript, definitions)
		if err != nil {
			turn.DecisionErr = err
			r.logger.ErrorContext(ctx, "tool selection failed",
				"turn_id", turn.ID, "round", round, "error", err)
			return
		}
		turn.Rounds = round

		if decision.Done() {
			turn.FinalText = decision.FinalAnswer
			return
		}

		selections := r.resolveSelections(ctx, turn, decision.Selections)
		transcript = AppendAssistantCalls(transcript, selections)

		invocations := r.executeRound(ctx, turn, selections)
		turn.Invocations = append(turn.Invocations, invocations...)
		for _, inv := range invocations {
			transcript = append(transcript, ToolResultMessage(inv))
		}

		if round >= r.maxRounds {
			turn.Incomplete = true
			r.logger.WarnContext(ctx, "round bound reached, composing with partial results",
				"turn_id", turn.ID, "rounds", round)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// resolveSelections drops selections naming unregistered tools. Each drop is
// still answered in the transcript so the model learns the tool set it
// actually has.
func (r *Router) resolveSelections(ctx context.Context, turn *Turn, selections []Selection) []Selection {
	kept := selections[:0]
	for _, sel := range selections {
		if _, err := r.tools.Get(sel.ToolName); err != nil && sel.ArgErr == nil {
			sel.ArgErr = err
			r.logger.WarnContext(ctx, "model selected unknown tool",
				"turn_id", turn.ID, "tool", sel.ToolName)
		}
		kept = append(kept, sel)
	}
	return kept
}

// executeRound runs one round of selections. Independent selections run
// concurrently; a selection whose After list names other calls in the round
// waits for those to finish first.
func (r *Router) executeRound(ctx context.Context, turn *Turn, selections []Selection) []*Invocation {
	invocations := make([]*Invocation, len(selections))
	chans := make([]chan struct{}, len(selections))
	done := make(map[string]chan struct{}, len(selections))
	for i, sel := range selections {
		chans[i] = make(chan struct{})
		// First occurrence wins if the model repeats a call id.
		if _, exists := done[sel.CallID]; !exists {
			done[sel.CallID] = chans[i]
		}
	}

	var wg sync.WaitGroup
	for i, sel := range selections {
		inv := r.newInvocation(sel)
		invocations[i] = inv

		wg.Add(1)
		go func(sel Selection, inv *Invocation, own chan struct{}) {
			defer wg.Done()
			defer close(own)
			for _, dep := range sel.After {
				ch, ok := done[dep]
				if !ok || ch == own {
					continue
				}
				select {
				case <-ch:
				case <-ctx.Done():
				}
			}
			r.execute(ctx, turn, sel, inv)
		}(sel, inv, chans[i])
	}
	wg.Wait()
	return invocations
}

func (r *Router) newInvocation(sel Selection) *Invocation {
	inv := &Invocation{
		ID:        uuid.NewString(),
		ToolName:  sel.ToolName,
		Arguments: sel.Arguments,
		CallID:    sel.CallID,
		Status:    InvocationPending,
	}
	if tool, err := r.tools.Get(sel.ToolName); err == nil {
		inv.CapabilityID = tool.CapabilityID
		inv.Operation = tool.Operation
		inv.Category = tool.Category
		inv.Description = tool.Description
	}
	return inv
}

func (r *Router) execute(ctx context.Context, turn *Turn, sel Selection, inv *Invocation) {
	if sel.ArgErr != nil {
		inv.Status = InvocationFailed
		inv.Err = sel.ArgErr
		r.metrics.RecordInvocation(ctx, inv.ToolName, 0, sel.ArgErr)
		return
	}
	if err := ctx.Err(); err != nil {
		inv.Status = InvocationFailed
		inv.Err = errors.New(errors.CodeTimeout, "turn deadline exceeded before tool call", err).
			WithContext("tool", inv.ToolName)
		r.metrics.RecordInvocation(ctx, inv.ToolName, 0, inv.Err)
		return
	}

	tool, err := r.tools.Get(sel.ToolName)
	if err != nil {
		inv.Status = InvocationFailed
		inv.Err = err
		r.metrics.RecordInvocation(ctx, inv.ToolName, 0, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.invocationTimeout)
	defer cancel()
	callCtx, span := r.tracer.Start(callCtx, "agent.invoke",
		trace.WithAttributes(
			attribute.String("tool.name", tool.Name),
			attribute.String("capability.id", tool.CapabilityID),
			attribute.String("capability.category", string(tool.Category)),
		))
	defer span.End()

	start := time.Now()
	result, err := tool.Call(callCtx, sel.Arguments)
	inv.Latency = time.Since(start)
	r.metrics.RecordInvocation(ctx, tool.Name, inv.Latency, err)

	if err != nil {
		inv.Status = InvocationFailed
		inv.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
		r.logger.WarnContext(ctx, "tool call failed",
			"turn_id", turn.ID,
			"tool", tool.Name,
			"code", errors.CodeOf(err),
			"latency", inv.Latency,
			"error", err)
		return
	}
	inv.Status = InvocationSucceeded
	inv.Result = result
	r.logger.DebugContext(ctx, "tool call succeeded",
		"turn_id", turn.ID, "tool", tool.Name, "latency", inv.Latency)
}

