// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit persists a record of every handled turn so operators can
// review what the agent did and which capabilities it touched.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/carebridge/concierge/pkg/agent"
)

// TurnRecord is the persisted summary of one turn.
type TurnRecord struct {
	TurnID         string
	Utterance      string
	AnswerText     string
	Sources        []agent.Source
	PartialFailure bool
	Rounds         int
	Invocations    int
	Failures       int
	StartedAt      time.Time
	Duration       time.Duration
}

// FromTurn builds the audit record for a finished turn.
func FromTurn(turn *agent.Turn, answer agent.Answer) TurnRecord {
	rec := TurnRecord{
		AnswerText:     answer.Text,
		Sources:        answer.Sources,
		PartialFailure: answer.PartialFailure,
	}
	if turn != nil {
		rec.TurnID = turn.ID
		rec.Utterance = turn.Utterance
		rec.Rounds = turn.Rounds
		rec.Invocations = len(turn.Invocations)
		rec.Failures = len(turn.Failures())
		rec.StartedAt = turn.StartedAt
		rec.Duration = time.Since(turn.StartedAt)
	}
	return rec
}

// TurnFilter limits turn record queries.
type TurnFilter struct {
	TurnID       string
	FailuresOnly bool
	Limit        int
}

// TurnStore persists turn records.
type TurnStore interface {
	Record(ctx context.Context, rec TurnRecord) error
	List(ctx context.Context, filter TurnFilter) ([]TurnRecord, error)
	Close() error
}

// MemoryTurnStore keeps turn records in memory.
type MemoryTurnStore struct {
	mu      sync.Mutex
	records []TurnRecord
}

// NewMemoryTurnStore returns an in-memory turn store.
func NewMemoryTurnStore() *MemoryTurnStore {
	return &MemoryTurnStore{}
}

// Record appends a turn record.
func (s *MemoryTurnStore) Record(_ context.Context, rec TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// List returns filtered turn records in insertion order.
func (s *MemoryTurnStore) List(_ context.Context, filter TurnFilter) ([]TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TurnRecord, 0, len(s.records))
	for _, rec := range s.records {
		if filter.TurnID != "" && rec.TurnID != filter.TurnID {
			continue
		}
		if filter.FailuresOnly && !rec.PartialFailure {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryTurnStore) Close() error { return nil }

// encodeSources marshals source attribution into JSON.
func encodeSources(sources []agent.Source) ([]byte, error) {
	if sources == nil {
		sources = []agent.Source{}
	}
	return json.Marshal(sources)
}

// decodeSources parses the JSON source attribution column.
func decodeSources(raw []byte) ([]agent.Source, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []agent.Source
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
