// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

// Package composer assembles the single user-facing answer from a finished
// turn. Composition never fails: when backends let the turn down, the answer
// degrades and says so instead of erroring out.
package composer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/carebridge/concierge/pkg/agent"
	"github.com/carebridge/concierge/pkg/core"
)

// categoryLabels are the user-facing names for capability categories.
var categoryLabels = map[core.Category]string{
	core.CategoryStructuredQuery:   "data query",
	core.CategoryFunctionExecution: "record lookup",
	core.CategoryDocumentQA:        "policy document search",
}

const fallbackText = "I was not able to process that request right now. Please try again, or rephrase the question."

// CatalogEntry is the composer's view of one registered tool, used for
// suggestion lists and the all-failed fallback. The catalog is a startup-time
// snapshot; the registry is read-only afterwards, so it never goes stale.
type CatalogEntry struct {
	Category    core.Category
	Description string
}

// Option configures a Composer.
type Option func(*Composer)

// WithCatalog supplies the registered tool set.
func WithCatalog(entries []CatalogEntry) Option {
	return func(c *Composer) {
		c.catalog = entries
	}
}

// Composer renders turns into answers.
type Composer struct {
	catalog []CatalogEntry
}

// New creates a Composer.
func New(opts ...Option) *Composer {
	c := &Composer{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds the answer for a finished turn. Source attribution lists
// every invocation that contributed, in selection order.
func (c *Composer) Compose(turn *agent.Turn) agent.Answer {
	if turn == nil {
		return agent.Answer{Text: fallbackText, Sources: []agent.Source{}, PartialFailure: true}
	}

	answer := agent.Answer{
		Sources:        sources(turn),
		PartialFailure: len(turn.Failures()) > 0 || turn.Incomplete || turn.DecisionErr != nil,
	}

	var sections []string
	if text := strings.TrimSpace(turn.FinalText); text != "" {
		sections = append(sections, text)
	} else if body := renderResults(turn.Successes()); body != "" {
		// The model never closed the turn, so present the raw findings.
		sections = append(sections, body)
	}

	if notice := c.degradedNotice(turn); notice != "" {
		sections = append(sections, notice)
	}

	if strings.TrimSpace(turn.FinalText) == "" && len(turn.Invocations) > 0 && len(turn.Successes()) == 0 {
		sections = append(sections, c.allFailedFallback())
	}

	if len(sections) == 0 {
		sections = append(sections, c.unavailableFallback())
		answer.PartialFailure = true
	}
	answer.Text = strings.Join(sections, "\n\n")
	return answer
}

// allFailedFallback names the capability categories that exist so the user
// knows what to retry, per the never-throw contract.
func (c *Composer) allFailedFallback() string {
	labels := c.categoryLabelList()
	if len(labels) == 0 {
		return "None of the backing systems are available right now. Please try again later."
	}
	return fmt.Sprintf("I could not retrieve anything this time. I can normally help with %s; please try again in a moment.",
		strings.Join(labels, ", "))
}

// unavailableFallback covers turns that never produced anything at all, such
// as a failed decision procedure.
func (c *Composer) unavailableFallback() string {
	labels := c.categoryLabelList()
	if len(labels) == 0 {
		return fallbackText
	}
	return fmt.Sprintf("%s I can help with %s.", fallbackText, strings.Join(labels, ", "))
}

func (c *Composer) categoryLabelList() []string {
	var out []string
	seen := make(map[string]bool)
	for _, entry := range c.catalog {
		label := categoryLabel(entry.Category)
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

func sources(turn *agent.Turn) []agent.Source {
	out := make([]agent.Source, 0, len(turn.Invocations))
	for _, inv := range turn.Successes() {
		out = append(out, agent.Source{
			CapabilityID: inv.CapabilityID,
			ToolName:     inv.Operation,
		})
	}
	return out
}

// renderResults turns successful invocations into readable text when the
// model produced no closing message of its own.
func renderResults(succeeded []*agent.Invocation) string {
	var parts []string
	for _, inv := range succeeded {
		if body := renderResult(inv.Result); body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, "\n\n")
}

func renderResult(result *core.Result) string {
	if result == nil {
		return ""
	}
	var out string
	switch {
	case result.Structured != nil:
		out = renderStructured(result.Structured)
	default:
		out = strings.TrimSpace(result.Text)
	}
	if len(result.Citations) > 0 {
		var refs []string
		for _, cit := range result.Citations {
			if cit.Source != "" {
				refs = append(refs, fmt.Sprintf("%s (%s)", cit.Title, cit.Source))
			} else {
				refs = append(refs, cit.Title)
			}
		}
		out += "\n\nReferences: " + strings.Join(refs, "; ")
	}
	return out
}

// renderStructured flattens a structured payload into "field: value" lines.
// Maps are rendered with sorted keys so output is reproducible; anything
// else falls back to compact JSON.
func renderStructured(payload any) string {
	switch v := payload.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s: %s", k, renderValue(v[k])))
		}
		return strings.Join(lines, "\n")
	case []any:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			lines = append(lines, "- "+renderValue(item))
		}
		return strings.Join(lines, "\n")
	default:
		return renderValue(payload)
	}
}

func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool, nil:
		return fmt.Sprintf("%v", t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	}
}

// degradedNotice explains what did not work, one line per failed category,
// without surfacing internal error detail to the user.
func (c *Composer) degradedNotice(turn *agent.Turn) string {
	failures := turn.Failures()
	if len(failures) == 0 && !turn.Incomplete && turn.DecisionErr == nil {
		return ""
	}

	var lines []string
	seen := make(map[string]bool)
	for _, inv := range failures {
		label := categoryLabel(inv.Category)
		key := label + "/" + inv.Operation
		if seen[key] {
			continue
		}
		seen[key] = true
		if inv.Operation != "" {
			lines = append(lines, fmt.Sprintf("The automated %s (%s) did not succeed, so that part of the answer may be missing.", label, inv.Operation))
		} else {
			lines = append(lines, fmt.Sprintf("The automated %s did not succeed, so that part of the answer may be missing.", label))
		}
	}
	if len(failures) > 0 {
		if suggestions := c.suggestions(turn); len(suggestions) > 0 {
			lines = append(lines, "You could still ask me to: "+strings.Join(suggestions, "; ")+".")
		}
	}
	if turn.Incomplete {
		lines = append(lines, "I stopped before checking every system, so there may be more to this answer.")
	}
	if len(lines) == 0 && turn.DecisionErr != nil {
		return ""
	}
	return strings.Join(lines, "\n")
}

// suggestions offers alternatives alongside a failure notice: what the tools
// that did work can do, or the whole catalog when nothing worked.
func (c *Composer) suggestions(turn *agent.Turn) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(desc string) {
		desc = strings.TrimRight(strings.TrimSpace(desc), ".")
		if desc == "" || seen[desc] || len(out) >= 3 {
			return
		}
		seen[desc] = true
		out = append(out, lowerFirst(desc))
	}
	for _, inv := range turn.Successes() {
		add(inv.Description)
	}
	if len(out) == 0 {
		for _, entry := range c.catalog {
			add(entry.Description)
		}
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func categoryLabel(cat core.Category) string {
	if label, ok := categoryLabels[cat]; ok {
		return label
	}
	return "lookup"
}
