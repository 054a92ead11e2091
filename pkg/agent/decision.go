// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carebridge/concierge/pkg/errors"
	"github.com/carebridge/concierge/pkg/llm"
)

// Selection is one tool call the decision procedure wants executed.
type Selection struct {
	ToolName  string
	Arguments map[string]any
	// CallID is the provider-assigned correlation id for this call.
	CallID string
	// After lists CallIDs of selections in the same round that must
	// complete before this one starts. Selections with no dependencies
	// run concurrently.
	After []string
	// ArgErr is set when the arguments could not be decoded. The
	// selection is still recorded as a failed invocation so the model
	// sees its own mistake in the transcript.
	ArgErr error
}

// Decision is one step of the routing procedure: either a final answer or a
// batch of tool selections for the next round.
type Decision struct {
	FinalAnswer string
	Selections  []Selection
}

// Done reports whether the procedure has finished selecting tools.
func (d Decision) Done() bool {
	return len(d.Selections) == 0
}

// Procedure decides, given the conversation so far, what to do next. The
// transcript grows across rounds as tool results are appended.
type Procedure interface {
	Decide(ctx context.Context, transcript []llm.Message, tools []llm.Tool) (Decision, error)
}

const systemPrompt = `You are a concierge assistant for a healthcare member services team.
You answer questions about members, claims, providers, plan data, and policy documents.

You have access to tools backed by live systems. Use them instead of guessing:
call a tool whenever a question needs member records, claims data, provider
directories, aggregate figures, or knowledge-base passages. Call multiple tools
in one step when they are independent. When you have what you need, reply with
a plain final answer and stop calling tools.

Never invent member data. If a tool fails, say what you could not retrieve.`

// LLMProcedure drives tool selection through a chat-completions provider
// using native tool calling.
type LLMProcedure struct {
	provider llm.Provider
	model    string
}

// NewLLMProcedure creates a procedure backed by the given provider.
func NewLLMProcedure(provider llm.Provider, model string) *LLMProcedure {
	return &LLMProcedure{provider: provider, model: model}
}

// OpenTranscript seeds the transcript for a new turn.
func OpenTranscript(utterance string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: utterance},
	}
}

// Decide asks the model for the next step and translates its tool calls into
// selections. Arguments that fail to decode are carried as failed selections
// rather than aborting the round.
func (p *LLMProcedure) Decide(ctx context.Context, transcript []llm.Message, tools []llm.Tool) (Decision, error) {
	resp, err := p.provider.Chat(ctx, llm.ChatRequest{
		Model:    p.model,
		Messages: transcript,
		Tools:    tools,
	})
	if err != nil {
		return Decision{}, errors.New(errors.CodeDecision, "tool selection request failed", err)
	}
	if resp == nil {
		return Decision{}, errors.New(errors.CodeDecision, "provider returned empty response", nil)
	}

	if len(resp.ToolCalls) == 0 {
		return Decision{FinalAnswer: strings.TrimSpace(resp.Content)}, nil
	}

	selections := make([]Selection, 0, len(resp.ToolCalls))
	for i, call := range resp.ToolCalls {
		sel := Selection{
			ToolName: call.Function.Name,
			CallID:   call.ID,
		}
		if sel.CallID == "" {
			sel.CallID = fmt.Sprintf("call_%d", i)
		}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			args := map[string]any{}
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				sel.ArgErr = errors.New(errors.CodeInvalidArgument, "tool arguments are not valid JSON", err).
					WithContext("tool", call.Function.Name)
			} else {
				sel.Arguments = args
			}
		} else {
			sel.Arguments = map[string]any{}
		}
		selections = append(selections, sel)
	}
	return Decision{Selections: selections}, nil
}

// AppendAssistantCalls records the model's tool call message in the
// transcript so later rounds see what was requested.
func AppendAssistantCalls(transcript []llm.Message, selections []Selection) []llm.Message {
	calls := make([]llm.ToolCall, 0, len(selections))
	for _, sel := range selections {
		raw, _ := json.Marshal(sel.Arguments)
		calls = append(calls, llm.ToolCall{
			ID:   sel.CallID,
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionCall{
				Name:      sel.ToolName,
				Arguments: string(raw),
			},
		})
	}
	return append(transcript, llm.Message{Role: llm.RoleAssistant, ToolCalls: calls})
}

// ToolResultMessage renders one finished invocation as a transcript entry.
func ToolResultMessage(inv *Invocation) llm.Message {
	content := "error: " + invocationErrText(inv)
	if inv.Status == InvocationSucceeded && inv.Result != nil {
		switch {
		case inv.Result.Structured != nil:
			raw, err := json.Marshal(inv.Result.Structured)
			if err == nil {
				content = string(raw)
			} else {
				content = inv.Result.Text
			}
		default:
			content = inv.Result.Text
		}
	}
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    content,
		ToolCallID: inv.CallID,
	}
}

func invocationErrText(inv *Invocation) string {
	if inv.Err == nil {
		return "tool call did not complete"
	}
	return inv.Err.Error()
}
