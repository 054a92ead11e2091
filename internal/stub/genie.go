// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

package stub

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewGenieServer builds the structured-query backend. It answers natural
// language questions with aggregates computed over the demo dataset. The
// "NL to SQL" part is keyword matching, which is all a stub needs.
func NewGenieServer(data *Dataset) *server.MCPServer {
	s := server.NewMCPServer("stub-genie", "1.0.0")

	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription("Ask a natural language question over claims and enrollment data. Good for totals, counts, and breakdowns, e.g. 'total claim spend by status'."),
			mcp.WithString("query", mcp.Required(), mcp.Description("The analytical question to answer")),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})
			question, _ := args["query"].(string)
			question = strings.ToLower(question)
			if strings.TrimSpace(question) == "" {
				return errorResult("question is empty"), nil
			}
			return structuredResult(answerQuestion(data, question)), nil
		},
	)

	return s
}

// answerQuestion routes a lowercased question to the closest canned
// aggregate. Unrecognized questions get the claim spend summary, which is
// the most common ask.
func answerQuestion(data *Dataset, question string) map[string]any {
	switch {
	case strings.Contains(question, "denied"):
		return claimsByStatus(data, "denied")
	case strings.Contains(question, "pending"):
		return claimsByStatus(data, "pending")
	case strings.Contains(question, "member") && (strings.Contains(question, "count") || strings.Contains(question, "how many")):
		return memberCounts(data)
	case strings.Contains(question, "provider") || strings.Contains(question, "specialt"):
		return providerCounts(data)
	default:
		return spendSummary(data)
	}
}

func claimsByStatus(data *Dataset, status string) map[string]any {
	var total float64
	var rows []map[string]any
	for _, c := range data.Claims {
		if c.Status != status {
			continue
		}
		total += c.Amount
		rows = append(rows, map[string]any{
			"claim_id":  c.ClaimID,
			"member_id": c.MemberID,
			"service":   c.Service,
			"amount":    c.Amount,
		})
	}
	return map[string]any{
		"question_kind": fmt.Sprintf("claims with status %s", status),
		"count":         len(rows),
		"total_amount":  total,
		"claims":        rows,
	}
}

func memberCounts(data *Dataset) map[string]any {
	byStatus := map[string]int{}
	for _, m := range data.Members {
		byStatus[m.Status]++
	}
	return map[string]any{
		"question_kind": "member counts by enrollment status",
		"total_members": len(data.Members),
		"by_status":     byStatus,
	}
}

func providerCounts(data *Dataset) map[string]any {
	bySpecialty := map[string]int{}
	accepting := 0
	for _, p := range data.Providers {
		bySpecialty[p.Specialty]++
		if p.Accepting {
			accepting++
		}
	}
	return map[string]any{
		"question_kind":          "provider counts by specialty",
		"total_providers":        len(data.Providers),
		"by_specialty":           bySpecialty,
		"accepting_new_patients": accepting,
	}
}

func spendSummary(data *Dataset) map[string]any {
	byStatus := map[string]float64{}
	var total float64
	for _, c := range data.Claims {
		byStatus[c.Status] += c.Amount
		total += c.Amount
	}
	return map[string]any{
		"question_kind":    "claim spend by adjudication status",
		"total_claims":     len(data.Claims),
		"total_amount":     total,
		"amount_by_status": byStatus,
	}
}
