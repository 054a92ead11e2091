// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

package stub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewFunctionsServer builds the function-execution backend: record lookups
// against the demo dataset, exposed as MCP tools.
func NewFunctionsServer(data *Dataset) *server.MCPServer {
	s := server.NewMCPServer("stub-functions", "1.0.0")

	s.AddTool(
		mcp.NewTool("lookup_member",
			mcp.WithDescription("Look up an enrolled member by member ID. Returns demographics, plan, and enrollment status."),
			mcp.WithString("input_id", mcp.Required(), mcp.Description("Member ID, e.g. 1001")),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})
			id, _ := args["input_id"].(string)
			member := data.FindMember(id)
			if member == nil {
				return errorResult(fmt.Sprintf("no member with id %q", id)), nil
			}
			return structuredResult(member), nil
		},
	)

	s.AddTool(
		mcp.NewTool("lookup_claims",
			mcp.WithDescription("List all claims filed for a member, with amounts and adjudication status."),
			mcp.WithString("member_id", mcp.Required(), mcp.Description("Member ID the claims belong to")),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})
			id, _ := args["member_id"].(string)
			if data.FindMember(id) == nil {
				return errorResult(fmt.Sprintf("no member with id %q", id)), nil
			}
			claims := data.ClaimsFor(id)
			if claims == nil {
				claims = []Claim{}
			}
			return structuredResult(claims), nil
		},
	)

	s.AddTool(
		mcp.NewTool("lookup_providers",
			mcp.WithDescription("Search the in-network provider directory, optionally filtered by specialty."),
			mcp.WithString("specialty_filter", mcp.Description("Specialty to filter by, e.g. cardiology. Empty returns all providers.")),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})
			filter, _ := args["specialty_filter"].(string)
			return structuredResult(data.ProvidersBySpecialty(filter)), nil
		},
	)

	return s
}

// structuredResult serializes v as the tool result, with a text fallback for
// clients that ignore structured content.
func structuredResult(v any) *mcp.CallToolResult {
	raw, err := json.Marshal(v)
	if err != nil {
		return errorResult("encoding result: " + err.Error())
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.TextContent{Type: "text", Text: string(raw)}},
		StructuredContent: v,
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: msg}},
	}
}
