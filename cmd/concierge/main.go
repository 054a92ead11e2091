// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

// Command concierge is the tool-routing agent CLI. It connects the
// configured capabilities, registers their operations as tools, and answers
// questions in an interactive chat loop.
//
// Subcommands:
//
//	concierge [flags] chat     interactive chat (default)
//	concierge [flags] ask MSG  answer a single utterance and exit
//	concierge [flags] health   check every configured capability
//	concierge [flags] tools    print the registered tool catalog
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carebridge/concierge/pkg/agent"
	"github.com/carebridge/concierge/pkg/audit"
	"github.com/carebridge/concierge/pkg/capability"
	"github.com/carebridge/concierge/pkg/composer"
	"github.com/carebridge/concierge/pkg/config"
	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/llm"
	"github.com/carebridge/concierge/pkg/registry"
	"github.com/carebridge/concierge/pkg/telemetry"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "concierge.yaml", "path to the configuration file")
	output := flag.String("output", "table", "output format for health/tools: table, json, yaml")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "chat"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	shutdown, err := telemetry.Init("concierge", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var exitCode int
	switch cmd {
	case "chat":
		exitCode = runChat(ctx, cfg, logger, "")
	case "ask":
		utterance := strings.Join(flag.Args()[1:], " ")
		if strings.TrimSpace(utterance) == "" {
			fmt.Fprintln(os.Stderr, "usage: concierge ask <question>")
			exitCode = 2
			break
		}
		exitCode = runChat(ctx, cfg, logger, utterance)
	case "health":
		exitCode = runHealth(ctx, cfg, logger, *output)
	case "tools":
		exitCode = runTools(ctx, cfg, logger, *output)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		exitCode = 2
	}
	os.Exit(exitCode)
}

// buildClients constructs a client per configured capability. Construction
// errors (bad protocol, missing credentials) are fatal; those are
// configuration bugs, not runtime conditions.
func buildClients(cfg *config.Config, logger *slog.Logger) ([]core.Client, error) {
	clients := make([]core.Client, 0, len(cfg.Capabilities))
	for _, cc := range cfg.Capabilities {
		desc := cc.Descriptor()
		var (
			c   core.Client
			err error
		)
		switch cc.Protocol {
		case "", "mcp":
			c, err = capability.NewMCP(desc)
		case "serving":
			c, err = capability.NewServing(desc)
		default:
			return nil, fmt.Errorf("capability %q: unknown protocol %q", cc.ID, cc.Protocol)
		}
		if err != nil {
			return nil, fmt.Errorf("capability %q: %w", cc.ID, err)
		}
		logger.Debug("capability configured", "id", desc.ID, "category", desc.Category, "endpoint", desc.Endpoint)
		clients = append(clients, c)
	}
	return clients, nil
}

// connectAll connects every client. A capability that fails to connect is
// logged and dropped so the rest of the system keeps working.
func connectAll(ctx context.Context, clients []core.Client, logger *slog.Logger) []core.Client {
	connected := make([]core.Client, 0, len(clients))
	for _, c := range clients {
		desc := c.Descriptor()
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := c.Connect(connectCtx)
		cancel()
		if err != nil {
			logger.Warn("capability unavailable, continuing without it",
				"id", desc.ID, "category", desc.Category, "error", err)
			c.Close()
			continue
		}
		logger.Info("capability connected", "id", desc.ID, "category", desc.Category)
		connected = append(connected, c)
	}
	return connected
}

func buildRegistry(ctx context.Context, clients []core.Client, logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.New()
	for _, c := range clients {
		tools, err := reg.Register(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, tool := range tools {
			logger.Debug("tool registered", "tool", tool.Name, "category", tool.Category)
		}
	}
	return reg, nil
}

func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL), nil
	case "endpoint":
		token := ""
		if cfg.LLM.APIKeyEnv != "" {
			token = strings.TrimSpace(os.Getenv(cfg.LLM.APIKeyEnv))
			if token == "" {
				return nil, fmt.Errorf("llm credential variable %s is empty", cfg.LLM.APIKeyEnv)
			}
		}
		return llm.NewEndpoint(cfg.LLM.BaseURL, token), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func buildAudit(cfg *config.Config, logger *slog.Logger) audit.TurnStore {
	if !cfg.Audit.Enabled {
		return nil
	}
	store, err := audit.OpenSQLite(cfg.Audit.Path)
	if err != nil {
		logger.Warn("audit store unavailable, turns will not be recorded", "path", cfg.Audit.Path, "error", err)
		return nil
	}
	logger.Info("audit store ready", "path", cfg.Audit.Path)
	return store
}

func runChat(ctx context.Context, cfg *config.Config, logger *slog.Logger, single string) int {
	clients, err := buildClients(cfg, logger)
	if err != nil {
		logger.Error("capability setup failed", "error", err)
		return 1
	}
	defer closeAll(clients)

	connected := connectAll(ctx, clients, logger)
	if len(connected) == 0 {
		logger.Warn("no capabilities available, answers will be degraded")
	}

	reg, err := buildRegistry(ctx, connected, logger)
	if err != nil {
		logger.Error("tool registration failed", "error", err)
		return 1
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		logger.Error("llm setup failed", "error", err)
		return 1
	}

	metrics, err := telemetry.NewTurnMetrics()
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
		metrics = nil
	}

	store := buildAudit(cfg, logger)
	if store != nil {
		defer store.Close()
	}

	catalog := make([]composer.CatalogEntry, 0, reg.Len())
	for _, tool := range reg.All() {
		catalog = append(catalog, composer.CatalogEntry{
			Category:    tool.Category,
			Description: tool.Description,
		})
	}

	router := agent.NewRouter(
		agent.NewLLMProcedure(provider, cfg.LLM.Model),
		reg,
		composer.New(composer.WithCatalog(catalog)),
		agent.WithLogger(logger),
		agent.WithMetrics(metrics),
		agent.WithMaxRounds(cfg.Agent.MaxRounds),
		agent.WithTurnTimeout(cfg.Agent.TurnTimeout),
		agent.WithInvocationTimeout(cfg.Agent.InvocationTimeout),
	)

	if single != "" {
		return handleUtterance(ctx, router, store, logger, single)
	}

	fmt.Printf("concierge %s. %d tools across %d capabilities. Type a question, or \"exit\" to quit.\n",
		version, reg.Len(), len(connected))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return 0
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return 0
		}
		if code := handleUtterance(ctx, router, store, logger, line); code != 0 {
			return code
		}
		if ctx.Err() != nil {
			return 0
		}
	}
}

func handleUtterance(ctx context.Context, router *agent.Router, store audit.TurnStore, logger *slog.Logger, utterance string) int {
	answer, turn, err := router.Handle(ctx, utterance)
	if err != nil {
		logger.Error("turn failed", "error", err)
		return 1
	}

	fmt.Println()
	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		refs := make([]string, 0, len(answer.Sources))
		for _, src := range answer.Sources {
			refs = append(refs, src.CapabilityID+"/"+src.ToolName)
		}
		fmt.Printf("\n[sources: %s]\n", strings.Join(refs, ", "))
	}
	if answer.PartialFailure {
		fmt.Println("[note: parts of this answer are incomplete]")
	}
	fmt.Println()

	if store != nil {
		if err := store.Record(ctx, audit.FromTurn(turn, answer)); err != nil {
			logger.Warn("recording turn failed", "error", err)
		}
	}
	return 0
}

func runHealth(ctx context.Context, cfg *config.Config, logger *slog.Logger, output string) int {
	clients, err := buildClients(cfg, logger)
	if err != nil {
		logger.Error("capability setup failed", "error", err)
		return 1
	}
	defer closeAll(clients)

	// Health is checked on everything configured, connected or not, so the
	// report shows exactly what is down.
	provider := core.NewHealthProvider(0)
	for _, c := range clients {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := c.Connect(connectCtx); err != nil {
			logger.Debug("connect failed before health check", "id", c.Descriptor().ID, "error", err)
		}
		cancel()
		provider.Register(c.Descriptor().ID, core.HealthFunc(c.HealthCheck))
	}
	results, overall := provider.CheckAll(ctx)

	metrics, merr := telemetry.NewTurnMetrics()
	if merr == nil {
		for _, res := range results {
			metrics.RecordHealth(ctx, res.Component, res.State)
		}
	}

	type healthRow struct {
		Capability string `json:"capability" yaml:"capability"`
		State      string `json:"state" yaml:"state"`
		Tools      int    `json:"tools" yaml:"tools"`
		Message    string `json:"message,omitempty" yaml:"message,omitempty"`
	}
	rows := make([]healthRow, 0, len(results))
	for _, res := range results {
		msg := res.Message
		if res.Error != nil {
			msg = res.Error.Error()
		}
		rows = append(rows, healthRow{
			Capability: res.Component,
			State:      string(res.State),
			Tools:      res.ToolCount,
			Message:    msg,
		})
	}

	switch output {
	case "json":
		printJSON(rows)
	case "yaml":
		printYAML(rows)
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CAPABILITY\tSTATE\tTOOLS\tMESSAGE")
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", row.Capability, row.State, row.Tools, row.Message)
		}
		w.Flush()
	}

	if overall != core.HealthHealthy {
		return 1
	}
	return 0
}

func runTools(ctx context.Context, cfg *config.Config, logger *slog.Logger, output string) int {
	clients, err := buildClients(cfg, logger)
	if err != nil {
		logger.Error("capability setup failed", "error", err)
		return 1
	}
	defer closeAll(clients)

	connected := connectAll(ctx, clients, logger)
	reg, err := buildRegistry(ctx, connected, logger)
	if err != nil {
		logger.Error("tool registration failed", "error", err)
		return 1
	}

	type toolDump struct {
		Name         string   `json:"name" yaml:"name"`
		CapabilityID string   `json:"capability_id" yaml:"capability_id"`
		Category     string   `json:"category" yaml:"category"`
		Description  string   `json:"description" yaml:"description"`
		Required     []string `json:"required_args,omitempty" yaml:"required_args,omitempty"`
	}
	dump := make([]toolDump, 0, reg.Len())
	for _, tool := range reg.All() {
		dump = append(dump, toolDump{
			Name:         tool.Name,
			CapabilityID: tool.CapabilityID,
			Category:     string(tool.Category),
			Description:  tool.Description,
			Required:     tool.InputSchema.Required(),
		})
	}

	switch output {
	case "json":
		printJSON(dump)
	case "yaml":
		printYAML(dump)
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOOL\tCATEGORY\tREQUIRED ARGS\tDESCRIPTION")
		for _, d := range dump {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Category, strings.Join(d.Required, ","), d.Description)
		}
		w.Flush()
	}
	return 0
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func printYAML(v any) {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	enc.Encode(v)
	enc.Close()
}

func closeAll(clients []core.Client) {
	for _, c := range clients {
		c.Close()
	}
}
