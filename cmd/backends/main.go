// Copyright 2026 © The Concierge Authors
// SPDX-License-Identifier: Apache-2.0

// Command backends runs the stub payor systems the demo configuration points
// at: a function-execution MCP server, a structured-query MCP server, and a
// document-QA serving endpoint. Everything is served from an in-memory
// dataset so the concierge works with no external dependencies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/carebridge/concierge/internal/stub"
	"github.com/carebridge/concierge/pkg/telemetry"
)

func main() {
	functionsAddr := flag.String("functions-addr", ":7101", "listen address for the function-execution MCP server")
	genieAddr := flag.String("genie-addr", ":7102", "listen address for the structured-query MCP server")
	knowledgeAddr := flag.String("knowledge-addr", ":7103", "listen address for the document-QA serving endpoint")
	qdrantAddr := flag.String("qdrant-addr", "", "optional Qdrant gRPC address for vector retrieval, e.g. localhost:6334")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := telemetry.ConfigureSlog(os.Stderr, *logLevel, "text")
	slog.SetDefault(logger)

	data := stub.DefaultDataset()

	var index stub.Index = stub.NewMemoryIndex(data.Passages)
	if *qdrantAddr != "" {
		qIndex, err := stub.NewQdrantIndex(*qdrantAddr, "")
		if err != nil {
			logger.Error("qdrant unavailable", "addr", *qdrantAddr, "error", err)
			os.Exit(1)
		}
		defer qIndex.Close()
		seedCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err = qIndex.EnsureSeeded(seedCtx, data.Passages)
		cancel()
		if err != nil {
			logger.Error("seeding qdrant failed", "error", err)
			os.Exit(1)
		}
		logger.Info("using qdrant retrieval", "addr", *qdrantAddr)
		index = qIndex
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 3)

	functions := mcpserver.NewStreamableHTTPServer(stub.NewFunctionsServer(data))
	go func() {
		logger.Info("function-execution backend listening", "addr", *functionsAddr)
		errCh <- functions.Start(*functionsAddr)
	}()

	genie := mcpserver.NewStreamableHTTPServer(stub.NewGenieServer(data))
	go func() {
		logger.Info("structured-query backend listening", "addr", *genieAddr)
		errCh <- genie.Start(*genieAddr)
	}()

	knowledge := &http.Server{
		Addr:    *knowledgeAddr,
		Handler: stub.NewKnowledgeHandler(index),
	}
	go func() {
		logger.Info("document-qa backend listening", "addr", *knowledgeAddr)
		errCh <- knowledge.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "backend failed: %v\n", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	functions.Shutdown(shutdownCtx)
	genie.Shutdown(shutdownCtx)
	knowledge.Shutdown(shutdownCtx)
}
