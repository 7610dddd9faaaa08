package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/filterline/internal/debug"
	"github.com/standardbeagle/filterline/internal/mcp"
)

const shutdownTimeout = 2 * time.Second

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp",
		Usage:  "Serve the filter tools over the Model Context Protocol on stdio",
		Action: runMCP,
	}
}

func runMCP(c *cli.Context) error {
	// stdout carries the protocol; keep debug output off it
	debug.SetMCPMode(true)

	engine, cfg, err := engineFromContext(c)
	if err != nil {
		return debug.Fatal("failed to load config: %v\n", err)
	}

	server, err := mcp.NewServer(engine, cfg)
	if err != nil {
		return debug.Fatal("failed to create MCP server: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		debug.LogMCP("Starting MCP server with stdio transport...\n")
		errChan <- server.Start(ctx)
	}()

	var serveErr error
	select {
	case serveErr = <-errChan:
	case sig := <-sigChan:
		debug.LogMCP("Received signal %v, shutting down gracefully...\n", sig)
		cancel()

		timer := time.NewTimer(shutdownTimeout)
		defer timer.Stop()
		select {
		case <-errChan:
			debug.LogMCP("Server shutdown completed\n")
		case <-timer.C:
			debug.LogMCP("Server shutdown timed out\n")
		}
	}

	if err := server.Shutdown(context.Background()); err != nil {
		debug.LogMCP("shutdown: %v\n", err)
	}
	if serveErr != nil && ctx.Err() == nil {
		return debug.Fatal("MCP server error: %v\n", serveErr)
	}
	return nil
}
