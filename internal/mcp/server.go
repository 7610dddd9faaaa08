// Package mcp exposes the filter engine as Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/filterline/internal/cache"
	"github.com/standardbeagle/filterline/internal/config"
	"github.com/standardbeagle/filterline/internal/search"
	"github.com/standardbeagle/filterline/internal/version"
)

const serverName = "filterline-mcp-server"

type toolHandler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Server answers MCP tool calls with a shared search engine
type Server struct {
	engine           *search.Engine
	janitor          *cache.Janitor
	cfg              *config.Config
	server           *mcp.Server
	diagnosticLogger *DiagnosticLogger
	handlers         map[string]toolHandler
}

// NewServer creates an MCP server around engine. cfg supplies the default
// search flags and safety factor; a nil cfg uses config.Defaults.
func NewServer(engine *search.Engine, cfg *config.Config) (*Server, error) {
	return newServer(engine, cfg, NewDiagnosticLogger(true))
}

func newServer(engine *search.Engine, cfg *config.Config, logger *DiagnosticLogger) (*Server, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if engine == nil {
		engine = search.NewFromConfig(cfg)
	}

	s := &Server{
		engine:           engine,
		janitor:          cache.NewJanitor(engine.Allocator(), time.Duration(cfg.Cache.MaxAgeHours)*time.Hour),
		cfg:              cfg,
		diagnosticLogger: logger,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version.Version,
	}, nil)
	s.registerTools()

	logger.Printf("MCP server initialized (ripgrep available: %v, cache: %s)",
		engine.Locator().Available(), engine.Allocator().Root())
	return s, nil
}

func (s *Server) addTool(tool *mcp.Tool, handler toolHandler) {
	if s.handlers == nil {
		s.handlers = make(map[string]toolHandler)
	}
	name := tool.Name
	wrapped := func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.recoverFromPanic(name, func() (*mcp.CallToolResult, error) {
			return handler(ctx, req)
		})
	}
	s.handlers[name] = wrapped
	s.server.AddTool(tool, wrapped)
}

func (s *Server) registerTools() {
	s.addTool(&mcp.Tool{
		Name:        "filter_lines",
		Description: "Filter the lines of a file (or, with ripgrep installed, a directory tree) by a literal or regex pattern into a result file. Returns the result path; open it only if safe_to_open is true.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"input", "pattern"},
			Properties: map[string]*jsonschema.Schema{
				"input":         {Type: "string", Description: "File or directory to filter"},
				"pattern":       {Type: "string", Description: "Single-line pattern"},
				"output":        {Type: "string", Description: "Result file path; allocated in the cache when empty"},
				"regex":         {Type: "boolean", Description: "Treat pattern as a regular expression"},
				"invert":        {Type: "boolean", Description: "Keep lines that do NOT match"},
				"ignore_case":   {Type: "boolean", Description: "Case-insensitive matching"},
				"smart_case":    {Type: "boolean", Description: "Ignore case when the pattern is all lower case"},
				"match_self":    {Type: "boolean", Description: "In regex mode also match lines containing the raw pattern text"},
				"show_filename": {Type: "boolean", Description: "Group directory results under file headings (default true)"},
				"context_lines": {Type: "integer", Description: "Lines of context around each kept line"},
				"globs": {
					Type:        "array",
					Items:       &jsonschema.Schema{Type: "string"},
					Description: "Directory searches only: include/exclude globs, e.g. [\"*.log\", \"!*.gz\"]",
				},
				"safety_factor": {Type: "number", Description: "Memory multiplier for safe_to_open (default from config)"},
			},
		},
	}, s.handleFilterLines)

	s.addTool(&mcp.Tool{
		Name:        "validate_pattern",
		Description: "Check whether a pattern is usable before filtering",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"pattern"},
			Properties: map[string]*jsonschema.Schema{
				"pattern": {Type: "string", Description: "Pattern to check"},
				"regex":   {Type: "boolean", Description: "Check as a regular expression"},
			},
		},
	}, s.handleValidatePattern)

	s.addTool(&mcp.Tool{
		Name:        "can_open_safely",
		Description: "Decide whether a result file fits in memory: rejected when size*factor exceeds heap headroom or 90% of free system memory",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"path"},
			Properties: map[string]*jsonschema.Schema{
				"path":          {Type: "string", Description: "Result file"},
				"safety_factor": {Type: "number", Description: "Memory multiplier (default from config)"},
			},
		},
	}, s.handleCanOpenSafely)

	s.addTool(&mcp.Tool{
		Name:        "result_context",
		Description: "Show a line from a filter result in its source, with surrounding lines",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"result_path", "line"},
			Properties: map[string]*jsonschema.Schema{
				"result_path": {Type: "string", Description: "Result produced by filter_lines"},
				"line":        {Type: "string", Description: "Exact line text from the result"},
			},
		},
	}, s.handleResultContext)

	s.addTool(&mcp.Tool{
		Name:        "status",
		Description: "Report ripgrep availability, version information and cache usage",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleStatus)
}

// recoverFromPanic keeps one failing call from taking down the server
func (s *Server) recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.diagnosticLogger.Errorf("PANIC RECOVERED in %s: %v", operation, r)
			s.diagnosticLogger.Printf("Stack trace: %s", debug.Stack())

			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			s.diagnosticLogger.Printf("Memory stats - Alloc: %d KB, Sys: %d KB, NumGC: %d",
				m.Alloc/1024, m.Sys/1024, m.NumGC)

			result, err = createErrorResponse(operation, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err = handler()
	if err != nil {
		s.diagnosticLogger.Errorf("%s: %v", operation, err)
		return createErrorResponse(operation, err)
	}
	return result, nil
}

// Start serves MCP over stdio until ctx is done or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.diagnosticLogger.Printf("Starting MCP server with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Shutdown sweeps stale cache entries and closes the diagnostic log
func (s *Server) Shutdown(ctx context.Context) error {
	s.diagnosticLogger.Printf("Shutting down MCP server...")

	if report, err := s.janitor.Sweep(nil); err != nil {
		s.diagnosticLogger.Errorf("cache sweep: %v", err)
	} else {
		s.diagnosticLogger.Printf("cache sweep removed %d result(s), %d pattern file(s)",
			report.ResultsRemoved, report.PatternsRemoved)
	}

	s.diagnosticLogger.Printf("MCP server shutdown complete")
	return s.diagnosticLogger.Close()
}

// GetHandlerForTesting returns the registered handler for toolName
func (s *Server) GetHandlerForTesting(toolName string) func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h, ok := s.handlers[toolName]; ok {
		return h
	}
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return createErrorResponse("GetHandlerForTesting", fmt.Errorf("unknown tool: %s", toolName))
	}
}
