package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/filterline/internal/ripgrep"
	"github.com/standardbeagle/filterline/internal/types"
	"github.com/standardbeagle/filterline/internal/version"
)

// FilterParams are the filter_lines arguments. Pointer fields fall back to
// the configured search defaults when omitted.
type FilterParams struct {
	Input        string   `json:"input"`
	Pattern      string   `json:"pattern"`
	Output       string   `json:"output,omitempty"`
	Regex        *bool    `json:"regex,omitempty"`
	Invert       *bool    `json:"invert,omitempty"`
	IgnoreCase   *bool    `json:"ignore_case,omitempty"`
	SmartCase    *bool    `json:"smart_case,omitempty"`
	MatchSelf    *bool    `json:"match_self,omitempty"`
	ShowFilename *bool    `json:"show_filename,omitempty"`
	ContextLines *int     `json:"context_lines,omitempty"`
	Globs        []string `json:"globs,omitempty"`
	SafetyFactor float64  `json:"safety_factor,omitempty"`
}

type ValidateParams struct {
	Pattern string `json:"pattern"`
	Regex   bool   `json:"regex,omitempty"`
}

type SafetyParams struct {
	Path         string  `json:"path"`
	SafetyFactor float64 `json:"safety_factor,omitempty"`
}

type ContextParams struct {
	ResultPath string `json:"result_path"`
	Line       string `json:"line"`
}

// FilterResponse is returned by filter_lines and result_context
type FilterResponse struct {
	Success      bool     `json:"success"`
	OutputPath   string   `json:"output_path"`
	Strategy     string   `json:"strategy"`
	ExitStatus   *int     `json:"exit_status,omitempty"`
	LinesWritten *int64   `json:"lines_written,omitempty"`
	Digest       string   `json:"digest,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	SafeToOpen   bool     `json:"safe_to_open"`
}

type SafetyResponse struct {
	Path           string  `json:"path"`
	SafeToOpen     bool    `json:"safe_to_open"`
	Size           int64   `json:"size"`
	Factor         float64 `json:"factor"`
	Estimated      uint64  `json:"estimated_bytes"`
	LimitingFactor string  `json:"limiting_factor,omitempty"`
	Message        string  `json:"message,omitempty"`
}

type StatusResponse struct {
	ServerVersion    string `json:"server_version"`
	BuildID          string `json:"build_id"`
	RipgrepAvailable bool   `json:"ripgrep_available"`
	RipgrepPath      string `json:"ripgrep_path,omitempty"`
	RipgrepVersion   string `json:"ripgrep_version,omitempty"`
	CacheRoot        string `json:"cache_root"`
	Results          int    `json:"results"`
	ResultBytes      int64  `json:"result_bytes"`
	PatternFiles     int    `json:"pattern_files"`
	PatternCacheHits int64  `json:"pattern_cache_hits"`
}

// decodeParams unmarshals tool arguments and reports the ones v does not
// declare. Absent arguments decode as {}.
func decodeParams(req *mcp.CallToolRequest, v interface{}) ([]UnknownField, error) {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	unknown, err := collectUnknownFields(req.Params.Arguments, v)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return unknown, nil
}

func (s *Server) safetyFactor(requested float64) float64 {
	if requested > 0 {
		return requested
	}
	return s.cfg.Safety.Factor
}

func (p FilterParams) options(defaults types.SearchOptions) types.SearchOptions {
	opts := defaults
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&opts.RegexMode, p.Regex)
	set(&opts.InvertMatch, p.Invert)
	set(&opts.IgnoreCase, p.IgnoreCase)
	set(&opts.SmartCase, p.SmartCase)
	set(&opts.MatchPatternSelf, p.MatchSelf)
	set(&opts.ShowFilenameHeader, p.ShowFilename)
	if p.ContextLines != nil {
		opts.ContextLineCount = *p.ContextLines
	}
	if len(p.Globs) > 0 {
		opts.Globs = p.Globs
	}
	return opts
}

func (s *Server) filterResponse(outcome types.Outcome, factor float64) FilterResponse {
	resp := FilterResponse{
		Success:    outcome.Success,
		OutputPath: outcome.OutputPath,
		Strategy:   string(outcome.Strategy),
		ExitStatus: outcome.ExitStatus,
		Warnings:   outcome.Warnings,
		SafeToOpen: s.engine.CanOpenSafely(outcome.OutputPath, factor),
	}
	if outcome.LinesWritten >= 0 && outcome.Strategy == types.StrategyFallback {
		n := outcome.LinesWritten
		resp.LinesWritten = &n
	}
	if outcome.Digest != 0 {
		resp.Digest = fmt.Sprintf("%016x", outcome.Digest)
	}
	return resp
}

func (s *Server) handleFilterLines(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p FilterParams
	unknown, err := decodeParams(req, &p)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Input) == "" {
		return nil, errors.New("input is required")
	}

	opts := p.options(s.cfg.SearchOptions())
	s.diagnosticLogger.Printf("filter_lines %q in %s (regex=%v invert=%v)", p.Pattern, p.Input, opts.RegexMode, opts.InvertMatch)

	var outcome types.Outcome
	if p.Output == "" {
		outcome, err = s.engine.Filter(ctx, p.Input, p.Pattern, opts)
	} else {
		outcome, err = s.engine.Search(ctx, p.Input, p.Output, p.Pattern, opts)
	}
	if err != nil {
		return nil, err
	}
	resp := s.filterResponse(outcome, s.safetyFactor(p.SafetyFactor))
	for _, f := range unknown {
		resp.Warnings = append(resp.Warnings, f.String())
	}
	return createJSONResponse(resp)
}

func (s *Server) handleValidatePattern(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ValidateParams
	if _, err := decodeParams(req, &p); err != nil {
		return nil, err
	}

	resp := map[string]interface{}{
		"pattern": p.Pattern,
		"regex":   p.Regex,
		"valid":   true,
	}
	if err := s.engine.CheckPattern(p.Pattern, p.Regex); err != nil {
		resp["valid"] = false
		resp["error"] = err.Error()
	}
	return createJSONResponse(resp)
}

func (s *Server) handleCanOpenSafely(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p SafetyParams
	if _, err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, errors.New("path is required")
	}

	report, err := s.engine.Evaluate(p.Path, s.safetyFactor(p.SafetyFactor))
	if err != nil {
		return nil, err
	}
	resp := SafetyResponse{
		Path:           report.Path,
		SafeToOpen:     report.Admitted,
		Size:           report.Size,
		Factor:         report.Factor,
		Estimated:      report.Estimated,
		LimitingFactor: report.LimitingFactor,
	}
	if err := report.Err(); err != nil {
		resp.Message = err.Error()
	}
	return createJSONResponse(resp)
}

func (s *Server) handleResultContext(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ContextParams
	if _, err := decodeParams(req, &p); err != nil {
		return nil, err
	}
	if p.ResultPath == "" {
		return nil, errors.New("result_path is required")
	}

	outcome, err := s.engine.Context(ctx, p.ResultPath, p.Line)
	if err != nil {
		return nil, err
	}
	return createJSONResponse(s.filterResponse(outcome, s.cfg.Safety.Factor))
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	locator := s.engine.Locator()
	resp := StatusResponse{
		ServerVersion:    version.FullInfo(),
		BuildID:          version.BuildID(),
		RipgrepAvailable: locator.Available(),
		CacheRoot:        s.engine.Allocator().Root(),
		PatternCacheHits: s.engine.PatternStats().Hits,
	}
	if path, err := locator.Resolve(); err == nil {
		resp.RipgrepPath = path
		if v, err := locator.Version(ctx); err == nil {
			resp.RipgrepVersion = v
		}
	} else if p := locator.Path(); p != "" {
		resp.RipgrepPath = p
	} else {
		resp.RipgrepPath = ripgrep.DefaultToolName()
	}

	usage, err := s.janitor.Usage()
	if err != nil {
		return nil, err
	}
	resp.Results = usage.Results
	resp.ResultBytes = usage.ResultBytes
	resp.PatternFiles = usage.PatternFiles
	return createJSONResponse(resp)
}
