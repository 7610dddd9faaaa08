package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	flerrors "github.com/standardbeagle/filterline/internal/errors"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse reports a failed tool call inside the result with
// IsError set, so the client model sees the failure and can correct itself
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"operation": operation,
		"kind":      string(flerrors.Kind(err)),
		"error":     flerrors.UserMessage(err),
	}
	if suggestions := errorSuggestions(err); len(suggestions) > 0 {
		errorData["suggestions"] = suggestions
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}

// errorSuggestions offers next steps for the failures a caller can fix
func errorSuggestions(err error) []string {
	switch flerrors.Kind(err) {
	case flerrors.ErrorTypePatternSyntax:
		return []string{
			"Check the pattern with validate_pattern first",
			"Set regex=false to match the text literally",
			"Set match_self=true to also match lines containing the raw pattern text",
		}
	case flerrors.ErrorTypeToolUnavailable:
		return []string{
			"Install ripgrep (rg) or set ripgrep.path in .filterline.kdl",
			"Filter a single file instead; files are scanned in process without ripgrep",
		}
	case flerrors.ErrorTypeLowMemory:
		return []string{"Narrow the filter so the result is smaller"}
	}
	return nil
}
