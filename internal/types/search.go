package types

// SearchOptions controls a single line-filter invocation.
// The zero value is a case-sensitive literal search emitting matching lines.
type SearchOptions struct {
	RegexMode        bool // Pattern is a regular expression; otherwise a literal substring
	MatchPatternSelf bool // In regex mode also match lines containing the raw pattern text
	InvertMatch      bool // Emit lines that do NOT satisfy the match condition (grep -v)
	IgnoreCase       bool // Case-insensitive comparison for regex and literal matching
	SmartCase        bool // Force IgnoreCase when the pattern has no upper-case letter

	ShowFilenameHeader bool // Group directory output under per-file headings
	ContextLineCount   int  // Lines of context before/after each emitted line (0 = none)

	// Globs restrict directory searches (doublestar syntax, forwarded as --glob)
	Globs []string
}

// DefaultSearchOptions mirrors the defaults the editor integration starts with
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		ShowFilenameHeader: true,
	}
}

// Strategy names the component that produced an outcome
type Strategy string

const (
	StrategyRipgrep  Strategy = "ripgrep"
	StrategyFallback Strategy = "fallback"
	StrategyNone     Strategy = "none" // Rejected before any strategy ran
)

// Outcome is the uniform result of a search, whichever strategy ran.
type Outcome struct {
	Success    bool
	ExitStatus *int   // Process exit status; nil for in-process scans and launch failures
	Stderr     string // Diagnostics from the external tool, possibly non-empty on success
	OutputPath string
	Strategy   Strategy
	Cancelled  bool

	// Filled in by the search facade
	Warnings     []string
	LinesWritten int64  // Lines written by the fallback scanner (-1 when not counted)
	Digest       uint64 // xxhash of the output file; zero when not computed
}

// ExitCode is a convenience for callers that want a plain status
func (o Outcome) ExitCode() int {
	if o.ExitStatus == nil {
		if o.Success {
			return 0
		}
		return -1
	}
	return *o.ExitStatus
}

// IntPtr returns a pointer to v, for populating Outcome.ExitStatus
func IntPtr(v int) *int {
	return &v
}
