// Package ripgrep runs line filters through an external ripgrep process.
package ripgrep

import "strconv"

// Invocation is everything that shapes a ripgrep command line.
// It is a plain value so argument construction stays a pure function.
type Invocation struct {
	RegexMode          bool
	IgnoreCase         bool
	InvertMatch        bool
	PatternFile        string
	InputPath          string
	InputIsDir         bool
	ShowFilenameHeader bool
	ContextLines       int
	Globs              []string // directory searches only
}

// BuildArgs returns the finalized, ordered argument list for inv.
//
// Order: common flags, --fixed-strings, --ignore-case, --invert-match,
// --file, --heading or --no-filename, --context, --glob, then the input path
// after a "--" terminator.
func BuildArgs(inv Invocation) []string {
	args := []string{"--no-config", "--color=never"}
	if !inv.InputIsDir {
		// A named file is searched as text, NUL bytes included
		args = append(args, "--text")
	}
	if !inv.RegexMode {
		args = append(args, "--fixed-strings")
	}
	if inv.IgnoreCase {
		args = append(args, "--ignore-case")
	}
	if inv.InvertMatch {
		args = append(args, "--invert-match")
	}
	args = append(args, "--file", inv.PatternFile)
	if inv.ShowFilenameHeader && inv.InputIsDir {
		args = append(args, "--heading")
	} else {
		args = append(args, "--no-filename")
	}
	if inv.ContextLines > 0 {
		args = append(args, "--context", strconv.Itoa(inv.ContextLines))
	}
	if inv.InputIsDir {
		for _, g := range inv.Globs {
			if g != "" {
				args = append(args, "--glob", g)
			}
		}
	}
	return append(args, "--", inv.InputPath)
}
