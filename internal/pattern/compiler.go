// Package pattern turns a raw user pattern plus search options into a matcher
// shared by the ripgrep invoker and the in-process scanner.
package pattern

import (
	"bytes"
	stderrors "errors"
	"regexp"
	"strings"
	"unicode"

	flerrors "github.com/standardbeagle/filterline/internal/errors"
	"github.com/standardbeagle/filterline/internal/types"
)

var (
	ErrEmptyPattern     = stderrors.New("pattern is empty")
	ErrMultilinePattern = stderrors.New("pattern must not contain line breaks")
)

// metaChars are the characters EscapeRegex protects with a backslash
const metaChars = `.*+?^${}()|[]\`

// Compiled is an immutable, validated matcher. Both search strategies consume
// the same Compiled value so their line decisions cannot drift apart.
type Compiled struct {
	Raw        string
	RegexMode  bool
	IgnoreCase bool // effective case folding after smart case

	// Primary regex. Nil in literal mode or when it failed to compile.
	Regex    *regexp.Regexp
	RegexErr error
	rgExpr   string // Regex as written to the ripgrep pattern file

	// Escaped self-match candidate, regex mode with MatchPatternSelf only.
	Self    *regexp.Regexp
	SelfErr error

	// Literal matcher; fold is set when case folding applies.
	literal []byte
	fold    *regexp.Regexp
}

// EscapeRegex escapes every regex metacharacter in s so it matches literally
func EscapeRegex(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if strings.ContainsRune(metaChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// checkShape rejects patterns that cannot be written as a single pattern-file line
func checkShape(pattern string) error {
	if pattern == "" {
		return ErrEmptyPattern
	}
	if strings.ContainsAny(pattern, "\r\n") {
		return ErrMultilinePattern
	}
	return nil
}

// Validate reports whether pattern can be used in the given mode.
// Literals are valid unless empty or multi-line; regexes must compile and
// mean the same thing to ripgrep and to the in-process matcher.
func Validate(pattern string, regexMode bool) error {
	if err := checkShape(pattern); err != nil {
		return flerrors.NewPatternSyntaxError(pattern, err)
	}
	if !regexMode {
		return nil
	}
	if _, _, err := compileRegex(pattern, false); err != nil {
		return flerrors.NewPatternSyntaxError(pattern, err)
	}
	return nil
}

// IsValid is the boolean form of Validate
func IsValid(pattern string, regexMode bool) bool {
	return Validate(pattern, regexMode) == nil
}

// HasUpper reports whether s contains an upper-case letter
func HasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// EffectiveIgnoreCase applies smart case on top of the explicit flag
func EffectiveIgnoreCase(pattern string, opts types.SearchOptions) bool {
	if opts.IgnoreCase {
		return true
	}
	return opts.SmartCase && !HasUpper(pattern)
}

func compileFolded(expr string, ignoreCase bool) (*regexp.Regexp, error) {
	if ignoreCase {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

// compileRegex normalizes a user regex and compiles its Go form. The second
// result is the equivalent expression for ripgrep.
func compileRegex(expr string, ignoreCase bool) (*regexp.Regexp, string, error) {
	d, err := normalize(expr)
	if err != nil {
		return nil, "", err
	}
	re, err := compileFolded(d.goExpr, ignoreCase)
	if err != nil {
		return nil, "", err
	}
	return re, d.rgExpr, nil
}

// Compile validates pattern and builds the matcher for opts.
//
// In regex mode with MatchPatternSelf the primary regex and the escaped
// self-match candidate are validated independently; whichever compiles takes
// part, and the call fails only when neither does.
func Compile(pattern string, opts types.SearchOptions) (*Compiled, error) {
	if err := checkShape(pattern); err != nil {
		return nil, flerrors.NewPatternSyntaxError(pattern, err)
	}

	c := &Compiled{
		Raw:        pattern,
		RegexMode:  opts.RegexMode,
		IgnoreCase: EffectiveIgnoreCase(pattern, opts),
	}

	if !opts.RegexMode {
		c.literal = []byte(pattern)
		if c.IgnoreCase {
			fold, err := compileFolded(regexp.QuoteMeta(pattern), true)
			if err != nil {
				// Only reachable for invalid UTF-8 input
				return nil, flerrors.NewPatternSyntaxError(pattern, err)
			}
			c.fold = fold
		}
		return c, nil
	}

	c.Regex, c.rgExpr, c.RegexErr = compileRegex(pattern, c.IgnoreCase)

	if opts.MatchPatternSelf {
		c.Self, c.SelfErr = compileFolded(EscapeRegex(pattern), c.IgnoreCase)
		if c.SelfErr != nil {
			c.Self = nil
		}
	}

	if c.Regex == nil && c.Self == nil {
		err := c.RegexErr
		if err == nil {
			err = c.SelfErr
		}
		return nil, flerrors.NewPatternSyntaxError(pattern, err)
	}
	return c, nil
}

// Match reports whether line satisfies the pattern, before any inversion
func (c *Compiled) Match(line []byte) bool {
	if !c.RegexMode {
		if c.fold != nil {
			return c.fold.Match(line)
		}
		return bytes.Contains(line, c.literal)
	}
	if c.Regex != nil && c.Regex.Match(line) {
		return true
	}
	return c.Self != nil && c.Self.Match(line)
}

// Selected applies inversion to Match
func (c *Compiled) Selected(line []byte, invert bool) bool {
	return c.Match(line) != invert
}

// Lines returns the pattern-file contents, one pattern per entry.
// Case folding is not embedded; the invoker passes it as a flag.
func (c *Compiled) Lines() []string {
	if !c.RegexMode {
		return []string{c.Raw}
	}
	lines := make([]string, 0, 2)
	if c.Regex != nil {
		lines = append(lines, c.rgExpr)
	}
	if c.Self != nil {
		lines = append(lines, EscapeRegex(c.Raw))
	}
	return lines
}

// FileContent renders Lines as UTF-8 text with a trailing newline
func (c *Compiled) FileContent() []byte {
	return []byte(strings.Join(c.Lines(), "\n") + "\n")
}

// Warnings lists candidates that were dropped during compilation
func (c *Compiled) Warnings() []string {
	var out []string
	if c.RegexErr != nil && c.Self != nil {
		out = append(out, "regex ignored, matching pattern text only: "+c.RegexErr.Error())
	}
	if c.SelfErr != nil && c.Regex != nil {
		out = append(out, "self-match ignored: "+c.SelfErr.Error())
	}
	return out
}
