package pattern

import (
	stderrors "errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// The in-process matcher (Go regexp) and ripgrep (Rust regex) share most of
// their syntax but not all of it. normalize rewrites a user regex into one
// explicit form that reads the same in both engines, and rejects constructs
// only one of them understands.
//
//   - \d \w \s and their negations are Unicode classes, as in ripgrep
//   - \b and \B are ASCII word boundaries in both engines
//   - \Q...\E, \C, octal escapes, nested classes and class set operators
//     (&& -- ~~) are rejected

var (
	ErrQuotedLiteral   = stderrors.New(`\Q...\E quoting is not supported; use literal mode`)
	ErrAnyByte         = stderrors.New(`\C is not supported`)
	ErrOctalEscape     = stderrors.New(`octal escapes and backreferences are not supported; use \x{...}`)
	ErrNestedClass     = stderrors.New("nested character classes are not supported")
	ErrClassSetOp      = stderrors.New("character class set operations (&&, --, ~~) are not supported")
	ErrNegatedInClass  = stderrors.New(`\D, \S and \W are not supported inside [...]; use [^...] or \P{...}`)
	ErrUnterminatedEsc = stderrors.New("trailing backslash")
)

// Contents of the Unicode Perl classes, without brackets so they can be
// spliced into an enclosing class.
var (
	digitClass = `\p{Nd}`
	spaceClass = `\t\x{0B}\x{0C}\r\x{20}\x{85}\x{A0}\x{1680}\x{2000}-\x{200A}\x{2028}\x{2029}\x{202F}\x{205F}\x{3000}`
	wordClass  = buildWordClass()
)

// buildWordClass renders Unicode \w: Alphabetic, marks, decimal digits,
// connector punctuation and join controls. Alphabetic is letters, letter
// numbers and Other_Alphabetic; Go's regexp has no Alphabetic property, so
// the Other_Alphabetic runes outside the named categories are listed.
func buildWordClass() string {
	var b strings.Builder
	b.WriteString(`\p{L}\p{M}\p{Nd}\p{Nl}\p{Pc}\x{200C}\x{200D}`)

	covered := []*unicode.RangeTable{unicode.L, unicode.M, unicode.Nd, unicode.Nl, unicode.Pc}
	lo, hi := rune(-1), rune(-1)
	flush := func() {
		if lo < 0 {
			return
		}
		if lo == hi {
			fmt.Fprintf(&b, `\x{%X}`, lo)
		} else {
			fmt.Fprintf(&b, `\x{%X}-\x{%X}`, lo, hi)
		}
		lo, hi = -1, -1
	}
	add := func(r rune) {
		if unicode.IsOneOf(covered, r) {
			return
		}
		if lo >= 0 && r == hi+1 {
			hi = r
			return
		}
		flush()
		lo, hi = r, r
	}
	for _, rg := range unicode.Other_Alphabetic.R16 {
		for r := rune(rg.Lo); r <= rune(rg.Hi); r += rune(rg.Stride) {
			add(r)
		}
	}
	for _, rg := range unicode.Other_Alphabetic.R32 {
		for r := rune(rg.Lo); r <= rune(rg.Hi); r += rune(rg.Stride) {
			add(r)
		}
	}
	flush()
	return b.String()
}

// dialect holds one regex rendered for each engine
type dialect struct {
	goExpr string
	rgExpr string
}

// normalize rewrites expr for both engines. It does not check that the
// result compiles; regexp.Compile does that on goExpr.
func normalize(expr string) (dialect, error) {
	var g, r strings.Builder
	emit := func(s string) {
		g.WriteString(s)
		r.WriteString(s)
	}

	inClass := false
	for i := 0; i < len(expr); {
		c := expr[i]

		if c == '\\' {
			if i+1 >= len(expr) {
				return dialect{}, ErrUnterminatedEsc
			}
			e := expr[i+1]
			switch {
			case e == 'Q':
				return dialect{}, ErrQuotedLiteral
			case e == 'C':
				return dialect{}, ErrAnyByte
			case e >= '0' && e <= '9':
				return dialect{}, ErrOctalEscape
			case e == 'd' || e == 'w' || e == 's':
				body := perlClass(e)
				if inClass {
					emit(body)
				} else {
					emit("[" + body + "]")
				}
				i += 2
			case e == 'D' || e == 'W' || e == 'S':
				if inClass {
					return dialect{}, ErrNegatedInClass
				}
				emit("[^" + perlClass(e+'a'-'A') + "]")
				i += 2
			case (e == 'b' || e == 'B') && !inClass:
				g.WriteString(`\` + string(e))
				r.WriteString(`(?-u:\` + string(e) + `)`)
				i += 2
			case e == 'p' || e == 'P' || e == 'x':
				n := escapeWithArgLen(expr[i:])
				emit(expr[i : i+n])
				i += n
			default:
				// Copy the escaped rune whole so multi-byte runes stay intact
				_, size := utf8.DecodeRuneInString(expr[i+1:])
				emit(expr[i : i+1+size])
				i += 1 + size
			}
			continue
		}

		if !inClass {
			if c == '[' {
				inClass = true
				emit("[")
				i++
				if i < len(expr) && expr[i] == '^' {
					emit("^")
					i++
				}
				// A leading ] is a literal in both engines
				if i < len(expr) && expr[i] == ']' {
					emit("]")
					i++
				}
				continue
			}
			_, size := utf8.DecodeRuneInString(expr[i:])
			emit(expr[i : i+size])
			i += size
			continue
		}

		switch {
		case c == ']':
			inClass = false
			emit("]")
			i++
		case c == '[' && strings.HasPrefix(expr[i:], "[:"):
			end := strings.Index(expr[i+2:], ":]")
			if end < 0 {
				return dialect{}, ErrNestedClass
			}
			n := end + 4
			emit(expr[i : i+n])
			i += n
		case c == '[':
			return dialect{}, ErrNestedClass
		case (c == '&' || c == '-' || c == '~') && i+1 < len(expr) && expr[i+1] == c:
			return dialect{}, ErrClassSetOp
		default:
			_, size := utf8.DecodeRuneInString(expr[i:])
			emit(expr[i : i+size])
			i += size
		}
	}
	return dialect{goExpr: g.String(), rgExpr: r.String()}, nil
}

func perlClass(e byte) string {
	switch e {
	case 'd':
		return digitClass
	case 's':
		return spaceClass
	default:
		return wordClass
	}
}

// escapeWithArgLen measures \pX, \p{...}, \xHH and \x{...} escapes
func escapeWithArgLen(s string) int {
	if len(s) < 3 {
		return len(s)
	}
	if s[2] == '{' {
		if end := strings.IndexByte(s, '}'); end > 0 {
			return end + 1
		}
		return len(s)
	}
	if s[1] == 'x' {
		if len(s) >= 4 {
			return 4
		}
		return len(s)
	}
	_, size := utf8.DecodeRuneInString(s[2:])
	return 2 + size
}
