package ripgrep

import "strings"

// QuoteForShell quotes s as one word for the shell of goos: cmd.exe on
// windows, a POSIX shell everywhere else. It is the only place command-line
// text is escaped.
func QuoteForShell(s, goos string) string {
	if goos == "windows" {
		return quoteCmd(s)
	}
	return `'` + strings.ReplaceAll(s, `'`, `'\''`) + `'`
}

// quoteCmd quotes s for cmd.exe and for the C runtime argument parser the
// started program uses. cmd.exe expands %NAME% even inside quotes, so each
// % is emitted unquoted as ^%; the caret makes every candidate variable
// name undefined and is then removed. Backslashes are doubled only where
// they precede a quote.
func quoteCmd(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	slashes := 0
	for _, r := range s {
		switch r {
		case '\\':
			slashes++
			b.WriteRune(r)
			continue
		case '"':
			b.WriteString(strings.Repeat(`\`, slashes))
			b.WriteString(`""`)
		case '%':
			b.WriteString(strings.Repeat(`\`, slashes))
			b.WriteString(`"^%"`)
		default:
			b.WriteRune(r)
		}
		slashes = 0
	}
	b.WriteString(strings.Repeat(`\`, slashes))
	b.WriteByte('"')
	return b.String()
}

// CommandLine renders tool and args with stdout redirected to output
func CommandLine(tool string, args []string, output, goos string) string {
	words := make([]string, 0, len(args)+3)
	words = append(words, QuoteForShell(tool, goos))
	for _, a := range args {
		words = append(words, QuoteForShell(a, goos))
	}
	words = append(words, ">", QuoteForShell(output, goos))
	return strings.Join(words, " ")
}
