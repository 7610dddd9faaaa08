package cache

import (
	"strings"
	"unicode"
)

// MaxNameRunes is how much of the pattern survives into a result file name
const MaxNameRunes = 30

// InvertPrefix marks results produced with invert match
const InvertPrefix = "!"

// lookalikes maps characters that are unsafe in file names on some platform
// to visually similar runes, so the result tab still reads like the pattern.
var lookalikes = map[rune]rune{
	'*':  '∗',
	'/':  '⟋',
	'\\': '⟍',
	':':  '꞉',
	'?':  'ʔ',
	'"':  '″',
	'<':  '＜',
	'>':  '＞',
	'|':  'ǀ',
}

// SanitizeName keeps the first MaxNameRunes runes of pattern and replaces
// characters that cannot appear in a file name.
func SanitizeName(pattern string) string {
	var b strings.Builder
	n := 0
	for _, r := range pattern {
		if n == MaxNameRunes {
			break
		}
		n++
		if alt, ok := lookalikes[r]; ok {
			b.WriteRune(alt)
			continue
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	name := b.String()
	// "." and ".." are not usable as file names
	if strings.Trim(name, ".") == "" {
		name = strings.Repeat("_", len(name))
	}
	return name
}

// ResultName is the display file name for a filter result
func ResultName(pattern string, invert bool) string {
	name := SanitizeName(pattern)
	if invert {
		return InvertPrefix + name
	}
	return name
}
