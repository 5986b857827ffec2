package rubric

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchesKeyword reports whether keyword occurs in text as a whole word or
// phrase, ignoring case. The runes adjacent to a match must not be letters,
// digits or underscores, so "ruhig" does not match inside "unruhig" and
// "resort" does not match inside "Almresort". Umlauts count as letters.
func MatchesKeyword(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	hay := strings.ToLower(text)
	needle := strings.ToLower(keyword)

	for offset := 0; offset < len(hay); {
		i := strings.Index(hay[offset:], needle)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(needle)
		if boundaryBefore(hay, start, needle) && boundaryAfter(hay, end, needle) {
			return true
		}
		_, size := utf8.DecodeRuneInString(hay[start:])
		offset = start + size
	}
	return false
}

// MatchAll returns the keywords of table that occur in text, in table order.
func MatchAll(text string, table []WeightedKeyword) []WeightedKeyword {
	var out []WeightedKeyword
	for _, k := range table {
		if MatchesKeyword(text, k.Keyword) {
			out = append(out, k)
		}
	}
	return out
}

// ContainsAny reports whether text contains any of the phrases (plain
// substring, case-insensitive) and returns the first hit.
func ContainsAny(text string, phrases []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

// Keywords returns the keyword strings of ks.
func Keywords(ks []WeightedKeyword) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = k.Keyword
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// A boundary is only required where the keyword itself starts or ends with
// a word character; "ab €" needs no boundary after the euro sign.
func boundaryBefore(s string, i int, needle string) bool {
	first, _ := utf8.DecodeRuneInString(needle)
	if !isWordRune(first) || i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int, needle string) bool {
	last, _ := utf8.DecodeLastRuneInString(needle)
	if !isWordRune(last) || i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}
