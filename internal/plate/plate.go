// Package plate recovers license plate identifiers from noisy OCR text.
//
// Two grammars are recognized, both 6 characters long: standard plates
// (three letters followed by three digits) and diplomatic plates (the
// literal prefix "CD" followed by four digits). Matching is done with
// explicit character-class checks so the exact semantics stay visible
// and testable.
package plate

import "sort"

// Kind identifies which grammar an identifier satisfies.
type Kind int

const (
	// KindNone means the text matches no known grammar.
	KindNone Kind = iota
	// KindStandard is three letters followed by three digits.
	KindStandard
	// KindDiplomatic is the literal prefix "CD" followed by four digits.
	KindDiplomatic
)

func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindDiplomatic:
		return "diplomatic"
	default:
		return "none"
	}
}

// Length is the identifier length shared by all grammars.
const Length = 6

func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

// CleanText strips every character that is not an ASCII letter or digit
// and upper-cases the remainder.
func CleanText(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-('a'-'A'))
		case isLetter(c) || isDigit(c):
			out = append(out, c)
		}
	}
	return string(out)
}

func matchStandard(s string) bool {
	if len(s) != Length {
		return false
	}
	return isLetter(s[0]) && isLetter(s[1]) && isLetter(s[2]) &&
		isDigit(s[3]) && isDigit(s[4]) && isDigit(s[5])
}

func matchDiplomatic(s string) bool {
	if len(s) != Length {
		return false
	}
	return s[0] == 'C' && s[1] == 'D' &&
		isDigit(s[2]) && isDigit(s[3]) && isDigit(s[4]) && isDigit(s[5])
}

// KindOf reports which grammar text satisfies. Diplomatic wins when both
// could apply, which cannot happen in practice since the grammars are
// disjoint at position 3.
func KindOf(text string) Kind {
	switch {
	case matchDiplomatic(text):
		return KindDiplomatic
	case matchStandard(text):
		return KindStandard
	default:
		return KindNone
	}
}

// IsValid reports whether text is exactly 6 characters and satisfies one
// of the known grammars.
func IsValid(text string) bool {
	return KindOf(text) != KindNone
}

// FormatScore ranks text by grammar: 0.95 for diplomatic, 0.9 for
// standard, 0 for anything else.
func FormatScore(text string) float64 {
	switch KindOf(text) {
	case KindDiplomatic:
		return 0.95
	case KindStandard:
		return 0.9
	default:
		return 0
	}
}

// Normalize recovers a plate identifier from raw OCR output. It returns
// ok=false when no identifier can be recovered.
//
// After cleaning:
//   - fewer than 6 characters: no result.
//   - exactly 6: returned only if it satisfies a grammar.
//   - more than 6: the first standard substring, else the first diplomatic
//     substring, else the first 6 cleaned characters unvalidated. Callers
//     must run IsValid on the result before trusting the fallback.
func Normalize(raw string) (string, bool) {
	cleaned := CleanText(raw)
	if len(cleaned) < Length {
		return "", false
	}
	if len(cleaned) == Length {
		if IsValid(cleaned) {
			return cleaned, true
		}
		return "", false
	}
	for i := 0; i+Length <= len(cleaned); i++ {
		if !matchStandard(cleaned[i : i+Length]) {
			continue
		}
		// A digit group that keeps running past the window is not a
		// standard plate's three digits (e.g. the "D1234" tail of a
		// diplomatic identifier); keep scanning.
		if i+Length < len(cleaned) && isDigit(cleaned[i+Length]) {
			continue
		}
		return cleaned[i : i+Length], true
	}
	for i := 0; i+Length <= len(cleaned); i++ {
		if matchDiplomatic(cleaned[i : i+Length]) {
			return cleaned[i : i+Length], true
		}
	}
	return cleaned[:Length], true
}

// ExtractCandidates returns every distinct valid 6-character substring of
// the cleaned text, keeping the first occurrence of each and ordering the
// result by descending FormatScore. Ties keep occurrence order.
func ExtractCandidates(raw string) []string {
	cleaned := CleanText(raw)
	var out []string
	seen := make(map[string]bool)
	for i := 0; i+Length <= len(cleaned); i++ {
		sub := cleaned[i : i+Length]
		if seen[sub] || !IsValid(sub) {
			continue
		}
		seen[sub] = true
		out = append(out, sub)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return FormatScore(out[i]) > FormatScore(out[j])
	})
	return out
}
