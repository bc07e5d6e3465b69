package detector

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Lllllllleong/contractsplitter/internal/patterns"
)

// IsNearEmptyPage reports whether a page carries so little text that it can only
// be a scanned form or a signature sheet. A page qualifies when its trimmed text
// is at most spec.MaxChars runes, or when what remains after removing signature
// vocabulary, digits and punctuation is that short.
func IsNearEmptyPage(text string, spec patterns.BeneficiarySpec) bool {
	if utf8.RuneCountInString(strings.TrimSpace(text)) <= spec.MaxChars {
		return true
	}
	if len(spec.Signature) == 0 {
		return false
	}
	rest := patterns.NormalizeLiteral(text)
	for _, p := range spec.Signature {
		rest = p.Remove(rest)
	}
	n := 0
	for _, r := range rest {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n <= spec.MaxChars
}

// IsExcludedContent reports whether a page mentions vocabulary that belongs to
// another section and therefore cannot be part of a beneficiary certificate.
func IsExcludedContent(text string, spec patterns.BeneficiarySpec) bool {
	return spec.Excluded.Any(patterns.NormalizeLiteral(text))
}
