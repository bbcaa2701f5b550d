// Package lang holds the tokenizer and closed glue vocabulary shared by the
// planner, gateway and session packages.
package lang

import "regexp"

var wordRE = regexp.MustCompile(`[\w가-힣]+`)

// Tokenize splits text into validation tokens: runs of word characters and
// Hangul syllables. Punctuation and whitespace are dropped.
func Tokenize(text string) []string {
	return wordRE.FindAllString(text, -1)
}

// TokenSet returns the tokens of text as a set.
func TokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		set[tok] = true
	}
	return set
}

// JosaSuffixes are common Korean particles. A token like "의자가" passes
// validation when both the stem and the particle are individually allowed.
var JosaSuffixes = []string{
	"이", "가", "은", "는", "을", "를", "에", "에서",
	"로", "으로", "와", "과", "랑", "하고", "도", "만",
}

// StemSet returns the tokens of text plus every josa-stripped stem, so
// "날씨가" matches a lookup for "날씨".
func StemSet(text string) map[string]bool {
	set := TokenSet(text)
	for tok := range TokenSet(text) {
		for _, suffix := range JosaSuffixes {
			if stem, ok := cutSuffix(tok, suffix); ok {
				set[stem] = true
			}
		}
	}
	return set
}

func cutSuffix(tok, suffix string) (string, bool) {
	if len(tok) <= len(suffix) || tok[len(tok)-len(suffix):] != suffix {
		return "", false
	}
	return tok[:len(tok)-len(suffix)], true
}

// Dedupe returns items with duplicates removed, keeping first occurrence order.
func Dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
