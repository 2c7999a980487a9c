package vectorize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// tokenPattern matches runs of two or more letters, digits or underscores.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// tokenize lowercases and NFKC-normalizes text, then splits it into word tokens.
func tokenize(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	return tokenPattern.FindAllString(text, -1)
}

// analyze returns the word n-grams of text for n in [minN, maxN], joined by a
// single space, in document order grouped by n.
func analyze(text string, minN, maxN int) []string {
	tokens := tokenize(text)
	if minN == 1 && maxN == 1 {
		return tokens
	}

	grams := make([]string, 0, len(tokens)*(maxN-minN+1))
	for n := minN; n <= maxN; n++ {
		if n == 1 {
			grams = append(grams, tokens...)
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			grams = append(grams, strings.Join(tokens[i:i+n], " "))
		}
	}
	return grams
}
