// Package normalizer turns raw product names into the token strings used for embedding.
// Training and inference must both go through Normalize.
package normalizer

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/kljensen/snowball/english"
	"github.com/kljensen/snowball/russian"
	"golang.org/x/text/unicode/norm"
)

// Step is a whole-string transformation applied before tokenization.
type Step func(string) string

var (
	punctuation  = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s]+`)
	latinRun     = regexp.MustCompile(`[a-zA-Z]+`)
	digitRun     = regexp.MustCompile(`\p{Nd}+`)
	upperCyrRun  = regexp.MustCompile(`[А-ЯЁ]{2,}`)
	stringSteps  = []Step{Fold, StripPunctuation, SplitGlued, strings.ToLower}
	maxTokenPass = 8
)

// Fold applies NFKC so full-width and compatibility forms compare equal.
func Fold(s string) string {
	return norm.NFKC.String(s)
}

// StripPunctuation replaces everything but letters, digits, underscores and whitespace with a space.
func StripPunctuation(s string) string {
	return punctuation.ReplaceAllString(s, " ")
}

// SplitGlued separates Latin runs, digit runs and uppercase Cyrillic runs from their neighbours,
// so "Duty210ml" becomes "Duty 210 ml" and "ПРОСЕПТочиститель" becomes "ПРОСЕПТ очиститель".
func SplitGlued(s string) string {
	s = latinRun.ReplaceAllString(s, " $0 ")
	s = digitRun.ReplaceAllString(s, " $0 ")
	s = upperCyrRun.ReplaceAllString(s, " $0 ")
	return s
}

// Tokenize splits on whitespace.
func Tokenize(s string) []string {
	return strings.Fields(s)
}

// Normalize returns the normalized token string for s. It is idempotent.
func Normalize(s string) string {
	for _, step := range stringSteps {
		s = step(s)
	}

	tokens := Tokenize(s)
	out := tokens[:0]
	for _, token := range tokens {
		if t, ok := normalizeToken(token); ok {
			out = append(out, t)
		}
	}
	return strings.Join(out, " ")
}

// normalizeToken lemmatizes, filters and stems until the token stops changing, which keeps
// Normalize idempotent even when a stem is itself a stop word or a dictionary form.
func normalizeToken(token string) (string, bool) {
	for i := 0; i < maxTokenPass; i++ {
		if IsStopWord(token) {
			return "", false
		}
		next := Stem(Lemmatize(token))
		if next == "" {
			return "", false
		}
		if next == token {
			return token, true
		}
		token = next
	}
	if IsStopWord(token) {
		return "", false
	}
	return token, true
}

// Script identifies which language profile a token belongs to.
type Script int

const (
	ScriptOther Script = iota
	ScriptLatin
	ScriptCyrillic
)

func DetectScript(token string) Script {
	for _, r := range token {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			return ScriptCyrillic
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			return ScriptLatin
		}
	}
	return ScriptOther
}

// Stem applies the Snowball stemmer of the token's script. Tokens of other scripts are unchanged.
func Stem(token string) string {
	switch DetectScript(token) {
	case ScriptLatin:
		return english.Stem(token, true)
	case ScriptCyrillic:
		return russian.Stem(token, true)
	default:
		return token
	}
}

// NormalizeAll normalizes texts in parallel, preserving order.
func NormalizeAll(texts []string, workers int) []string {
	out := make([]string, len(texts))
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = Normalize(texts[i])
			}
		}()
	}
	for i := range texts {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return out
}

// Normalizer is the shared entry point used by training and inference.
type Normalizer struct {
	Workers int
}

func New(workers int) *Normalizer {
	return &Normalizer{Workers: workers}
}

func (n *Normalizer) Normalize(s string) string {
	return Normalize(s)
}

func (n *Normalizer) NormalizeAll(texts []string) []string {
	return NormalizeAll(texts, n.Workers)
}
