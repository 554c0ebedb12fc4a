package retriever

import (
	"regexp"
	"strings"
)

// Strategy names the rule that recovered a code.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyExactLine
	StrategyPreamble
	StrategyLoose
)

func (s Strategy) String() string {
	switch s {
	case StrategyExactLine:
		return "exact-line"
	case StrategyPreamble:
		return "preamble"
	case StrategyLoose:
		return "loose"
	default:
		return "none"
	}
}

// ExtractionResult is a code found in a message body.
type ExtractionResult struct {
	Code     string
	Strategy Strategy
}

// DefaultPreamblePhrases introduce a code in typical verification emails.
var DefaultPreamblePhrases = []string{
	"verification code",
	"confirmation code",
	"security code",
	"one-time code",
	"one-time passcode",
	"one time password",
	"login code",
	"sign-in code",
	"passcode",
	"your code",
	"code",
}

var (
	codeRe  = regexp.MustCompile(`^\d{6}$`)
	looseRe = regexp.MustCompile(`\b\d{6}\b`)
)

// Extractor recovers a six-digit code from a message body. The strategies
// run in order and the first match wins:
//
//  1. a line that is exactly six digits once trimmed
//  2. a known phrase followed by six digits
//  3. any standalone six-digit run
type Extractor struct {
	preambleRe *regexp.Regexp
}

// NewExtractor builds an Extractor. Extra phrases are tried before the
// defaults.
func NewExtractor(extraPhrases ...string) *Extractor {
	phrases := append(append([]string{}, extraPhrases...), DefaultPreamblePhrases...)

	alts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}

	pattern := `(?i)\b(?:` + strings.Join(alts, "|") + `)(?:\s*(?:is|:|-))*\s*(\d{6})\b`
	return &Extractor{preambleRe: regexp.MustCompile(pattern)}
}

// Extract returns the code and the strategy that found it, or false.
func (e *Extractor) Extract(body string) (ExtractionResult, bool) {
	if code, ok := exactLine(body); ok {
		return ExtractionResult{Code: code, Strategy: StrategyExactLine}, true
	}
	if m := e.preambleRe.FindStringSubmatch(body); m != nil {
		return ExtractionResult{Code: m[1], Strategy: StrategyPreamble}, true
	}
	if code := looseRe.FindString(body); code != "" {
		return ExtractionResult{Code: code, Strategy: StrategyLoose}, true
	}
	return ExtractionResult{}, false
}

func exactLine(body string) (string, bool) {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if codeRe.MatchString(line) {
			return line, true
		}
	}
	return "", false
}

// ValidCode reports whether code has the six-digit shape RetrieveCode returns.
func ValidCode(code string) bool {
	return codeRe.MatchString(code)
}
