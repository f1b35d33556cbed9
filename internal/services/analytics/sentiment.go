package analytics

import (
	"regexp"
	"strings"
)

var (
	positivePatterns = compileAll(
		`\bbeats?\b`, `\bsurg(e|es|ed|ing)\b`, `\brall(y|ies|ied)\b`, `\bupgrad(e|es|ed)\b`,
		`\brecord (high|revenue|profit)s?\b`, `\bgrowth\b`, `\bstrong\b`, `\boutperform\w*\b`,
		`\bbullish\b`, `\bjump(s|ed)?\b`, `\bsoar(s|ed|ing)?\b`, `\braise[sd]? (guidance|outlook|forecast)\b`,
		`\bbuyback\b`, `\bapprov(al|ed|es)\b`, `\bgain(s|ed)?\b`,
	)
	negativePatterns = compileAll(
		`\bmiss(es|ed)?\b`, `\bplung(e|es|ed|ing)\b`, `\bdowngrad(e|es|ed)\b`, `\blawsuit\b`,
		`\bprobe\b`, `\brecall(s|ed)?\b`, `\bweak\b`, `\bunderperform\w*\b`, `\bbearish\b`,
		`\bslump(s|ed)?\b`, `\bfall(s|ing)?\b`, `\bfell\b`, `\bcut[s]? (guidance|outlook|forecast|jobs)\b`,
		`\blayoffs?\b`, `\bdecline[sd]?\b`, `\bloss(es)?\b`, `\bfraud\b`,
	)
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// LexiconSentiment scores headlines by counting polarity patterns.
type LexiconSentiment struct {
	aliases map[string][]string
}

// NewLexiconSentiment takes optional company-name aliases per symbol used for relevance.
func NewLexiconSentiment(aliases map[string][]string) *LexiconSentiment {
	norm := make(map[string][]string, len(aliases))
	for sym, names := range aliases {
		for _, n := range names {
			norm[strings.ToUpper(sym)] = append(norm[strings.ToUpper(sym)], strings.ToLower(n))
		}
	}
	return &LexiconSentiment{aliases: norm}
}

func (l *LexiconSentiment) Score(symbol, headline, summary string) (float64, float64) {
	text := strings.ToLower(headline + ". " + summary)
	pos, neg := 0, 0
	for _, p := range positivePatterns {
		pos += len(p.FindAllStringIndex(text, -1))
	}
	for _, p := range negativePatterns {
		neg += len(p.FindAllStringIndex(text, -1))
	}

	sentiment := 0.0
	if total := pos + neg; total > 0 {
		sentiment = float64(pos-neg) / float64(total)
		// few hits carry less weight than many
		if total < 3 {
			sentiment *= float64(total) / 3
		}
	}
	return sentiment, l.relevance(symbol, strings.ToLower(headline), strings.ToLower(summary))
}

func (l *LexiconSentiment) relevance(symbol, headline, summary string) float64 {
	terms := append([]string{strings.ToLower(symbol)}, l.aliases[strings.ToUpper(symbol)]...)
	for _, term := range terms {
		if term != "" && containsWord(headline, term) {
			return 10
		}
	}
	for _, term := range terms {
		if term != "" && containsWord(summary, term) {
			return 6
		}
	}
	return 3
}

func containsWord(text, term string) bool {
	idx := strings.Index(text, term)
	for idx >= 0 {
		before := idx == 0 || !isWordByte(text[idx-1])
		end := idx + len(term)
		after := end >= len(text) || !isWordByte(text[end])
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], term)
		if next < 0 {
			return false
		}
		idx += next + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
