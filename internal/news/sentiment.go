package news

import "strings"

// SentimentAnalyzer scores headlines with a keyword-polarity heuristic and
// classifies the expected impact horizon. Keyword lists cover English and
// Spanish variants because the upstream feeds mix both.
type SentimentAnalyzer struct {
	positiveWords map[string]bool
	negativeWords map[string]bool
	shortWords    map[string]bool
	longWords     map[string]bool
}

// NewSentimentAnalyzer creates a new analyzer.
func NewSentimentAnalyzer() *SentimentAnalyzer {
	return &SentimentAnalyzer{
		positiveWords: wordSet(
			"surge", "rally", "gain", "gains", "bullish", "adoption", "partnership",
			"upgrade", "breakout", "record", "growth", "soar", "soars", "rise",
			"rises", "approval", "approved", "integration", "listing", "institutional",
			"sube", "alza", "ganancia", "ganancias", "alcista", "adopcion",
			"crecimiento", "aprobacion", "positivo", "positiva",
		),
		negativeWords: wordSet(
			"crash", "drop", "drops", "plunge", "plunges", "bearish", "ban", "hack",
			"hacked", "exploit", "lawsuit", "fraud", "fall", "falls", "decline",
			"selloff", "sell-off", "liquidation", "uncertainty", "correction", "fear",
			"cae", "caida", "baja", "bajista", "perdida", "perdidas", "demanda",
			"fraude", "negativo", "negativa", "incertidumbre",
		),
		shortWords: wordSet(
			"today", "intraday", "breaking", "now", "hours", "flash", "spike",
			"hoy", "ahora", "urgente",
		),
		longWords: wordSet(
			"regulation", "regulatory", "protocol", "roadmap", "quarter", "annual",
			"etf", "halving", "upgrade", "partnership", "institutional",
			"regulacion", "trimestre", "anual", "acuerdo",
		),
	}
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Sentiment classifies a headline as positive, negative or neutral.
func (a *SentimentAnalyzer) Sentiment(title string) string {
	pos, neg := 0, 0
	for _, w := range tokenize(title) {
		if a.positiveWords[w] {
			pos++
		}
		if a.negativeWords[w] {
			neg++
		}
	}
	switch {
	case pos > neg:
		return "positive"
	case neg > pos:
		return "negative"
	default:
		return "neutral"
	}
}

// Impact classifies the expected horizon of a headline.
func (a *SentimentAnalyzer) Impact(title string) string {
	short, long := 0, 0
	for _, w := range tokenize(title) {
		if a.shortWords[w] {
			short++
		}
		if a.longWords[w] {
			long++
		}
	}
	switch {
	case short > long:
		return "short"
	case long > short:
		return "long"
	default:
		return "medium"
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

// NormalizeSentiment maps locale variants onto the canonical labels.
func NormalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "positivo", "positiva":
		return "positive"
	case "negative", "negativo", "negativa":
		return "negative"
	default:
		return "neutral"
	}
}

// NormalizeImpact maps locale variants onto the canonical horizon labels.
func NormalizeImpact(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short", "corto", "corto_plazo":
		return "short"
	case "long", "largo", "largo_plazo":
		return "long"
	default:
		return "medium"
	}
}
