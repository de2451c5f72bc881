// Package signal turns free text from client correspondence into per filing
// type confidence that the client's records have arrived.
package signal

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
)

// Keyword is a phrase and the confidence it contributes on its own.
type Keyword struct {
	Term   string  `json:"term" mapstructure:"term"`
	Weight float64 `json:"weight" mapstructure:"weight"`
}

// Rule is the keyword set of one filing type.
type Rule struct {
	FilingType filing.FilingType `json:"filing_type" mapstructure:"filing_type"`
	Keywords   []Keyword         `json:"keywords" mapstructure:"keywords"`
}

// Score is the confidence for one filing type.
type Score struct {
	FilingType filing.FilingType `json:"filing_type"`
	Confidence float64           `json:"confidence"`
	Matched    []string          `json:"matched"`
	Negated    bool              `json:"negated,omitempty"`
}

// Scorer evaluates text against keyword rules.
type Scorer struct {
	rules     []Rule
	status    []Keyword
	negations []string
	damping   float64
}

// Option customises a Scorer.
type Option func(*Scorer)

// WithRules replaces the per filing type rules.
func WithRules(rules []Rule) Option {
	return func(s *Scorer) { s.rules = rules }
}

// WithStatusPhrases replaces the generic status phrases.
func WithStatusPhrases(k []Keyword) Option {
	return func(s *Scorer) { s.status = k }
}

// WithNegations replaces the negation phrases and the factor applied when one
// matches.
func WithNegations(phrases []string, damping float64) Option {
	return func(s *Scorer) {
		s.negations = phrases
		s.damping = damping
	}
}

// NewScorer builds a Scorer with the default UK practice vocabulary.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		rules:     DefaultRules(),
		status:    DefaultStatusPhrases(),
		negations: DefaultNegations(),
		damping:   0.3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultRules returns the built-in keyword rules.
func DefaultRules() []Rule {
	return []Rule{
		{FilingType: filing.VATReturn, Keywords: []Keyword{
			{"vat return", 0.7}, {"vat quarter", 0.6}, {"vat", 0.4},
			{"sales invoices", 0.3}, {"purchase invoices", 0.3},
		}},
		{FilingType: filing.SelfAssessment, Keywords: []Keyword{
			{"self assessment", 0.7}, {"sa302", 0.6}, {"p60", 0.5},
			{"tax return", 0.3}, {"pension statement", 0.3}, {"rental income", 0.3},
		}},
		{FilingType: filing.CorporationTaxPayment, Keywords: []Keyword{
			{"corporation tax payment", 0.8}, {"corporation tax", 0.5}, {"ct payment", 0.5},
		}},
		{FilingType: filing.CT600Filing, Keywords: []Keyword{
			{"ct600", 0.8}, {"corporation tax return", 0.6}, {"corporation tax", 0.3},
		}},
		{FilingType: filing.CompaniesHouseAccounts, Keywords: []Keyword{
			{"companies house", 0.6}, {"annual accounts", 0.5}, {"year end accounts", 0.5},
			{"trial balance", 0.4}, {"bank statements", 0.3},
		}},
	}
}

// DefaultStatusPhrases returns phrases that indicate documents were sent.
func DefaultStatusPhrases() []Keyword {
	return []Keyword{
		{"records attached", 0.35}, {"all documents", 0.3}, {"please find attached", 0.25},
		{"documents enclosed", 0.25}, {"i have uploaded", 0.25}, {"attached", 0.1},
	}
}

// DefaultNegations returns phrases that indicate documents are not there yet.
func DefaultNegations() []string {
	return []string{"not yet", "still waiting", "will send", "haven t", "have not", "missing", "next week"}
}

// Score returns a confidence per filing type with at least one keyword match,
// highest first.  Status phrases only reinforce filing types that matched on
// their own keywords.
func (s *Scorer) Score(text string) []Score {
	norm := normalize(text)
	if norm == " " {
		return nil
	}

	statusConf, statusHits := combine(norm, s.status)
	negated := false
	for _, n := range s.negations {
		if strings.Contains(norm, " "+n+" ") {
			negated = true
			break
		}
	}

	var out []Score
	for _, r := range s.rules {
		conf, hits := combine(norm, r.Keywords)
		if len(hits) == 0 {
			continue
		}
		if len(statusHits) > 0 {
			conf = 1 - (1-conf)*(1-statusConf)
			hits = append(hits, statusHits...)
		}
		if negated {
			conf *= s.damping
		}
		out = append(out, Score{FilingType: r.FilingType, Confidence: round(conf), Matched: hits, Negated: negated})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].FilingType < out[j].FilingType
	})
	return out
}

// combine is the probabilistic OR of the weights of matched keywords.
func combine(norm string, keywords []Keyword) (float64, []string) {
	miss := 1.0
	var hits []string
	for _, k := range keywords {
		term := normalize(k.Term)
		if strings.Contains(norm, term) {
			miss *= 1 - clamp(k.Weight)
			hits = append(hits, k.Term)
		}
	}
	return 1 - miss, hits
}

// normalize lowercases, turns punctuation into spaces, collapses runs of
// whitespace and pads with one space on each side so phrase matches respect
// word boundaries.
func normalize(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

func clamp(w float64) float64 {
	switch {
	case w < 0:
		return 0
	case w > 1:
		return 1
	}
	return w
}

func round(f float64) float64 {
	return float64(int(f*10000+0.5)) / 10000
}
