package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rahul/wayfarer/internal/browser"
)

const (
	candidateMinLength   = 100
	denseCandidateLength = 1000
	denseCandidateRatio  = 10
	readableParagraphMin = 30
	readableWordsMin     = 5
	readableAccept       = 500
	// MaxTextLength caps free-form extraction output.
	MaxTextLength = 50000
)

// CandidateSelectors seed the free-form extraction; dense div/section/
// article/main containers are added in the page.
var CandidateSelectors = []string{
	"article", "main", "#content", ".content", ".post-content",
	".article", ".main-content", "#main", "#main-content",
}

// Candidate is a container measured in the page for composite scoring.
type Candidate struct {
	Index        int    `json:"index"`
	Tag          string `json:"tag"`
	ID           string `json:"id"`
	ClassName    string `json:"className"`
	TextLength   int    `json:"textLength"`
	ChildNodes   int    `json:"childNodes"`
	AllTags      int    `json:"allTags"`
	SemanticTags int    `json:"semanticTags"`
	IsBody       bool   `json:"isBody"`
}

func (c Candidate) textDensity() float64 {
	n := c.ChildNodes
	if n == 0 {
		n = 1
	}
	return float64(c.TextLength) / float64(n)
}

func (c Candidate) tagDensity() float64 {
	n := c.AllTags
	if n == 0 {
		n = 1
	}
	return float64(c.SemanticTags) / float64(n)
}

type attrRule struct {
	keywords []string
	delta    float64
}

var (
	bonusRules = []attrRule{
		{[]string{"content", "main", "article"}, 25},
	}
	postBonus    = attrRule{[]string{"post"}, 20}
	penaltyRules = []attrRule{
		{[]string{"sidebar"}, -50},
		{[]string{"comment"}, -30},
		{[]string{"menu"}, -50},
		{[]string{"header"}, -40},
		{[]string{"footer"}, -50},
		{[]string{"nav"}, -50},
	}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Score computes the composite content score of a candidate container.
// Candidates with less than 100 characters of text score 0.
func Score(c Candidate) float64 {
	if c.TextLength < candidateMinLength {
		return 0
	}
	score := c.textDensity()*10 + c.tagDensity()*20 + float64(c.TextLength)/100

	tag := strings.ToLower(c.Tag)
	id := strings.ToLower(c.ID)
	class := strings.ToLower(c.ClassName)

	if tag == "article" || tag == "main" {
		score += 30
	}
	for _, r := range bonusRules {
		if containsAny(id, r.keywords) {
			score += r.delta
		}
		if containsAny(class, r.keywords) {
			score += r.delta
		}
	}
	if containsAny(id, postBonus.keywords) || containsAny(class, postBonus.keywords) {
		score += postBonus.delta
	}
	for _, r := range penaltyRules {
		if containsAny(id, r.keywords) || containsAny(class, r.keywords) {
			score += r.delta
		}
	}
	return score
}

// Best returns the highest-scoring candidate with at least 100 characters
// of text. Ties keep the earlier candidate. ok is false when nothing
// qualifies.
func Best(cands []Candidate) (Candidate, bool) {
	var best Candidate
	bestScore := -1.0
	found := false
	for _, c := range cands {
		if c.TextLength < candidateMinLength {
			continue
		}
		if s := Score(c); s > bestScore {
			best, bestScore, found = c, s, true
		}
	}
	return best, found
}

// ExtractReadable selects page text without a caller-supplied selector by
// scoring candidate containers. When the body wins, well-formed paragraphs
// are aggregated instead, then the full body text is used.
func (e *Engine) ExtractReadable(ctx context.Context, d browser.Driver) (Result, error) {
	var cands []Candidate
	err := d.Evaluate(ctx, script(ScriptCandidates, candidatesJS, CandidateSelectors, denseCandidateLength, denseCandidateRatio), &cands)
	if err != nil {
		return Result{}, err
	}

	if best, ok := Best(cands); ok && !best.IsBody {
		var text string
		if err := d.Evaluate(ctx, script(ScriptCandidateText, candidateTextJS, best.Index), &text); err != nil {
			return Result{}, err
		}
		return Result{Text: truncate(text, MaxTextLength), Strategy: "composite-score", Selector: describe(best)}, nil
	}

	var texts []string
	if err := d.Evaluate(ctx, script(ScriptParagraphs, paragraphsJS), &texts); err != nil {
		return Result{}, err
	}
	joined := JoinParagraphs(texts, func(s string) bool {
		return len(s) > readableParagraphMin && len(strings.Fields(s)) > readableWordsMin
	})
	if len(joined) > readableAccept {
		return Result{Text: truncate(joined, MaxTextLength), Strategy: "paragraphs", Selector: "p"}, nil
	}

	text, err := BodyText(ctx, d)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: truncate(text, MaxTextLength), Strategy: "body", Selector: "body"}, nil
}

func describe(c Candidate) string {
	s := c.Tag
	if c.ID != "" {
		s += "#" + c.ID
	}
	if cls := strings.Fields(c.ClassName); len(cls) > 0 {
		s += "." + strings.Join(cls, ".")
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// don't split a multi-byte rune
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
