package plan

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Prompt intents recognised by Interpret.
const (
	IntentExtract = "extract"
	IntentVisit   = "visit"
	IntentAnalyze = "analyze"
)

// Interpretation is a keyword reading of a free-form prompt.
type Interpretation struct {
	Action         string  `json:"action"`
	Target         string  `json:"target"`
	Confidence     float64 `json:"confidence"`
	OriginalPrompt string  `json:"originalPrompt"`
}

type intentRule struct {
	pattern    *regexp.Regexp
	action     string
	confidence float64
}

// Patterns below run against the lower-cased prompt with accents removed.
var (
	intentRules = []intentRule{
		{regexp.MustCompile(`busca|encuentra|extrae|informacion|contenido|datos|sobre|acerca de|que es|search|find|extract|information|about|what is`), IntentExtract, 0.8},
		{regexp.MustCompile(`visita|navega|abre|ve a|ir a|la pagina|el sitio|la web|visit|navigate|open|go to|website`), IntentVisit, 0.7},
		{regexp.MustCompile(`analiza|resum|sintetiza|analy[sz]e|summar`), IntentAnalyze, 0.6},
	}
	targetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:sobre|acerca de|informacion de|datos de|busca|encuentra|que es|about|search for|find|what is)\s+(.+?)(?:\.|\?|$)`),
		regexp.MustCompile(`(?:visita|navega|abre|ve a|ir a|visit|navigate to|open|go to)\s+(.+?)(?:\.|\?|$)`),
	}
	browserPatterns = []*regexp.Regexp{
		regexp.MustCompile(`navega|visita|abre|ir a|web|pagina|sitio|navigate|visit|website|page|site`),
		regexp.MustCompile(`extrae|obtener|encontrar|buscar|extract|find|search`),
		regexp.MustCompile(`clic|click|pincha|presiona|boton|button|press`),
		regexp.MustCompile(`formulario|llena|completa|escribe|form|fill`),
		regexp.MustCompile(`https?://`),
		regexp.MustCompile(`google`),
	}
)

// fold lower-cases s and strips combining accents.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Interpret reads the intent and target of prompt. A URL in the prompt is
// always the target; otherwise the longest phrase following an intent
// keyword, else the whole prompt. Unrecognised prompts are analyses.
func Interpret(prompt string) Interpretation {
	folded := fold(prompt)

	in := Interpretation{OriginalPrompt: prompt}
	for _, r := range intentRules {
		if r.confidence > in.Confidence && r.pattern.MatchString(folded) {
			in.Action, in.Confidence = r.action, r.confidence
		}
	}

	var terms []string
	for _, p := range targetPatterns {
		if m := p.FindStringSubmatch(folded); m != nil && len(strings.TrimSpace(m[1])) > 2 {
			terms = append(terms, strings.TrimSpace(m[1]))
		}
	}
	u, hasURL := FindURL(prompt)

	switch {
	case in.Action != "":
	case hasURL:
		in.Action, in.Confidence = IntentExtract, 0.6
	case len(terms) > 0:
		in.Action, in.Confidence = IntentAnalyze, 0.5
	default:
		in.Action = IntentAnalyze
	}

	switch {
	case hasURL:
		in.Target = urlTrailingJunk.ReplaceAllString(u, "")
	case len(terms) > 0:
		in.Target = terms[0]
		for _, t := range terms[1:] {
			if len(t) > len(in.Target) {
				in.Target = t
			}
		}
	default:
		in.Target = prompt
	}
	return in
}

// StartURL is the page the interpreted action begins on: the target when it
// is a URL, else a web search for it.
func (in Interpretation) StartURL() string {
	if strings.HasPrefix(in.Target, "http://") || strings.HasPrefix(in.Target, "https://") {
		return in.Target
	}
	return "https://www.google.com/search?q=" + url.QueryEscape(in.Target)
}

// WantsBrowser reports whether prompt needs the browsing agent rather than a
// direct model answer.
func WantsBrowser(prompt string) bool {
	folded := fold(prompt)
	for _, p := range browserPatterns {
		if p.MatchString(folded) {
			return true
		}
	}
	return false
}
