package plan

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	urlPattern          = regexp.MustCompile(`https?://[^\s]+`)
	googleQueryPattern  = regexp.MustCompile(`google\.com/search\?.*q=([^&\s]+)`)
	urlTrailingJunk     = regexp.MustCompile(`[.,;:")]+$`)
	searchIntent        = regexp.MustCompile(`(?i)busca|encuentra|buscar|encontrar|información sobre|datos de|search|find|look up|information about`)
	navigationIntent    = regexp.MustCompile(`(?i)visita|navega|ir a|abre|abrir|ve a|url|go to|visit|open`)
	extractionIntent    = regexp.MustCompile(`(?i)extrae|obtén|recupera|obtener|extraer|contenido|datos|take|extract|get|content`)
	clickIntent         = regexp.MustCompile(`(?i)haz clic|presiona|pulsa|click|botón|button|press`)
	formIntent          = regexp.MustCompile(`(?i)formulario|llena|completa|escribe|ingresa|form|fill`)
	searchTermPattern   = regexp.MustCompile(`(?i)(?:busca|encuentra|información sobre|datos de|search for|find|information about)\s+(.+?)(?:\.|\?|$)`)
	clickTargetPattern  = regexp.MustCompile(`(?i)(?:haz clic|presiona|pulsa|click)(?:\sen\s|\sel\s|\sla\s|\son\s|\s)([^.]+)`)
	defaultContent      = []string{"main", "#content", ".content", "article"}
	defaultSearchResult = []string{"#search", "#main", "#center_col"}
)

// FindURL returns the first http(s) URL embedded in text.
func FindURL(text string) (string, bool) {
	m := urlPattern.FindString(text)
	return m, m != ""
}

// Fallback builds the deterministic plan used when the model backend cannot
// produce one: navigate+extract when the prompt carries a URL, otherwise
// search+extract.
func Fallback(prompt string) Plan {
	if u, ok := FindURL(prompt); ok {
		return Plan{
			Goal: prompt,
			Steps: []Step{
				{Type: StepNavigate, Description: "Navigate to " + u, Params: Params{"url": u}},
				{Type: StepExtract, Description: "Extract the main page content", Params: Params{"selectors": toAny(defaultContent)}},
			},
		}
	}
	return Plan{
		Goal: prompt,
		Steps: []Step{
			{Type: StepSearch, Description: "Search for: " + prompt, Params: Params{"query": prompt}},
			{Type: StepExtract, Description: "Extract the search results", Params: Params{"selectors": toAny(defaultSearchResult)}},
		},
	}
}

// Heuristic builds a plan from intent keywords in the prompt. It handles
// URLs wrapped in search-engine links and adds click and form steps when
// the prompt asks for them.
func Heuristic(prompt string) Plan {
	p := Plan{Goal: prompt}

	target := ""
	if u, ok := FindURL(prompt); ok {
		target = u
		if strings.Contains(u, "google.com/search") {
			if m := googleQueryPattern.FindStringSubmatch(prompt); m != nil {
				if q, err := url.QueryUnescape(m[1]); err == nil {
					if inner, ok := FindURL(q); ok {
						target = inner
					}
				}
			}
		}
		target = urlTrailingJunk.ReplaceAllString(target, "")
	}

	switch {
	case target != "":
		p.Steps = append(p.Steps, Step{
			Type:        StepNavigate,
			Description: "Navigate to " + target,
			Params:      Params{"url": target},
		})
	case searchIntent.MatchString(prompt):
		term := prompt
		if navigationIntent.MatchString(prompt) {
			if m := searchTermPattern.FindStringSubmatch(prompt); m != nil && strings.TrimSpace(m[1]) != "" {
				term = strings.TrimSpace(m[1])
			}
		}
		p.Steps = append(p.Steps, Step{
			Type:        StepSearch,
			Description: fmt.Sprintf("Search for %q", term),
			Params:      Params{"query": term},
		})
	default:
		p.Steps = append(p.Steps, Step{
			Type:        StepSearch,
			Description: fmt.Sprintf("Search for %q", prompt),
			Params:      Params{"query": prompt},
		})
	}

	if extractionIntent.MatchString(prompt) {
		p.Steps = append(p.Steps, extractStep())
	}

	if clickIntent.MatchString(prompt) {
		what := "relevant links"
		if m := clickTargetPattern.FindStringSubmatch(prompt); m != nil {
			what = strings.TrimSpace(m[1])
		}
		p.Steps = append(p.Steps, Step{
			Type:        StepClick,
			Description: "Click " + what,
			Params:      Params{"target": what},
		})
	}

	if formIntent.MatchString(prompt) {
		p.Steps = append(p.Steps, Step{
			Type:        StepForm,
			Description: "Fill in the form with suitable data",
			Params:      Params{"formData": "auto"},
		})
	}

	if len(p.Steps) == 1 {
		p.Steps = append(p.Steps, extractStep())
	}
	return p
}

func extractStep() Step {
	return Step{
		Type:        StepExtract,
		Description: "Extract the main page content",
		Params:      Params{"selectors": toAny(defaultContent)},
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
