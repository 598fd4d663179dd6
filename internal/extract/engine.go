package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rahul/wayfarer/internal/browser"
)

const (
	priorityMinLength  = 200
	containerMinLength = 150
	paragraphMinLength = 30
	paragraphsAccept   = 200
	densityBlockMin    = 100
	densityTop         = 3
	densityAccept      = 150
)

var (
	// PrioritySelectors are tried in order; the first long enough wins.
	PrioritySelectors = []string{"main", "article", "#content", ".content"}
	// ContainerSelectors are probed concurrently; the longest wins.
	ContainerSelectors = []string{
		".article", ".main-content", "#main", "#main-content",
		".container", ".page-content", ".post-content", ".entry-content",
	}
)

// Result is the text and images selected from one page.
type Result struct {
	Text     string   `json:"text"`
	Images   []string `json:"images,omitempty"`
	Strategy string   `json:"strategy"`
	Selector string   `json:"selector,omitempty"`
	Article  *Article `json:"article,omitempty"`
}

// Strategy is one stage of the extraction cascade. ok reports whether the
// stage produced an acceptable result; err is reserved for driver failures
// that make continuing pointless.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, d browser.Driver) (res Result, ok bool, err error)
}

// Engine selects the main content of the loaded page.
type Engine struct {
	probeLimit int
}

func NewEngine(probeLimit int) *Engine {
	if probeLimit <= 0 {
		probeLimit = 4
	}
	return &Engine{probeLimit: probeLimit}
}

// Cascade returns the ordered strategies Extract tries.
func (e *Engine) Cascade() []Strategy {
	return []Strategy{
		{Name: "priority-selector", Run: e.prioritySelectors},
		{Name: "container-selector", Run: e.containerSelectors},
		{Name: "paragraphs", Run: e.paragraphs},
		{Name: "text-density", Run: e.textDensity},
		{Name: "body", Run: e.body},
	}
}

// Extract runs the cascade against the current page and attaches relevant
// images. Strategy failures fall through to the next stage.
func (e *Engine) Extract(ctx context.Context, d browser.Driver) (Result, error) {
	var res Result
	found := false
	for _, s := range e.Cascade() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		r, ok, err := s.Run(ctx, d)
		if err != nil || !ok {
			continue
		}
		r.Strategy = s.Name
		res, found = r, true
		break
	}
	if !found {
		return Result{}, fmt.Errorf("no content could be extracted")
	}

	if images, err := e.Images(ctx, d, ""); err == nil {
		res.Images = images
	}
	if a, err := e.Article(ctx, d); err == nil {
		res.Article = a
	}
	return res, nil
}

type selectorText struct {
	Found   bool   `json:"found"`
	Text    string `json:"text"`
	Matched string `json:"matched"`
}

// SelectorText returns the whitespace-collapsed text of the first element
// matching sel, falling back to class, id and data-testid substring matches.
func (e *Engine) SelectorText(ctx context.Context, d browser.Driver, sel string) (Result, bool, error) {
	var st selectorText
	if err := d.Evaluate(ctx, script(ScriptSelectorText, selectorTextJS, sel), &st); err != nil {
		return Result{}, false, err
	}
	if !st.Found {
		return Result{}, false, nil
	}
	return Result{Text: st.Text, Selector: st.Matched, Strategy: "selector"}, true, nil
}

func (e *Engine) prioritySelectors(ctx context.Context, d browser.Driver) (Result, bool, error) {
	for _, sel := range PrioritySelectors {
		r, ok, err := e.SelectorText(ctx, d, sel)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, false, ctx.Err()
			}
			continue
		}
		if ok && len(r.Text) > priorityMinLength {
			return r, true, nil
		}
	}
	return Result{}, false, nil
}

func (e *Engine) containerSelectors(ctx context.Context, d browser.Driver) (Result, bool, error) {
	results := make([]Result, len(ContainerSelectors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.probeLimit)
	for i, sel := range ContainerSelectors {
		g.Go(func() error {
			r, ok, err := e.SelectorText(gctx, d, sel)
			if err == nil && ok && len(r.Text) > containerMinLength {
				results[i] = r
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, false, err
	}

	best := -1
	for i, r := range results {
		if r.Text == "" {
			continue
		}
		if best < 0 || len(r.Text) > len(results[best].Text) {
			best = i
		}
	}
	if best < 0 {
		return Result{}, false, nil
	}
	return results[best], true, nil
}

func (e *Engine) paragraphs(ctx context.Context, d browser.Driver) (Result, bool, error) {
	var texts []string
	if err := d.Evaluate(ctx, script(ScriptParagraphs, paragraphsJS), &texts); err != nil {
		return Result{}, false, err
	}
	joined := JoinParagraphs(texts, func(s string) bool { return len(s) > paragraphMinLength })
	if len(joined) <= paragraphsAccept {
		return Result{}, false, nil
	}
	return Result{Text: joined, Selector: "p"}, true, nil
}

// JoinParagraphs keeps the paragraphs accepted by keep and joins them with
// blank lines.
func JoinParagraphs(texts []string, keep func(string) bool) string {
	kept := make([]string, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if keep(t) {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, "\n\n")
}

// Block is a block-level container measured in the page.
type Block struct {
	Index      int `json:"index"`
	TextLength int `json:"textLength"`
	ChildNodes int `json:"childNodes"`
}

// Density is the visible text length divided by the direct child node count.
func (b Block) Density() float64 {
	n := b.ChildNodes
	if n == 0 {
		n = 1
	}
	return float64(b.TextLength) / float64(n)
}

// TopDensity returns the indices of the n densest blocks with more than
// densityBlockMin characters, densest first.
func TopDensity(blocks []Block, n int) []int {
	kept := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if b.TextLength > densityBlockMin {
			kept = append(kept, b)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Density() > kept[j].Density() })
	if len(kept) > n {
		kept = kept[:n]
	}
	out := make([]int, len(kept))
	for i, b := range kept {
		out[i] = b.Index
	}
	return out
}

func (e *Engine) textDensity(ctx context.Context, d browser.Driver) (Result, bool, error) {
	var blocks []Block
	if err := d.Evaluate(ctx, script(ScriptDensityBlocks, densityBlocksJS), &blocks); err != nil {
		return Result{}, false, err
	}
	top := TopDensity(blocks, densityTop)
	if len(top) == 0 {
		return Result{}, false, nil
	}
	var texts []string
	if err := d.Evaluate(ctx, script(ScriptBlockTexts, blockTextsJS, top), &texts); err != nil {
		return Result{}, false, err
	}
	joined := strings.Join(texts, "\n\n")
	if len(joined) <= densityAccept {
		return Result{}, false, nil
	}
	return Result{Text: joined}, true, nil
}

func (e *Engine) body(ctx context.Context, d browser.Driver) (Result, bool, error) {
	text, err := BodyText(ctx, d)
	if err != nil {
		return Result{}, false, err
	}
	return Result{Text: text, Selector: "body"}, true, nil
}

// BodyText returns the visible text of the whole page.
func BodyText(ctx context.Context, d browser.Driver) (string, error) {
	var text string
	if err := d.Evaluate(ctx, script(ScriptBodyText, bodyTextJS), &text); err != nil {
		return "", err
	}
	return text, nil
}
