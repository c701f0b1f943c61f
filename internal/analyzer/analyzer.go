// Package analyzer inventories the current page so the engine can ground
// vague intents ("search for shoes", "use the price filter") in concrete
// elements. One in-page script collects candidates; the Go side scores and
// classifies them.
package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/api/schemas"
)

// Evaluator runs a JavaScript expression in the page and decodes the result
// into out. It is the only browser capability the analyzer needs.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, out any) error
}

// Analyzer turns a live page into a schemas.PageAnalysis.
type Analyzer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

type rawElement struct {
	Selector    string            `json:"selector"`
	Tag         string            `json:"tag"`
	Type        string            `json:"type"`
	Text        string            `json:"text"`
	Placeholder string            `json:"placeholder"`
	Attributes  map[string]string `json:"attributes"`
	Box         schemas.Box       `json:"box"`
	Visible     bool              `json:"visible"`
	Enabled     bool              `json:"enabled"`
}

type rawForm struct {
	Selector string       `json:"selector"`
	Inputs   []rawElement `json:"inputs"`
	Submit   *rawElement  `json:"submit"`
}

type rawInventory struct {
	URL     string       `json:"url"`
	Title   string       `json:"title"`
	Inputs  []rawElement `json:"inputs"`
	Buttons []rawElement `json:"buttons"`
	Links   []rawElement `json:"links"`
	Nav     []rawElement `json:"nav"`
	Selects []rawElement `json:"selects"`
	Forms   []rawForm    `json:"forms"`
}

// Analyze runs the inventory script and assembles the analysis. A page with
// nothing interesting yields empty groups, not an error; only a failed
// Evaluate is an error.
func (a *Analyzer) Analyze(ctx context.Context, page Evaluator) (*schemas.PageAnalysis, error) {
	var raw rawInventory
	if err := page.Evaluate(ctx, inventoryScript, &raw); err != nil {
		return nil, fmt.Errorf("page inventory script failed: %w", err)
	}

	analysis := &schemas.PageAnalysis{
		URL:                raw.URL,
		Title:              raw.Title,
		SearchElements:     a.rankSearchCandidates(raw.Inputs),
		Buttons:            toElements(raw.Buttons, 0),
		Links:              toElements(raw.Links, 0),
		NavigationElements: toElements(raw.Nav, 0),
		Forms:              toForms(raw.Forms),
		Filters:            classifyFilters(raw.Inputs, raw.Selects),
	}

	a.logger.Debug("Page analysis complete",
		zap.String("url", raw.URL),
		zap.Int("search_candidates", len(analysis.SearchElements)),
		zap.Int("buttons", len(analysis.Buttons)),
		zap.Int("forms", len(analysis.Forms)),
		zap.Int("filters", len(analysis.Filters)))
	return analysis, nil
}

// rankSearchCandidates scores every text-entry input and returns them sorted
// best-first. Inputs that cannot plausibly take a query score zero and are
// dropped.
func (a *Analyzer) rankSearchCandidates(inputs []rawElement) []schemas.DOMElement {
	var out []schemas.DOMElement
	for _, in := range inputs {
		el := toElement(in, 0)
		score := ScoreSearchCandidate(el)
		if score <= 0 {
			continue
		}
		el.Score = score
		out = append(out, el)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// ScoreSearchCandidate rates how likely an input is to be the page's search
// box. type="search" is the strongest signal; a "search"/"query" token in
// the name, id, placeholder or aria-label is next; wider boxes win ties
// (site-wide search bars tend to be wide, inline filters narrow).
func ScoreSearchCandidate(el schemas.DOMElement) float64 {
	switch el.Type {
	case "search", "text", "":
	default:
		return 0
	}

	var score float64
	if el.Type == "search" {
		score += 5
	}
	haystack := strings.ToLower(strings.Join([]string{
		el.Attributes["id"],
		el.Attributes["name"],
		el.Attributes["aria-label"],
		el.Placeholder,
	}, " "))
	for _, token := range []string{"search", "query", "find"} {
		if strings.Contains(haystack, token) {
			score += 3
			break
		}
	}
	if score == 0 {
		return 0
	}
	// Width preference, capped so it only breaks ties between real signals.
	width := el.Box.Width
	if width > 600 {
		width = 600
	}
	return score + width/600
}

// classifyFilters groups filter-looking controls. Two or more visible
// price-ish numeric inputs form a range filter; every select becomes a
// dropdown filter on its own.
func classifyFilters(inputs, selects []rawElement) []schemas.Filter {
	var filters []schemas.Filter

	var priceInputs []schemas.DOMElement
	for _, in := range inputs {
		if !in.Visible {
			continue
		}
		if in.Type != "number" && in.Type != "text" && in.Type != "" {
			continue
		}
		if looksPricey(in) {
			priceInputs = append(priceInputs, toElement(in, 0))
		}
	}
	if len(priceInputs) >= 2 {
		filters = append(filters, schemas.Filter{
			Kind:     schemas.FilterRange,
			Label:    "price",
			Elements: priceInputs,
		})
	}

	for _, sel := range selects {
		if !sel.Visible {
			continue
		}
		label := sel.Attributes["aria-label"]
		if label == "" {
			label = sel.Attributes["name"]
		}
		filters = append(filters, schemas.Filter{
			Kind:     schemas.FilterDropdown,
			Label:    label,
			Elements: []schemas.DOMElement{toElement(sel, 0)},
		})
	}
	return filters
}

func looksPricey(in rawElement) bool {
	haystack := strings.ToLower(strings.Join([]string{
		in.Attributes["id"],
		in.Attributes["name"],
		in.Attributes["aria-label"],
		in.Placeholder,
	}, " "))
	for _, token := range []string{"price", "min", "max"} {
		if strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}

func toElement(in rawElement, score float64) schemas.DOMElement {
	attrs := in.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return schemas.DOMElement{
		Selector:    in.Selector,
		Type:        elementType(in),
		Text:        in.Text,
		Placeholder: in.Placeholder,
		Attributes:  attrs,
		Box:         in.Box,
		Visible:     in.Visible,
		Enabled:     in.Enabled,
		Score:       score,
	}
}

func elementType(in rawElement) string {
	if in.Type != "" {
		return in.Type
	}
	return in.Tag
}

func toElements(in []rawElement, score float64) []schemas.DOMElement {
	out := make([]schemas.DOMElement, 0, len(in))
	for _, el := range in {
		out = append(out, toElement(el, score))
	}
	return out
}

func toForms(in []rawForm) []schemas.Form {
	out := make([]schemas.Form, 0, len(in))
	for _, f := range in {
		form := schemas.Form{
			Selector: f.Selector,
			Inputs:   toElements(f.Inputs, 0),
		}
		if f.Submit != nil {
			submit := toElement(*f.Submit, 0)
			form.Submit = &submit
		}
		out = append(out, form)
	}
	return out
}
