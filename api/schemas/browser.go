package schemas

// Box is an element's bounding rectangle in CSS pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DOMElement is one interactive element discovered by the page analyzer.
// Selector is generated with a stability-first policy (id, then test id,
// then name scoped by tag, then bare tag).
type DOMElement struct {
	Selector    string            `json:"selector"`
	Type        string            `json:"type"`
	Text        string            `json:"text,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Box         Box               `json:"box"`
	Visible     bool              `json:"visible"`
	Enabled     bool              `json:"enabled"`
	Score       float64           `json:"score,omitempty"`
}

// Interactable reports whether the element can receive input right now.
func (e DOMElement) Interactable() bool { return e.Visible && e.Enabled }

// Form is a discovered form with its classified inputs and optional submit
// control.
type Form struct {
	Selector string       `json:"selector"`
	Inputs   []DOMElement `json:"inputs"`
	Submit   *DOMElement  `json:"submit,omitempty"`
}

// FilterKind classifies the shape of a discovered filter grouping.
type FilterKind string

const (
	FilterRange    FilterKind = "range"
	FilterDropdown FilterKind = "dropdown"
	FilterCheckbox FilterKind = "checkbox"
	FilterText     FilterKind = "text"
)

func (k FilterKind) String() string { return string(k) }

// Filter is a labeled group of elements that narrows page results.
type Filter struct {
	Kind     FilterKind   `json:"kind"`
	Label    string       `json:"label"`
	Elements []DOMElement `json:"elements"`
}

// PageAnalysis is a point-in-time inventory of a page's interactive surface.
// It is valid only for the navigation state it was captured from; any
// navigating intent invalidates it.
type PageAnalysis struct {
	URL                string       `json:"url"`
	Title              string       `json:"title"`
	SearchElements     []DOMElement `json:"search_elements"`
	Buttons            []DOMElement `json:"buttons"`
	Links              []DOMElement `json:"links"`
	NavigationElements []DOMElement `json:"navigation_elements"`
	Forms              []Form       `json:"forms"`
	Filters            []Filter     `json:"filters"`
}

// BestSearchElement returns the highest-scored search candidate that is both
// visible and enabled, or nil when none qualifies.
func (a *PageAnalysis) BestSearchElement() *DOMElement {
	if a == nil {
		return nil
	}
	for i := range a.SearchElements {
		if a.SearchElements[i].Interactable() {
			return &a.SearchElements[i]
		}
	}
	return nil
}
