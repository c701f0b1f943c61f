package engine

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/voxpilot/voxpilot/api/schemas"
	"github.com/voxpilot/voxpilot/internal/artifacts"
)

var jsonx = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultResultsSelector covers the common containers result listings render
// into when the plan names none.
const defaultResultsSelector = `#results, .results, [data-results], main, body`

// defaultColumns are extracted when the plan does not name columns.
var defaultColumns = []string{"title", "price"}

// handleExtractTable waits for the results container, pulls repeated
// card-like rows out of it, truncates to the limit, and persists the rows as
// JSON and CSV artifacts.
func (e *Engine) handleExtractTable(ctx context.Context, in schemas.Intent, res *schemas.StepResult) error {
	selector := defaultResultsSelector
	if in.Target != nil && in.Target.Selector != "" {
		selector = in.Target.Selector
	}
	if err := e.page.WaitVisible(ctx, selector); err != nil {
		return fmt.Errorf("results container %q never appeared: %w", selector, err)
	}

	columns := in.StringsArg("columns")
	if len(columns) == 0 {
		columns = defaultColumns
	}
	limit := in.IntArg("limit", 50)

	script, err := extractScript(selector, columns, limit)
	if err != nil {
		return err
	}
	var rows []map[string]any
	if err := e.page.Evaluate(ctx, script, &rows); err != nil {
		return fmt.Errorf("extraction script failed: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	res.Data = rows

	name := artifacts.SanitizeLabel(in.StringArg("name", "results"))
	jsonPath, err := artifacts.WriteJSON(e.artifactDir, name, rows)
	if err != nil {
		return err
	}
	csvPath, err := artifacts.WriteCSV(e.artifactDir, name, columns, rows)
	if err != nil {
		return err
	}
	res.DataPaths = &schemas.DataPaths{JSON: jsonPath, CSV: csvPath}
	return nil
}

// extractScript builds the in-page extraction expression. Card discovery is
// heuristic: repeated children of the container that look like listings,
// with per-column extraction keyed on the column name (title-ish columns
// take headings/links, price-ish columns take currency-looking text, the
// rest match class or data attributes).
func extractScript(selector string, columns []string, limit int) (string, error) {
	colsJSON, err := jsonx.MarshalToString(columns)
	if err != nil {
		return "", fmt.Errorf("failed to encode columns: %w", err)
	}
	return fmt.Sprintf(`
		(() => {
			const container = document.querySelector(%q);
			if (!container) return [];
			const columns = %s;
			const limit = %d;

			const cardSel = '.card, .result, .item, .product, article, li';
			let cards = Array.from(container.querySelectorAll(cardSel))
				.filter(c => c.innerText && c.innerText.trim().length > 0)
				.filter(c => !c.querySelector(cardSel));
			if (cards.length === 0) cards = Array.from(container.children).filter(c => c.innerText && c.innerText.trim());

			const priceRe = /(?:[$£€]\s?\d[\d,.]*|\d[\d,.]*\s?(?:USD|EUR|GBP))/;
			const cell = (card, col) => {
				const key = col.toLowerCase();
				if (key === 'title' || key === 'name') {
					const h = card.querySelector('h1,h2,h3,h4,h5,h6,[class*=title],[class*=name],a');
					if (h) return h.innerText.trim();
					return card.innerText.trim().split('\n')[0];
				}
				if (key === 'price' || key === 'cost' || key === 'amount') {
					const p = card.querySelector('[class*=price],[data-price]');
					if (p) return p.innerText.trim();
					const m = card.innerText.match(priceRe);
					return m ? m[0].trim() : '';
				}
				const byClass = card.querySelector('[class*=' + key + '],[data-' + key + ']');
				return byClass ? byClass.innerText.trim() : '';
			};

			return cards.slice(0, limit).map(card => {
				const row = {};
				for (const col of columns) row[col] = cell(card, col);
				return row;
			});
		})()
	`, selector, colsJSON, limit), nil
}
