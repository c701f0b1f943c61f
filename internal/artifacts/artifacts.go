// Package artifacts persists the files an execution run leaves behind:
// screenshots and extracted tables (JSON + CSV).
package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeLabel turns an arbitrary label into a filesystem-safe token.
func SanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = unsafeLabelChars.ReplaceAllString(label, "-")
	label = strings.Trim(label, "-")
	if label == "" {
		return "screenshot"
	}
	return label
}

// ScreenshotName builds the canonical screenshot file name,
// "<epoch-ms>-<label>.png".
func ScreenshotName(now time.Time, label string) string {
	return fmt.Sprintf("%d-%s.png", now.UnixMilli(), SanitizeLabel(label))
}

// WriteScreenshot persists PNG bytes under dir and returns the full path.
func WriteScreenshot(dir string, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

// WriteJSON persists rows as a pretty-printed array of objects at
// <dir>/<name>.json and returns the full path.
func WriteJSON(dir, name string, rows []map[string]any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal rows: %w", err)
	}
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write json artifact: %w", err)
	}
	return path, nil
}

// WriteCSV persists rows at <dir>/<name>.csv with the given column order as
// the header. Values are JSON-stringified, which doubles as a simple escaping
// strategy for embedded commas and quotes before csv-level quoting applies.
func WriteCSV(dir, name string, columns []string, rows []map[string]any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	path := filepath.Join(dir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create csv artifact: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = stringifyCell(row[col])
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv artifact: %w", err)
	}
	return path, nil
}

func stringifyCell(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
