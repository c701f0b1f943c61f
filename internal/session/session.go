// Package session tracks long-lived browser sessions by caller-chosen id.
// A session owns one tab, the artifact directory for its runs, and the
// page-analysis cache the engine consults between steps.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/voxpilot/voxpilot/api/schemas"
	"github.com/voxpilot/voxpilot/internal/browser"
)

// Session is one named browser session.
type Session struct {
	id        string
	createdAt time.Time
	page      *browser.Page

	artifactsRoot string

	// runMu serializes execute calls that land on the same session; two
	// concurrent requests must not interleave steps on one tab.
	runMu sync.Mutex

	// The analysis cache is valid for exactly one navigation state. Any
	// navigating step bumps the generation, orphaning the cached analysis.
	cacheMu     sync.Mutex
	generation  uint64
	analysis    *schemas.PageAnalysis
	analysisGen uint64
}

func (s *Session) ID() string           { return s.id }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) Page() *browser.Page  { return s.page }

// Lock serializes a run against this session. Callers must Unlock when done.
func (s *Session) Lock()   { s.runMu.Lock() }
func (s *Session) Unlock() { s.runMu.Unlock() }

// Dir returns the session's artifact directory, creating it on first use.
// MkdirAll is idempotent, so a transient creation failure is retried on the
// next call instead of poisoning the session for its lifetime.
func (s *Session) Dir() (string, error) {
	dir := filepath.Join(s.artifactsRoot, s.id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir for session %s: %w", s.id, err)
	}
	return dir, nil
}

// Analysis returns the cached page analysis, or nil when no analysis has
// been captured for the current navigation state.
func (s *Session) Analysis() *schemas.PageAnalysis {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.analysis == nil || s.analysisGen != s.generation {
		return nil
	}
	return s.analysis
}

// StoreAnalysis caches an analysis for the current navigation state.
func (s *Session) StoreAnalysis(a *schemas.PageAnalysis) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.analysis = a
	s.analysisGen = s.generation
}

// BumpGeneration marks the navigation state changed, invalidating any
// cached analysis without eagerly recomputing it.
func (s *Session) BumpGeneration() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
}

func (s *Session) close() {
	if s.page != nil {
		s.page.Close()
	}
}
