package engine

import (
	"sync"

	"github.com/voxpilot/voxpilot/api/schemas"
)

// MemoryState is a standalone analysis cache for engines not bound to a
// managed session (the run command, tests). Same generation semantics as
// session.Session: a stored analysis is valid until the next bump.
type MemoryState struct {
	mu          sync.Mutex
	generation  uint64
	analysis    *schemas.PageAnalysis
	analysisGen uint64
}

func NewMemoryState() *MemoryState { return &MemoryState{} }

func (s *MemoryState) Analysis() *schemas.PageAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analysis == nil || s.analysisGen != s.generation {
		return nil
	}
	return s.analysis
}

func (s *MemoryState) StoreAnalysis(a *schemas.PageAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = a
	s.analysisGen = s.generation
}

func (s *MemoryState) BumpGeneration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}
