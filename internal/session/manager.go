package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voxpilot/voxpilot/internal/browser"
)

// PageFactory provisions a fresh browser tab. In production this is
// (*browser.Allocator).NewPage; tab creation is lazy in chromedp, so tests
// can use a real allocator without a Chrome binary present.
type PageFactory func() (*browser.Page, error)

// Manager maps caller-chosen session ids to live sessions. Unknown ids are
// provisioned on demand; dead sessions are replaced transparently.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry

	newPage       PageFactory
	artifactsRoot string
	logger        *zap.Logger
}

// entry lets concurrent opens of the same id agree on a single winner: the
// first caller creates the session, everyone else waits on ready.
type entry struct {
	ready chan struct{}
	sess  *Session
	err   error
}

func NewManager(newPage PageFactory, artifactsRoot string, logger *zap.Logger) *Manager {
	return &Manager{
		entries:       make(map[string]*entry),
		newPage:       newPage,
		artifactsRoot: artifactsRoot,
		logger:        logger.Named("sessions"),
	}
}

// Open returns the session for id, creating it if absent. When two callers
// race on the same fresh id, exactly one browser tab is provisioned and
// both receive it. A session whose tab has died is dropped and replaced;
// the caller that discovers the death gets the fresh session too.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	for {
		m.mu.Lock()
		e, ok := m.entries[id]
		if !ok {
			e = &entry{ready: make(chan struct{})}
			m.entries[id] = e
			m.mu.Unlock()
			m.provision(id, e)
		} else {
			m.mu.Unlock()
		}

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if e.err != nil {
			// Creation failed; drop the poisoned entry so the next open
			// can retry, and report the failure to this caller.
			m.drop(id, e)
			return nil, e.err
		}
		if !e.sess.page.Alive() {
			m.logger.Warn("Session browser is dead, recreating.", zap.String("session_id", id))
			e.sess.close()
			m.drop(id, e)
			continue
		}
		return e.sess, nil
	}
}

func (m *Manager) provision(id string, e *entry) {
	defer close(e.ready)

	page, err := m.newPage()
	if err != nil {
		e.err = fmt.Errorf("failed to provision browser for session %s: %w", id, err)
		return
	}
	e.sess = &Session{
		id:            id,
		createdAt:     time.Now(),
		page:          page,
		artifactsRoot: m.artifactsRoot,
	}
	m.logger.Info("Session created.", zap.String("session_id", id))
}

// drop removes the entry only if it is still the one we examined; a
// concurrent caller may already have replaced it.
func (m *Manager) drop(id string, e *entry) {
	m.mu.Lock()
	if cur, ok := m.entries[id]; ok && cur == e {
		delete(m.entries, id)
	}
	m.mu.Unlock()
}

// Close tears down the session for id. Unknown ids are a no-op by design:
// close is idempotent from the caller's point of view.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	<-e.ready
	if e.sess != nil {
		e.sess.close()
		m.logger.Info("Session closed.", zap.String("session_id", id))
	}
}

// Shutdown closes every session concurrently and waits for completion or
// context expiry.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	entries := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		entries[id] = e
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for id, e := range entries {
		id, e := id, e
		g.Go(func() error {
			<-e.ready
			if e.sess != nil {
				e.sess.close()
			}
			m.logger.Debug("Session closed during shutdown.", zap.String("session_id", id))
			return nil
		})
	}
	return g.Wait()
}
