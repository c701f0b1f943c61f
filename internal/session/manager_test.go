package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/voxpilot/voxpilot/api/schemas"
	"github.com/voxpilot/voxpilot/internal/browser"
	"github.com/voxpilot/voxpilot/internal/config"
	"github.com/voxpilot/voxpilot/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestManager wires a manager to a real allocator. chromedp provisions
// tabs lazily, so no Chrome binary is needed as long as no action runs.
func newTestManager(t *testing.T) (*session.Manager, *atomic.Int32) {
	t.Helper()
	alloc, err := browser.NewAllocator(context.Background(), config.BrowserConfig{Headless: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(alloc.Close)

	var created atomic.Int32
	factory := func() (*browser.Page, error) {
		created.Add(1)
		return alloc.NewPage()
	}
	return session.NewManager(factory, t.TempDir(), zaptest.NewLogger(t)), &created
}

func TestOpenReusesExistingSession(t *testing.T) {
	mgr, created := newTestManager(t)
	defer func() { require.NoError(t, mgr.Shutdown(context.Background())) }()

	s1, err := mgr.Open(context.Background(), "voice-1")
	require.NoError(t, err)
	s2, err := mgr.Open(context.Background(), "voice-1")
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, int32(1), created.Load())
}

func TestOpenConcurrentSameIDProvisionsOnce(t *testing.T) {
	mgr, created := newTestManager(t)
	defer func() { require.NoError(t, mgr.Shutdown(context.Background())) }()

	const callers = 16
	sessions := make([]*session.Session, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := mgr.Open(context.Background(), "raced")
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load(), "exactly one tab for the raced id")
	for i := 1; i < callers; i++ {
		assert.Same(t, sessions[0], sessions[i])
	}
}

func TestOpenRecreatesDeadSession(t *testing.T) {
	mgr, created := newTestManager(t)
	defer func() { require.NoError(t, mgr.Shutdown(context.Background())) }()

	s1, err := mgr.Open(context.Background(), "voice-1")
	require.NoError(t, err)
	s1.Page().Close()

	s2, err := mgr.Open(context.Background(), "voice-1")
	require.NoError(t, err)
	assert.NotSame(t, s1, s2, "a dead session is replaced, not returned")
	assert.True(t, s2.Page().Alive())
	assert.Equal(t, int32(2), created.Load())
}

func TestOpenPropagatesFactoryFailure(t *testing.T) {
	cause := errors.New("browser pool exhausted")
	mgr := session.NewManager(func() (*browser.Page, error) {
		return nil, cause
	}, t.TempDir(), zaptest.NewLogger(t))

	_, err := mgr.Open(context.Background(), "doomed")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
}

func TestCloseUnknownIDIsNoOp(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.Close("never-opened")
}

func TestCloseThenOpenProvisionsFresh(t *testing.T) {
	mgr, created := newTestManager(t)
	defer func() { require.NoError(t, mgr.Shutdown(context.Background())) }()

	s1, err := mgr.Open(context.Background(), "voice-1")
	require.NoError(t, err)
	mgr.Close("voice-1")
	assert.False(t, s1.Page().Alive(), "close tears the tab down")

	_, err = mgr.Open(context.Background(), "voice-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), created.Load())
}

func TestSessionDirCreatedLazily(t *testing.T) {
	root := t.TempDir()
	alloc, err := browser.NewAllocator(context.Background(), config.BrowserConfig{Headless: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(alloc.Close)
	mgr := session.NewManager(alloc.NewPage, root, zaptest.NewLogger(t))
	defer func() { require.NoError(t, mgr.Shutdown(context.Background())) }()

	s, err := mgr.Open(context.Background(), "voice-1")
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(root, "voice-1"))
	assert.True(t, os.IsNotExist(statErr), "no directory until first artifact")

	dir, err := s.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "voice-1"), dir)
	assert.DirExists(t, dir)

	again, err := s.Dir()
	require.NoError(t, err)
	assert.Equal(t, dir, again)
}

// A failed directory creation must not poison the session: once the
// underlying cause clears, the next artifact write succeeds.
func TestSessionDirRetriesAfterFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "artifacts")
	require.NoError(t, os.WriteFile(root, []byte("in the way"), 0o644))

	alloc, err := browser.NewAllocator(context.Background(), config.BrowserConfig{Headless: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(alloc.Close)
	mgr := session.NewManager(alloc.NewPage, root, zaptest.NewLogger(t))
	defer func() { require.NoError(t, mgr.Shutdown(context.Background())) }()

	s, err := mgr.Open(context.Background(), "voice-1")
	require.NoError(t, err)

	_, err = s.Dir()
	require.Error(t, err, "a file where the artifacts root should be")

	require.NoError(t, os.Remove(root))
	dir, err := s.Dir()
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestAnalysisCacheInvalidatedByGeneration(t *testing.T) {
	mgr, _ := newTestManager(t)
	defer func() { require.NoError(t, mgr.Shutdown(context.Background())) }()

	s, err := mgr.Open(context.Background(), "voice-1")
	require.NoError(t, err)
	assert.Nil(t, s.Analysis(), "no analysis before one is stored")

	a := &schemas.PageAnalysis{URL: "https://example.com"}
	s.StoreAnalysis(a)
	assert.Same(t, a, s.Analysis())

	s.BumpGeneration()
	assert.Nil(t, s.Analysis(), "navigation invalidates the cache")

	b := &schemas.PageAnalysis{URL: "https://example.com/results"}
	s.StoreAnalysis(b)
	assert.Same(t, b, s.Analysis())
}
