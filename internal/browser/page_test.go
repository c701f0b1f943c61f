package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voxpilot/voxpilot/internal/config"
)

func TestKeySequence(t *testing.T) {
	t.Parallel()
	seq, err := keySequence("Enter")
	require.NoError(t, err)
	assert.Equal(t, kb.Enter, seq)

	seq, err = keySequence("a")
	require.NoError(t, err)
	assert.Equal(t, "a", seq)

	_, err = keySequence("Ctrl+Shift+K")
	assert.Error(t, err)
}

func TestCombineContextCancelsFromEitherParent(t *testing.T) {
	t.Parallel()

	primary, cancelPrimary := context.WithCancel(context.Background())
	defer cancelPrimary()
	secondary, cancelSecondary := context.WithCancel(context.Background())
	defer cancelSecondary()

	combined, cancel := combineContext(primary, secondary)
	defer cancel()
	require.NoError(t, combined.Err())

	cancelSecondary()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context did not observe secondary cancellation")
	}
}

// Tab creation is lazy in chromedp, so pages can be provisioned and torn
// down without a Chrome binary present.
func TestAllocatorNewPageLifecycle(t *testing.T) {
	t.Parallel()
	alloc, err := NewAllocator(context.Background(), config.BrowserConfig{Headless: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer alloc.Close()

	page, err := alloc.NewPage()
	require.NoError(t, err)
	assert.True(t, page.Alive())

	page.Close()
	assert.False(t, page.Alive())
}

func TestAllocatorRejectsPagesAfterClose(t *testing.T) {
	t.Parallel()
	alloc, err := NewAllocator(context.Background(), config.BrowserConfig{Headless: true}, zaptest.NewLogger(t))
	require.NoError(t, err)

	alloc.Close()
	_, err = alloc.NewPage()
	assert.Error(t, err)
}

// Close must return promptly when the tab is already gone: a second Close,
// or a first Close after the allocator tore the browser down, must not wait
// on a target that will never report back.
func TestCloseIsIdempotentAndBounded(t *testing.T) {
	t.Parallel()
	alloc, err := NewAllocator(context.Background(), config.BrowserConfig{Headless: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer alloc.Close()

	page, err := alloc.NewPage()
	require.NoError(t, err)
	page.Close()

	closed := make(chan struct{})
	go func() {
		page.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("second Close did not return")
	}
}

func TestCloseAfterAllocatorTeardownReturns(t *testing.T) {
	t.Parallel()
	alloc, err := NewAllocator(context.Background(), config.BrowserConfig{Headless: true}, zaptest.NewLogger(t))
	require.NoError(t, err)

	page, err := alloc.NewPage()
	require.NoError(t, err)
	alloc.Close()
	require.False(t, page.Alive())

	closed := make(chan struct{})
	go func() {
		page.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close of an externally torn-down page did not return")
	}
}

func TestScrollRejectsUnknownDirection(t *testing.T) {
	t.Parallel()
	alloc, err := NewAllocator(context.Background(), config.BrowserConfig{Headless: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer alloc.Close()

	page, err := alloc.NewPage()
	require.NoError(t, err)
	defer page.Close()

	err = page.Scroll(context.Background(), "sideways")
	assert.ErrorContains(t, err, "invalid scroll direction")
}
