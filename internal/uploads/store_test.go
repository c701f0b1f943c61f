package uploads_test

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpilot/voxpilot/internal/uploads"
)

func TestRegisterAndResolveRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := uploads.NewStore(t.TempDir())
	require.NoError(t, err)

	ref, err := store.Register("resume.pdf", strings.NewReader("pdf-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "upload://"), "refs carry the upload scheme")
	assert.True(t, strings.HasSuffix(ref, "_resume.pdf"), "original base name is preserved")

	path, err := store.Resolve(ref)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(data))
}

func TestRegisterUniqueRefsForSameName(t *testing.T) {
	t.Parallel()
	store, err := uploads.NewStore(t.TempDir())
	require.NoError(t, err)

	ref1, err := store.Register("a.txt", strings.NewReader("one"))
	require.NoError(t, err)
	ref2, err := store.Register("a.txt", strings.NewReader("two"))
	require.NoError(t, err)
	assert.NotEqual(t, ref1, ref2)
}

func TestRegisterStripsClientPath(t *testing.T) {
	t.Parallel()
	store, err := uploads.NewStore(t.TempDir())
	require.NoError(t, err)

	ref, err := store.Register(`C:\Users\someone\Documents\cv.docx`, strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, "_cv.docx"))

	ref, err = store.Register("../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, "_passwd"))
}

func TestResolveRejectsBadRefs(t *testing.T) {
	t.Parallel()
	store, err := uploads.NewStore(t.TempDir())
	require.NoError(t, err)

	testCases := []struct {
		name string
		ref  string
		want error
	}{
		{"no scheme", "file.txt", uploads.ErrInvalidRef},
		{"wrong scheme", "file:///etc/passwd", uploads.ErrInvalidRef},
		{"empty name", "upload://", uploads.ErrInvalidRef},
		{"path escape", "upload://../secret", uploads.ErrInvalidRef},
		{"nested path", "upload://a/b.txt", uploads.ErrInvalidRef},
		{"unknown file", "upload://deadbeef_missing.txt", uploads.ErrNotFound},
	}
	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := store.Resolve(tt.ref)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}
