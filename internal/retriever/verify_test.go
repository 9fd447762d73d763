package retriever

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

func writeSized(t *testing.T, dir string, kb int) string {
	t.Helper()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, make([]byte, kb*1000), 0o644))
	return path
}

func TestVerify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		actualKB int
		expected int64
		complete bool
	}{
		{name: "well short of declared", actualKB: 85, expected: 100, complete: false},
		{name: "within tolerance", actualKB: 95, expected: 100, complete: true},
		{name: "exactly at tolerance", actualKB: 90, expected: 100, complete: true},
		{name: "just outside tolerance", actualKB: 89, expected: 100, complete: false},
		{name: "larger than declared", actualKB: 150, expected: 100, complete: true},
		{name: "far larger than declared", actualKB: 5000, expected: 100, complete: true},
		{name: "tolerance is absolute on large files", actualKB: 985, expected: 1000, complete: false},
		{name: "small file within absolute tolerance", actualKB: 1, expected: 8, complete: true},
		{name: "unknown declared size", actualKB: 1, expected: 0, complete: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeSized(t, t.TempDir(), tt.actualKB)
			v, err := Verify(path, tt.expected)
			require.NoError(t, err)
			require.True(t, v.Exists)
			require.Equal(t, int64(tt.actualKB), v.ActualKB)
			require.Equal(t, tt.complete, v.Complete)
		})
	}
}

func TestVerifyMissingFile(t *testing.T) {
	t.Parallel()

	v, err := Verify(filepath.Join(t.TempDir(), "nope.pdf"), 10)
	require.NoError(t, err)
	require.False(t, v.Exists)
	require.False(t, v.Complete)

	needs, _, err := NeedsRetrieval(filepath.Join(t.TempDir(), "nope.pdf"), 0)
	require.NoError(t, err)
	require.True(t, needs)
}

func TestVerifyDirectory(t *testing.T) {
	t.Parallel()

	_, err := Verify(t.TempDir(), 10)
	require.ErrorIs(t, err, crawler.ErrFilesystem)
}

func TestNeedsRetrieval(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeSized(t, dir, 50)

	needs, v, err := NeedsRetrieval(path, 100)
	require.NoError(t, err)
	require.True(t, needs)
	require.Equal(t, int64(50), v.ActualKB)

	needs, _, err = NeedsRetrieval(path, 52)
	require.NoError(t, err)
	require.False(t, needs)
}

func TestSizeKB(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(0), SizeKB(0))
	require.Equal(t, int64(0), SizeKB(499))
	require.Equal(t, int64(2), SizeKB(1500))
	require.Equal(t, int64(2), SizeKB(2500))
	require.Equal(t, int64(3), SizeKB(2501))
}
