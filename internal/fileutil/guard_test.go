package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGuardNeedsARoot(t *testing.T) {
	_, err := NewGuard("", "")
	assert.Error(t, err)

	g, err := NewGuard("", t.TempDir())
	require.NoError(t, err)
	assert.Len(t, g.Roots(), 1)
}

func TestGuardResolve(t *testing.T) {
	exams := t.TempDir()
	out := t.TempDir()
	outside := t.TempDir()
	g, err := NewGuard(exams, out)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "relative to first root", path: "2024/a.pdf", want: filepath.Join(exams, "2024", "a.pdf")},
		{name: "absolute in second root", path: filepath.Join(out, "dataset.jsonl"), want: filepath.Join(out, "dataset.jsonl")},
		{name: "root itself", path: exams, want: exams},
		{name: "null bytes stripped", path: "a\x00.pdf", want: filepath.Join(exams, "a.pdf")},
		{name: "traversal", path: "../../etc/passwd", wantErr: true},
		{name: "outside", path: filepath.Join(outside, "x.pdf"), wantErr: true},
		{name: "prefix sibling", path: exams + "-other/x.pdf", wantErr: true},
		{name: "empty", path: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Resolve(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGuardRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.pdf")
	require.NoError(t, os.WriteFile(target, []byte("%PDF"), 0o644))
	link := filepath.Join(root, "link.pdf")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	g, err := NewGuard(root)
	require.NoError(t, err)
	_, err = g.Resolve("link.pdf")
	assert.Error(t, err)
}
