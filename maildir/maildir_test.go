package maildir

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/threadgraph/model"
)

func tree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(rel), 0o644))
	}
	return root
}

func TestReader_PatternAndExclusion(t *testing.T) {
	root := tree(t,
		"allen-p/inbox/1.",
		"allen-p/inbox/2.",
		"allen-p/inbox/readme.txt",
		"skilling-j/1584.",
		"skilling-j/sent/3.",
	)

	var excluded []string
	r, err := NewReader(Options{
		Root:       root,
		Pattern:    "*.",
		Exclude:    []string{"skilling-j/1584.", "  ", "/allen-p/inbox/2./"},
		OnExcluded: func(path string) { excluded = append(excluded, path) },
	}, nil)
	require.NoError(t, err)

	n, err := r.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, excluded, "Count does not report exclusions")

	out := make(chan model.Envelope, 10)
	require.NoError(t, r.Stream(context.Background(), out))
	close(out)

	var sources []string
	for env := range out {
		require.NoError(t, env.Err)
		rel, err := filepath.Rel(root, env.Thread.Source)
		require.NoError(t, err)
		assert.Equal(t, filepath.ToSlash(rel), string(env.Thread.Raw))
		sources = append(sources, filepath.ToSlash(rel))
	}
	sort.Strings(sources)
	assert.Equal(t, []string{"allen-p/inbox/1.", "skilling-j/sent/3."}, sources)
	assert.Len(t, excluded, 2)
}

func TestNewReader_Validation(t *testing.T) {
	root := tree(t, "a/1.")

	_, err := NewReader(Options{Root: ""}, nil)
	assert.Error(t, err)
	_, err = NewReader(Options{Root: filepath.Join(root, "missing")}, nil)
	assert.Error(t, err)
	_, err = NewReader(Options{Root: filepath.Join(root, "a", "1.")}, nil)
	assert.Error(t, err, "file is not a directory")
	_, err = NewReader(Options{Root: root, Pattern: "["}, nil)
	assert.Error(t, err)
}

func TestReader_StreamCanceled(t *testing.T) {
	root := tree(t, "a/1.", "a/2.")
	r, err := NewReader(Options{Root: root, Pattern: "*."}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Stream(ctx, make(chan model.Envelope)), context.Canceled)
}
