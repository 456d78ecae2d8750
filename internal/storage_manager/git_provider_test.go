package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestGitProvider(t *testing.T) *GitFileProvider {
	t.Helper()
	provider, err := NewGitFileProvider(GitProviderOptions{
		Path:          filepath.Join(t.TempDir(), "data"),
		InitIfMissing: true,
	})
	require.NoError(t, err)
	return provider
}

func commitCount(t *testing.T, p *GitFileProvider) int {
	t.Helper()
	head, err := p.repo.Head()
	if err != nil {
		return 0
	}
	iter, err := p.repo.Log(&git.LogOptions{From: head.Hash()})
	require.NoError(t, err)
	n := 0
	require.NoError(t, iter.ForEach(func(*object.Commit) error { n++; return nil }))
	return n
}

func TestNewGitFileProvider(t *testing.T) {
	t.Run("fails with empty path", func(t *testing.T) {
		_, err := NewGitFileProvider(GitProviderOptions{})
		assert.Error(t, err)
	})

	t.Run("fails when repo missing and InitIfMissing false", func(t *testing.T) {
		_, err := NewGitFileProvider(GitProviderOptions{Path: filepath.Join(t.TempDir(), "none")})
		assert.Error(t, err)
	})

	t.Run("initialises repo", func(t *testing.T) {
		p := createTestGitProvider(t)
		_, err := os.Stat(filepath.Join(p.repoPath, ".git"))
		assert.NoError(t, err)
		assert.Equal(t, "librus-mcp", p.authorName)
	})

	t.Run("opens existing repo", func(t *testing.T) {
		dir := t.TempDir()
		_, err := git.PlainInit(dir, false)
		require.NoError(t, err)

		_, err = NewGitFileProvider(GitProviderOptions{Path: dir})
		assert.NoError(t, err)
	})
}

func TestGitFileProviderWriteCommits(t *testing.T) {
	p := createTestGitProvider(t)
	ctx := context.Background()

	require.NoError(t, p.Write(ctx, "children/jakub/state.json", []byte(`{"last_scrape_iso":null}`)))
	require.NoError(t, p.Write(ctx, "children/jakub/state.json", []byte(`{"last_scrape_iso":"2026-01-06T20:00:00Z"}`)))
	assert.Equal(t, 2, commitCount(t, p))

	// identical content produces no new commit
	require.NoError(t, p.Write(ctx, "children/jakub/state.json", []byte(`{"last_scrape_iso":"2026-01-06T20:00:00Z"}`)))
	assert.Equal(t, 2, commitCount(t, p))

	data, err := p.Read(ctx, "children/jakub/state.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "2026-01-06")

	history, err := p.History("children/jakub/state.json", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Update children/jakub/state.json", history[0])
}

func TestGitFileProviderReadMissing(t *testing.T) {
	p := createTestGitProvider(t)
	_, err := p.Read(context.Background(), "missing.json")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGitFileProviderDelete(t *testing.T) {
	p := createTestGitProvider(t)
	ctx := context.Background()

	require.NoError(t, p.Write(ctx, "tasks.json", []byte("[]")))
	require.NoError(t, p.Delete(ctx, "tasks.json"))
	exists, err := p.Exists(ctx, "tasks.json")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 2, commitCount(t, p))

	assert.NoError(t, p.Delete(ctx, "never-written.json"))
}

func TestGitFileProviderListSkipsGitDir(t *testing.T) {
	p := createTestGitProvider(t)
	ctx := context.Background()
	require.NoError(t, p.Write(ctx, "archive/2026-01.json", []byte("{}")))
	require.NoError(t, p.Write(ctx, "archive/2025-12.json", []byte("{}")))
	require.NoError(t, p.Write(ctx, "latest.md", []byte("# report")))

	all, err := p.List(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"archive/2026-01.json", "archive/2025-12.json", "latest.md"}, all)

	archive, err := p.List(ctx, "archive")
	require.NoError(t, err)
	assert.Len(t, archive, 2)
}

func TestGitFileProviderConcurrentWrites(t *testing.T) {
	p := createTestGitProvider(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, p.Write(ctx, filepath.Join("history", string(rune('a'+i))+".md"), []byte("x")))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, commitCount(t, p))
}
