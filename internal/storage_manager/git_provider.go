package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitFileProvider keeps every file in a git working tree and commits each write
// and delete, giving the data directory a browsable history of collection runs.
type GitFileProvider struct {
	local       *LocalFileProvider
	repoPath    string
	repo        *git.Repository
	authorName  string
	authorEmail string
	now         func() time.Time
	mu          sync.Mutex
}

// GitProviderOptions holds options for creating a GitFileProvider.
type GitProviderOptions struct {
	Path          string
	AuthorName    string
	AuthorEmail   string
	InitIfMissing bool
}

// NewGitFileProvider opens (or initialises) the repository at opts.Path.
func NewGitFileProvider(opts GitProviderOptions) (*GitFileProvider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("repository path is required")
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "librus-mcp"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "librus-mcp@localhost"
	}

	repo, err := git.PlainOpen(opts.Path)
	if err != nil {
		if !errors.Is(err, git.ErrRepositoryNotExists) || !opts.InitIfMissing {
			return nil, fmt.Errorf("failed to open git repository: %w", err)
		}
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create repository directory: %w", err)
		}
		repo, err = git.PlainInit(opts.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repository: %w", err)
		}
	}

	return &GitFileProvider{
		local:       NewLocalFileProvider(opts.Path),
		repoPath:    opts.Path,
		repo:        repo,
		authorName:  opts.AuthorName,
		authorEmail: opts.AuthorEmail,
		now:         time.Now,
	}, nil
}

// Read reads a file from the git working tree.
func (p *GitFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.local.Read(ctx, path)
}

// Write writes the file and commits it. Rewriting identical content creates no commit.
func (p *GitFileProvider) Write(ctx context.Context, path string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.local.Write(ctx, path, data); err != nil {
		return err
	}

	worktree, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := worktree.Add(filepath.ToSlash(path)); err != nil {
		return fmt.Errorf("failed to stage %s: %w", path, err)
	}
	return p.commit(worktree, "Update "+path)
}

// Exists checks if a file exists in the working tree.
func (p *GitFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	return p.local.Exists(ctx, path)
}

// Delete removes a file and commits the deletion.
func (p *GitFileProvider) Delete(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	exists, err := p.local.Exists(ctx, path)
	if err != nil || !exists {
		return err
	}

	worktree, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := worktree.Remove(filepath.ToSlash(path)); err != nil {
		// untracked file: drop it from disk, nothing to record
		return p.local.Delete(ctx, path)
	}
	return p.commit(worktree, "Delete "+path)
}

// List returns files under prefix, excluding the .git directory.
func (p *GitFileProvider) List(_ context.Context, prefix string) ([]string, error) {
	return walkFiles(p.repoPath, p.local.fullPath(prefix), func(name string) bool { return name == ".git" })
}

// History returns up to limit commit messages touching path, newest first.
func (p *GitFileProvider) History(path string, limit int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slashPath := filepath.ToSlash(path)
	iter, err := p.repo.Log(&git.LogOptions{FileName: &slashPath})
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", path, err)
	}
	defer iter.Close()

	var messages []string
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(messages) >= limit {
			return errStopIteration
		}
		messages = append(messages, c.Message)
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return messages, nil
}

var errStopIteration = errors.New("stop")

func (p *GitFileProvider) commit(worktree *git.Worktree, message string) error {
	_, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.authorName,
			Email: p.authorEmail,
			When:  p.now(),
		},
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil
		}
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
