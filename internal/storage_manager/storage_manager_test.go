package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"local", Config{Backend: BackendLocal, LocalConfig: &LocalConfig{BaseDir: t.TempDir()}}, false},
		{"local without dir", Config{Backend: BackendLocal, LocalConfig: &LocalConfig{}}, true},
		{"s3", Config{Backend: BackendS3, S3Config: &S3Config{Bucket: "b", Client: newFakeS3()}}, false},
		{"s3 without client", Config{Backend: BackendS3, S3Config: &S3Config{Bucket: "b"}}, true},
		{"s3 without bucket", Config{Backend: BackendS3, S3Config: &S3Config{Client: newFakeS3()}}, true},
		{"git", Config{Backend: BackendGit, GitConfig: &GitProviderOptions{Path: filepath.Join(t.TempDir(), "repo"), InitIfMissing: true}}, false},
		{"git without config", Config{Backend: BackendGit}, true},
		{"unknown", Config{Backend: "ftp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.Backend, m.Backend())
		})
	}
}

func TestGetProviderNamespaces(t *testing.T) {
	ctx := context.Background()
	m, err := New(Config{Backend: BackendLocal, LocalConfig: &LocalConfig{BaseDir: t.TempDir()}})
	require.NoError(t, err)

	require.NoError(t, m.GetProvider("children/jakub").Write(ctx, "latest.md", []byte("# Jakub")))

	data, err := m.GetRootProvider().Read(ctx, "children/jakub/latest.md")
	require.NoError(t, err)
	assert.Equal(t, "# Jakub", string(data))

	exists, err := m.GetProvider("children/anna").Exists(ctx, "latest.md")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Same(t, m.GetRootProvider(), m.GetProvider(""))
}
