package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/attachment"
	"github.com/inkpress/gatekeeper/pkg/infra/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentFilesystemFinder_Find(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "42"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "42", "report.pdf"), []byte("%PDF-1.4"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o750))

	finder := repository.NewAttachmentFilesystemFinder(root)

	a, err := finder.Find(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", a.FileName)
	assert.Equal(t, filepath.Join(root, "42", "report.pdf"), a.Path)
	assert.Equal(t, "application/pdf", a.ContentType)
	assert.Equal(t, int64(8), a.Size)

	_, err = finder.Find(context.Background(), "43")
	assert.True(t, domain.IsNotFoundError(err))

	_, err = finder.Find(context.Background(), "empty")
	assert.True(t, domain.IsNotFoundError(err))

	_, err = finder.Find(context.Background(), "../etc")
	assert.ErrorIs(t, err, attachment.ErrInvalidID)
}
