package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"regexp"

	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/attachment"
)

var attachmentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// attachmentFilesystemFinder resolves <root>/<id>/<file name>; each
// attachment directory holds a single regular file.
type attachmentFilesystemFinder struct {
	root string
}

func NewAttachmentFilesystemFinder(root string) attachment.Finder {
	return &attachmentFilesystemFinder{root: filepath.Clean(root)}
}

func (f *attachmentFilesystemFinder) Find(ctx context.Context, id string) (*attachment.Attachment, error) {
	if !attachmentIDPattern.MatchString(id) {
		return nil, attachment.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(f.root, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewNotFoundError(attachment.EntityType, id)
		}
		return nil, fmt.Errorf("read attachment dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat attachment: %w", err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(entry.Name()))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return &attachment.Attachment{
			ID:          id,
			FileName:    entry.Name(),
			Path:        filepath.Join(dir, entry.Name()),
			ContentType: contentType,
			Size:        info.Size(),
		}, nil
	}
	return nil, domain.NewNotFoundError(attachment.EntityType, id)
}
