package attachment

import (
	"context"
	"errors"
)

const EntityType = "attachment"

var ErrInvalidID = errors.New("invalid attachment id")

type Attachment struct {
	ID          string
	FileName    string
	Path        string
	ContentType string
	Size        int64
}

//go:generate mockery --name=Finder --dir=. --output=./mocks --filename=finder_mock.go --case=underscore --with-expecter
type Finder interface {
	Find(ctx context.Context, id string) (*Attachment, error)
}
