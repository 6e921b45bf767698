package mocks

import (
	"context"
	"fmt"

	"github.com/inkpress/gatekeeper/pkg/domain/attachment"
	"github.com/stretchr/testify/mock"
)

type Finder struct {
	mock.Mock
}

func (m *Finder) Find(ctx context.Context, id string) (*attachment.Attachment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	a, ok := args.Get(0).(*attachment.Attachment)
	if !ok {
		return nil, fmt.Errorf("expected *attachment.Attachment, got %T", args.Get(0))
	}
	return a, args.Error(1)
}
