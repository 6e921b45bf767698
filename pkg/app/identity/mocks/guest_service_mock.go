package mocks

import (
	"context"

	appIdentity "github.com/inkpress/gatekeeper/pkg/app/identity"
	"github.com/stretchr/testify/mock"
)

type GuestService struct {
	mock.Mock
}

func (m *GuestService) Issue(ctx context.Context) (*appIdentity.Guest, error) {
	args := m.Called(ctx)
	return guestArg(args, 0), args.Error(1)
}

func (m *GuestService) Lookup(ctx context.Context, username string) (*appIdentity.Guest, error) {
	args := m.Called(ctx, username)
	return guestArg(args, 0), args.Error(1)
}

func (m *GuestService) Authenticate(ctx context.Context, username, password string) (*appIdentity.Guest, error) {
	args := m.Called(ctx, username, password)
	return guestArg(args, 0), args.Error(1)
}

func guestArg(args mock.Arguments, i int) *appIdentity.Guest {
	if args.Get(i) == nil {
		return nil
	}
	g, _ := args.Get(i).(*appIdentity.Guest) //nolint:errcheck
	return g
}
