package mocks

import (
	"context"

	appIdentity "github.com/inkpress/gatekeeper/pkg/app/identity"
	"github.com/stretchr/testify/mock"
)

type CodeSender struct {
	mock.Mock
}

func (m *CodeSender) Send(ctx context.Context, code *appIdentity.VerificationCode) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}
