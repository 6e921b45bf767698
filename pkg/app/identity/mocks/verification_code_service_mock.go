package mocks

import (
	"context"

	appIdentity "github.com/inkpress/gatekeeper/pkg/app/identity"
	"github.com/stretchr/testify/mock"
)

type VerificationCodeService struct {
	mock.Mock
}

func (m *VerificationCodeService) Generate(ctx context.Context, recipient string) (*appIdentity.VerificationCode, error) {
	args := m.Called(ctx, recipient)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	code, _ := args.Get(0).(*appIdentity.VerificationCode) //nolint:errcheck
	return code, args.Error(1)
}

func (m *VerificationCodeService) Validate(ctx context.Context, recipient, code string) error {
	args := m.Called(ctx, recipient, code)
	return args.Error(0)
}

func (m *VerificationCodeService) Revoke(ctx context.Context, recipient string) error {
	args := m.Called(ctx, recipient)
	return args.Error(0)
}
