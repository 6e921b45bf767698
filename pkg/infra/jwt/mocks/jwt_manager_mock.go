package mocks

import (
	"time"

	"github.com/inkpress/gatekeeper/pkg/infra/jwt"
	"github.com/stretchr/testify/mock"
)

type Manager struct {
	mock.Mock
}

func (m *Manager) CreateToken(subject, role string, expiresAt time.Time) (string, error) {
	args := m.Called(subject, role, expiresAt)
	return args.String(0), args.Error(1)
}

func (m *Manager) ValidateToken(tokenString string) error {
	args := m.Called(tokenString)
	return args.Error(0)
}

func (m *Manager) DecodeToken(tokenString string) (*jwt.Claims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	claims, _ := args.Get(0).(*jwt.Claims) //nolint:errcheck
	return claims, args.Error(1)
}
