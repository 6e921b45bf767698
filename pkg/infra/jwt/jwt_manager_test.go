package jwt_test

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/inkpress/gatekeeper/pkg/config"
	"github.com/inkpress/gatekeeper/pkg/infra/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m := jwt.NewJwtManager(&config.ServerConfig{SecretKey: "secret"})

	token, err := m.CreateToken("guest_1", jwt.RoleVisitor, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, m.ValidateToken(token))

	claims, err := m.DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, "guest_1", claims.Subject)
	assert.Equal(t, jwt.RoleVisitor, claims.Role)
}

func TestManager_Expired(t *testing.T) {
	m := jwt.NewJwtManager(&config.ServerConfig{SecretKey: "secret"})

	token, err := m.CreateToken("guest_1", jwt.RoleVisitor, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.ErrorIs(t, m.ValidateToken(token), jwt.ErrExpiredToken)
}

func TestManager_RejectsForeignSignature(t *testing.T) {
	issuer := jwt.NewJwtManager(&config.ServerConfig{SecretKey: "other"})
	m := jwt.NewJwtManager(&config.ServerConfig{SecretKey: "secret"})

	token, err := issuer.CreateToken("admin", jwt.RoleAdmin, time.Time{})
	require.NoError(t, err)
	assert.ErrorIs(t, m.ValidateToken(token), jwt.ErrInvalidToken)
	assert.ErrorIs(t, m.ValidateToken("not-a-token"), jwt.ErrInvalidToken)
}

func TestManager_RejectsNoneAlgorithm(t *testing.T) {
	m := jwt.NewJwtManager(&config.ServerConfig{SecretKey: "secret"})

	token := gojwt.NewWithClaims(gojwt.SigningMethodNone, &jwt.Claims{Role: jwt.RoleAdmin})
	unsigned, err := token.SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.ErrorIs(t, m.ValidateToken(unsigned), jwt.ErrInvalidToken)
}
