package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyID = "test-key"

func buildJWKSetJSON(t *testing.T, pub *rsa.PublicKey) json.RawMessage {
	t.Helper()
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": testKeyID,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, err := json.Marshal(jwks)
	require.NoError(t, err)
	return data
}

func newTestVerifier(t *testing.T, cfg Config) (*JWKSVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(t, &key.PublicKey))
	require.NoError(t, err)

	return NewJWKSVerifier(kf, cfg), key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWKSVerifier_ValidToken(t *testing.T) {
	v, key := newTestVerifier(t, Config{})

	raw := signToken(t, key, jwt.MapClaims{
		"sub":   "user-42",
		"email": "user@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	})

	id := v.Verify(context.Background(), raw)
	assert.Equal(t, "user-42", id.UserID)
	assert.Equal(t, "user@example.com", id.Email)
	assert.False(t, id.IsAnonymous())
}

func TestJWKSVerifier_ExpiredTokenIsAnonymous(t *testing.T) {
	v, key := newTestVerifier(t, Config{})

	raw := signToken(t, key, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	assert.True(t, v.Verify(context.Background(), raw).IsAnonymous())
}

func TestJWKSVerifier_GarbageTokenIsAnonymous(t *testing.T) {
	v, _ := newTestVerifier(t, Config{})

	assert.True(t, v.Verify(context.Background(), "not-a-jwt").IsAnonymous())
	assert.True(t, v.Verify(context.Background(), "").IsAnonymous())
}

func TestJWKSVerifier_MissingSubjectIsAnonymous(t *testing.T) {
	v, key := newTestVerifier(t, Config{})

	raw := signToken(t, key, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	assert.True(t, v.Verify(context.Background(), raw).IsAnonymous())
}

func TestJWKSVerifier_WrongIssuerIsAnonymous(t *testing.T) {
	v, key := newTestVerifier(t, Config{Issuer: "https://issuer.example.com"})

	raw := signToken(t, key, jwt.MapClaims{
		"sub": "user-42",
		"iss": "https://evil.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	assert.True(t, v.Verify(context.Background(), raw).IsAnonymous())
}

func TestJWKSVerifier_WrongKeyIsAnonymous(t *testing.T) {
	v, _ := newTestVerifier(t, Config{})

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	raw := signToken(t, otherKey, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	assert.True(t, v.Verify(context.Background(), raw).IsAnonymous())
}

func TestAnonymousVerifier(t *testing.T) {
	v := AnonymousVerifier{}
	assert.True(t, v.Verify(context.Background(), "anything").IsAnonymous())
}

func TestNewVerifier_Unconfigured(t *testing.T) {
	v, err := NewVerifier(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, AnonymousVerifier{}, v)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer", ""},
		{"", ""},
		{"Bearer  spaced ", "spaced"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BearerToken(tt.header), "header %q", tt.header)
	}
}
