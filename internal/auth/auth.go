// Package auth resolves optional bearer tokens to user identities.
//
// Identity is advisory: it attributes scan history to a user but never
// gates the scan itself. A missing, malformed, or expired token yields
// the anonymous identity rather than an error.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Identity is the resolved caller of a scan request.
type Identity struct {
	UserID string
	Email  string
}

// Anonymous is the identity used when no token is presented or
// verification is disabled.
var Anonymous = Identity{}

// IsAnonymous reports whether the identity carries no user.
func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

// Verifier resolves a raw bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) Identity
}

// Config holds JWKS verification settings. An empty JWKSURL disables
// verification entirely.
type Config struct {
	JWKSURL         string
	Issuer          string
	Audience        string
	RefreshInterval time.Duration
	Leeway          time.Duration
}

// NewVerifier builds a Verifier from config. With no JWKS URL it
// returns the anonymous verifier.
func NewVerifier(ctx context.Context, cfg Config) (Verifier, error) {
	if cfg.JWKSURL == "" {
		zap.L().Info("auth: no JWKS URL configured, all scans are anonymous")
		return AnonymousVerifier{}, nil
	}

	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}

	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			zap.L().Warn("auth: JWKS refresh failed",
				zap.String("url", cfg.JWKSURL),
				zap.Error(err))
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "auth: create JWKS storage")
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage, Ctx: ctx})
	if err != nil {
		return nil, eris.Wrap(err, "auth: create keyfunc")
	}

	return NewJWKSVerifier(kf, cfg), nil
}

// AnonymousVerifier resolves every token to the anonymous identity.
type AnonymousVerifier struct{}

func (AnonymousVerifier) Verify(context.Context, string) Identity {
	return Anonymous
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWKSVerifier validates RS256 tokens against a remote key set.
type JWKSVerifier struct {
	keys   keyfunc.Keyfunc
	opts   []jwt.ParserOption
	logger *zap.Logger
}

// NewJWKSVerifier wraps an existing keyfunc. Tests use this to inject
// a static key set.
func NewJWKSVerifier(kf keyfunc.Keyfunc, cfg Config) *JWKSVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &JWKSVerifier{
		keys:   kf,
		opts:   opts,
		logger: zap.L().Named("auth"),
	}
}

// Verify parses and validates the token. Any failure degrades to the
// anonymous identity after a debug log; the scan proceeds regardless.
func (v *JWKSVerifier) Verify(ctx context.Context, raw string) Identity {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Anonymous
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keys.KeyfuncCtx(ctx), v.opts...)
	if err != nil || !token.Valid {
		v.logger.Debug("token rejected, treating scan as anonymous", zap.Error(err))
		return Anonymous
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		v.logger.Debug("token has no subject, treating scan as anonymous")
		return Anonymous
	}

	return Identity{UserID: sub, Email: claims.Email}
}

// BearerToken extracts the token from an Authorization header value.
// Returns "" when the header is absent or not a Bearer scheme.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
