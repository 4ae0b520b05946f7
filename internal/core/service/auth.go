package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/crewdb/crewd/internal/core/domain"
	"github.com/crewdb/crewd/internal/core/ports"
	"github.com/crewdb/crewd/internal/ops/metrics"
)

// Authenticator verifies request credentials and manages registration. Every
// request re-authenticates: there is no server-side session state beyond the
// optional credential cache, which only short-circuits the bcrypt comparison.
//
// Login additionally issues a signed token; a client may present that token in
// the password field of later requests instead of the plaintext password.
type Authenticator struct {
	users     ports.UserRepository
	cache     ports.CredentialCache // optional, may be nil
	jwtSecret []byte
	tokenTTL  time.Duration
	log       zerolog.Logger
}

// NewAuthenticator wires an Authenticator. cache may be nil to disable the
// credential cache.
func NewAuthenticator(users ports.UserRepository, cache ports.CredentialCache, jwtSecret string, tokenTTL time.Duration, log zerolog.Logger) *Authenticator {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Authenticator{
		users:     users,
		cache:     cache,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		log:       log.With().Str("component", "authenticator").Logger(),
	}
}

// Register creates a new user. Empty usernames and passwords are rejected, as
// are duplicates (domain.ErrUserExists).
func (a *Authenticator) Register(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := a.users.Create(ctx, username, string(hash))
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("username", username).Int64("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Login verifies the password and issues a session token. The failure is
// always domain.ErrInvalidCredentials, never revealing whether the username
// exists.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	user, err := a.Authenticate(ctx, username, password)
	if err != nil {
		return nil, "", err
	}

	token, err := a.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	a.log.Info().Str("username", username).Msg("user logged in")
	return user, token, nil
}

// Authenticate resolves a principal from the credentials attached to a
// request. The secret may be either the plaintext password or a token issued
// by Login. Any failure collapses into domain.ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, username, secret string) (*domain.User, error) {
	if username == "" || secret == "" {
		return nil, domain.ErrInvalidCredentials
	}

	// Session tokens are compact JWS: three dot-separated base64 segments.
	if strings.Count(secret, ".") == 2 {
		if user, err := a.authenticateToken(ctx, username, secret); err == nil {
			return user, nil
		}
		// A malformed or expired token falls through to password auth; a
		// password containing two dots is legal.
	}

	user, err := a.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			a.log.Warn().Err(err).Str("username", username).Msg("user lookup failed")
		}
		return nil, domain.ErrInvalidCredentials
	}

	digest := secretDigest(secret)
	if a.cache != nil {
		if cachedID, ok := a.cache.Get(ctx, username, digest); ok && cachedID == user.ID {
			metrics.AuthCacheTotal.WithLabelValues("hit").Inc()
			return user, nil
		}
		metrics.AuthCacheTotal.WithLabelValues("miss").Inc()
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)) != nil {
		a.log.Warn().Str("username", username).Msg("password verification failed")
		return nil, domain.ErrInvalidCredentials
	}
	if a.cache != nil {
		a.cache.Put(ctx, username, digest, user.ID)
	}
	return user, nil
}

func (a *Authenticator) authenticateToken(ctx context.Context, username, token string) (*domain.User, error) {
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return a.jwtSecret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, domain.ErrInvalidCredentials
	}
	sub, _ := claims["sub"].(string)
	if sub == "" || sub != username {
		return nil, domain.ErrInvalidCredentials
	}

	// Confirm the user still exists; tokens outlive deletions otherwise.
	user, err := a.users.FindByUsername(ctx, sub)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

func (a *Authenticator) issueToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user.Username,
		"uid": user.ID,
		"iat": now.Unix(),
		"exp": now.Add(a.tokenTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.jwtSecret)
}

// secretDigest keys the credential cache without storing the secret itself.
func secretDigest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
