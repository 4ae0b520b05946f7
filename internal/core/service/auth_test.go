package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewdb/crewd/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	nextID int64
	users  map[string]*domain.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func (r *stubUserRepo) Create(_ context.Context, username, passwordHash string) (*domain.User, error) {
	if _, ok := r.users[username]; ok {
		return nil, domain.ErrUserExists
	}
	r.nextID++
	u := &domain.User{ID: r.nextID, Username: username, PasswordHash: passwordHash}
	r.users[username] = u
	clone := *u
	return &clone, nil
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

type stubCredentialCache struct {
	entries map[string]int64
	hits    int
	puts    int
}

func newStubCredentialCache() *stubCredentialCache {
	return &stubCredentialCache{entries: make(map[string]int64)}
}

func (c *stubCredentialCache) Get(_ context.Context, username, digest string) (int64, bool) {
	id, ok := c.entries[username+":"+digest]
	if ok {
		c.hits++
	}
	return id, ok
}

func (c *stubCredentialCache) Put(_ context.Context, username, digest string, userID int64) {
	c.puts++
	c.entries[username+":"+digest] = userID
}

func (c *stubCredentialCache) Invalidate(_ context.Context, username string) {
	for k := range c.entries {
		if len(k) > len(username) && k[:len(username)+1] == username+":" {
			delete(c.entries, k)
		}
	}
}

func newTestAuthenticator(users *stubUserRepo) *Authenticator {
	return NewAuthenticator(users, nil, "test-secret", time.Hour, discardLogger)
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestAuthenticator_Register(t *testing.T) {
	users := newStubUserRepo()
	auth := newTestAuthenticator(users)

	user, err := auth.Register(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == 0 {
		t.Error("registered user must carry an id")
	}

	stored := users.users["alice"]
	if stored.PasswordHash == "s3cret" {
		t.Error("the password must never be stored in the clear")
	}
}

func TestAuthenticator_Register_Duplicate(t *testing.T) {
	auth := newTestAuthenticator(newStubUserRepo())

	if _, err := auth.Register(context.Background(), "alice", "one"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := auth.Register(context.Background(), "alice", "two")
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthenticator_Register_EmptyCredentials(t *testing.T) {
	auth := newTestAuthenticator(newStubUserRepo())

	if _, err := auth.Register(context.Background(), "", "pw"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("empty username: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Register(context.Background(), "bob", ""); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("empty password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Register(context.Background(), "   ", "pw"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("blank username: expected ErrInvalidCredentials, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Login and per-request authentication
// ---------------------------------------------------------------------------

func TestAuthenticator_LoginAndTokenRoundTrip(t *testing.T) {
	auth := newTestAuthenticator(newStubUserRepo())
	if _, err := auth.Register(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}

	user, token, err := auth.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatal("login must issue a token")
	}
	if user.PasswordHash == "" {
		t.Error("login must return the stored user, hash included, for internal use")
	}

	// The token works in place of the password on later requests.
	got, err := auth.Authenticate(context.Background(), "alice", token)
	if err != nil {
		t.Fatalf("token authentication: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("authenticated as %q", got.Username)
	}
}

func TestAuthenticator_TokenBoundToUsername(t *testing.T) {
	auth := newTestAuthenticator(newStubUserRepo())
	auth.Register(context.Background(), "alice", "pw")
	auth.Register(context.Background(), "mallory", "pw")

	_, token, err := auth.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := auth.Authenticate(context.Background(), "mallory", token); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Error("someone else's token must not authenticate")
	}
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	users := newStubUserRepo()
	auth := NewAuthenticator(users, nil, "test-secret", time.Nanosecond, discardLogger)
	auth.Register(context.Background(), "alice", "pw")

	_, token, err := auth.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := auth.Authenticate(context.Background(), "alice", token); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Error("an expired token must not authenticate")
	}
}

func TestAuthenticator_UniformFailure(t *testing.T) {
	auth := newTestAuthenticator(newStubUserRepo())
	auth.Register(context.Background(), "alice", "pw")

	_, errUnknownUser := auth.Authenticate(context.Background(), "nobody", "pw")
	_, errWrongPassword := auth.Authenticate(context.Background(), "alice", "wrong")

	if !errors.Is(errUnknownUser, domain.ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v", errUnknownUser)
	}
	if !errors.Is(errWrongPassword, domain.ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", errWrongPassword)
	}
	if errUnknownUser.Error() != errWrongPassword.Error() {
		t.Error("failures must not reveal whether the username exists")
	}
}

func TestAuthenticator_PasswordWithDotsStillWorks(t *testing.T) {
	auth := newTestAuthenticator(newStubUserRepo())
	auth.Register(context.Background(), "alice", "a.weird.password")

	// Two dots make it look like a token; it must fall through to password auth.
	if _, err := auth.Authenticate(context.Background(), "alice", "a.weird.password"); err != nil {
		t.Fatalf("dotted password rejected: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Credential cache
// ---------------------------------------------------------------------------

func TestAuthenticator_CachePopulatedOnFirstVerify(t *testing.T) {
	cache := newStubCredentialCache()
	auth := NewAuthenticator(newStubUserRepo(), cache, "test-secret", time.Hour, discardLogger)
	auth.Register(context.Background(), "alice", "pw")

	if _, err := auth.Authenticate(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("first authenticate: %v", err)
	}
	if cache.puts != 1 {
		t.Fatalf("expected 1 cache put, got %d", cache.puts)
	}

	if _, err := auth.Authenticate(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("second authenticate: %v", err)
	}
	if cache.hits != 1 {
		t.Errorf("expected a cache hit on the second verify, got %d", cache.hits)
	}
}

func TestAuthenticator_CacheNeverShortCircuitsWrongPassword(t *testing.T) {
	cache := newStubCredentialCache()
	auth := NewAuthenticator(newStubUserRepo(), cache, "test-secret", time.Hour, discardLogger)
	auth.Register(context.Background(), "alice", "pw")
	auth.Authenticate(context.Background(), "alice", "pw")

	if _, err := auth.Authenticate(context.Background(), "alice", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Error("a cached entry for one secret must not validate another")
	}
}
