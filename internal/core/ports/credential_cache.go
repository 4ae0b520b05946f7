package ports

import "context"

// CredentialCache remembers recently verified credentials so hot clients do
// not pay the bcrypt cost on every request. It is a pure optimization: a miss
// or an unavailable cache falls back to full verification, and entries expire
// on their own.
type CredentialCache interface {
	// Get returns the user id recorded for this username/secret digest, or
	// ok=false on a miss.
	Get(ctx context.Context, username, secretDigest string) (userID int64, ok bool)

	// Put records a successful verification.
	Put(ctx context.Context, username, secretDigest string, userID int64)

	// Invalidate drops every entry for the username.
	Invalidate(ctx context.Context, username string)
}
