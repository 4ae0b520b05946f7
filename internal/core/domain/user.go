package domain

// User models an authenticated actor. PasswordHash is kept server-side only:
// the json tag and the Public helper both strip it before a user ever crosses
// the wire.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// Public returns a copy safe to serialize back to a client.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}
