package auth

import "crypto/subtle"

// Credentials holds the configured admin login pair.
type Credentials struct {
	Username string
	Password string
}

// Match compares the supplied login pair against the configured one in
// constant time so a mismatch reveals nothing about how far it matched.
func (c Credentials) Match(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(c.Username), []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
	return userOK && passOK
}
