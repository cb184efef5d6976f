package auth

import "golang.org/x/crypto/bcrypt"

// HashToken generates a bcrypt hash of an API token for auth.token_hash.
func HashToken(token string) (string, error) {
	return HashTokenCost(token, bcrypt.DefaultCost)
}

// HashTokenCost is HashToken with an explicit bcrypt cost. Tests use
// bcrypt.MinCost to keep requests fast.
func HashTokenCost(token string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	return string(bytes), err
}

// CheckToken compares a presented bearer token with a stored bcrypt hash.
func CheckToken(token, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	return err == nil
}
