// Package auth provides the challenge-response primitives used by sessions.
//
// It intentionally avoids policy decisions and storage concerns.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrInvalidHash  = errors.New("auth: invalid password hash")
)

// scrypt parameters for stored password keys.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken is a simple validator for a single shared token.
// The gateway uses it to guard side routes such as /metrics.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// HashPassword derives the stored key for a user. The username is the salt,
// so equal passwords of different users never share a hash.
func HashPassword(username, password string) (string, error) {
	key, err := scrypt.Key([]byte(password), []byte(username), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("auth: derive key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Response computes the expected answer to token for a stored hash:
// hex(HMAC-SHA256(key=hash bytes, msg=token)).
func Response(passwordHash, token string) (string, error) {
	key, err := hex.DecodeString(passwordHash)
	if err != nil || len(key) == 0 {
		return "", ErrInvalidHash
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// ChallengeResponse validates responses for a single challenge token.
type ChallengeResponse struct {
	PasswordHash string
	Token        string
}

// Validate implements Validator; the argument is the client's response.
func (c ChallengeResponse) Validate(response string) error {
	want, err := Response(c.PasswordHash, c.Token)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(response)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
