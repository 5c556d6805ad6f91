package guard

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("access token rejected")
	ErrInvalidSession     = errors.New("refresh token rejected")
	ErrNoRefreshToken     = errors.New("no refresh token stored")
	ErrMalformedResponse  = errors.New("malformed auth response")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account temporarily locked")
)

// NetworkError wraps a failed round trip to the auth API.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
