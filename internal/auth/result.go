package auth

import "time"

// LoginResult is one of LoginSuccess, LoginInvalidCredentials or
// LoginAccountLocked.
type LoginResult interface {
	loginResult()
	Err() error
}

type LoginSuccess struct {
	Tokens                    TokenPair
	User                      *User
	RequiresEmailVerification bool
}

// LoginInvalidCredentials is returned for an unknown email and for a wrong
// password alike.
type LoginInvalidCredentials struct{}

type LoginAccountLocked struct {
	Until time.Time
}

func (LoginSuccess) loginResult()            {}
func (LoginInvalidCredentials) loginResult() {}
func (LoginAccountLocked) loginResult()      {}

func (LoginSuccess) Err() error            { return nil }
func (LoginInvalidCredentials) Err() error { return ErrInvalidCredentials }
func (LoginAccountLocked) Err() error      { return ErrAccountLocked }
