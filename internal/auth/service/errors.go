package service

import (
	"errors"
)

// Kind classifies failures at the service boundary. Callers map kinds onto
// transport responses; they should not inspect messages.
type Kind string

const (
	KindCredential     Kind = "credential"     // first factor rejected
	KindChallenge      Kind = "challenge"      // OTP missing, expired, wrong, exhausted or already used
	KindToken          Kind = "token"          // token failed validation
	KindInfrastructure Kind = "infrastructure" // storage, notifier or signer unavailable
)

var (
	ErrIdentityInvalid = errors.New("identity invalid")
	ErrOTPNotFound     = errors.New("invalid or expired OTP")
	ErrOTPMismatch     = errors.New("invalid OTP")
	ErrOTPConsumed     = errors.New("OTP already used")
	ErrOTPExhausted    = errors.New("OTP attempts exhausted")
	ErrRefreshInvalid  = errors.New("invalid refresh token")
	ErrAccessInvalid   = errors.New("invalid access token")
)

// Error carries a Kind and the underlying cause. errors.Is and errors.As see
// through it to the wrapped sentinel.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func credentialError(err error) error {
	return &Error{Kind: KindCredential, Err: err}
}

func challengeError(err error) error {
	return &Error{Kind: KindChallenge, Err: err}
}

func tokenError(sentinel, cause error) error {
	return &Error{Kind: KindToken, Msg: sentinel.Error(), Err: errors.Join(sentinel, cause)}
}

func infraError(msg string, err error) error {
	return &Error{Kind: KindInfrastructure, Msg: msg, Err: err}
}
