package auth

import "errors"

var (
	ErrBadCredentials  = errors.New("auth: bad credentials")
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrUpstream        = errors.New("auth: upstream failure")
)
