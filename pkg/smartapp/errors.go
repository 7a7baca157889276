package smartapp

import (
	"errors"
	"fmt"
)

var (
	// ErrRefreshTokenNotFound means no refresh token is stored yet; the caller
	// must login instead of refreshing.
	ErrRefreshTokenNotFound = errors.New("no refresh token stored, login required")

	// ErrTokenExpired means the capability token was rejected; a refresh mints
	// a new one.
	ErrTokenExpired = errors.New("capability token expired")

	// ErrInvalidRefreshToken means the refresh token itself was rejected; only
	// a full login recovers.
	ErrInvalidRefreshToken = errors.New("refresh token rejected")

	// ErrLoginFailed covers any login response that is not recognizable as a
	// success.
	ErrLoginFailed = errors.New("login failed")

	// ErrDeviceOffline means the appliance's cloud connector did not respond.
	ErrDeviceOffline = errors.New("device offline")

	// ErrRateLimited means the vendor throttled the account. Never retried
	// inline; the poller degrades to the overview endpoint instead.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCatalogMissing means the command catalog has not been loaded yet; a
	// successful device-list fetch populates it.
	ErrCatalogMissing = errors.New("command catalog not loaded")
)

// DecodeError reports a raw status value with no matching catalog parameter.
// Callers log it and surface the field as unavailable.
type DecodeError struct {
	ModelType   string
	CommandType string
	Raw         string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("no catalog parameter for model %q command %s value %q", e.ModelType, e.CommandType, e.Raw)
}

// UnsupportedOptionError reports an attempt to encode a label the catalog does
// not list for the command.
type UnsupportedOptionError struct {
	ModelType   string
	CommandType string
	Label       string
}

func (e *UnsupportedOptionError) Error() string {
	return fmt.Sprintf("option %q not supported for model %q command %s", e.Label, e.ModelType, e.CommandType)
}
