package auth

import "fmt"

// RefreshError indicates the refresh-token exchange against the
// authorization endpoint failed. The previously held access token, if any,
// is left untouched.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// ConfigurationError indicates the Dropbox credential set was not provided.
// Startup continues without credentials, but every storage operation fails
// with this error until they are configured.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}
