package domain

import (
	"errors"
	"fmt"
)

// Provisioning stages used to qualify user-facing failure messages.
const (
	StagePanel            = "server panel"
	StageAddConnection    = "adding connection"
	StageDeleteConnection = "deleting connection"
	StageListConnections  = "fetching connections"
	StageDelivery         = "sending the connection link"
	StageSubscription     = "fetching subscription"
	StageCreateUser       = "creating subscription"
	StageDeleteUser       = "deleting subscription"
)

var ErrNoSessionCookie = errors.New("response carried no session cookie")

// AuthError reports a failed panel login.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("panel login failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("panel login failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError reports any non-login panel call failure.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports user input or callback data that cannot be accepted.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
}

// NotFoundError reports a referenced entity that does not exist on the backend.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return e.What + " not found"
}

// ProvisioningError carries the stage a provisioning step failed in.
type ProvisioningError struct {
	Stage string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed while %s: %v", e.Stage, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// StageOf extracts the failure stage, falling back to the given default.
func StageOf(err error, fallback string) string {
	var pe *ProvisioningError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return fallback
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
