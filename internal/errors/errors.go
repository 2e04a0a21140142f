package errors

import (
	"fmt"
)

// ConfigError represents an error related to configuration
type ConfigError struct {
	Section string
	Message string
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Message)
}

// InvalidPlanError represents an unknown plan code supplied by a caller
type InvalidPlanError struct {
	PlanCode string
}

// Error returns the error message
func (e *InvalidPlanError) Error() string {
	return fmt.Sprintf("invalid plan code: %q", e.PlanCode)
}

// NoInboundsError represents a call for which none of the configured
// target inbounds could be resolved on the panel
type NoInboundsError struct {
	InboundIDs []int
}

// Error returns the error message
func (e *NoInboundsError) Error() string {
	return fmt.Sprintf("none of the configured inbounds could be resolved: %v", e.InboundIDs)
}

// AuthError represents a credential rejection by the panel
type AuthError struct {
	Message string
}

// Error returns the error message
func (e *AuthError) Error() string {
	return fmt.Sprintf("panel authentication failed: %s", e.Message)
}

// UpstreamError represents a non-success response or network failure
// from the panel
type UpstreamError struct {
	Operation string
	Status    int
	Message   string
	Err       error
}

// Error returns the error message
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("panel error during %s: %v", e.Operation, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("panel error during %s (status %d): %s", e.Operation, e.Status, e.Message)
	}
	return fmt.Sprintf("panel error during %s: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error, if any
func (e *UpstreamError) Unwrap() error {
	return e.Err
}
