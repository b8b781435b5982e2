/*
errors.go - Centralized error types for the moderation ledger

PURPOSE:
  All error types in one place. Every ledger, workflow and gate failure is
  returned to the immediate caller; none of them should bring the process
  down. Route handlers translate them with KindOf.

ERROR CATEGORIES:
  1. Validation errors   - malformed caller input, never retried
  2. Lookup errors       - record absent
  3. State errors        - terminal revocation, store not ready
  4. Permission errors   - approval gate rejections
  5. Persistence errors  - durable write failures

USAGE:
    if errors.Is(err, moderation.ErrAlreadyRevoked) {
        // operator double action, or the sweep got there first
    }

SEE ALSO:
  - ledger.go, revocation.go, approval.go, scheduler.go
*/
package moderation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an action id does not exist.
	ErrNotFound = errors.New("action not found")

	// ErrAlreadyRevoked is returned when revoking an action whose revocation
	// is already approved. Revocation is one-way.
	ErrAlreadyRevoked = errors.New("action already revoked")

	// ErrStoreNotReady is returned before Open completes or after Close.
	ErrStoreNotReady = errors.New("database not ready yet")

	// ErrPermission is wrapped by every PermissionError.
	ErrPermission = errors.New("permission denied")

	// ErrMissingApprover is returned when a long ban needs an approver and none was named.
	ErrMissingApprover = errors.New("an approver is required for bans longer than the approval threshold")

	// ErrApproverLacksPermission is returned when the named approver cannot approve bans.
	ErrApproverLacksPermission = errors.New("the selected approver does not have the required permissions")

	// ErrPersistence is wrapped by every PersistenceError.
	ErrPersistence = errors.New("persistence failed")

	// ErrStoreUnavailable is returned by Store implementations when the
	// underlying medium cannot be used at all (closed db, lost connection).
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which input failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// AlreadyRevokedError carries the existing revocation of the record.
type AlreadyRevokedError struct {
	ID        string
	RevokedAt int64
	Approver  string
}

func (e *AlreadyRevokedError) Error() string {
	return fmt.Sprintf("action %s already revoked by %s at %d", e.ID, e.Approver, e.RevokedAt)
}

func (e *AlreadyRevokedError) Unwrap() error {
	return ErrAlreadyRevoked
}

// PermissionKind distinguishes the approval gate rejections.
type PermissionKind string

const (
	MissingApprover         PermissionKind = "missing_approver"
	ApproverLacksPermission PermissionKind = "approver_lacks_permission"
)

// PermissionError is an approval gate rejection.
type PermissionError struct {
	Kind     PermissionKind
	Approver string
}

func (e *PermissionError) Error() string {
	switch e.Kind {
	case MissingApprover:
		return ErrMissingApprover.Error()
	case ApproverLacksPermission:
		return fmt.Sprintf("%s: %s", ErrApproverLacksPermission.Error(), e.Approver)
	}
	return ErrPermission.Error()
}

// Unwrap exposes both the generic permission sentinel and the sub-kind.
func (e *PermissionError) Unwrap() []error {
	switch e.Kind {
	case MissingApprover:
		return []error{ErrPermission, ErrMissingApprover}
	case ApproverLacksPermission:
		return []error{ErrPermission, ErrApproverLacksPermission}
	}
	return []error{ErrPermission}
}

// PersistenceError wraps a failed durable write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence.Error(), e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Kind is the stable, machine-readable error discriminator.
type Kind string

const (
	KindValidation              Kind = "validation"
	KindNotFound                Kind = "not_found"
	KindAlreadyRevoked          Kind = "already_revoked"
	KindStoreNotReady           Kind = "store_not_ready"
	KindMissingApprover         Kind = "missing_approver"
	KindApproverLacksPermission Kind = "approver_lacks_permission"
	KindPermission              Kind = "permission"
	KindPersistence             Kind = "persistence"
	KindInternal                Kind = "internal"
)

// KindOf maps an error returned by this package to its Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyRevoked):
		return KindAlreadyRevoked
	case errors.Is(err, ErrStoreNotReady):
		return KindStoreNotReady
	case errors.Is(err, ErrMissingApprover):
		return KindMissingApprover
	case errors.Is(err, ErrApproverLacksPermission):
		return KindApproverLacksPermission
	case errors.Is(err, ErrPermission):
		return KindPermission
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	}
	return KindInternal
}

// IsClientError returns true if the error is due to invalid caller input
// or a rejected operator action.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAlreadyRevoked) ||
		errors.Is(err, ErrPermission)
}

// IsRetryable returns true if the same call may succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) || errors.Is(err, ErrPersistence)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
