// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Archive lifecycle sentinels.
var (
	// ErrAlreadyExists indicates the archive bundle already has content on disk.
	ErrAlreadyExists = errors.New("archive already exists")

	// ErrDoesNotExist indicates the archive bundle is missing from disk.
	ErrDoesNotExist = errors.New("archive does not exist")

	// ErrAlreadyAttached indicates the archive is mounted and the operation requires it detached.
	ErrAlreadyAttached = errors.New("archive already attached")

	// ErrNotAttached indicates the archive is not mounted.
	ErrNotAttached = errors.New("archive not attached")

	// ErrNoPassword indicates a password-gated operation received no secret.
	ErrNoPassword = errors.New("no password provided")

	// ErrCreationFailed indicates the bundle is missing after a create run.
	ErrCreationFailed = errors.New("archive creation failed")

	// ErrRemovalFailed indicates the bundle still exists after removal.
	ErrRemovalFailed = errors.New("archive removal failed")

	// ErrAttachFailed indicates the mount point is not live after an attach run.
	ErrAttachFailed = errors.New("archive attach failed")

	// ErrDetachFailed indicates the mount point is still live after a detach run.
	ErrDetachFailed = errors.New("archive detach failed")

	// ErrRecordNotFound indicates the record store has no entry for the id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrKeyNotFound indicates no salt is stored for the archive, so the key
	// cannot be re-derived (e.g. the archive was created under another user).
	ErrKeyNotFound = errors.New("key not found")

	// ErrSecretStore indicates the secret store returned an unexpected status.
	ErrSecretStore = errors.New("secret store unexpected status")

	// ErrOperationFailure is the base class for non-zero subprocess exits;
	// concrete failures are *OperationError values matching it via errors.Is.
	ErrOperationFailure = errors.New("operation failure")
)

// OperationError carries the captured output of a failed subprocess run.
type OperationError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *OperationError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Stdout)
	}
	if msg == "" {
		return fmt.Sprintf("operation failure: exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("operation failure: exit code %d: %s", e.ExitCode, msg)
}

// Is makes every OperationError match ErrOperationFailure.
func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailure
}
