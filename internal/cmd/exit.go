package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/3leaps/goferry/pkg/output"
	"github.com/3leaps/goferry/pkg/transfer"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ExitError{Code: code, Message: message, Err: err}
}

// transferExitCode maps a transfer failure to a process exit code.
func transferExitCode(err error) int {
	switch transfer.ErrorCode(err) {
	case output.ErrCodeSourceNotFound:
		return foundry.ExitFileNotFound
	case output.ErrCodeInvalidArgument:
		return foundry.ExitInvalidArgument
	case output.ErrCodeDirectoryUnavailable, output.ErrCodeCopyFailed, output.ErrCodeTransferFailed:
		return foundry.ExitFileWriteError
	case output.ErrCodeTimeout:
		return foundry.ExitSignalInt
	default:
		return foundry.ExitExternalServiceUnavailable
	}
}
