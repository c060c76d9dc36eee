package cmd

import (
	"errors"
	"fmt"
)

// CLIError carries an exit code and machine-readable error code alongside
// a human message, so Execute can render both the terminal message and the
// JSON error envelope from a single returned error.
type CLIError struct {
	ExitCode int
	Code     string
	Message  string
	Details  map[string]any
	Err      error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CLIError) Unwrap() error { return e.Err }

// usageError wraps a malformed-input or missing-flag failure. Exit code 2.
func usageError(format string, a ...any) error {
	return &CLIError{ExitCode: 2, Code: "usage_error", Message: fmt.Sprintf(format, a...)}
}

// policyError wraps a C3/C4/C6 denial. Exit code 3.
func policyError(message string, details map[string]any) error {
	return &CLIError{ExitCode: 3, Code: "policy_denial", Message: message, Details: details}
}

// runtimeError wraps a driver, store, or LLM failure. Exit code 4.
func runtimeError(err error) error {
	return &CLIError{ExitCode: 4, Code: "runtime_error", Message: "runtime error", Err: err}
}

// internalError wraps anything unexpected. Exit code 1.
func internalError(err error) error {
	return &CLIError{ExitCode: 1, Code: "internal_error", Message: "internal error", Err: err}
}

// exitCodeFor maps an error returned from a cobra RunE to the process exit
// code from spec §6. A plain error (not wrapped via the helpers above) is
// treated as an internal error.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.ExitCode
	}
	return 1
}

// errorEnvelope renders the JSON error envelope from spec §6:
// {ok: false, code, message, details?}.
func errorEnvelope(err error) map[string]any {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		env := map[string]any{"ok": false, "code": cliErr.Code, "message": cliErr.Message}
		if len(cliErr.Details) > 0 {
			env["details"] = cliErr.Details
		}
		return env
	}
	return map[string]any{"ok": false, "code": "internal_error", "message": err.Error()}
}
