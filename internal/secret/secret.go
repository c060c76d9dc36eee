// Package secret resolves the two classes of credential the CLI needs:
// the interactively-typed database password and the environment-sourced
// LLM API key.
package secret

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// PromptPassword reads a password from the terminal without echoing it.
// Returns an empty string if the terminal read fails (e.g. stdin is not a
// TTY), leaving the caller to decide whether an empty password is usable.
func PromptPassword(prompt string) string {
	if prompt == "" {
		prompt = "Enter password: "
	}
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return ""
	}
	return string(password)
}

// LLMAPIKeyEnvVar is the one piece of process-wide shared environment state
// named by spec §5 beyond the store handle.
const LLMAPIKeyEnvVar = "OPENQUERY_LLM_API_KEY"

// LLMAPIKey reads the LLM API key from the environment. Returns an error
// naming the expected variable if unset, since ask_and_maybe_run cannot
// proceed without it.
func LLMAPIKey() (string, error) {
	key := os.Getenv(LLMAPIKeyEnvVar)
	if key == "" {
		return "", fmt.Errorf("%s is not set", LLMAPIKeyEnvVar)
	}
	return key, nil
}
