// SPDX-License-Identifier: MIT
package gitx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// CommandError reports a git invocation that exited non-zero.
type CommandError struct {
	Dir      string
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	cmd := "git " + strings.Join(e.Args, " ")
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s", cmd, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Command returns the shell-like form of the failing invocation.
func (e *CommandError) Command() string {
	return "git " + strings.Join(e.Args, " ")
}

// EnvironmentKind enumerates why git cannot run at all.
type EnvironmentKind string

const (
	EnvMissingBinary EnvironmentKind = "missing_binary"
	EnvSandboxed     EnvironmentKind = "sandboxed"
	EnvOther         EnvironmentKind = "other"
)

// EnvironmentError reports that git is unusable in this process, so no
// repository can be inspected.
type EnvironmentError struct {
	Kind EnvironmentKind
	Err  error
}

func (e *EnvironmentError) Error() string {
	switch e.Kind {
	case EnvMissingBinary:
		return fmt.Sprintf("git binary not found: %v", e.Err)
	case EnvSandboxed:
		return fmt.Sprintf("git blocked by sandbox restrictions: %v", e.Err)
	default:
		return fmt.Sprintf("git unavailable: %v", e.Err)
	}
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// IsEnvironmentError reports whether err means git cannot run at all.
func IsEnvironmentError(err error) bool {
	var envErr *EnvironmentError
	return errors.As(err, &envErr)
}

// ProbeEnvironment runs git once and classifies a failure as an
// EnvironmentError. Callers use it before a scan so that a missing or
// blocked binary is reported once rather than per repository.
func ProbeEnvironment(ctx context.Context, r Runner) error {
	out, err := Version(ctx, r)
	if err == nil {
		if !strings.HasPrefix(strings.TrimSpace(out), "git version") {
			return &EnvironmentError{Kind: EnvOther, Err: fmt.Errorf("unexpected git --version output %q", out)}
		}
		return nil
	}
	if IsEnvironmentError(err) {
		return err
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		lower := strings.ToLower(cmdErr.Stderr)
		// macOS ships a git shim that defers to xcrun, which fails inside the
		// app sandbox or without the developer tools installed.
		if containsAny(lower, "operation not permitted", "xcrun: error", "sandbox", "no developer tools") {
			return &EnvironmentError{Kind: EnvSandboxed, Err: err}
		}
	}
	return &EnvironmentError{Kind: EnvOther, Err: err}
}

// ClassifyError maps git/process errors into broad actionable categories.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if IsEnvironmentError(err) {
		return "environment"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	// Heuristics are intentionally broad to keep categories actionable for users.
	switch {
	case containsAny(msg, "permission denied", "authentication failed", "access denied", "publickey", "could not read username", "credential", "terminal prompts disabled"):
		return "auth"
	case containsAny(msg, "could not resolve host", "network is unreachable", "connection timed out", "connection refused", "failed to connect", "temporary failure in name resolution", "tls handshake timeout", "unable to access"):
		return "network"
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return "timeout"
	case containsAny(msg, "not a git repository", "bad object", "corrupt", "object file", "shallow", "unknown revision", "bad revision"):
		return "corrupt"
	case containsAny(msg, "repository not found", "couldn't find remote ref", "remote ref does not exist", "no such remote", "no upstream"):
		return "missing_remote"
	default:
		return "unknown"
	}
}

func isPermissionError(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EPERM)
}

func containsAny(msg string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
