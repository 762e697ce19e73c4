// Package cliio holds terminal prompts and table output for the CLI.
package cliio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a confirmation is needed but stdin is
// not a terminal.
var ErrNotInteractive = errors.New("confirmation required: stdin is not a terminal (pass --yes)")

// isTerminal is overridable in tests.
var isTerminal = term.IsTerminal

// PromptYesNo writes prompt and reads a yes/no response from input.
func PromptYesNo(out io.Writer, in io.Reader, prompt string) (bool, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return false, err
	}
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	choice := strings.ToLower(strings.TrimSpace(line))
	return choice == "y" || choice == "yes", nil
}

// IsInteractive reports whether in is a terminal.
func IsInteractive(in io.Reader) bool {
	file, ok := in.(*os.File)
	return ok && isTerminal(int(file.Fd()))
}

// ConfirmDestructive asks before a destructive action. assumeYes skips the
// prompt; a non-terminal stdin fails closed with ErrNotInteractive.
func ConfirmDestructive(out io.Writer, in io.Reader, prompt string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !IsInteractive(in) {
		return false, ErrNotInteractive
	}
	return PromptYesNo(out, in, prompt)
}
