// SPDX-License-Identifier: MIT
package termstyle

import (
	"github.com/liggitt/tabwriter"

	"github.com/skaphos/repobar/internal/model"
)

const (
	Reset = "\x1b[0m"
	Green = "\x1b[32m"
	Brown = "\x1b[33m"
	Red   = "\x1b[31m"
	Blue  = "\x1b[34m"
	Gray  = "\x1b[90m"

	Healthy = Green
	Warn    = Brown
	Error   = Red
	Info    = Blue
	Muted   = Gray
)

// Colorize wraps a value in ANSI escapes when color output is enabled.
func Colorize(enabled bool, value, color string) string {
	if !enabled || value == "" || color == "" {
		return value
	}
	// Escaped so tabwriter ignores the sequences when measuring cells.
	esc := string([]byte{tabwriter.Escape})
	return esc + color + esc + value + esc + Reset + esc
}

// StateColor maps a sync state to its status-bar color.
func StateColor(state model.SyncState) string {
	switch state {
	case model.SyncStateSynced:
		return Healthy
	case model.SyncStateAhead, model.SyncStateBehind:
		return Info
	case model.SyncStateDirty:
		return Warn
	case model.SyncStateDiverged:
		return Error
	default:
		return Muted
	}
}

// State renders a sync state, colored when enabled.
func State(enabled bool, state model.SyncState) string {
	return Colorize(enabled, string(state), StateColor(state))
}
