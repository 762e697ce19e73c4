// SPDX-License-Identifier: MIT
package repobar

import (
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	narrowTableWidth = 100
	tinyTableWidth   = 80
)

var getTerminalSize = term.GetSize

func tableWidth(cmd *cobra.Command) (int, bool) {
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(file.Fd())
	if !isTerminalFD(fd) {
		return 0, false
	}
	width, _, err := getTerminalSize(fd)
	if err != nil || width <= 0 {
		return 0, false
	}
	return width, true
}

// cellLimit picks a truncation width for a column from the terminal width.
// Zero means no limit.
func cellLimit(cmd *cobra.Command, narrow, tiny int) int {
	width, ok := tableWidth(cmd)
	if !ok {
		return 0
	}
	return cellLimitForWidth(width, narrow, tiny)
}

func cellLimitForWidth(width, narrow, tiny int) int {
	switch {
	case width < tinyTableWidth:
		return tiny
	case width < narrowTableWidth:
		return narrow
	default:
		return 0
	}
}

// truncateCell shortens value to max runes, marking the cut with "...".
func truncateCell(value string, max int) string {
	if max <= 0 || utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
