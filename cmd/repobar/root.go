// Package repobar contains the Cobra command tree for the repobar CLI.
package repobar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skaphos/repobar/internal/gitx"
	"github.com/skaphos/repobar/internal/repoindex"
)

var (
	// Global flags
	flagVerbose int
	flagQuiet   bool
	flagConfig  string
	flagNoColor bool
	// colorOutputEnabled is set per command execution based on output format and TTY detection.
	colorOutputEnabled bool
	// isTerminalFD is overridable in tests.
	isTerminalFD = term.IsTerminal
	// exitFunc is overridable in tests.
	exitFunc = os.Exit
)

var rootCmd = &cobra.Command{
	Use:   "repobar",
	Short: "Keep local git working copies in sync",
	Long: "repobar scans a projects folder for git working copies, reports how each one " +
		"relates to its upstream, and fast-forwards or pushes clean copies when that is safe.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// `NO_COLOR` is a standard opt-out and should behave like --no-color.
		if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
			flagNoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase output verbosity (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "override config file path")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() {
	exitFunc(ExecuteWithExitCode())
}

// ExecuteWithExitCode runs the root command and returns a shell-friendly exit code.
func ExecuteWithExitCode() int {
	colorOutputEnabled = false
	// Interrupts cancel the command context so --watch and in-flight scans stop cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func reportError(out io.Writer, err error) {
	_, _ = fmt.Fprintf(out, "error: %v\n", err)

	var cmdErr *gitx.CommandError
	if errors.As(err, &cmdErr) {
		_, _ = fmt.Fprintf(out, "failed command (%s): %s\n", gitx.ClassifyError(err), cmdErr.Command())
	}

	var ambiguous *repoindex.AmbiguousMatchError
	if !errors.As(err, &ambiguous) {
		return
	}
	_, _ = fmt.Fprintln(out, "candidates:")
	for _, c := range ambiguous.Candidates {
		_, _ = fmt.Fprintf(out, "  %s\t%s\n", c.DisplayName(), c.Path)
	}
}

func infof(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func debugf(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet || flagVerbose <= 0 {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

// newLogger returns the engine logger: silent by default, warnings at -v,
// git traces at -vv.
func newLogger(cmd *cobra.Command) *slog.Logger {
	if flagQuiet || flagVerbose <= 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	level := slog.LevelWarn
	if flagVerbose >= 2 {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func setColorOutputMode(cmd *cobra.Command, kind outputKind) {
	colorOutputEnabled = shouldUseColorOutput(cmd, kind)
}

func shouldUseColorOutput(cmd *cobra.Command, kind outputKind) bool {
	if flagNoColor || !kind.tabular() {
		return false
	}
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return isTerminalFD(int(file.Fd()))
}
