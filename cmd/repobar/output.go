package repobar

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

type outputKind string

const (
	outputKindTable outputKind = "table"
	outputKindWide  outputKind = "wide"
	outputKindJSON  outputKind = "json"
	outputKindYAML  outputKind = "yaml"
)

func (k outputKind) tabular() bool {
	return k == outputKindTable || k == outputKindWide
}

func parseOutputKind(format string) (outputKind, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", string(outputKindTable):
		return outputKindTable, nil
	case string(outputKindWide):
		return outputKindWide, nil
	case string(outputKindJSON):
		return outputKindJSON, nil
	case string(outputKindYAML), "yml":
		return outputKindYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

// outputKindFor reads -o/--json and primes color mode for the command.
func outputKindFor(cmd *cobra.Command) (outputKind, error) {
	kind := outputKindJSON
	if !getBoolFlag(cmd, "json") {
		var err error
		kind, err = parseOutputKind(getStringFlag(cmd, "format"))
		if err != nil {
			return "", err
		}
	}
	setColorOutputMode(cmd, kind)
	return kind, nil
}

// writeStructured renders v as JSON or YAML. Repeated YAML documents are
// separated so watch output stays parseable as a stream.
func writeStructured(cmd *cobra.Command, kind outputKind, v any) error {
	out := cmd.OutOrStdout()
	switch kind {
	case outputKindJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case outputKindYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "---\n%s", data)
		return err
	default:
		return fmt.Errorf("format %q is not structured", kind)
	}
}

// logOutputWriteFailure records non-fatal output write/flush failures.
// CLI consumers frequently pipe to tools that close early (for example `head`),
// so we log and continue instead of treating these as command failures.
func logOutputWriteFailure(cmd *cobra.Command, context string, err error) {
	if err == nil {
		return
	}
	debugf(cmd, "ignored output write failure (%s): %v", context, err)
}

func formatCount(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func formatOptional(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

// formatAge renders a timestamp as a coarse "5m ago" style age.
func formatAge(ts *time.Time, now time.Time) string {
	if ts == nil || ts.IsZero() {
		return "never"
	}
	d := now.Sub(*ts)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}

func displayRepoPath(repoPath, root string) string {
	if rel, ok := relWithin(root, repoPath); ok {
		return rel
	}
	return repoPath
}

func relWithin(base, target string) (string, bool) {
	if strings.TrimSpace(base) == "" || strings.TrimSpace(target) == "" {
		return "", false
	}
	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", false
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
