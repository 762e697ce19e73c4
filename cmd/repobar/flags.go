package repobar

import "github.com/spf13/cobra"

const (
	formatUsage    = "output format: table, wide, json, or yaml"
	noHeadersUsage = "when using table format, do not print headers"
)

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", "table", formatUsage)
	cmd.Flags().Bool("json", false, "shorthand for -o json")
	cmd.Flags().Bool("no-headers", false, noHeadersUsage)
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().String("root", "", "projects folder to scan (default from config)")
	cmd.Flags().Int("depth", 0, "maximum directory depth below the root, 1-6 (default from config)")
	cmd.Flags().String("include", "", "comma-separated repo names or owner/name to keep")
	cmd.Flags().String("exclude", "", "comma-separated glob patterns to skip")
}

func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

func getStringFlag(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func getIntFlag(cmd *cobra.Command, name string) int {
	v, _ := cmd.Flags().GetInt(name)
	return v
}
