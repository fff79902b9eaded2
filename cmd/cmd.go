// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/7blacky7/ngramlm/envconfig"
	"github.com/7blacky7/ngramlm/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-28s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "ngramlm",
		Short:         "Build and query n-gram language models",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	buildCmd := newBuildCmd()
	estimateCmd := newEstimateCmd()
	classifyCmd := newClassifyCmd()
	queryCmd := newQueryCmd()
	serveCmd := newServeCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	for _, cmd := range []*cobra.Command{buildCmd, estimateCmd, queryCmd, serveCmd} {
		switch cmd {
		case buildCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["NGRAMLM_DEBUG"],
				envVars["NGRAMLM_TMPDIR"],
				envVars["NGRAMLM_SORT_MEMORY"],
				envVars["NGRAMLM_PROBING_MULTIPLIER"],
				envVars["NGRAMLM_BHIKSHA_COST"],
			})
		case estimateCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["NGRAMLM_PROBING_MULTIPLIER"], envVars["NGRAMLM_BHIKSHA_COST"]})
		case queryCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["NGRAMLM_HOST"], envVars["NGRAMLM_LOAD_METHOD"]})
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["NGRAMLM_DEBUG"],
				envVars["NGRAMLM_HOST"],
				envVars["NGRAMLM_ORIGINS"],
				envVars["NGRAMLM_LOAD_METHOD"],
			})
		}
	}

	rootCmd.AddCommand(
		buildCmd,
		estimateCmd,
		classifyCmd,
		queryCmd,
		serveCmd,
	)

	return rootCmd
}
