package commands

import (
	"errors"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/odata/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "odata",
		Short: "Inspect OData v3 services and plan requests against their metadata",
		Long: color.CyanString(`odata - metadata-driven OData client tooling

odata reads a service's $metadata document and uses it to turn loosely
spelled names into exact requests.

Features:
  • Case-, underscore- and space-insensitive name resolution
  • PUT or PATCH chosen from the entry's completeness
  • $links management and function import invocation
  • $batch requests with change sets and content-ID references
  • Metadata caching in memory, Redis or SQL`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.configDir, "config-dir", "", "Directory containing odata.yml (default: nearest parent with one)")
	flags.StringVarP(&g.serviceURL, "url", "u", "", "Service root URL (overrides service.url)")
	flags.StringVarP(&g.metadataFile, "metadata", "m", "", "Read $metadata from a local file instead of the service")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level (overrides log.level)")
	flags.BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewSchemaCommand(g))
	rootCmd.AddCommand(NewPlanCommand(g))
	rootCmd.AddCommand(NewConfigCommand(g))
	rootCmd.AddCommand(NewCacheCommand(g))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the odata tool version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			kv.AddRow("odata version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		reportError(rootCmd, err)
		return err
	}
	return nil
}

func reportError(cmd *cobra.Command, err error) {
	w := cmd.ErrOrStderr()
	noColor := color.NoColor
	if f := cmd.PersistentFlags().Lookup("no-color"); f != nil && f.Value.String() == "true" {
		noColor = true
	}

	var cerr *configError
	if errors.As(err, &cerr) {
		_, _ = w.Write([]byte(ui.ConfigError(cerr.Error(), noColor)))
		return
	}
	_, _ = w.Write([]byte(ui.DescribeError(err, noColor)))
}
