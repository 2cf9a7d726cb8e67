package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/odata/internal/cli/config"
	"github.com/conduit-lang/odata/internal/cli/ui"
	"github.com/conduit-lang/odata/internal/metacache"
)

// NewConfigCommand creates the config command
func NewConfigCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect odata.yml",
	}
	cmd.AddCommand(newConfigInitCommand(g))
	cmd.AddCommand(newConfigShowCommand(g))
	return cmd
}

// existingConfigFile returns the odata.yml or odata.yaml in dir, if any
func existingConfigFile(dir string) (string, bool) {
	for _, ext := range []string{".yml", ".yaml"} {
		path := filepath.Join(dir, config.FileName+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

type configInitOptions struct {
	interactive bool
	force       bool
	backend     string
	ttl         time.Duration
	dsn         string
	redisAddr   string
}

func newConfigInitCommand(g *globalOptions) *cobra.Command {
	o := &configInitOptions{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an odata.yml in the config directory",
		Long: `Write an odata.yml in the config directory.

Examples:
  odata config init --url https://services.odata.org/V3/Northwind/Northwind.svc
  odata config init --backend sql --dsn file:metadata.db
  odata config init --interactive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, g, o)
		},
	}

	cmd.Flags().BoolVarP(&o.interactive, "interactive", "i", false, "Prompt for each setting")
	cmd.Flags().BoolVarP(&o.force, "force", "f", false, "Overwrite an existing odata.yml")
	cmd.Flags().StringVar(&o.backend, "backend", metacache.BackendMemory, "Metadata cache backend (none, memory, redis, sql)")
	cmd.Flags().DurationVar(&o.ttl, "ttl", 24*time.Hour, "How long fetched metadata stays cached")
	cmd.Flags().StringVar(&o.dsn, "dsn", "", "Database DSN for the sql backend")
	cmd.Flags().StringVar(&o.redisAddr, "redis-addr", "localhost:6379", "Redis address for the redis backend")
	return cmd
}

func runConfigInit(cmd *cobra.Command, g *globalOptions, o *configInitOptions) error {
	if existing, ok := existingConfigFile(g.dir()); ok && !o.force {
		return &configError{msg: fmt.Sprintf("%s already exists; use --force to overwrite", existing)}
	}
	path := filepath.Join(g.dir(), config.FileName+".yml")

	cfg := config.Default()
	cfg.Service.URL = g.serviceURL
	cfg.Cache.Backend = o.backend
	cfg.Cache.TTL = o.ttl
	cfg.Cache.SQL.DSN = o.dsn
	cfg.Cache.Redis.Addr = o.redisAddr
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	if o.interactive {
		if err := promptConfig(cfg); err != nil {
			return err
		}
	}

	if err := config.Save(cfg, path); err != nil {
		return &configError{msg: "failed to write configuration", err: err}
	}

	ui.WriteSuccess(cmd.OutOrStdout(), "Wrote "+path, g.noColor)
	return nil
}

func promptConfig(cfg *config.Config) error {
	if err := survey.AskOne(&survey.Input{
		Message: "Service root URL:",
		Default: cfg.Service.URL,
	}, &cfg.Service.URL, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	if err := survey.AskOne(&survey.Select{
		Message: "Cache fetched metadata in:",
		Options: metacache.Backends,
		Default: cfg.Cache.Backend,
	}, &cfg.Cache.Backend); err != nil {
		return err
	}

	switch cfg.Cache.Backend {
	case metacache.BackendNone:
		return nil
	case metacache.BackendRedis:
		if err := survey.AskOne(&survey.Input{
			Message: "Redis address:",
			Default: cfg.Cache.Redis.Addr,
		}, &cfg.Cache.Redis.Addr, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	case metacache.BackendSQL:
		questions := []*survey.Question{
			{
				Name:   "driver",
				Prompt: &survey.Select{Message: "Database driver:", Options: []string{"sqlite3", "pgx", "postgres"}, Default: cfg.Cache.SQL.Driver},
			},
			{
				Name:     "dsn",
				Prompt:   &survey.Input{Message: "Database DSN:", Default: cfg.Cache.SQL.DSN},
				Validate: survey.Required,
			},
		}
		answers := struct {
			Driver string
			DSN    string
		}{}
		if err := survey.Ask(questions, &answers); err != nil {
			return err
		}
		cfg.Cache.SQL.Driver = answers.Driver
		cfg.Cache.SQL.DSN = answers.DSN
	}

	var ttl string
	if err := survey.AskOne(&survey.Input{
		Message: "Cache TTL:",
		Default: cfg.Cache.TTL.String(),
	}, &ttl, survey.WithValidator(func(ans interface{}) error {
		_, err := time.ParseDuration(ans.(string))
		return err
	})); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(ttl)
	if err != nil {
		return err
	}
	cfg.Cache.TTL = parsed
	return nil
}

func newConfigShowCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, odata.yml, ODATA_* variables and flags are applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := g.load(cmd)
			if err != nil {
				return err
			}

			shown := *env.cfg
			if shown.Cache.Redis.Password != "" {
				shown.Cache.Redis.Password = "********"
			}

			if path, ok := existingConfigFile(g.dir()); ok {
				fmt.Fprintf(env.out, "# %s\n", path)
			} else {
				fmt.Fprint(env.errOut, ui.Info("no odata.yml found; showing defaults and environment", env.noColor))
			}

			enc := yaml.NewEncoder(env.out)
			enc.SetIndent(2)
			if err := enc.Encode(shown); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
