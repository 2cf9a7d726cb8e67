package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/odata/internal/cli/ui"
	"github.com/conduit-lang/odata/internal/metacache"
)

// NewCacheCommand creates the cache command
func NewCacheCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached $metadata documents",
		Long: `Manage the $metadata documents kept by the configured cache backend.
The memory backend lives only as long as one command, so these commands
are useful with the redis and sql backends.`,
	}
	cmd.AddCommand(newCacheStatusCommand(g))
	cmd.AddCommand(newCacheClearCommand(g))
	return cmd
}

// withCache loads the environment and opens the configured store. fn is not
// called when caching is disabled.
func withCache(cmd *cobra.Command, g *globalOptions, fn func(*environment, metacache.Store) error) error {
	env, err := g.load(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	store, closeFn, err := env.openCache(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	if store == nil {
		fmt.Fprint(env.out, ui.Info("metadata caching is disabled (cache.backend: none)", env.noColor))
		return nil
	}
	return fn(env, store)
}

func newCacheStatusCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the service's metadata is cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, g, func(env *environment, store metacache.Store) error {
				client, err := env.client(nil)
				if err != nil {
					return err
				}
				root := client.Root().String()

				kv := ui.NewKeyValueTable(env.out, env.noColor)
				kv.AddRow("Backend", env.cfg.Cache.Backend)
				kv.AddRow("Service", root)

				doc, err := store.Get(cmd.Context(), root)
				switch {
				case metacache.IsCacheMiss(err):
					kv.AddRow("Cached", "no")
				case err != nil:
					return err
				default:
					kv.AddRow("Cached", fmt.Sprintf("yes (%d bytes)", len(doc)))
				}
				kv.Render()
				return nil
			})
		},
	}
}

func newCacheClearCommand(g *globalOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the service's cached metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, g, func(env *environment, store metacache.Store) error {
				if all {
					if err := store.Clear(cmd.Context()); err != nil {
						return err
					}
					ui.WriteSuccess(env.out, "Cleared all cached metadata", env.noColor)
					return nil
				}

				client, err := env.client(nil)
				if err != nil {
					return err
				}
				root := client.Root().String()
				if err := store.Delete(cmd.Context(), root); err != nil {
					return err
				}
				ui.WriteSuccess(env.out, "Cleared cached metadata for "+root, env.noColor)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every cached document, not only the configured service's")
	return cmd
}
