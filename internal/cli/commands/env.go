package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/odata/internal/cli/config"
	"github.com/conduit-lang/odata/internal/cli/ui"
	"github.com/conduit-lang/odata/internal/csdl"
	"github.com/conduit-lang/odata/internal/logging"
	"github.com/conduit-lang/odata/internal/metacache"
	"github.com/conduit-lang/odata/internal/session"
	"github.com/conduit-lang/odata/internal/transport"
)

// globalOptions holds the persistent flags shared by every subcommand
type globalOptions struct {
	configDir    string
	serviceURL   string
	metadataFile string
	logLevel     string
	noColor      bool
}

// configError marks failures the user fixes in odata.yml or with flags
type configError struct {
	msg string
	err error
}

func (e *configError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *configError) Unwrap() error {
	return e.err
}

// environment is the loaded configuration plus the writers of one command run
type environment struct {
	cfg     *config.Config
	logger  *zap.Logger
	out     io.Writer
	errOut  io.Writer
	noColor bool
	opts    *globalOptions
}

// dir returns --config-dir, or the nearest directory holding odata.yml
func (g *globalOptions) dir() string {
	if g.configDir != "" {
		return g.configDir
	}
	if path, err := config.FindConfigFile(); err == nil {
		return filepath.Dir(path)
	}
	return "."
}

func (g *globalOptions) load(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.LoadFrom(g.dir())
	if err != nil {
		return nil, &configError{msg: "failed to load configuration", err: err}
	}
	if g.serviceURL != "" {
		cfg.Service.URL = g.serviceURL
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, &configError{msg: "failed to configure logging", err: err}
	}

	return &environment{
		cfg:     cfg,
		logger:  logger,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		noColor: g.noColor || color.NoColor,
		opts:    g,
	}, nil
}

func (e *environment) openCache(ctx context.Context) (metacache.Store, func() error, error) {
	store, closeFn, err := metacache.Open(ctx, e.cfg.CacheOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open metadata cache: %w", err)
	}
	return store, closeFn, nil
}

func (e *environment) client(store metacache.Store) (*transport.Client, error) {
	if e.cfg.Service.URL == "" {
		return nil, &configError{msg: "service.url is not set; pass --url or set ODATA_SERVICE_URL"}
	}

	opts := []transport.Option{
		transport.WithHTTPClient(&http.Client{Timeout: e.cfg.Service.Timeout}),
		transport.WithLogger(e.logger),
	}
	if store != nil {
		opts = append(opts, transport.WithMetadataCache(store, e.cfg.Cache.TTL))
	}

	names := make([]string, 0, len(e.cfg.Service.Headers))
	for name := range e.cfg.Service.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, transport.WithHeader(name, e.cfg.Service.Headers[name]))
	}

	c, err := transport.New(e.cfg.Service.URL, opts...)
	if err != nil {
		return nil, &configError{msg: "invalid service.url", err: err}
	}
	return c, nil
}

// openSession connects to the configured service. The returned close
// function releases the metadata cache.
func (e *environment) openSession(ctx context.Context) (*session.Session, func(), error) {
	if e.opts.metadataFile != "" {
		return e.openLocalSession()
	}

	store, closeCache, err := e.openCache(ctx)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if cerr := closeCache(); cerr != nil {
			e.logger.Warn("failed to close metadata cache", zap.Error(cerr))
		}
	}

	client, err := e.client(store)
	if err != nil {
		release()
		return nil, nil, err
	}

	var s *session.Session
	err = ui.Step(e.errOut, "loading "+client.Root().String()+" metadata", e.noColor, func() error {
		var oerr error
		s, oerr = session.Open(ctx, client, e.logger)
		return oerr
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return s, release, nil
}

func (e *environment) openLocalSession() (*session.Session, func(), error) {
	client, err := e.client(nil)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(e.opts.metadataFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer f.Close()

	model, err := csdl.ParseModel(f)
	if err != nil {
		return nil, nil, fmt.Errorf("load metadata from %s: %w", e.opts.metadataFile, err)
	}
	return session.New(client, model, e.logger), func() {}, nil
}
