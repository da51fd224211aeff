package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/RCOEM-Google-DSC/enso/batch"
	"github.com/RCOEM-Google-DSC/enso/certificate"
	"github.com/RCOEM-Google-DSC/enso/config"
	"github.com/RCOEM-Google-DSC/enso/fonts"
	"github.com/RCOEM-Google-DSC/enso/observability"
	"github.com/RCOEM-Google-DSC/enso/presence"
	"github.com/RCOEM-Google-DSC/enso/service"
	"github.com/RCOEM-Google-DSC/enso/store"
)

// app holds what the subcommands share. It is filled in by the root
// command's pre-run hook.
type app struct {
	in  io.Reader
	out io.Writer

	configPath string
	jsonOut    bool
	verbose    bool

	cfg      *config.Config
	log      *observability.ZapLogger
	store    *store.Store
	dialogs  *terminalDialogs
	viewer   *execViewer
	presence *presence.Client
	svc      *service.Service
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out}
	root := &cobra.Command{
		Use:   "enso",
		Short: "Certificate maker",
		Long: `enso overlays recipient names onto PDF certificate templates, one at a
time or in bulk, and keeps the templates, text style, generation history
and data files under the application data directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetIn(in)
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: ./enso.yaml or $HOME/.config/enso/enso.yaml)")
	flags.BoolVar(&a.jsonOut, "json", false, "print results as JSON")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		a.templateCmd(),
		a.styleCmd(),
		a.generateCmd(),
		a.historyCmd(),
		a.dataCmd(),
		a.convertCmd(),
		a.presenceCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	log, err := observability.NewZap(level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	a.cfg, a.log = cfg, log

	a.store = store.New(cfg.AppDataDir, store.WithLogger(log))
	renderer := certificate.NewRenderer(fonts.NewResolver(log), certificate.Options{
		Packaged: cfg.Packaged,
		Paths:    cfg.FontPaths(),
		Compress: true,
	}, log)
	a.dialogs = newTerminalDialogs(a.in, cmd.ErrOrStderr())
	a.viewer = &execViewer{command: cfg.Viewer.Command}
	orchestrator := batch.New(a.store, renderer,
		batch.WithHistory(a.store),
		batch.WithDialogs(a.dialogs),
		batch.WithViewer(a.viewer),
		batch.WithLogger(log))

	opts := []service.Option{service.WithLogger(log)}
	if cfg.Presence.Enabled {
		a.presence = presence.New(cfg.Presence.ClientID,
			presence.WithDialer(presence.UnixDialer(cfg.Presence.SocketDir)),
			presence.WithRetryInterval(cfg.Presence.RetryInterval),
			presence.WithLogger(log))
		opts = append(opts, service.WithPresence(a.presence))
	}
	a.svc = service.New(a.store, orchestrator, opts...)
	log.Debug("configured",
		observability.String("app_data_dir", cfg.AppDataDir),
		observability.Bool("packaged", cfg.Packaged),
		observability.Bool("presence", cfg.Presence.Enabled))
	return nil
}

func (a *app) close() error {
	if a.presence != nil {
		if err := a.presence.Disconnect(); err != nil {
			a.log.Debug("presence disconnect", observability.Err(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return nil
}

// announce publishes activity when presence is enabled. Failures only log.
func (a *app) announce(ctx context.Context, details, state string) {
	if a.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.presence.Connect(ctx); err != nil {
		a.log.Debug("presence unavailable", observability.Err(err))
		return
	}
	if res := a.svc.SetActivity(ctx, presence.Activity{Details: details, State: state}); !res.Success {
		a.log.Debug("presence update failed", observability.String("error", res.Error))
	}
}

// report prints v, or calls text when not printing JSON and the operation
// did not fail. A non-empty errText becomes the command's error.
func (a *app) report(v any, errText string, text func(w io.Writer)) error {
	if a.jsonOut {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
	} else if errText == "" {
		text(a.out)
	}
	if errText != "" {
		return errors.New(errText)
	}
	return nil
}

// style returns the saved style with any style flags applied on top.
func (a *app) style(ctx context.Context, cmd *cobra.Command) (certificate.StyleOptions, error) {
	loaded := a.svc.LoadStyle(ctx)
	if !loaded.Success {
		return loaded.Style, errors.New(loaded.Error)
	}
	return applyStyleFlags(cmd, loaded.Style)
}
