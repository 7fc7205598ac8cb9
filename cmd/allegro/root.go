package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/allegro-webapi/internal/client"
	"github.com/and161185/allegro-webapi/internal/config"
	"github.com/and161185/allegro-webapi/internal/rpc"
)

// app carries state shared by subcommands once flags are parsed.
type app struct {
	cfgPath string
	cfg     config.Config
	log     *zap.Logger

	// dial connects to the endpoint; tests replace it.
	dial func(cfg config.Config) (rpc.Invoker, io.Closer, error)
}

func newApp() *app {
	return &app{log: zap.NewNop(), dial: dialGateway}
}

func dialGateway(cfg config.Config) (rpc.Invoker, io.Closer, error) {
	cc, err := rpc.Dial(cfg.Endpoint, rpc.DialOptions{
		CACert:     cfg.CACert,
		SkipVerify: cfg.SkipVerify,
		Plaintext:  cfg.Plaintext,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
	}
	return rpc.NewGRPCInvoker(cc), cc, nil
}

func newRootCmd(version, buildDate string) *cobra.Command {
	return newRootCmdWith(newApp(), version, buildDate)
}

func newRootCmdWith(a *app, version, buildDate string) *cobra.Command {
	var (
		endpoint   string
		logLevel   string
		skipVerify bool
		plaintext  bool
	)
	root := &cobra.Command{
		Use:           "allegro",
		Short:         "Allegro WebAPI client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("endpoint") {
				cfg.Endpoint = endpoint
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("insecure-skip-verify") {
				cfg.SkipVerify = skipVerify
			}
			if flags.Changed("plaintext") {
				cfg.Plaintext = plaintext
			}
			log, err := cfg.Logger()
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "allegro.yaml", "YAML config file (optional)")
	pf.StringVar(&endpoint, "endpoint", "", "WebAPI gateway address (overrides config)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&skipVerify, "insecure-skip-verify", false, "skip TLS verification (dev only)")
	pf.BoolVar(&plaintext, "plaintext", false, "connect without TLS")

	root.AddCommand(newVersionCmd(version, buildDate))
	root.AddCommand(newUserCmd(a))
	root.AddCommand(newItemCmd(a))
	root.AddCommand(newCategoryCmd(a))
	root.AddCommand(newWatchCmd(a))
	return root
}

// connect validates credentials and builds a client; close releases both.
func (a *app) connect(opts ...client.Option) (c *client.Client, closeFn func(), err error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	inv, conn, err := a.dial(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	opts = append([]client.Option{client.WithLogger(a.log)}, opts...)
	c, err = client.New(client.Config{
		Invoker:      inv,
		Key:          a.cfg.WebAPIKey,
		CountryID:    a.cfg.CountryID,
		Login:        a.cfg.Login,
		Password:     a.cfg.Password,
		PasswordHash: a.cfg.PasswordHash,
	}, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return c, func() { c.Close(); _ = conn.Close() }, nil
}
