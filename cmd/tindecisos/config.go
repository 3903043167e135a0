package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/oggyb/tindecisos/internal/auth"
	"github.com/oggyb/tindecisos/internal/config"
	"github.com/oggyb/tindecisos/internal/console"
	"github.com/oggyb/tindecisos/internal/logger"
	"github.com/oggyb/tindecisos/internal/remote"
)

type Config struct {
	addr       string
	logFormat  string
	logLevel   string
	qr         bool
	swipeDelay time.Duration
	verbose    bool
}

func (c *Config) apply(env *config.Config) error {
	env.Client.Addr = c.addr
	env.Client.SwipeDelay = c.swipeDelay
	if c.swipeDelay < 0 {
		return fmt.Errorf("invalid swipe delay: %s", c.swipeDelay)
	}
	return env.ValidateClient()
}

func newCmd(cfg *Config) *cobra.Command {
	env := config.New()

	v := viper.New()
	v.SetEnvPrefix("TINDECISOS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "tindecisos",
		Short:         "Swipe through a list with a friend and find what you both like.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.apply(env); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, env)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.addr, "addr", "a", env.Client.Addr, "server address (env: TINDECISOS_ADDR)")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "log format, text or json (env: TINDECISOS_LOG_FORMAT)")
	fs.StringVar(&cfg.logLevel, "log-level", "warn", "log level (env: TINDECISOS_LOG_LEVEL)")
	fs.BoolVar(&cfg.qr, "qr", true, "print the session code as a QR code (env: TINDECISOS_QR)")
	fs.DurationVar(&cfg.swipeDelay, "swipe-delay", env.Client.SwipeDelay, "time a swiped card stays on screen (env: TINDECISOS_SWIPE_DELAY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log at debug level (env: TINDECISOS_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("tindecisos v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func run(ctx context.Context, cfg *Config, env *config.Config) error {
	level := cfg.logLevel
	if cfg.verbose {
		level = "debug"
	}
	logger.Init(&logger.Config{
		Level:     level,
		Format:    logger.Format(cfg.logFormat),
		Component: "client",
		Output:    os.Stderr,
	})
	log := logger.L()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc, err := remote.Dial(env.Client.Addr)
	if err != nil {
		return err
	}
	defer cc.Close()
	log.Debug("connected", "addr", env.Client.Addr)

	c := console.New(console.Options{
		In:         os.Stdin,
		Out:        os.Stdout,
		Auth:       auth.NewSession(remote.NewIdentity(cc)),
		Store:      remote.NewStore(cc, logger.Module("remote")),
		Logger:     log,
		SwipeDelay: env.Client.SwipeDelay,
		QR:         cfg.qr,
	})
	return c.Run(ctx)
}
