package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Ensure API keys are loaded
	_ "github.com/joho/godotenv/autoload"

	"github.com/casualjim/folio/config"
	"github.com/k0kubun/pp/v3"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	logLevel   string
	debug      bool
	cfg        *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "folio",
		Short:         "Compile and run prompt books",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			setupLogging(cfg.Log, a.logLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (default ./"+config.DefaultFile+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "dump intermediate values")

	root.AddCommand(
		a.compileCmd(),
		a.printCmd(),
		a.validateCmd(),
		a.schemaCmd(),
		a.runCmd(),
		a.serveCmd(),
		a.knowledgeCmd(),
	)
	return root
}

func setupLogging(cfg config.Log, override string) {
	level := cfg.Level
	if override != "" {
		level = override
	}
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		slogLevel = slog.LevelInfo
	}

	var log zerolog.Logger
	if cfg.Format == "json" {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
		log = zerolog.New(output).With().Timestamp().Logger()
	}
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slogLevel}),
	))
}

// dump pretty prints v to stderr when --debug is set.
func (a *app) dump(label string, v any) {
	if !a.debug {
		return
	}
	printer := pp.New()
	printer.SetOutput(os.Stderr)
	printer.SetExportedOnly(true)
	fmt.Fprintf(os.Stderr, "--- %s\n", label)
	printer.Println(v)
}
