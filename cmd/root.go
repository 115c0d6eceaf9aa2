/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/internal/events"
	"github.com/allbin/go-valve/internal/logging"
	"github.com/allbin/go-valve/sequence"
	"github.com/allbin/go-valve/session"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "valvectl",
	Short: "Control a serial-attached valve controller",
	Long: `valvectl talks to a microcontroller driving a multi-position valve over a
serial line. It discovers the controller, commands positions, watches the
hardware buttons and runs timed position sequences.

Settings come from flags, VALVECTL_* environment variables and an optional
valvectl.yaml in the working directory or $HOME/.config/valvectl.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./valvectl.yaml)")
	flags.StringP("port", "p", "", "Serial port of the valve controller (detected when empty)")
	flags.IntP("baud", "b", 9600, "Baud rate")
	flags.String("driver", "portable", "Serial driver: portable, termios")
	flags.String("positions", "AB", "Position letters the valve accepts, e.g. AB or ABC")
	flags.Bool("strict-matching", false, "Accept only the expected response kind")
	flags.Duration("settle-delay", valve.DefaultConfig().SettleDelay, "Wait after opening while the controller resets")
	flags.String("neutral", "", "Position to return to when a run ends")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Write JSON logs to this file with rotation")
	flags.String("nats-url", "", "Publish events to this NATS server")
	flags.String("nats-subject", "valve", "Subject prefix for published events")

	bind := map[string]string{
		"port":            "port",
		"baud":            "baud",
		"driver":          "driver",
		"positions":       "positions",
		"strict_matching": "strict-matching",
		"settle_delay":    "settle-delay",
		"neutral":         "neutral",
		"log.level":       "log-level",
		"log.file":        "log-file",
		"nats.url":        "nats-url",
		"nats.subject":    "nats-subject",
	}
	for key, flag := range bind {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(flag)))
	}

	viper.SetDefault("log.max_size_mb", 10)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.compress", true)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/valvectl")
		}
		viper.SetConfigName("valvectl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VALVECTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
	}
}

// newLogger builds the logger from the log.* settings.
func newLogger() (*slog.Logger, io.Closer) {
	return logging.New(logging.Config{
		Level:      viper.GetString("log.level"),
		File:       viper.GetString("log.file"),
		MaxSizeMB:  viper.GetInt("log.max_size_mb"),
		MaxBackups: viper.GetInt("log.max_backups"),
		Compress:   viper.GetBool("log.compress"),
	})
}

// controllerOptions maps the settings onto controller options.
func controllerOptions(logger *slog.Logger) ([]valve.Option, error) {
	driver, err := valve.ParseDriver(viper.GetString("driver"))
	if err != nil {
		return nil, fmt.Errorf("driver %q: %w", viper.GetString("driver"), err)
	}
	return []valve.Option{
		valve.WithLogger(logger),
		valve.WithBaudRate(viper.GetInt("baud")),
		valve.WithDriver(driver),
		valve.WithPositions(viper.GetString("positions")),
		valve.WithStrictMatching(viper.GetBool("strict_matching")),
		valve.WithSettleDelay(viper.GetDuration("settle_delay")),
	}, nil
}

// sequenceOptions maps the settings onto engine options.
func sequenceOptions() ([]sequence.Option, error) {
	neutral := viper.GetString("neutral")
	if neutral == "" {
		return nil, nil
	}
	p, err := valve.ParsePosition(neutral)
	if err != nil {
		return nil, fmt.Errorf("neutral: %w", err)
	}
	return []sequence.Option{sequence.WithNeutral(p), sequence.WithReturnOnComplete(true)}, nil
}

// newSession creates a session from the settings. extra options are applied
// after the configured ones.
func newSession(logger *slog.Logger, extra ...valve.Option) (*session.Session, error) {
	valveOpts, err := controllerOptions(logger)
	if err != nil {
		return nil, err
	}
	seqOpts, err := sequenceOptions()
	if err != nil {
		return nil, err
	}
	return session.New(
		session.WithLogger(logger),
		session.WithControllerOptions(append(valveOpts, extra...)...),
		session.WithSequenceOptions(seqOpts...),
	)
}

// connectSession connects to the configured port, or to the controller found
// by detection when no port is set.
func connectSession(ctx context.Context, s *session.Session) (string, error) {
	port := viper.GetString("port")
	if port == "" {
		d, err := s.Detect(ctx)
		if err != nil {
			return "", err
		}
		if d.Mode == valve.ModeNone {
			return "", errors.New("no valve controller found; use --port")
		}
		port = d.Candidate.Name
		fmt.Fprintf(os.Stderr, "Using %s (%s)\n", port, d.Mode)
	}
	if err := s.Connect(ctx, port); err != nil {
		return "", fmt.Errorf("connect %s: %w", port, err)
	}
	return port, nil
}

// newPublisher connects to NATS when nats.url is set. Without it the
// returned publisher is nil and publishes nothing.
func newPublisher(logger *slog.Logger) (*events.Publisher, func(), error) {
	url := viper.GetString("nats.url")
	if url == "" {
		return nil, func() {}, nil
	}
	conn, err := events.Connect(url, "valvectl", logger)
	if err != nil {
		return nil, nil, err
	}
	hostname, _ := os.Hostname()
	instance := viper.GetString("nats.instance")
	if instance == "" {
		instance = hostname
	}
	pub := events.NewPublisher(&events.PublisherConfig{
		Conn:     conn,
		Subject:  events.BuildSubject(viper.GetString("nats.subject"), instance),
		Instance: instance,
		Logger:   logger,
	})
	return pub, func() { conn.Drain() }, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
