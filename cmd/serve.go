/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/internal/httpapi"
	"github.com/allbin/go-valve/sequence"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the valve controller over HTTP",
	Long: `Run an HTTP API for discovery, manual control and sequence editing, with
prometheus metrics on /metrics and a server-sent event stream of button
presses on /events.

When --port is set the server connects at startup; otherwise a client
connects with POST /connect.

Examples:
  valvectl serve --addr :8080
  valvectl serve --port /dev/ttyACM0 --nats-url nats://localhost:4222`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		logger, closer := newLogger()
		defer closer.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		s, err := newSession(logger, valve.WithMetrics(valve.NewMetrics(reg)))
		if err != nil {
			fail("%v", err)
		}
		defer s.Close()

		pub, drain, err := newPublisher(logger)
		if err != nil {
			fail("%v", err)
		}
		defer drain()

		unsubscribe := s.OnHardwareEvent(func(p valve.Position) {
			pub.PublishHardwareEvent(s.PortName(), p)
		})
		defer unsubscribe()
		s.OnProgress(func(p sequence.Progress) { pub.PublishStep(s.PortName(), p) })
		s.OnFinish(func(r sequence.Result) { pub.PublishFinished(s.PortName(), r) })

		ctx, cancel := signalContext()
		defer cancel()

		if viper.GetString("port") != "" {
			port, err := connectSession(ctx, s)
			if err != nil {
				fail("%v", err)
			}
			pub.PublishConnected(port)
		}

		addr := viper.GetString("http.addr")
		server := &http.Server{
			Addr:              addr,
			Handler:           httpapi.NewHandler(s, httpapi.Options{Gatherer: reg, Logger: logger}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("Starting HTTP API", "addr", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
				cancel()
			}
		}()

		<-ctx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error stopping HTTP server", "err", err)
		}
		if port := s.PortName(); port != "" {
			pub.PublishDisconnected(port)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	cobra.CheckErr(viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr")))
}
