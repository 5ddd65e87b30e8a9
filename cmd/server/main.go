package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"medpredict/internal/api"
	"medpredict/internal/certs"
	"medpredict/internal/config"
	"medpredict/internal/logging"
	"medpredict/internal/predict"
)

var (
	configPath string
	addr       string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "medpredict-server",
	Short: "Proxy intake vitals to the prediction service",
	Long: `Serves POST /api/predict, validating the four vitals and forwarding
them to the configured prediction service. Also serves /health and /time.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "medpredict.yaml", "path to YAML config")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	log, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // stderr sync fails on some terminals

	handler, err := buildHandler(cfg, log)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	if cfg.Server.TLSCert != "" {
		tlsCfg, err := certs.ServerTLS(cfg.Server.TLSCert, cfg.Server.TLSKey, time.Now())
		if err != nil {
			_ = ln.Close()
			return err
		}
		ln = tls.NewListener(ln, tlsCfg)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("server starting",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", cfg.Server.TLSCert != ""),
		zap.String("service_url", cfg.Predict.ServiceURL),
		zap.String("validation", cfg.Predict.Validation))

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.GetReadTimeout(),
	}
	return serve(ctx, srv, ln, cfg.GetShutdownTimeout(), log)
}

func buildHandler(cfg *config.Config, log *zap.Logger) (http.Handler, error) {
	mode, err := predict.ParseMode(cfg.Predict.Validation)
	if err != nil {
		return nil, err
	}
	plog := log.Named("predict")
	opts := []predict.ClientOption{
		predict.WithRetries(cfg.Predict.MaxRetries, cfg.GetRetryBackoff()),
		predict.WithClientLogger(plog),
	}
	if cfg.Predict.CAFile != "" {
		pool, err := certs.RootPool(cfg.Predict.CAFile)
		if err != nil {
			return nil, fmt.Errorf("predict.ca_file: %w", err)
		}
		opts = append(opts, predict.WithRootCAs(pool))
	}
	client := predict.NewClient(predict.ServiceEndpoint(cfg.Predict.ServiceURL), cfg.GetPredictTimeout(), opts...)
	return api.NewRouter(predict.NewService(client, mode, plog), log), nil
}

// serve runs srv on ln until ctx is done, then shuts down within grace.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration, log *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", zap.Duration("grace", grace))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
