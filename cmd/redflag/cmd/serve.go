package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-redflag-service/cmd/redflag/config"
	"golang-redflag-service/internal/analyzer"
	"golang-redflag-service/internal/api"
	"golang-redflag-service/internal/normalize"
	"golang-redflag-service/internal/rules"
	"golang-redflag-service/internal/store"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the case API over HTTP",
	Long: `Serve exposes case ingestion, analysis, alerts, metrics and rule
management over HTTP, backed by the configured case store.

Examples:
  redflag serve --addr :8080
  REDFLAG_STORE_DRIVER=postgres REDFLAG_STORE_DSN=postgres://localhost/redflag redflag serve
  redflag serve --rules rules.yaml --watch-rules`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().String("rules", "", "YAML rule book for cases without stored rules")
	serveCmd.Flags().Bool("watch-rules", false, "reload the rule book when it changes")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("rules.file", serveCmd.Flags().Lookup("rules"))
	viper.BindPFlag("rules.watch", serveCmd.Flags().Lookup("watch-rules"))
}

// server bundles the HTTP server with the resources it must release.
type server struct {
	http      *http.Server
	store     store.CaseStore
	stopWatch func()
	timeout   time.Duration
	logger    logger.Logger
}

// newServer opens the store, the optional rule book and the router
// described by cfg.
func newServer(ctx context.Context, cfg *config.Config, fs afero.Fs, log logger.Logger) (*server, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	caseStore, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	srv := &server{store: caseStore, timeout: cfg.Server.ShutdownTimeout, logger: log}
	opts := analyzer.Options{
		Store:      caseStore,
		Normalizer: normalize.New(normalize.Options{Location: loc, Logger: log}),
		Logger:     log,
	}

	if cfg.Rules.File != "" {
		loader, err := rules.NewLoader(fs, cfg.Rules.File)
		if err != nil {
			caseStore.Close()
			return nil, err
		}
		if cfg.Rules.Watch {
			stop, err := loader.Watch()
			if err != nil {
				caseStore.Close()
				return nil, err
			}
			srv.stopWatch = stop
		}
		opts.Rules = loader
	}

	a, err := analyzer.New(opts)
	if err != nil {
		srv.Close()
		return nil, err
	}

	srv.http = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(a, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.http.Addr).Info("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.InternalError(errors.CodeUnexpectedError, "listen", err).
				WithSuggestion(fmt.Sprintf("check that %s is free", s.http.Addr))
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "shutdown", err)
	}
	return nil
}

// Close stops the rule watcher and closes the store.
func (s *server) Close() error {
	if s.stopWatch != nil {
		s.stopWatch()
	}
	return s.store.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	if appConfig == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "config", nil, nil)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger()
	srv, err := newServer(ctx, appConfig, appFs, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.WithError(err).Warn("Failed to release server resources")
		}
	}()

	return srv.Run(ctx)
}
