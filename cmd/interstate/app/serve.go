package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/interstate-love-song/broker/pkg/agent"
	"github.com/interstate-love-song/broker/pkg/config"
	"github.com/interstate-love-song/broker/pkg/logger"
	"github.com/interstate-love-song/broker/pkg/mapping"
	"github.com/interstate-love-song/broker/pkg/protocol"
	"github.com/interstate-love-song/broker/pkg/server"
	"github.com/interstate-love-song/broker/pkg/session"
	"github.com/interstate-love-song/broker/pkg/versions"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker",
	Long: `Run the broker.

The broker listens on server.address and speaks the PCoIP broker protocol
on /pcoip-broker/xml. Settings are read from the JSON file given with
--settings; omitted fields fall back to their defaults.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		settingsPath, err := cmd.Flags().GetString("settings")
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), settingsPath)
	},
}

func init() {
	serveCmd.Flags().String("settings", "", "Path to the JSON settings file")
}

func runServe(ctx context.Context, settingsPath string) error {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return err
	}

	mapper, err := newMapper(settings)
	if err != nil {
		return err
	}

	storage, err := newStorage(settings)
	if err != nil {
		return err
	}
	sessions := session.NewManager(storage, time.Duration(settings.Session.TTLMinutes)*time.Minute)
	defer func() {
		if err := sessions.Stop(); err != nil {
			logger.Warnf("Failed to close the session store: %v", err)
		}
	}()

	allocator := agent.NewClientBuilder().
		WithTimeout(time.Duration(settings.Agent.TimeoutSeconds) * time.Second).
		WithTLSVerification(settings.Agent.VerifyTLS).
		WithPort(settings.Agent.Port).
		Build()

	version := versions.GetVersionInfo().Version
	handler := protocol.NewHandler(mapper, allocator, version)

	srv := &http.Server{
		Addr: settings.Server.Address,
		Handler: server.NewRouter(server.Config{
			Handler:       handler,
			Sessions:      sessions,
			Version:       version,
			EnableMetrics: settings.Server.Metrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("broker listening",
			"address", settings.Server.Address,
			"mapper", mapper.Name(),
			"version", version,
		)
		if settings.Server.TLSCert != "" {
			errCh <- srv.ListenAndServeTLS(settings.Server.TLSCert, settings.Server.TLSKey)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-stop:
		logger.Infof("Received signal %v, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}

	return nil
}

func newMapper(settings *config.Settings) (mapping.Mapper, error) {
	switch settings.Mapper {
	case config.MapperSimple:
		s := settings.SimpleMapper
		return mapping.NewSimpleMapper(s.Username, s.PasswordHash, s.Resources, s.Domains), nil
	case config.MapperSimpleWebservice:
		s := settings.SimpleWebserviceMapper
		return mapping.NewWebserviceMapper(s.BaseURL, s.Domains), nil
	default:
		return nil, fmt.Errorf("unknown mapper %q", settings.Mapper)
	}
}

func newStorage(settings *config.Settings) (session.Storage, error) {
	switch settings.Session.Type {
	case config.SessionStoreMemory:
		return session.NewMemoryStorage(), nil
	case config.SessionStoreFile:
		return session.NewFileStorage(settings.Session.DataDir)
	default:
		return nil, fmt.Errorf("unknown session store type %q", settings.Session.Type)
	}
}
