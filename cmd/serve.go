package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/porthorian/cityauthz"
	"github.com/porthorian/cityauthz/pkg/identity"
	grpctransport "github.com/porthorian/cityauthz/pkg/transport/grpc"
	httptransport "github.com/porthorian/cityauthz/pkg/transport/http"
)

func init() {
	rootCmd.AddCommand(newServeCommand())
}

func newServeCommand() *cobra.Command {
	var envFile string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the decision API over HTTP (and gRPC health when CITYAUTHZ_GRPC_ADDR is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(envFile)
			if err != nil {
				return err
			}

			logger, syncLogger, err := newLogger(s.LogVerbosity, s.LogDevelopment)
			if err != nil {
				return err
			}
			defer syncLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, s, logger)
		},
	}
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading CITYAUTHZ_* variables.")

	return serveCmd
}

func serve(ctx context.Context, s settings, logger logr.Logger) error {
	config, err := s.clientConfig(logger.WithName("client"))
	if err != nil {
		return err
	}

	client, err := cityauthz.New(config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Error(closeErr, "failed to close client")
		}
	}()

	registry, err := identity.NewRegistry(identity.NewHeaderResolver())
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr: s.HTTPAddr,
		Handler: httptransport.NewRouter(client, registry, logger.WithName("http"), httptransport.RouterConfig{
			RateLimit:      s.RateLimit,
			RateWindow:     s.RateWindow,
			AllowedOrigins: s.AllowedOrigins,
		}),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	}

	var grpcServer *grpc.Server
	if s.GRPCAddr != "" {
		guard := grpctransport.Config{
			PublicMethods: []string{
				healthpb.Health_Check_FullMethodName,
				healthpb.Health_Watch_FullMethodName,
			},
			Logger: logger.WithName("grpc"),
		}
		grpcServer = grpc.NewServer(
			grpc.UnaryInterceptor(grpctransport.UnaryInterceptor(client, guard)),
			grpc.StreamInterceptor(grpctransport.StreamInterceptor(client, guard)),
		)
		healthpb.RegisterHealthServer(grpcServer, health.NewServer())
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", s.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			listener, err := net.Listen("tcp", s.GRPCAddr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			logger.Info("grpc server listening", "addr", s.GRPCAddr)
			if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()

		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
