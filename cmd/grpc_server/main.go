// grpc_server exposes flappy environments to remote RL trainers.
//
// Usage:
//
//	grpc_server [--config path] [--env name] [--port n] [--host h] [--log-level lvl]
//	            [--max-envs n] [--enable-reflection]
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/config"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/grpc/envserver"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/monitoring"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/telemetry"
)

var (
	flagConfig           string
	flagEnv              string
	flagPort             int
	flagHost             string
	flagLogLevel         string
	flagMaxEnvs          int
	flagEnableReflection bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "grpc_server",
	Short: "Serve flappy RL environments over gRPC",
	Long: `Starts the flappy.v1.EnvService gRPC server.

Each CreateEnv call opens an independent single-agent environment that the
caller drives with Reset/Step/Observe and releases with CloseEnv. Sessions
idle past server.grpc_server.idle_timeout_seconds are closed automatically.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.Flags().StringVar(&flagEnv, "env", "", "Environment overlay to merge (loads config.<env>.yaml)")
	rootCmd.Flags().IntVar(&flagPort, "port", -1, "The server port (-1 to use config default)")
	rootCmd.Flags().StringVar(&flagHost, "host", "", "The server host (empty to use config default)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	rootCmd.Flags().IntVar(&flagMaxEnvs, "max-envs", -1, "Maximum concurrent environments (-1 to use config default)")
	rootCmd.Flags().BoolVar(&flagEnableReflection, "enable-reflection", false, "Enable gRPC reflection for debugging")
}

func run(cmd *cobra.Command, args []string) error {
	if err := config.Init(flagConfig); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if flagEnv != "" {
		if err := config.LoadEnvironmentConfig(flagEnv); err != nil {
			return fmt.Errorf("loading %s config: %w", flagEnv, err)
		}
	}

	cfg := config.Get()
	srv := &cfg.Server.GRPCServer

	// Flags override config values
	if flagPort != -1 {
		srv.Port = flagPort
	}
	if flagHost != "" {
		srv.Host = flagHost
	}
	if flagLogLevel != "" {
		srv.LogLevel = flagLogLevel
	}
	if flagMaxEnvs != -1 {
		srv.MaxEnvs = flagMaxEnvs
	}
	if flagEnableReflection {
		srv.EnableReflection = true
	}

	setupLogging(srv.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	log.Info().
		Int("port", srv.Port).
		Str("host", srv.Host).
		Int("max_envs", srv.MaxEnvs).
		Int("idle_timeout_s", srv.IdleTimeoutSeconds).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("Starting gRPC env server")

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", srv.Host, srv.Port))
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			loggingInterceptor,
			recoveryInterceptor,
		),
		grpc.ChainStreamInterceptor(
			streamLoggingInterceptor,
			streamRecoveryInterceptor,
		),
	)

	manager := envserver.NewEnvManager(envserver.ManagerConfigFrom(cfg, log.Logger))
	envserver.RegisterEnvServiceServer(grpcServer, envserver.NewServer(manager, log.Logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(envserver.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	if srv.EnableReflection {
		reflection.Register(grpcServer)
		log.Info().Msg("gRPC reflection enabled")
	}

	monitor := monitoring.NewGoroutineMonitor(monitoring.MonitorConfig{Logger: log.Logger})
	monitor.Start()
	defer monitor.Stop()

	// Log level is the only setting applied live; the rest needs a restart
	config.WatchConfig(func(c *config.Config) {
		setupLogging(c.Server.GRPCServer.LogLevel)
		log.Info().Str("log_level", c.Server.GRPCServer.LogLevel).Msg("Config reloaded")
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", lis.Addr().String()).Msg("gRPC server listening")
		serveErr <- grpcServer.Serve(lis)
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				monitor.RegisterComponent("envs", manager.ActiveEnvs())
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case err := <-serveErr:
		manager.Shutdown()
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Received shutdown signal")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(envserver.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Give ongoing requests time to complete
	time.Sleep(time.Duration(srv.GracefulShutdownDelay) * time.Second)

	log.Info().Msg("Gracefully stopping gRPC server")
	grpcServer.GracefulStop()
	manager.Shutdown()

	log.Info().Msg("Server shutdown complete")
	return nil
}

func setupLogging(level string) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if os.Getenv("APP_ENV") == "production" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}
