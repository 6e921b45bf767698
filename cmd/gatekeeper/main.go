package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkpress/gatekeeper/pkg/common"
	"github.com/inkpress/gatekeeper/pkg/config"
	"github.com/inkpress/gatekeeper/pkg/dependency_container"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/channel"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/event"
	"github.com/inkpress/gatekeeper/pkg/infra/jwt"
	infraLogger "github.com/inkpress/gatekeeper/pkg/infra/logger"
	"github.com/inkpress/gatekeeper/pkg/server"
	"github.com/inkpress/gatekeeper/pkg/server/router"
	"github.com/inkpress/gatekeeper/pkg/version"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	commandToken     = "token"
	serverTypeAll    = "all"
	defaultTokenTTL  = 12 * time.Hour
	shutdownDeadline = 15 * time.Second
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config"
	}
	if err := config.Load(configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	command := getServerType()
	if command == commandToken {
		if err := printAdminToken(cfg, os.Args[2:]); err != nil {
			log.Fatalf("failed to create token: %v", err)
		}
		return
	}

	logger, closeLogs, err := infraLogger.NewLogger(command, cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer closeLogs()
	logger.WithField("version", version.GetInfo().String()).Info("starting gatekeeper")

	if err := run(cfg, logger, command); err != nil {
		logger.WithError(err).Error("gatekeeper stopped with error")
		closeLogs()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logrus.Logger, serverType string) error {
	container, err := dependency_container.NewContainer(dependency_container.ContainerDI{
		Cfg:            cfg,
		Logger:         logger,
		EventsRegistry: event.Registry,
	})
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}
	defer container.Close()

	servers, err := initializeServers(serverType, cfg, logger, container)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// peers share blocks through redis, the local block cache only lives on the api side
	if container.RedisListener != nil && serverType != common.ServerTypeAdmin {
		g.Go(func() error {
			logger.Info("listening for rate limit events")
			container.RedisListener.Listen(gctx, channel.RateLimitEventsChannel)
			return nil
		})
	}

	if cfg.Sweep.Enabled && serverType != common.ServerTypeAdmin {
		g.Go(func() error {
			return container.Sweeper.Start(gctx)
		})
	}

	for _, srv := range servers {
		srv := srv
		g.Go(srv.Run)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		container.Sweeper.Shutdown()
		return shutdownServers(logger, servers)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server gracefully stopped")
	return nil
}

func getServerType() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return common.ServerTypeAPI
}

func initializeServers(
	serverType string,
	cfg *config.Config,
	logger *logrus.Logger,
	c *dependency_container.Container,
) ([]server.Server, error) {
	apiServer := func() server.Server {
		return server.NewAPIServer(server.APIServerDI{
			Config:  cfg,
			Logger:  logger,
			Routers: []router.ServerRouter{router.NewAPIRouter(c.MiddlewareTransport, c.HandlerTransport)},
		})
	}
	adminServer := func() server.Server {
		return server.NewAdminServer(server.AdminServerDI{
			Config:  cfg,
			Logger:  logger,
			Routers: []router.ServerRouter{router.NewAdminRouter(c.MiddlewareTransport, c.HandlerTransport, cfg)},
		})
	}

	switch serverType {
	case common.ServerTypeAPI:
		return []server.Server{apiServer()}, nil
	case common.ServerTypeAdmin:
		return []server.Server{adminServer()}, nil
	case serverTypeAll:
		return []server.Server{apiServer(), adminServer()}, nil
	}
	return nil, fmt.Errorf("unknown server type %q, expected %s, %s, %s or %s",
		serverType, common.ServerTypeAPI, common.ServerTypeAdmin, serverTypeAll, commandToken)
}

func shutdownServers(logger *logrus.Logger, servers []server.Server) error {
	done := make(chan error, 1)
	go func() {
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(); err != nil {
				errs = append(errs, err)
			}
		}
		done <- errors.Join(errs...)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(shutdownDeadline):
		logger.Warn("shutdown deadline exceeded")
		return context.DeadlineExceeded
	}
}

// printAdminToken writes a signed admin token to stdout: gatekeeper token <subject> [ttl]
func printAdminToken(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: gatekeeper token <subject> [ttl]")
	}
	ttl := defaultTokenTTL
	if len(args) > 1 {
		parsed, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid ttl %q: %w", args[1], err)
		}
		ttl = parsed
	}
	token, err := jwt.NewJwtManager(&cfg.Server).CreateToken(args[0], jwt.RoleAdmin, time.Now().Add(ttl))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
