package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/icecave/sniroute/cmd"
	"github.com/icecave/sniroute/control"
	"github.com/icecave/sniroute/health"
	"github.com/icecave/sniroute/ingest"
	"github.com/icecave/sniroute/keys"
	"github.com/icecave/sniroute/metrics"
	"github.com/icecave/sniroute/passthrough"
	"github.com/icecave/sniroute/registry"
	"github.com/icecave/sniroute/resolver"
	"github.com/icecave/sniroute/static"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

var version = "notset"

func main() {
	config := cmd.GetConfigFromEnvironment()
	logger := cmd.NewLogger(config)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, config, logger); err != nil {
		logger.Fatalln(err)
	}
}

func run(ctx context.Context, config *cmd.Config, logger *logrus.Logger) error {
	logger.WithField("version", version).Info("starting sniroute")

	mode, err := passthrough.ParseMode(config.RoutingMode)
	if err != nil {
		return err
	}

	if config.ProxyProtocolVersion != 1 && config.ProxyProtocolVersion != 2 {
		return fmt.Errorf("unsupported PROXY protocol version %d", config.ProxyProtocolVersion)
	}

	m := metrics.New()
	mem := &registry.Memory{}
	checkers := health.All{}

	var reg registry.Registry = mem

	if config.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Address,
			Password: config.Redis.Password,
		})
		defer client.Close()

		mirror := &registry.Mirror{
			Primary: mem,
			Secondary: &registry.Redis{
				Client: client,
				Prefix: config.Redis.Prefix,
			},
			Logger: logger,
		}

		if n, err := mirror.Restore(ctx); err != nil {
			logger.WithError(err).Warn("could not restore registry from redis")
		} else {
			logger.WithField("keys", n).Info("restored registry from redis")
		}

		reg = mirror
		checkers = append(checkers, &health.RedisChecker{Client: client})
		m.Register(metrics.NewRedisPoolCollector(client))
	}

	writer := registry.NewWriter(reg)

	ingestor := &ingest.Ingestor{
		Writer:  writer,
		Logger:  logger,
		Metrics: m,
		Timeout: config.UploadTimeout,
		MaxSize: config.MaxDocumentSize,
	}

	updater := &keys.Updater{
		Writer:  writer,
		Logger:  logger,
		Metrics: m,
	}

	res := &resolver.Resolver{
		Registry: mem,
		Selector: &resolver.Selector{
			Registry: mem,
		},
		Logger:          logger,
		Metrics:         m,
		FallbackAddress: config.FallbackAddress,
		RelayAddress:    config.RelaySocket,
	}

	if mem.Len(registry.Bulk) == 0 && mem.Len(registry.Hosts) == 0 {
		if err := seed(ctx, config, logger, ingestor, updater); err != nil {
			return err
		}
	}

	dialer := &passthrough.Dialer{
		Timeout: config.DialTimeout,
	}

	front := &passthrough.Server{
		Name:             "passthrough",
		Route:            passthrough.Route(res, mode),
		Dialer:           dialer,
		Logger:           logger,
		Metrics:          m,
		RelayAddress:     config.RelaySocket,
		HandshakeTimeout: config.HandshakeTimeout,
		MaxConnections:   int(config.MaxConnections),
	}

	relay := &passthrough.Server{
		Name:                 "relay",
		Route:                passthrough.ProxiedRoute(res),
		Dialer:               dialer,
		Logger:               logger,
		Metrics:              m,
		AcceptProxyProtocol:  true,
		ProxyProtocolVersion: byte(config.ProxyProtocolVersion),
		HandshakeTimeout:     config.HandshakeTimeout,
		MaxConnections:       int(config.MaxConnections),
	}

	checkers = append(
		health.All{
			&health.RegistryChecker{
				Registry: mem,
				Status:   ingestor.Status,
			},
		},
		checkers...,
	)

	controlServer := &http.Server{
		Addr: ":" + config.ControlPort,
		Handler: &control.Handler{
			Ingestor: ingestor,
			Updater:  updater,
			Resolver: res,
			Logger:   logger,
			Health: &health.HTTPHandler{
				Checker: checkers,
				Logger:  logger,
			},
			Metrics: m.Handler(),
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	frontListener, err := net.Listen("tcp", ":"+config.Port)
	if err != nil {
		return err
	}

	relayListener, err := listen(config.RelaySocket)
	if err != nil {
		frontListener.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, 4)
	count := 0

	start := func(fn func() error) {
		count++
		go func() {
			err := fn()
			cancel()
			results <- err
		}()
	}

	start(func() error { return front.Serve(ctx, frontListener) })
	start(func() error { return relay.Serve(ctx, relayListener) })

	start(func() error {
		logger.WithField("address", controlServer.Addr).Info("control: listening")
		if err := controlServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if config.ConfigStreamAddress != "" {
		stream := &control.StreamServer{
			Ingestor: ingestor,
			Logger:   logger,
		}

		if streamListener, err := listen(config.ConfigStreamAddress); err != nil {
			cancel()
			results <- err
			count++
		} else {
			start(func() error { return stream.Serve(ctx, streamListener) })
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	err = controlServer.Shutdown(shutdownCtx)

	for i := 0; i < count; i++ {
		err = multierr.Append(err, <-results)
	}

	return err
}

// seed writes the static routes from the environment and the bootstrap file
// to an empty registry.
func seed(
	ctx context.Context,
	config *cmd.Config,
	logger *logrus.Logger,
	ingestor *ingest.Ingestor,
	updater *keys.Updater,
) error {
	routes, err := static.FromEnv(logger)
	if err != nil {
		return err
	}

	// environment routes take precedence over the bootstrap file, which takes
	// precedence over the object store
	var base static.Routes

	if o := config.BootstrapObject; o.Endpoint != "" {
		source, err := static.NewObjectSource(o.Endpoint, o.Region, o.Bucket, o.Object, o.AccessKey, o.SecretKey, o.UseSSL)
		if err != nil {
			return err
		}

		fromObject, err := source.Load(ctx)
		if err != nil {
			return err
		}

		base.Merge(fromObject)
	}

	if config.BootstrapFile != "" {
		fromFile, err := static.FromFile(config.BootstrapFile)
		if err != nil {
			return err
		}

		base.Merge(fromFile)
	}

	base.Merge(routes)
	routes = base

	if routes.Empty() {
		return nil
	}

	return routes.Seed(ctx, ingestor, updater)
}

// listen opens a listener on address, which is either a TCP address or a Unix
// socket path prefixed with "unix:". A stale socket file is removed first.
func listen(address string) (net.Listener, error) {
	if !strings.HasPrefix(address, passthrough.UnixPrefix) {
		return net.Listen("tcp", address)
	}

	path := strings.TrimPrefix(address, passthrough.UnixPrefix)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return net.Listen("unix", path)
}
