// cmd/streamkegd/main.go
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/FairForge/streamkeg/internal/cache"
	"github.com/FairForge/streamkeg/internal/config"
	"github.com/FairForge/streamkeg/internal/diskio"
	"github.com/FairForge/streamkeg/internal/dispatch"
	"github.com/FairForge/streamkeg/internal/group"
	"github.com/FairForge/streamkeg/internal/metrics"
	"github.com/FairForge/streamkeg/internal/protocol"
	"github.com/FairForge/streamkeg/internal/registry"
	"github.com/FairForge/streamkeg/internal/users"
	"github.com/FairForge/streamkeg/internal/wire"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	configPath := os.Getenv("STREAMKEG_CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	if configPath != "" {
		watchConfigFile(configPath, logger)
	}

	if err := os.MkdirAll(cfg.Data.Path, 0750); err != nil {
		logger.Fatal("failed to create data directory", zap.String("path", cfg.Data.Path), zap.Error(err))
	}

	pool := diskio.New(cfg.Data.DiskIOConcurrency)
	quota := cache.NewQuota(cfg.Data.CacheQuotaBytes)

	reg, err := registry.Boot(cfg.Data.Path, pool, quota)
	if err != nil {
		logger.Fatal("failed to boot registry", zap.String("path", cfg.Data.Path), zap.Error(err))
	}
	logger.Info("registry booted", zap.String("path", cfg.Data.Path))

	jwtSecret := []byte(cfg.Auth.JWTSecret)
	if len(jwtSecret) == 0 {
		logger.Warn("no STREAMKEG_JWT_SECRET set, running with an ephemeral signing key")
		jwtSecret = make([]byte, 32)
		if _, err := rand.Read(jwtSecret); err != nil {
			logger.Fatal("failed to generate ephemeral signing key", zap.Error(err))
		}
	}
	userMgr := users.NewManager(jwtSecret, cfg.Auth.TokenTTL)
	groups := group.NewManager()
	m := metrics.New()

	d := dispatch.New(reg, groups, userMgr, m, logger, cfg)

	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: m.Handler()}
	go func() {
		logger.Info("metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("address", cfg.Server.ListenAddress), zap.Error(err))
	}

	srv := &server{listener: listener, dispatcher: d, logger: logger}
	go srv.serve()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		_ = listener.Close()
		_ = metricsServer.Shutdown(ctx)
		os.Exit(0)
	}()

	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════╗\n")
	fmt.Printf("║       streamkeg broker started       ║\n")
	fmt.Printf("╠══════════════════════════════════════╣\n")
	fmt.Printf("║  Listen:  %-28s ║\n", cfg.Server.ListenAddress)
	fmt.Printf("║  Metrics: %-28s ║\n", cfg.Server.MetricsAddress)
	fmt.Printf("║  Data:    %-28s ║\n", cfg.Data.Path)
	fmt.Printf("╚══════════════════════════════════════╝\n")
	fmt.Printf("\n")

	select {}
}

// server accepts TCP connections framed per internal/protocol and serves
// each one on its own goroutine until the connection closes.
type server struct {
	listener   net.Listener
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

func (s *server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if isClosed(err) {
				return
			}
			s.logger.Error("accept failed", zap.Error(err))
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	remote := conn.RemoteAddr().String()
	s.logger.Debug("connection opened", zap.String("remote", remote))

	for {
		frame, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("connection read failed", zap.String("remote", remote), zap.Error(err))
			}
			return
		}

		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			writeErr := wire.New(wire.KindInvalidCommand, "malformed frame: %v", err)
			if _, err := conn.Write(protocol.EncodeError(writeErr)); err != nil {
				return
			}
			continue
		}

		resp := s.dispatcher.Dispatch(req)
		if _, err := conn.Write(resp); err != nil {
			s.logger.Debug("connection write failed", zap.String("remote", remote), zap.Error(err))
			return
		}
	}
}

// readFrame reads one length-prefixed request frame: a 4-byte little
// endian length followed by that many bytes of code+payload.
func readFrame(conn net.Conn) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	total, err := wire.ReadUint32(lenBuf[:])
	if err != nil {
		return nil, err
	}
	body := make([]byte, total)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// watchConfigFile logs a warning when the config file on disk changes. The
// core takes its configuration as a one-time snapshot at boot (internal/config
// is never re-read by a running process), so a change here can't be hot
// reloaded; this only tells the operator a restart is needed.
func watchConfigFile(path string, logger *zap.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config file watcher unavailable", zap.Error(err))
		return
	}
	if err := watcher.Add(path); err != nil {
		logger.Warn("failed to watch config file", zap.String("path", path), zap.Error(err))
		_ = watcher.Close()
		return
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					logger.Warn("config file changed on disk, restart to apply", zap.String("path", path))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config file watcher error", zap.Error(err))
			}
		}
	}()
}
