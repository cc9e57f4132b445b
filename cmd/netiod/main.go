// Command netiod hosts a Transceiver as a long-running process: it loads
// configuration, configures logging, starts the Transceiver's loop
// goroutine, and — when enabled — serves the read-only admin API
// alongside it. The Transceiver itself has no ports open at start; ports
// are added by the pipeline code that embeds this package (the daemon
// binary exists to prove out the wiring and to host the admin surface,
// the way the teacher's cmd/hydradns hosts its runner + API pair).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wavecast/netio/internal/adminapi"
	"github.com/wavecast/netio/internal/adminapi/handlers"
	"github.com/wavecast/netio/internal/bufpool"
	"github.com/wavecast/netio/internal/config"
	"github.com/wavecast/netio/internal/logging"
	"github.com/wavecast/netio/internal/transceiver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values.
type cliFlags struct {
	configPath   string
	jsonLogs     bool
	debug        bool
	adminEnabled bool
	adminHost    string
	adminPort    int
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.adminEnabled, "admin", false, "Enable the read-only admin API")
	flag.StringVar(&f.adminHost, "admin-host", "", "Override admin API bind host")
	flag.IntVar(&f.adminPort, "admin-port", 0, "Override admin API bind port")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
	if f.adminEnabled {
		cfg.Admin.Enabled = true
	}
	if f.adminHost != "" {
		cfg.Admin.Host = f.adminHost
	}
	if f.adminPort != 0 {
		cfg.Admin.Port = f.adminPort
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("netiod starting",
		"listen_backlog", cfg.Server.ListenBacklog,
		"admin_enabled", cfg.Admin.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool := bufpool.NewBufferPool(bufpool.DefaultSize)
	tc := transceiver.New(logger, pool)

	var adminSrv *adminapi.Server
	if cfg.Admin.Enabled {
		adminSrv = adminapi.New(cfg.Admin.Host, cfg.Admin.Port, cfg.Admin.APIKey, logger)
		adminSrv.Handler().SetStatsFunc(func() handlers.TransceiverStatsSnapshot {
			s := tc.Stats()
			return handlers.TransceiverStatsSnapshot{
				OpenPorts:      s.OpenPorts,
				ClosingPorts:   s.ClosingPorts,
				TasksSubmitted: s.TasksSubmitted,
				TasksCompleted: s.TasksCompleted,
				TaskQueueDepth: s.TaskQueueDepth,
			}
		})

		logger.Info("admin api starting", "addr", adminSrv.Addr())
		go func() {
			serveErr := adminSrv.ListenAndServe()
			if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) {
				return
			}
			logger.Error("admin api error", "err", serveErr)
			cancel()
		}()
	}

	<-ctx.Done()
	logger.Info("netiod shutting down")

	closeTimeout := 5 * time.Second
	if d, err := time.ParseDuration(cfg.Server.CloseTimeout); err == nil && d > 0 {
		closeTimeout = d
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	if err := tc.Close(closeCtx); err != nil {
		logger.Error("transceiver close error", "err", err)
	}

	if adminSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = adminSrv.Shutdown(shutdownCtx)
		shutdownCancel()
		logger.Info("admin api stopped")
	}

	return nil
}
