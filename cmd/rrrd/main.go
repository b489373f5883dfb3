// Command rrrd is the routing daemon entrypoint: it loads a TOML
// configuration, stands up the shared services, and runs every
// configured instance until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	rrr "github.com/rrrd/rrr"
	"github.com/rrrd/rrr/internal/broker"
	"github.com/rrrd/rrr/internal/config"
	"github.com/rrrd/rrr/internal/diag"
	sconfig "github.com/rrrd/rrr/services/config"
	"github.com/rrrd/rrr/services/diagnostic"
	"github.com/rrrd/rrr/services/stats"
	"github.com/rrrd/rrr/services/storage"
	"github.com/rrrd/rrr/vars"
	"github.com/rrrd/rrr/wlog"
)

func main() {
	configPath := flag.String("config", "rrrd.toml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "rrrd:", err)
		os.Exit(1)
	}
}

// newDiagContext builds the daemon's root diagnostic context: a zap
// production core at the configured level, teed through the fan-out
// service so additional subscribers observe the same events.
func newDiagContext(cfg diagnostic.Config, svc diagnostic.Service) (diag.Context, error) {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		// The legacy level names (DEBUG/INFO/WARN/ERROR) are upper-case;
		// zap wants lower.
		if err := level.Set(lower(cfg.Level)); err != nil {
			return diag.Context{}, err
		}
	}

	sink := zapcore.Lock(os.Stderr)
	if cfg.File != "" && cfg.File != "STDERR" && cfg.File != "STDOUT" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return diag.Context{}, err
		}
		sink = zapcore.Lock(f)
	} else if cfg.File == "STDOUT" {
		sink = zapcore.Lock(os.Stdout)
	}

	encoder := zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig())
	primary := zapcore.NewCore(encoder, sink, level)
	return diag.NewSubscriberContext(primary, svc, level), nil
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := wlog.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}

	diagService := diagnostic.NewService()
	if err := diagService.Open(); err != nil {
		return err
	}
	d, err := newDiagContext(cfg.Logging, diagService)
	if err != nil {
		return err
	}
	defer func() { _ = d.Sync() }()

	vars.HostVar.Set(cfg.Hostname)

	storageService := storage.NewService(cfg.Storage,
		wlog.New(os.Stderr, "[storage] ", 0), cfg.DataDir)
	if err := storageService.Open(); err != nil {
		return err
	}
	defer func() { _ = storageService.Close() }()

	// The override layer persists runtime configuration updates across
	// restarts and re-emits them to the instances they name.
	updates := make(chan sconfig.ConfigUpdate, 16)
	configService := sconfig.NewService(cfg, wlog.New(os.Stderr, "[config] ", 0), updates)
	configService.StorageService = storageService
	if err := configService.Open(); err != nil {
		return err
	}
	go func() {
		for update := range updates {
			d.Info("configuration override applied", zap.String("section", update.Name))
		}
	}()

	host := rrr.NewHost(d.Named("host"), broker.DefaultThresholds)
	for _, inst := range cfg.Instance {
		if err := host.AddInstance(inst); err != nil {
			return err
		}
	}

	statsService := stats.NewService(cfg.Stats, wlog.New(os.Stderr, "[stats] ", 0))
	statsService.Broker = host.Broker()
	if cfg.Stats.Enabled {
		host.Broker().RegisterCustomer(cfg.Stats.Customer, broker.KindFIFO, 0, nil)
		statsService.Register(vars.NumInstancesVarName, vars.NumInstancesVar)
		statsService.Register(vars.NumHoldersAliveVarName, vars.NumHoldersAliveVar)
		statsService.Register(vars.NumASDResendsVarName, vars.NumASDResendsVar)
		statsService.Register(vars.NumMessagesInVarName, vars.NumMessagesInVar)
		statsService.Register(vars.NumMessagesOutVarName, vars.NumMessagesOutVar)
		if err := statsService.Open(); err != nil {
			return err
		}
		defer func() { _ = statsService.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := host.Open(ctx); err != nil {
		return err
	}
	d.Info("rrrd started", zap.Int("instances", len(cfg.Instance)))

	<-ctx.Done()
	d.Info("rrrd stopping")
	return host.Close()
}
