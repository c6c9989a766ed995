// Taskpulse — task tracking service with a live WebSocket event channel and
// a periodic importer pulling tasks from an external catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"taskpulse/pkg/api"
	"taskpulse/pkg/bus"
	"taskpulse/pkg/catalog"
	"taskpulse/pkg/config"
	"taskpulse/pkg/importer"
	"taskpulse/pkg/logger"
	"taskpulse/pkg/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "taskpulse:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	evbus := bus.New()
	defer evbus.Close()

	imp := importer.New(st, catalog.New(cfg.Catalog), evbus)
	sched := importer.NewScheduler(imp, cfg.Import)
	go sched.Run(ctx)

	srv := api.NewServer(cfg, st, evbus, sched)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.InfoCF("main", "Taskpulse started", map[string]interface{}{
		"addr": cfg.ListenAddr(),
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")
	return srv.Stop()
}
