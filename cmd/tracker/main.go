// Command tracker runs a standalone BitTorrent tracker: an HTTP frontend
// answering announce and scrape requests, backed by a SQL persistence
// store, alongside a Prometheus metrics server.
package main

import (
	"errors"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coelacanth/tracker/config"
	httpfrontend "github.com/coelacanth/tracker/frontend/http"
	"github.com/coelacanth/tracker/pkg/metrics"
	"github.com/coelacanth/tracker/pkg/stop"
	"github.com/coelacanth/tracker/store/sqlstore"
	"github.com/coelacanth/tracker/tracker"
)

func run(configFilePath, cpuProfilePath string) error {
	if cpuProfilePath != "" {
		log.Println("enabled CPU profiling to " + cpuProfilePath)
		f, err := os.Create(cpuProfilePath)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	cfg, err := config.Open(configFilePath)
	if err != nil {
		return errors.New("failed to read config: " + err.Error())
	}

	store, err := sqlstore.Open(sqlstore.Config{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DSN,
	})
	if err != nil {
		return errors.New("failed to open store: " + err.Error())
	}

	trackerCfg := tracker.Config{
		AnnounceInterval: cfg.Tracker.AnnounceInterval.Duration,
		CompactDefault:   cfg.Tracker.CompactDefault,
	}
	if cfg.Tracker.DefaultIP != "" {
		trackerCfg.DefaultIP = net.ParseIP(cfg.Tracker.DefaultIP)
	}
	logic := tracker.New(store, trackerCfg)

	metricsServer := metrics.NewServer(cfg.Metrics.Addr)

	frontend := httpfrontend.New(logic, cfg.HTTP)

	errChan := make(chan error, 1)
	go func() {
		log.Println("started serving HTTP on", cfg.HTTP.Addr)
		if err := frontend.ListenAndServe(); err != nil {
			errChan <- errors.New("http frontend: " + err.Error())
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Println("received", sig, "shutting down")
	case err := <-errChan:
		log.Println(err)
	}

	shutdown := stop.NewGroup()
	shutdown.Add(frontend)
	shutdown.Add(metricsServer)
	for _, err := range shutdown.Stop().Wait() {
		if err != nil {
			log.Println("shutdown:", err)
		}
	}

	return nil
}

func main() {
	var configFilePath string
	var cpuProfilePath string

	rootCmd := &cobra.Command{
		Use:   "tracker",
		Short: "BitTorrent Tracker",
		Long:  "A BitTorrent tracker answering announce and scrape requests over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(configFilePath, cpuProfilePath); err != nil {
				log.Fatal(err)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFilePath, "config", "/etc/tracker.yaml", "location of configuration file")
	rootCmd.Flags().StringVarP(&cpuProfilePath, "cpuprofile", "", "", "location to save a CPU profile")

	rootCmd.AddCommand(newPublishCommand(&configFilePath))

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
