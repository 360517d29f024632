package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/streamhosts/pkg/config"
	"github.com/streamhosts/pkg/discovery"
	"github.com/streamhosts/pkg/host"
	"github.com/streamhosts/pkg/hostmgr"
	"github.com/streamhosts/pkg/logging"
	"github.com/streamhosts/pkg/poller"
	"github.com/streamhosts/pkg/protocol"
	"github.com/streamhosts/pkg/store"
	"github.com/streamhosts/pkg/web"
)

var (
	configFile    = kingpin.Flag("config.file", "Path to configuration file.").Default("config.yaml").String()
	listenAddress = kingpin.Flag("web.listen-address", "Address to listen on for the API and telemetry.").String()
	telemetryPath = kingpin.Flag("web.telemetry-path", "Path under which to expose metrics.").String()
	storePath     = kingpin.Flag("store.path", "File the known hosts are saved to. Empty keeps them in memory.").String()
	addHosts      = kingpin.Flag("add-host", "Address of a host to add at startup (repeatable).").Strings()

	// Global config
	appConfig *config.Config
)

func main() {
	kingpin.Parse()

	// Load configuration
	var err error
	appConfig, err = config.LoadConfig(*configFile)
	if err != nil {
		// If config file doesn't exist, continue with defaults
		logging.Logf("Warning: Failed to load config file: %v, using defaults", err)
		appConfig = config.Default()
	}
	if *listenAddress != "" {
		appConfig.Web.ListenAddress = *listenAddress
	}
	if *telemetryPath != "" {
		appConfig.Web.TelemetryPath = *telemetryPath
	}
	if *storePath != "" {
		appConfig.Store.Path = *storePath
	}
	appConfig.Hosts = append(appConfig.Hosts, *addHosts...)

	if err := logging.Init(appConfig.Log.Level, appConfig.Log.Format); err != nil {
		logging.Fatalf("Invalid log configuration: %v", err)
	}
	defer logging.Flush()
	logging.Logf("Client initialized with ID: %s", logging.GetClientID())

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logging.Log("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		logging.Fatalf("Host manager error: %v", err)
	}
}

func run(ctx context.Context) error {
	querier := protocol.NewHTTPClient(appConfig.Client.UniqueID, appConfig.Client.HTTPPort, appConfig.GetRequestTimeout())
	defer querier.CloseIdleConnections()

	var hostStore store.Store = store.NewMemoryStore()
	if appConfig.Store.Path != "" {
		fileStore, err := store.NewFileStore(appConfig.Store.Path)
		if err != nil {
			return err
		}
		hostStore = fileStore
		logging.Logf("Hosts are saved to %s", fileStore.Path())
	} else {
		logging.Logf("No store path configured, hosts are kept in memory only")
	}

	opts := hostmgr.Options{
		Querier: querier,
		Store:   hostStore,
		Poll: poller.Config{
			Interval:        appConfig.GetPollInterval(),
			AppListInterval: appConfig.GetAppListInterval(),
		},
		PollingDisabled: !appConfig.PollingEnabled(),
		Waker:           &host.Waker{Ports: appConfig.Wake.Ports},
		ResolveRetry:    appConfig.GetResolveRetryInterval(),
	}
	if appConfig.DiscoveryEnabled() {
		opts.Browser = discovery.NewZeroconfBrowser(appConfig.Discovery.ServiceType, appConfig.Discovery.Domain)
	}

	manager, err := hostmgr.NewManager(opts)
	if err != nil {
		return fmt.Errorf("failed to create host manager: %w", err)
	}
	defer manager.Close()

	api := web.NewServer(manager, manager.Registry(), web.Options{
		TelemetryPath:  appConfig.Web.TelemetryPath,
		WakeRate:       appConfig.Wake.RateLimit,
		WakeBurst:      appConfig.Wake.RateBurst,
		RequestTimeout: appConfig.GetRequestTimeout(),
	})
	defer api.Close()

	manager.StartPolling()

	// Add configured hosts in the background so a dead address does not hold up startup
	var wg sync.WaitGroup
	for _, address := range appConfig.Hosts {
		wg.Add(1)
		go func(address string) {
			defer wg.Done()
			if !manager.AddHost(ctx, address) {
				logging.Warnf("Configured host %s did not answer", address)
			}
		}(address)
	}

	serveErr := api.ListenAndServe(ctx, appConfig.Web.ListenAddress)

	// Workers are detached; each one exits on its own after the request to stop
	manager.StopPollingAsync()
	wg.Wait()
	return serveErr
}
