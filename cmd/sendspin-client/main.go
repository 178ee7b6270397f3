// ABOUTME: Entry point for the Sendspin client
// ABOUTME: Loads config, finds a server and runs the session until signalled
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Sendspin/sendspin-client-go/internal/client"
	"github.com/Sendspin/sendspin-client-go/internal/config"
	"github.com/Sendspin/sendspin-client-go/internal/discovery"
	"github.com/Sendspin/sendspin-client-go/internal/logger"
	"github.com/Sendspin/sendspin-client-go/internal/nowplaying"
	"github.com/Sendspin/sendspin-client-go/internal/version"
)

var (
	serverURL = flag.String("server", "", "Server websocket URL (overrides config, skips mDNS)")
	authToken = flag.String("token", "", "Auth token (overrides config)")
	name      = flag.String("name", "", "Player friendly name (overrides config)")
)

const discoveryTimeout = 30 * time.Second

func main() {
	flag.Parse()

	log, err := logger.New("info")
	if err != nil {
		os.Exit(1)
	}

	cfg, err := config.NewConfig(log)
	if err != nil {
		log.Fatalw("Failed to create config", "error", err)
	}
	if err := cfg.Load(); err != nil {
		log.Fatalw("Failed to load config", "error", err)
	}

	// rebuild the logger at the configured level
	log, err = logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalw("Failed to create logger", "error", err)
	}
	named := log.Named("sendspin")

	applyFlagOverrides(cfg)

	named.Infow("Starting Sendspin client",
		"version", version.Version,
		"clientID", cfg.ClientID,
		"clientName", cfg.ClientName)

	if cfg.ServerURL == "" {
		url, err := discoverServer(named)
		if err != nil {
			named.Fatalw("No server configured and none discovered", "error", err)
		}
		cfg.ServerURL = url
	}

	store := nowplaying.NewStore()
	store.OnChange(func(state nowplaying.State) {
		if state.Track != "" {
			named.Infow("Now playing",
				"track", state.Track,
				"artist", state.Artist,
				"album", state.Album)
		}
	})

	session := client.NewSession(log, sessionOptions(cfg), store)
	session.Start()

	reload := cfg.SubscribeToChanges()
	go cfg.WatchConfigFileChanges()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-reload:
			named.Info("Config reloaded, restarting session")
			applyFlagOverrides(cfg)
			session.Stop()
			session = client.NewSession(log, sessionOptions(cfg), store)
			session.Start()

		case <-interrupt:
			named.Info("Shutting down")
			session.Stop()
			cfg.StopWatchingConfigFile()
			return
		}
	}
}

// applyFlagOverrides reasserts command line values after a config reload
func applyFlagOverrides(cfg *config.Config) {
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *authToken != "" {
		cfg.AuthToken = *authToken
	}
	if *name != "" {
		cfg.ClientName = *name
	}
}

func sessionOptions(cfg *config.Config) client.Options {
	return client.Options{
		ServerURL:      cfg.ServerURL,
		ClientID:       cfg.ClientID,
		ClientName:     cfg.ClientName,
		AuthToken:      cfg.AuthToken,
		OutputDevice:   cfg.OutputDevice,
		SyncDelay:      cfg.SyncDelay,
		HardwareVolume: cfg.HardwareVolume,
	}
}

// discoverServer browses mDNS until a server shows up or the timeout
// expires
func discoverServer(log *zap.SugaredLogger) (string, error) {
	log.Info("No server configured, browsing for one via mDNS")

	browser := discovery.NewBrowser(log)
	browser.Browse()
	defer browser.Stop()

	select {
	case server := <-browser.Servers():
		return server.URL(), nil
	case <-time.After(discoveryTimeout):
		return "", errors.New("mDNS discovery timed out")
	}
}
