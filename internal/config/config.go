// ABOUTME: Application configuration loading and live reload
// ABOUTME: Viper-backed config file with validation and change subscriptions
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

// Config provides application-wide access to configuration fields, as
// well as loading and file watching logic for the configuration file
type Config struct {
	ServerURL      string
	ClientID       string
	ClientName     string
	AuthToken      string
	OutputDevice   string
	SyncDelay      time.Duration
	LogLevel       string
	HardwareVolume bool

	logger             *zap.SugaredLogger
	stopWatcherChannel chan bool
	reloadConsumers    []chan bool

	viper *viper.Viper
}

const (
	configFilepath = "config.yaml"
	configName     = "config"
	configPath     = "."
	configType     = "yaml"

	configKeyServerURL      = "server_url"
	configKeyClientID       = "client_id"
	configKeyClientName     = "client_name"
	configKeyAuthToken      = "auth_token"
	configKeyOutputDevice   = "output_device"
	configKeySyncDelayMs    = "sync_delay_ms"
	configKeyLogLevel       = "log_level"
	configKeyHardwareVolume = "hardware_volume"

	defaultLogLevel = "info"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// NewConfig creates a config instance and sets up its viper backing
func NewConfig(logger *zap.SugaredLogger) (*Config, error) {
	logger = logger.Named("config")

	cfg := &Config{
		logger:             logger,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(configPath)

	v.SetDefault(configKeyServerURL, "")
	v.SetDefault(configKeyClientID, "")
	v.SetDefault(configKeyClientName, "")
	v.SetDefault(configKeyAuthToken, "")
	v.SetDefault(configKeyOutputDevice, "")
	v.SetDefault(configKeySyncDelayMs, 0)
	v.SetDefault(configKeyLogLevel, defaultLogLevel)
	v.SetDefault(configKeyHardwareVolume, true)

	cfg.viper = v

	logger.Debug("Created config instance")

	return cfg, nil
}

// Load reads the config file from disk and validates it
func (cfg *Config) Load() error {
	cfg.logger.Debugw("Loading config", "path", configFilepath)

	if err := cfg.viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("read config: %w", err)
		}
		cfg.logger.Debugw("No config file found, using defaults", "path", configFilepath)
	}

	if err := cfg.populateFromViper(); err != nil {
		return fmt.Errorf("populate config fields: %w", err)
	}

	cfg.logger.Info("Loaded config successfully")
	cfg.logger.Infow("Config values",
		"serverURL", cfg.ServerURL,
		"clientID", cfg.ClientID,
		"clientName", cfg.ClientName,
		"outputDevice", cfg.OutputDevice,
		"syncDelay", cfg.SyncDelay,
		"logLevel", cfg.LogLevel,
		"hardwareVolume", cfg.HardwareVolume)

	return nil
}

// SubscribeToChanges allows external components to receive updates
// when the config is reloaded
func (cfg *Config) SubscribeToChanges() chan bool {
	c := make(chan bool)
	cfg.reloadConsumers = append(cfg.reloadConsumers, c)

	return c
}

// WatchConfigFileChanges starts watching for configuration file
// changes and attempts reloading the config when they happen.
// Blocks until StopWatchingConfigFile is called.
func (cfg *Config) WatchConfigFileChanges() {
	cfg.logger.Debugw("Starting to watch config file for changes", "path", configFilepath)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	cfg.viper.WatchConfig()
	cfg.viper.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&fsnotify.Write != fsnotify.Write {
			return
		}

		now := time.Now()

		// many editors write the file twice in quick succession
		if !lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {
			return
		}

		cfg.logger.Debugw("Config file modified, attempting reload", "event", event)

		// let the editor flush the new contents to disk first
		<-time.After(delayBetweenEventAndReload)

		if err := cfg.Load(); err != nil {
			cfg.logger.Warnw("Failed to reload config file", "error", err)
		} else {
			cfg.logger.Info("Reloaded config successfully")
			cfg.onConfigReloaded()
		}

		lastAttemptedReload = now
	})

	<-cfg.stopWatcherChannel
	cfg.logger.Debug("Stopping config file watcher")
	cfg.viper.OnConfigChange(nil)
}

// StopWatchingConfigFile signals the filesystem watcher to stop
func (cfg *Config) StopWatchingConfigFile() {
	cfg.stopWatcherChannel <- true
}

func (cfg *Config) populateFromViper() error {
	cfg.ServerURL = cfg.viper.GetString(configKeyServerURL)
	if cfg.ServerURL != "" {
		parsed, err := url.Parse(cfg.ServerURL)
		if err != nil {
			return fmt.Errorf("parse server URL: %w", err)
		}
		if !funk.ContainsString([]string{"ws", "wss"}, parsed.Scheme) {
			return fmt.Errorf("server URL must use ws or wss scheme, got %q", parsed.Scheme)
		}
	}

	cfg.AuthToken = cfg.viper.GetString(configKeyAuthToken)

	cfg.ClientID = cfg.viper.GetString(configKeyClientID)
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.New().String()
		cfg.logger.Debugw("No client ID configured, generated one", "clientID", cfg.ClientID)
	}

	cfg.ClientName = cfg.viper.GetString(configKeyClientName)
	if cfg.ClientName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "sendspin-client"
		}
		cfg.ClientName = hostname
	}

	cfg.OutputDevice = cfg.viper.GetString(configKeyOutputDevice)

	syncDelayMs := cfg.viper.GetInt(configKeySyncDelayMs)
	if syncDelayMs < 0 {
		cfg.logger.Warnw("Negative sync delay specified, using 0",
			"key", configKeySyncDelayMs,
			"invalidValue", syncDelayMs)
		syncDelayMs = 0
	}
	cfg.SyncDelay = time.Duration(syncDelayMs) * time.Millisecond

	cfg.LogLevel = cfg.viper.GetString(configKeyLogLevel)
	if !funk.ContainsString(validLogLevels, cfg.LogLevel) {
		cfg.logger.Warnw("Invalid log level specified, using default",
			"key", configKeyLogLevel,
			"invalidValue", cfg.LogLevel,
			"defaultValue", defaultLogLevel)
		cfg.LogLevel = defaultLogLevel
	}

	cfg.HardwareVolume = cfg.viper.GetBool(configKeyHardwareVolume)

	return nil
}

func (cfg *Config) onConfigReloaded() {
	cfg.logger.Debug("Notifying consumers about configuration reload")

	for _, consumer := range cfg.reloadConsumers {
		consumer <- true
	}
}
