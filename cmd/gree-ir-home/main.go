package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"gopkg.in/yaml.v3"

	"gree-ir-home/internal/climate"
	mqttbridge "gree-ir-home/internal/mqtt"
	"gree-ir-home/internal/store"
	"gree-ir-home/internal/transmit"
	"gree-ir-home/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type TransmitConfig struct {
	Type string `yaml:"type"` // "broadlink", "remote", "serial"
	Host string `yaml:"host"` // broadlink: device address, port 80 implied
	Topic string `yaml:"topic"` // remote: command topic of the paired entity
	Port string `yaml:"port"` // serial: device path
	Baud int    `yaml:"baud"` // serial: line speed
}

type UnitConfig struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Swing       bool           `yaml:"swing"`
	SensorTopic string         `yaml:"sensor_topic"` // external temperature feed, optional
	Transmit    TransmitConfig `yaml:"transmit"`
}

type Config struct {
	Units []UnitConfig `yaml:"units"`
	MQTT  struct {
		Enabled         bool   `yaml:"enabled"`
		Broker          string `yaml:"broker"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		TopicPrefix     string `yaml:"topic_prefix"`
		DiscoveryPrefix string `yaml:"discovery_prefix"`
	} `yaml:"mqtt"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	ScriptsDir      string `yaml:"scripts_dir"`
	SkipStartupSync bool   `yaml:"skip_startup_sync"`
}

func (c *Config) validate() error {
	if len(c.Units) == 0 {
		return fmt.Errorf("at least one unit is required")
	}
	seen := make(map[string]bool, len(c.Units))
	needBroker := false
	for i, u := range c.Units {
		if u.ID == "" {
			return fmt.Errorf("units[%d].id is required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("duplicate unit id %q", u.ID)
		}
		seen[u.ID] = true
		switch u.Transmit.Type {
		case "broadlink":
			if u.Transmit.Host == "" {
				return fmt.Errorf("unit %q: transmit.host is required for broadlink", u.ID)
			}
		case "remote":
			if u.Transmit.Topic == "" {
				return fmt.Errorf("unit %q: transmit.topic is required for remote", u.ID)
			}
			needBroker = true
		case "serial":
			if u.Transmit.Port == "" {
				return fmt.Errorf("unit %q: transmit.port is required for serial", u.ID)
			}
		default:
			return fmt.Errorf("unit %q: unknown transmit.type %q (supported: broadlink, remote, serial)", u.ID, u.Transmit.Type)
		}
		if u.SensorTopic != "" && !c.MQTT.Enabled {
			return fmt.Errorf("unit %q: sensor_topic requires mqtt.enabled", u.ID)
		}
	}
	if needBroker && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when a unit uses the remote transmitter")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enabled")
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	// Create configured logger.
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("gree-ir-home starting", "version", version, "units", len(cfg.Units))

	// Open store
	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	events := climate.NewEventBus(logger)

	// Remote transmitters publish through their own MQTT connection so the
	// bridge stays optional.
	var txClient pahomqtt.Client
	for _, u := range cfg.Units {
		if u.Transmit.Type == "remote" {
			txClient, err = connectTransmitClient(cfg, logger)
			if err != nil {
				logger.Error("connect transmit mqtt client", "err", err)
				os.Exit(1)
			}
			break
		}
	}

	var controllers []*climate.Controller
	var transmitters []transmit.Transmitter
	for _, u := range cfg.Units {
		tx, err := createTransmitter(u, txClient, db, logger)
		if err != nil {
			logger.Error("create transmitter", "unit", u.ID, "err", err)
			os.Exit(1)
		}
		transmitters = append(transmitters, tx)

		c := climate.New(climate.Config{
			ID:           u.ID,
			Name:         u.Name,
			SwingEnabled: u.Swing,
		}, tx, events, db, logger)
		c.Start()
		controllers = append(controllers, c)
	}

	// Assert a known physical state: the units cannot be read back, so each
	// gets an explicit OFF on boot unless disabled in config.
	if !cfg.SkipStartupSync {
		for _, c := range controllers {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := c.SyncStartup(ctx); err != nil {
				logger.Warn("startup sync failed", "unit", c.ID(), "err", err)
			}
			cancel()
		}
	}

	// MQTT bridge with HA discovery.
	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Enabled {
		units := make([]*mqttbridge.Unit, 0, len(controllers))
		for i, c := range controllers {
			units = append(units, &mqttbridge.Unit{
				Controller:  c,
				SensorTopic: cfg.Units[i].SensorTopic,
			})
		}
		bridge, err = mqttbridge.NewBridge(units, events, mqttbridge.Config{
			Broker:          cfg.MQTT.Broker,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		}, logger)
		if err != nil {
			logger.Error("mqtt bridge", "err", err)
			os.Exit(1)
		}
		bridge.Start()
	}

	// Automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(controllers, events, cfg, logger)

	// Web server
	webOpts := []web.ServerOption{
		web.WithHistory(db),
		web.WithVersion(version),
	}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, autoWebOpts...)

	webServer, err := web.NewServer(controllers, events, logger, webOpts...)
	if err != nil {
		logger.Error("create web server", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	if bridge != nil {
		bridge.Stop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	for _, c := range controllers {
		c.Stop()
	}
	for _, tx := range transmitters {
		if err := tx.Close(); err != nil {
			logger.Warn("close transmitter", "err", err)
		}
	}
	if txClient != nil {
		txClient.Disconnect(1000)
	}

	logger.Info("goodbye")
}

func createTransmitter(u UnitConfig, txClient pahomqtt.Client, cache transmit.SessionCache, logger *slog.Logger) (transmit.Transmitter, error) {
	switch u.Transmit.Type {
	case "broadlink":
		logger.Info("using Broadlink transmitter", "unit", u.ID, "host", u.Transmit.Host)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return transmit.NewBroadlink(ctx, u.Transmit.Host, cache, logger)
	case "remote":
		logger.Info("using remote-entity transmitter", "unit", u.ID, "topic", u.Transmit.Topic)
		return transmit.NewRemote(txClient, u.Transmit.Topic, logger), nil
	case "serial":
		logger.Info("using serial transmitter", "unit", u.ID, "port", u.Transmit.Port, "baud", u.Transmit.Baud)
		return transmit.NewSerialBlaster(u.Transmit.Port, u.Transmit.Baud, logger)
	default:
		return nil, fmt.Errorf("unknown transmit type: %q", u.Transmit.Type)
	}
}

func connectTransmitClient(cfg *Config, logger *slog.Logger) (pahomqtt.Client, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID("gree-ir-home-tx").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	logger.Info("transmit MQTT client connected", "broker", cfg.MQTT.Broker)
	return client, nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "gree-ir-home.db"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "greeac"
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	for i := range cfg.Units {
		if cfg.Units[i].Name == "" {
			cfg.Units[i].Name = cfg.Units[i].ID
		}
		if cfg.Units[i].Transmit.Baud == 0 {
			cfg.Units[i].Transmit.Baud = 115200
		}
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
