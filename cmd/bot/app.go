package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dealerbot/internal/credentials"
	"dealerbot/internal/driver"
	"dealerbot/internal/driver/discord"
	"dealerbot/internal/kernel"
	"dealerbot/internal/moduleset"
	"dealerbot/pkg/dealer"
	"dealerbot/services/gitsync"
	"dealerbot/services/script"
)

const (
	envConfigFile             = "DEALER_CONFIG_FILE"
	defaultConfigFilePath     = "config/bot.json"
	alternateConfigFilePath   = "bin/config/bot.json"
	defaultModuleHookTimeout  = 3 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 2
	defaultHandlerTimeout     = 3 * time.Second
	handlerTimeoutNone        = "none"
	defaultWinningsWorkers    = 0
)

var defaultScriptCommand = []string{"poetry", "run", "python", "main.py"}

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int
	handlerTimeout      time.Duration

	drivers  []driver.Definition
	winnings winningsConfig
}

type winningsConfig struct {
	workDir       string
	workers       int
	syncCommand   []string
	syncDisabled  bool
	syncTimeout   time.Duration
	scriptCommand []string
	scriptEnv     []string
	scriptTimeout time.Duration
}

type fileConfig struct {
	LogLevel string            `json:"log_level"`
	Kernel   fileKernelConfig  `json:"kernel"`
	Drivers  []fileDriverEntry `json:"drivers"`
	Modules  fileModulesConfig `json:"modules"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
	HandlerTimeout      string `json:"handler_timeout"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

type fileModulesConfig struct {
	Winnings fileWinningsConfig `json:"winnings"`
}

type fileWinningsConfig struct {
	WorkDir string           `json:"work_dir"`
	Workers *int             `json:"workers"`
	Sync    fileSyncConfig   `json:"sync"`
	Script  fileScriptConfig `json:"script"`
}

type fileSyncConfig struct {
	Command  []string `json:"command"`
	Disabled bool     `json:"disabled"`
	Timeout  string   `json:"timeout"`
}

type fileScriptConfig struct {
	Command []string `json:"command"`
	Env     []string `json:"env"`
	Timeout string   `json:"timeout"`
}

func run() error {
	creds, err := credentials.Load()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	registry, err := driver.NewBuiltinRegistry(discord.Defaults{Token: creds.Token})
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}

	cfg, err := loadConfig(registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))
	kernelRuntime := buildKernelRuntime(logger, cfg)

	drivers, sinkDispatcher, err := buildDriverRuntime(context.Background(), logger, cfg, registry)
	if err != nil {
		return err
	}

	if err := registerRuntimeDrivers(kernelRuntime, drivers); err != nil {
		return err
	}
	if err := registerRuntimeServices(kernelRuntime, logger, sinkDispatcher, cfg.winnings); err != nil {
		return err
	}
	if err := registerRuntimeModules(context.Background(), kernelRuntime, logger, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kernelRuntime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

func loadConfig(registry *driver.Registry) (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,
		handlerTimeout:      defaultHandlerTimeout,

		drivers: make([]driver.Definition, 0),
		winnings: winningsConfig{
			workers:       defaultWinningsWorkers,
			syncCommand:   append([]string(nil), gitsync.DefaultCommand...),
			scriptCommand: append([]string(nil), defaultScriptCommand...),
		},
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	if err := applyPositiveDuration(&cfg.moduleHookTimeout, parsed.Kernel.ModuleHookTimeout, "kernel.module_hook_timeout"); err != nil {
		return err
	}
	if err := applyPositiveDuration(&cfg.shutdownTimeout, parsed.Kernel.ShutdownTimeout, "kernel.shutdown_timeout"); err != nil {
		return err
	}
	if parsed.Kernel.SubscriptionBuffer != nil {
		if *parsed.Kernel.SubscriptionBuffer <= 0 {
			return fmt.Errorf("parse kernel.subscription_buffer: must be > 0")
		}
		cfg.subscriptionBuffer = *parsed.Kernel.SubscriptionBuffer
	}
	if parsed.Kernel.SubscriptionWorkers != nil {
		if *parsed.Kernel.SubscriptionWorkers <= 0 {
			return fmt.Errorf("parse kernel.subscription_workers: must be > 0")
		}
		cfg.subscriptionWorkers = *parsed.Kernel.SubscriptionWorkers
	}
	if strings.EqualFold(strings.TrimSpace(parsed.Kernel.HandlerTimeout), handlerTimeoutNone) {
		cfg.handlerTimeout = dealer.HandlerTimeoutNone
	} else if err := applyPositiveDuration(&cfg.handlerTimeout, parsed.Kernel.HandlerTimeout, "kernel.handler_timeout"); err != nil {
		return err
	}

	cfg.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
	for index, entry := range parsed.Drivers {
		if len(entry.Config) == 0 {
			return fmt.Errorf("parse drivers[%d].config: required", index)
		}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		cfg.drivers = append(cfg.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: enabled,
			Config:  append([]byte(nil), entry.Config...),
		})
	}

	return applyWinningsConfig(&cfg.winnings, parsed.Modules.Winnings)
}

func applyWinningsConfig(cfg *winningsConfig, parsed fileWinningsConfig) error {
	cfg.workDir = strings.TrimSpace(parsed.WorkDir)
	if parsed.Workers != nil {
		if *parsed.Workers < 0 {
			return fmt.Errorf("parse modules.winnings.workers: must be >= 0")
		}
		cfg.workers = *parsed.Workers
	}

	cfg.syncDisabled = parsed.Sync.Disabled
	if parsed.Sync.Command != nil {
		command, err := parseCommandLine(parsed.Sync.Command, "modules.winnings.sync.command")
		if err != nil {
			return err
		}
		cfg.syncCommand = command
	}
	if err := applyPositiveDuration(&cfg.syncTimeout, parsed.Sync.Timeout, "modules.winnings.sync.timeout"); err != nil {
		return err
	}

	if parsed.Script.Command != nil {
		command, err := parseCommandLine(parsed.Script.Command, "modules.winnings.script.command")
		if err != nil {
			return err
		}
		cfg.scriptCommand = command
	}
	env, err := parseEnvPairs(parsed.Script.Env, "modules.winnings.script.env")
	if err != nil {
		return err
	}
	cfg.scriptEnv = env

	return applyPositiveDuration(&cfg.scriptTimeout, parsed.Script.Timeout, "modules.winnings.script.timeout")
}

func parseEnvPairs(raw []string, field string) ([]string, error) {
	pairs := make([]string, 0, len(raw))
	for index, pair := range raw {
		key, _, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(key) == "" || strings.TrimSpace(key) != key {
			return nil, fmt.Errorf("parse %s[%d]: want KEY=VALUE, got %q", field, index, pair)
		}
		pairs = append(pairs, pair)
	}

	return pairs, nil
}

func applyPositiveDuration(target *time.Duration, raw string, field string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("parse %s: must be > 0", field)
	}
	*target = timeout

	return nil
}

func parseCommandLine(raw []string, field string) ([]string, error) {
	if len(raw) == 0 || strings.TrimSpace(raw[0]) == "" {
		return nil, fmt.Errorf("parse %s: program is required", field)
	}

	return append([]string(nil), raw...), nil
}

func validateAppConfig(cfg *appConfig, registry *driver.Registry) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	seen := make(map[string]struct{}, len(cfg.drivers))
	enabled := 0
	for _, definition := range cfg.drivers {
		if definition.Name == "" {
			return fmt.Errorf("drivers[].name is required")
		}
		if definition.Type == "" {
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		}
		if _, exists := seen[definition.Name]; exists {
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		seen[definition.Name] = struct{}{}
		if !definition.Enabled {
			continue
		}
		if _, err := registry.PlatformForType(definition.Type); err != nil {
			return fmt.Errorf("drivers[%s].type: %w", definition.Name, err)
		}
		enabled++
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}

	if cfg.winnings.workDir != "" {
		info, err := os.Stat(cfg.winnings.workDir)
		if err != nil {
			return fmt.Errorf("modules.winnings.work_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("modules.winnings.work_dir: %s is not a directory", cfg.winnings.workDir)
		}
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
		kernel.WithDefaultHandlerTimeout(cfg.handlerTimeout),
	)
}

func buildDriverRuntime(
	ctx context.Context,
	logger *slog.Logger,
	cfg appConfig,
	registry *driver.Registry,
) ([]dealer.Driver, dealer.SinkDispatcher, error) {
	if registry == nil {
		return nil, nil, fmt.Errorf("build drivers: nil driver registry")
	}

	runtimes, err := registry.BuildEnabled(ctx, cfg.drivers, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build drivers: %w", err)
	}

	drivers := make([]dealer.Driver, 0, len(runtimes))
	for _, runtime := range runtimes {
		drivers = append(drivers, runtime.Driver)
	}

	dispatcher, err := driver.NewCompositeSinkDispatcher(runtimes)
	if err != nil {
		return nil, nil, fmt.Errorf("build sink dispatcher: %w", err)
	}

	return drivers, dispatcher, nil
}

func registerRuntimeServices(
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	sinkDispatcher dealer.SinkDispatcher,
	cfg winningsConfig,
) error {
	if err := kernelRuntime.RegisterService(dealer.ServiceLogger, logger); err != nil {
		return fmt.Errorf("register logger service: %w", err)
	}
	if sinkDispatcher == nil {
		return fmt.Errorf("register sink dispatcher service: nil dispatcher")
	}
	if err := kernelRuntime.RegisterService(dealer.ServiceSinkDispatcher, sinkDispatcher); err != nil {
		return fmt.Errorf("register sink dispatcher service: %w", err)
	}

	runner, err := script.New(
		cfg.scriptCommand,
		script.WithDir(cfg.workDir),
		script.WithEnv(cfg.scriptEnv...),
		script.WithTimeout(cfg.scriptTimeout),
		script.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("new script runner: %w", err)
	}
	if err := kernelRuntime.RegisterService(script.ServiceName, runner); err != nil {
		return fmt.Errorf("register script runner service: %w", err)
	}

	if cfg.syncDisabled {
		return nil
	}
	syncer, err := gitsync.New(
		gitsync.WithCommand(cfg.syncCommand...),
		gitsync.WithDir(cfg.workDir),
		gitsync.WithTimeout(cfg.syncTimeout),
		gitsync.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("new git syncer: %w", err)
	}
	if err := kernelRuntime.RegisterService(gitsync.ServiceName, syncer); err != nil {
		return fmt.Errorf("register git syncer service: %w", err)
	}

	return nil
}

func registerRuntimeModules(ctx context.Context, kernelRuntime *kernel.Kernel, logger *slog.Logger, cfg appConfig) error {
	modules := moduleset.Build(moduleset.Options{
		Logger:          logger,
		WinningsWorkers: cfg.winnings.workers,
	})
	for _, module := range modules {
		if err := kernelRuntime.RegisterModule(ctx, module); err != nil {
			return fmt.Errorf("register %s module: %w", module.Name(), err)
		}
	}

	return nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, drivers []dealer.Driver) error {
	for _, runtimeDriver := range drivers {
		if err := kernelRuntime.RegisterDriver(runtimeDriver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtimeDriver.Name(), err)
		}
	}

	return nil
}
