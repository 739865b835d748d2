package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/merchstream/writeback/config"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback. An empty config
	// path runs on built-in defaults plus WRITEBACK_* overrides.
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("WRITEBACK_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: WRITEBACK_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("WRITEBACK_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: WRITEBACK_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level override: debug, info, warn, error (default from config)")

	flag.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format override: json, text (default from config)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("WRITEBACK_DEBUG", false),
		"Enable debug logging (env: WRITEBACK_DEBUG)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("WRITEBACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: WRITEBACK_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	return cfg
}

// initializeCLI parses flags and handles the version/help exits.
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printHelp()
		return nil, true, nil
	}

	return cliCfg, false, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	// Validate config file exists when one is named
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	// Overrides are optional; validate only when set
	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

// resolveLogSettings merges the configuration values with any CLI
// overrides. The debug flag wins over everything.
func resolveLogSettings(cliCfg *CLIConfig, cfg *config.Config) (string, string) {
	level := cfg.Log.Level
	if cliCfg.LogLevel != "" {
		level = cliCfg.LogLevel
	}
	if cliCfg.Debug {
		level = "debug"
	}

	format := cfg.Log.Format
	if cliCfg.LogFormat != "" {
		format = cliCfg.LogFormat
	}

	return level, format
}

func printHelp() {
	printDetailedHelp()
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Write-Behind Flush Pipeline

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with built-in defaults (local broker, local database)
  %s

  # Run with custom config
  %s --config=/etc/writeback/config.json

  # Run with debug logging
  %s --debug --log-format=text

  # Run with environment variables
  export WRITEBACK_CONFIG=/etc/writeback/config.json
  export WRITEBACK_BROKER_URLS=nats://broker-1:4222,nats://broker-2:4222
  export WRITEBACK_SECRET_KEY=$(cat /run/secrets/writeback-key)
  %s

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
