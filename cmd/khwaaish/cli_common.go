package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"khwaaish/pkg/config"
	"khwaaish/pkg/logger"
)

func normalizeCLIArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := []string{args[0]}
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "--debug" || arg == "-d" {
			continue
		}
		if arg == "--config" {
			if i+1 < len(args) {
				i++
			}
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			continue
		}
		normalized = append(normalized, arg)
	}
	return normalized
}

func detectConfigPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" && i+1 < len(args) {
			return strings.TrimSpace(args[i+1])
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimSpace(strings.TrimPrefix(arg, "--config="))
		}
	}
	return ""
}

func printHelp() {
	fmt.Printf("%s khwaaish - chat-style shopping v%s\n\n", logo, version)
	fmt.Println("Usage: khwaaish <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  onboard     Write a default config file")
	fmt.Println("  chat        Shop from the terminal")
	fmt.Println("  gateway     Run the WebSocket chat gateway")
	fmt.Println("  status      Show config, gateway and upstream status")
	fmt.Println("  config      Get/set config values")
	fmt.Println("  retailers   List retailer flows and their endpoints")
	fmt.Println("  version     Show version information")
	fmt.Println()
	fmt.Println("Global options:")
	fmt.Println("  --config <path>         Use custom config file")
	fmt.Println("  --debug, -d             Enable debug logging")
	fmt.Println()
	fmt.Println("Chat:")
	fmt.Println("  khwaaish chat                   # default retailer from config")
	fmt.Println("  khwaaish chat pantaloons        # start with a retailer")
	fmt.Println()
	fmt.Println("Gateway:")
	fmt.Println("  khwaaish gateway [run]          # run foreground")
	fmt.Println("  khwaaish gateway reload         # send SIGHUP to the running gateway")
}

func getConfigPath() string {
	if strings.TrimSpace(globalConfigPathOverride) != "" {
		return globalConfigPathOverride
	}
	if fromEnv := strings.TrimSpace(os.Getenv("KHWAAISH_CONFIG")); fromEnv != "" {
		return fromEnv
	}
	return filepath.Join(config.GetConfigDir(), "config.json")
}

func gatewayPIDPath() string {
	return filepath.Join(filepath.Dir(getConfigPath()), "gateway.pid")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, err
	}
	configureLogging(cfg)
	return cfg, nil
}

func configureLogging(cfg *config.Config) {
	if !cfg.Logging.Enabled {
		logger.DisableFileLogging()
		return
	}

	logFile := cfg.LogFilePath()
	if err := logger.EnableFileLoggingWithRotation(logFile, cfg.Logging.MaxSizeMB, cfg.Logging.RetentionDays); err != nil {
		fmt.Printf("Warning: failed to enable file logging: %v\n", err)
	}
}
