package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"khwaaish/pkg/auth"
)

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	configPath := getConfigPath()

	fmt.Printf("%s khwaaish Status\n\n", logo)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "✓")
	} else {
		fmt.Println("Config:", configPath, "✗ (using defaults)")
	}

	if data, err := os.ReadFile(gatewayPIDPath()); err == nil {
		fmt.Printf("Gateway: running (pid %s) on %s:%d\n", strings.TrimSpace(string(data)), cfg.Gateway.Host, cfg.Gateway.Port)
	} else {
		fmt.Println("Gateway: not running")
	}

	fmt.Printf("Automation API: %s %s\n", cfg.API.Base, reachable(cfg.API.Base))
	if cfg.API.Upstream != cfg.API.Base {
		fmt.Printf("Proxy Upstream: %s %s\n", cfg.API.Upstream, reachable(cfg.API.Upstream))
	}
	fmt.Printf("Proxy Prefixes: %s\n", strings.Join(cfg.API.ProxyPrefixes, ", "))

	if _, open := auth.FromConfig(cfg).(auth.OpenAuthenticator); open {
		fmt.Println("Login Gate: open (no credentials configured)")
	} else {
		fmt.Printf("Login Gate: %s\n", cfg.Auth.Email)
	}

	fmt.Printf("Retailers: %s\n", strings.Join(cfg.EnabledRetailers(), ", "))
	fmt.Printf("Default Retailer: %s\n", cfg.Chat.DefaultRetailer)
	fmt.Printf("Logging: %v\n", cfg.Logging.Enabled)
	if cfg.Logging.Enabled {
		fmt.Printf("Log File: %s\n", cfg.LogFilePath())
		fmt.Printf("Log Max Size: %d MB\n", cfg.Logging.MaxSizeMB)
		fmt.Printf("Log Retention: %d days\n", cfg.Logging.RetentionDays)
	}
}

// reachable probes base with a short GET. Any HTTP answer counts as up.
func reachable(base string) string {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return "✗"
	}
	resp.Body.Close()
	return "✓"
}
