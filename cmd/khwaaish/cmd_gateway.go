package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"khwaaish/pkg/config"
	"khwaaish/pkg/configops"
	"khwaaish/pkg/logger"
	"khwaaish/pkg/sentinel"
	"khwaaish/pkg/server"
)

const gatewayShutdownTimeout = 10 * time.Second

func gatewayCmd() {
	args := os.Args[2:]
	if len(args) > 0 {
		switch args[0] {
		case "run":
		case "reload":
			configReloadCmd()
			return
		default:
			fmt.Printf("Unknown gateway command: %s\n", args[0])
			fmt.Println("Usage: khwaaish gateway [run|reload]")
			return
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		fmt.Println("✗ Config validation failed:")
		for _, ve := range errs {
			fmt.Printf("  - %v\n", ve)
		}
		os.Exit(1)
	}

	srv := server.NewServer(cfg)
	if err := srv.Start(); err != nil {
		fmt.Printf("Error starting gateway: %v\n", err)
		os.Exit(1)
	}

	pidFile := gatewayPIDPath()
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		fmt.Printf("Warning: failed to write PID file: %v\n", err)
	} else {
		defer os.Remove(pidFile)
	}

	fmt.Printf("✓ Gateway started on %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Printf("✓ Automation API: %s (proxy upstream %s)\n", cfg.API.Base, cfg.API.Upstream)
	fmt.Printf("✓ Retailers enabled: %v\n", cfg.EnabledRetailers())
	watchdog := startSentinel(cfg)
	defer func() { watchdog.Stop() }()
	fmt.Println("Press Ctrl+C to stop. Send SIGHUP to hot-reload config.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			fmt.Println("\n↻ Reloading config...")
			newCfg, err := config.LoadConfig(getConfigPath())
			if err != nil {
				fmt.Printf("✗ Reload failed (load config): %v\n", err)
				continue
			}
			if errs := config.Validate(newCfg); len(errs) > 0 {
				fmt.Printf("✗ Reload failed (validation): %v\n", errs[0])
				continue
			}
			if reflect.DeepEqual(cfg, newCfg) {
				fmt.Println("✓ Config unchanged, skip reload")
				continue
			}

			runtimeSame := reflect.DeepEqual(cfg.API, newCfg.API) &&
				reflect.DeepEqual(cfg.Auth, newCfg.Auth) &&
				reflect.DeepEqual(cfg.Retailers, newCfg.Retailers) &&
				reflect.DeepEqual(cfg.Chat, newCfg.Chat) &&
				reflect.DeepEqual(cfg.Gateway, newCfg.Gateway)

			watchdog.Stop()
			watchdog = startSentinel(newCfg)

			if runtimeSame {
				configureLogging(newCfg)
				cfg = newCfg
				fmt.Println("✓ Config hot-reload applied (logging only)")
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), gatewayShutdownTimeout)
			if err := srv.Stop(ctx); err != nil {
				logger.WarnCF("gateway", "Gateway stop during reload failed", map[string]interface{}{
					logger.FieldError: err.Error(),
				})
			}
			cancel()

			configureLogging(newCfg)
			srv = server.NewServer(newCfg)
			if err := srv.Start(); err != nil {
				fmt.Printf("✗ Reload failed (start gateway): %v\n", err)
				os.Exit(1)
			}
			cfg = newCfg
			fmt.Println("✓ Config hot-reload applied (gateway restarted, open chats reset)")
		default:
			fmt.Println("\nShutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), gatewayShutdownTimeout)
			if err := srv.Stop(ctx); err != nil {
				logger.WarnCF("gateway", "Gateway stop failed", map[string]interface{}{
					logger.FieldError: err.Error(),
				})
			}
			cancel()
			fmt.Println("✓ Gateway stopped")
			return
		}
	}
}

// startSentinel returns a started watchdog, or a stopped one when disabled so
// callers can Stop it unconditionally.
func startSentinel(cfg *config.Config) *sentinel.Service {
	s := sentinel.NewService(getConfigPath(), cfg.Sentinel.IntervalSec, cfg.Sentinel.AutoHeal, func(message string) {
		fmt.Printf("⚠ %s\n", message)
	})
	if cfg.Sentinel.Enabled {
		s.Start()
		fmt.Println("✓ Sentinel service started")
	}
	return s
}

func triggerGatewayReload() (bool, error) {
	return configops.SignalGateway(getConfigPath(), errGatewayNotRunning)
}
