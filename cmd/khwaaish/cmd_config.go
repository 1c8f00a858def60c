package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"khwaaish/pkg/config"
	"khwaaish/pkg/configops"
)

func configCmd() {
	if len(os.Args) < 3 {
		configHelp()
		return
	}

	switch os.Args[2] {
	case "set":
		configSetCmd()
	case "get":
		configGetCmd()
	case "check":
		configCheckCmd()
	case "reload":
		configReloadCmd()
	default:
		fmt.Printf("Unknown config command: %s\n", os.Args[2])
		configHelp()
	}
}

func configHelp() {
	fmt.Println("\nConfig commands:")
	fmt.Println("  set <path> <value>     Set config value and trigger hot reload")
	fmt.Println("  get <path>             Get config value")
	fmt.Println("  check                  Validate current config")
	fmt.Println("  reload                 Trigger gateway hot reload")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  khwaaish config set api.base http://localhost:8000")
	fmt.Println("  khwaaish config set retailers.oyo.enabled false")
	fmt.Println("  khwaaish config get chat.default_retailer")
	fmt.Println("  khwaaish config check")
}

func configSetCmd() {
	if len(os.Args) < 5 {
		fmt.Println("Usage: khwaaish config set <path> <value>")
		return
	}

	configPath := getConfigPath()
	doc, err := configops.Open(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	path := strings.TrimSpace(os.Args[3])
	value := configops.ParseValue(strings.Join(os.Args[4:], " "))
	if err := doc.Set(path, value); err != nil {
		fmt.Printf("Error setting value: %v\n", err)
		return
	}

	backupPath, err := doc.Save()
	if err != nil {
		fmt.Printf("Error writing config: %v\n", err)
		return
	}
	if _, err := config.LoadConfig(configPath); err != nil {
		if rbErr := configops.Rollback(configPath, backupPath); rbErr != nil {
			fmt.Printf("Invalid value and rollback failed: %v\n", rbErr)
		} else {
			fmt.Printf("Invalid value, config rolled back: %v\n", err)
		}
		return
	}

	fmt.Printf("✓ Updated %s = %v\n", path, value)
	running, err := triggerGatewayReload()
	if err != nil {
		if running {
			if rbErr := configops.Rollback(configPath, backupPath); rbErr != nil {
				fmt.Printf("Hot reload failed and rollback failed: %v\n", rbErr)
			} else {
				fmt.Printf("Hot reload failed, config rolled back: %v\n", err)
			}
			return
		}
		fmt.Printf("Updated config file. Hot reload not applied: %v\n", err)
	} else {
		fmt.Println("✓ Gateway hot reload signal sent")
	}
}

func configGetCmd() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: khwaaish config get <path>")
		return
	}

	doc, err := configops.Open(getConfigPath())
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	path := strings.TrimSpace(os.Args[3])
	value, ok := doc.Get(path)
	if !ok {
		fmt.Printf("Path not found: %s\n", path)
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		fmt.Printf("%v\n", value)
		return
	}
	fmt.Println(string(data))
}

func configReloadCmd() {
	if _, err := triggerGatewayReload(); err != nil {
		fmt.Printf("Hot reload not applied: %v\n", err)
		return
	}
	fmt.Println("✓ Gateway hot reload signal sent")
}

func configCheckCmd() {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		fmt.Printf("Config load failed: %v\n", err)
		return
	}
	validationErrors := config.Validate(cfg)
	if len(validationErrors) == 0 {
		fmt.Println("✓ Config validation passed")
		return
	}

	fmt.Println("✗ Config validation failed:")
	for _, ve := range validationErrors {
		fmt.Printf("  - %v\n", ve)
	}
}
