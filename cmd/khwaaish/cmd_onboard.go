package main

import (
	"fmt"
	"os"

	"khwaaish/pkg/config"
)

func onboard() {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s khwaaish is ready!\n", logo)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Point api.base at the automation service in", configPath)
	fmt.Println("     khwaaish config set api.base http://localhost:8000")
	fmt.Println("  2. Optionally set auth.email and auth.password to gate the chat")
	fmt.Println("  3. Chat: khwaaish chat instamart")
	fmt.Println("     Or serve the web chat: khwaaish gateway")
}
