package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"khwaaish/pkg/retailers"
)

func retailersCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	heading := lipgloss.NewStyle().Bold(true)
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	for _, s := range retailers.Summaries(cfg) {
		state := "✓"
		if !s.Enabled {
			state = "✗ disabled"
		}
		fmt.Printf("%s %s\n", heading.Render(fmt.Sprintf("%s (%s)", s.Label, s.Name)), state)
		fmt.Printf("  category: %s\n", s.Category)
		fmt.Printf("  backends: %s\n", strings.Join(s.Backends, ", "))
		fmt.Printf("  steps:    %s\n", strings.Join(s.Steps, " → "))
		fmt.Println(muted.Render(fmt.Sprintf("  api: %s (timeout %ds)", s.APIBase, s.TimeoutSec)))
	}
}
