// Package sentinel watches what the gateway depends on: its config file, the
// log directory and the automation API.
package sentinel

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"khwaaish/pkg/config"
	"khwaaish/pkg/lifecycle"
	"khwaaish/pkg/logger"
)

const (
	alertCooldown = 5 * time.Minute
	probeTimeout  = 3 * time.Second
)

type AlertFunc func(msg string)

type Service struct {
	cfgPath    string
	interval   time.Duration
	autoHeal   bool
	onAlert    AlertFunc
	client     *http.Client
	runner     *lifecycle.LoopRunner
	mu         sync.RWMutex
	lastAlerts map[string]time.Time
}

func NewService(cfgPath string, intervalSec int, autoHeal bool, onAlert AlertFunc) *Service {
	if intervalSec <= 0 {
		intervalSec = 60
	}
	return &Service{
		cfgPath:    cfgPath,
		interval:   time.Duration(intervalSec) * time.Second,
		autoHeal:   autoHeal,
		onAlert:    onAlert,
		client:     &http.Client{Timeout: probeTimeout},
		runner:     lifecycle.NewLoopRunner(),
		lastAlerts: map[string]time.Time{},
	}
}

func (s *Service) Start() {
	if !s.runner.Start(s.loop) {
		return
	}
	logger.InfoCF("sentinel", "Sentinel started", map[string]interface{}{
		"interval":  s.interval.String(),
		"auto_heal": s.autoHeal,
	})
}

func (s *Service) Stop() {
	if !s.runner.Stop() {
		return
	}
	logger.InfoC("sentinel", "Sentinel stopped")
}

func (s *Service) loop(stopCh <-chan struct{}) {
	check := func() { s.RunChecks() }
	check()
	lifecycle.Every(s.interval, check)(stopCh)
}

// RunChecks performs one pass and returns the issues found, including ones
// suppressed by the alert cooldown.
func (s *Service) RunChecks() []string {
	cfg, issues := s.checkConfig()
	if cfg != nil {
		issues = append(issues, s.checkLogs(cfg)...)
		issues = append(issues, s.checkUpstream(cfg)...)
	}
	for _, issue := range issues {
		s.alert(issue)
	}
	return issues
}

func (s *Service) checkConfig() (*config.Config, []string) {
	if _, err := os.Stat(s.cfgPath); err != nil {
		// Defaults still apply; the remaining checks run against them.
		return config.DefaultConfig(), []string{fmt.Sprintf("sentinel: config file missing: %s", s.cfgPath)}
	}

	cfg, err := config.LoadConfig(s.cfgPath)
	if err != nil {
		return nil, []string{fmt.Sprintf("sentinel: config parse failed: %v", err)}
	}

	verrs := config.Validate(cfg)
	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, fmt.Sprintf("sentinel: config validation issue: %v", e))
	}
	return cfg, out
}

func (s *Service) checkLogs(cfg *config.Config) []string {
	if !cfg.Logging.Enabled {
		return nil
	}
	logDir := filepath.Clean(filepath.Dir(cfg.LogFilePath()))
	if _, err := os.Stat(logDir); err != nil {
		if s.autoHeal {
			if mkErr := os.MkdirAll(logDir, 0755); mkErr == nil {
				return []string{"sentinel: log dir missing, auto-healed"}
			}
		}
		return []string{fmt.Sprintf("sentinel: log dir missing: %s", logDir)}
	}
	return nil
}

// checkUpstream probes every distinct automation base. Any HTTP answer,
// including 404, means the service is up.
func (s *Service) checkUpstream(cfg *config.Config) []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range cfg.EnabledRetailers() {
		base := cfg.RetailerBase(name)
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true

		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/", nil)
		if err != nil {
			cancel()
			out = append(out, fmt.Sprintf("sentinel: invalid automation API %s: %v", base, err))
			continue
		}
		resp, err := s.client.Do(req)
		cancel()
		if err != nil {
			out = append(out, fmt.Sprintf("sentinel: automation API unreachable: %s", base))
			continue
		}
		resp.Body.Close()
	}
	return out
}

func (s *Service) alert(msg string) {
	now := time.Now()
	s.mu.Lock()
	last, ok := s.lastAlerts[msg]
	if ok && now.Sub(last) < alertCooldown {
		s.mu.Unlock()
		return
	}
	s.lastAlerts[msg] = now
	s.mu.Unlock()

	logger.WarnCF("sentinel", msg, nil)
	if s.onAlert != nil {
		s.onAlert(msg)
	}
}
