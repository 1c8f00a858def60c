package sentinel

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"khwaaish/pkg/config"
)

func writeConfig(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Logging.Dir = filepath.Join(dir, "logs")
	mutate(cfg)
	path := filepath.Join(dir, "config.json")
	if err := config.SaveConfig(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

func TestRunChecksHealsLogDirAndProbesUpstream(t *testing.T) {
	t.Parallel()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer up.Close()

	path := writeConfig(t, func(c *config.Config) { c.API.Base = up.URL })

	var mu sync.Mutex
	var alerts []string
	s := NewService(path, 60, true, func(msg string) {
		mu.Lock()
		alerts = append(alerts, msg)
		mu.Unlock()
	})

	issues := s.RunChecks()
	if len(issues) != 1 || !strings.Contains(issues[0], "auto-healed") {
		t.Fatalf("expected only the healed log dir, got %v", issues)
	}
	if issues := s.RunChecks(); len(issues) != 0 {
		t.Fatalf("expected clean second pass, got %v", issues)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %v", alerts)
	}
}

func TestRunChecksReportsUnreachableUpstreamOnce(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.NotFoundHandler())
	base := down.URL
	down.Close()

	path := writeConfig(t, func(c *config.Config) {
		c.API.Base = base
		c.Logging.Enabled = false
	})

	alerts := 0
	s := NewService(path, 60, false, func(string) { alerts++ })
	for i := 0; i < 2; i++ {
		issues := s.RunChecks()
		if len(issues) != 1 || !strings.Contains(issues[0], "unreachable") {
			t.Fatalf("expected unreachable upstream, got %v", issues)
		}
	}
	if alerts != 1 {
		t.Fatalf("expected cooldown to suppress the repeat alert, got %d", alerts)
	}
}

func TestRunChecksReportsBrokenConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, func(c *config.Config) { c.Chat.SearchLimit = 0; c.Logging.Enabled = false; c.API.Base = "ftp://nowhere" })
	issues := NewService(path, 0, false, nil).RunChecks()
	joined := strings.Join(issues, "\n")
	if !strings.Contains(joined, "chat.search_limit") {
		t.Fatalf("expected validation issue, got %v", issues)
	}
}
