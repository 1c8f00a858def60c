package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate returns configuration problems found in cfg.
// It does not mutate cfg.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	var errs []error

	errs = append(errs, validateURL("api.base", cfg.API.Base, true)...)
	errs = append(errs, validateURL("api.upstream", cfg.API.Upstream, false)...)
	for i, prefix := range cfg.API.ProxyPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			errs = append(errs, fmt.Errorf("api.proxy_prefixes[%d] must start with /", i))
		}
	}
	if cfg.API.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout_sec must be > 0"))
	}
	if cfg.API.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("api.rate_per_second must be >= 0"))
	}
	if cfg.API.RatePerSecond > 0 && cfg.API.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("api.rate_burst must be > 0 when api.rate_per_second > 0"))
	}

	if (cfg.Auth.Email == "") != (cfg.Auth.Password == "") {
		errs = append(errs, fmt.Errorf("auth.email and auth.password must be set together"))
	}
	if cfg.Auth.TokenTTLMin <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl_min must be > 0"))
	}

	if len(cfg.Retailers) == 0 {
		errs = append(errs, fmt.Errorf("retailers must contain at least one entry"))
	}
	for name, rc := range cfg.Retailers {
		path := "retailers." + name
		errs = append(errs, validateURL(path+".api_base", rc.APIBase, false)...)
		if rc.TimeoutSec < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout_sec must be >= 0", path))
		}
		if rc.RateLimit < 0 {
			errs = append(errs, fmt.Errorf("%s.rate_limit must be >= 0", path))
		}
	}
	if def := strings.TrimSpace(cfg.Chat.DefaultRetailer); def != "" {
		if rc, ok := cfg.Retailers[def]; !ok || !rc.Enabled {
			errs = append(errs, fmt.Errorf("chat.default_retailer %q is not an enabled retailer", def))
		}
	}
	if cfg.Chat.SearchLimit <= 0 {
		errs = append(errs, fmt.Errorf("chat.search_limit must be > 0"))
	}

	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port must be in 1..65535"))
	}

	if cfg.Sentinel.Enabled && cfg.Sentinel.IntervalSec <= 0 {
		errs = append(errs, fmt.Errorf("sentinel.interval_sec must be > 0 when sentinel.enabled=true"))
	}

	if cfg.Logging.Enabled {
		if cfg.Logging.Dir == "" {
			errs = append(errs, fmt.Errorf("logging.dir is required when logging.enabled=true"))
		}
		if cfg.Logging.Filename == "" {
			errs = append(errs, fmt.Errorf("logging.filename is required when logging.enabled=true"))
		}
		if cfg.Logging.MaxSizeMB <= 0 {
			errs = append(errs, fmt.Errorf("logging.max_size_mb must be > 0"))
		}
		if cfg.Logging.RetentionDays <= 0 {
			errs = append(errs, fmt.Errorf("logging.retention_days must be > 0"))
		}
	}

	return errs
}

func validateURL(path, raw string, required bool) []error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return []error{fmt.Errorf("%s is required", path)}
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return []error{fmt.Errorf("%s must be an absolute http(s) URL", path)}
	}
	return nil
}
