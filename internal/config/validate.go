package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate reports problems that Resolve cannot paper over with a default.
// A config that fails Validate is rejected on reload.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if raw := strings.TrimSpace(cfg.Page.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("page.url: %w", err))
		} else if u.Host == "" {
			errs = append(errs, fmt.Errorf("page.url: %q has no host", raw))
		}
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "memory", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path: required for driver %q", st.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", cfg.Logging.Format))
	}

	return errors.Join(errs...)
}
