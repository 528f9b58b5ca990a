package config

import (
	"fmt"
	"strings"
)

// normalize expands paths and canonicalizes string fields in place.
func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLocales()
	c.normalizeQueue()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	expand := func(field *string, name string) error {
		if strings.TrimSpace(*field) == "" {
			return fmt.Errorf("paths.%s must not be empty", name)
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return fmt.Errorf("paths.%s: %w", name, err)
		}
		*field = expanded
		return nil
	}
	if err := expand(&c.Paths.DataDir, "data_dir"); err != nil {
		return err
	}
	if err := expand(&c.Paths.RenderDir, "render_dir"); err != nil {
		return err
	}
	if err := expand(&c.Paths.LogDir, "log_dir"); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeLocales() {
	c.Locales.Canonical = strings.ToLower(strings.TrimSpace(c.Locales.Canonical))
	seen := make(map[string]struct{}, len(c.Locales.Supported))
	out := make([]string, 0, len(c.Locales.Supported))
	for _, raw := range c.Locales.Supported {
		locale := strings.ToLower(strings.TrimSpace(raw))
		if locale == "" {
			continue
		}
		if _, ok := seen[locale]; ok {
			continue
		}
		seen[locale] = struct{}{}
		out = append(out, locale)
	}
	if c.Locales.Canonical != "" {
		if _, ok := seen[c.Locales.Canonical]; !ok {
			out = append([]string{c.Locales.Canonical}, out...)
		}
	}
	c.Locales.Supported = out
}

func (c *Config) normalizeQueue() {
	c.Queue.URL = strings.TrimSpace(c.Queue.URL)
	c.Queue.TranslateSubject = strings.TrimSpace(c.Queue.TranslateSubject)
	c.Queue.PublishSubject = strings.TrimSpace(c.Queue.PublishSubject)
	c.Executor.BaseURL = strings.TrimRight(strings.TrimSpace(c.Executor.BaseURL), "/")
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
