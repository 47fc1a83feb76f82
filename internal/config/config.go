// Package config handles calquick configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level calquick configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Calendar CalendarConfig `yaml:"calendar"`
	Save     SaveConfig     `yaml:"save"`
	Journal  JournalConfig  `yaml:"journal"`
	Diag     DiagConfig     `yaml:"diag"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote      string `yaml:"remote"`  // ws:// URL of external Chrome; empty = launch
	Stealth     string `yaml:"stealth"` // headless | headful
	XvfbDisplay string `yaml:"xvfb_display"`
}

// CalendarConfig identifies the host app and where the engine is active.
type CalendarConfig struct {
	URL string `yaml:"url"`
	// URLPatterns restricts activation to matching addresses. Substring
	// match; empty = always active.
	URLPatterns []string `yaml:"url_patterns"`
	// PopupMaxWidth is the width ceiling, in px, for a container to count
	// as a quick popup rather than the host's own full editor.
	PopupMaxWidth float64 `yaml:"popup_max_width"`
}

// SaveConfig bounds the save sequence.
type SaveConfig struct {
	EditorTimeout      time.Duration `yaml:"editor_timeout"`
	SaveControlTimeout time.Duration `yaml:"save_control_timeout"`
	IdleQuiet          time.Duration `yaml:"idle_quiet"`
	IdleMaxWait        time.Duration `yaml:"idle_max_wait"`
	ScrollLock         time.Duration `yaml:"scroll_lock"`
	// PromptChoice answers the host's "notify participants?" prompt:
	// send | dont_send.
	PromptChoice string `yaml:"prompt_choice"`
}

// JournalConfig controls save-attempt persistence.
type JournalConfig struct {
	Path string `yaml:"path"` // empty = journal disabled
}

// DiagConfig controls the diagnostics HTTP listener.
type DiagConfig struct {
	Listen string `yaml:"listen"` // empty = disabled
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills the zero values.
func (c *Config) ApplyDefaults() {
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Calendar.PopupMaxWidth <= 0 {
		c.Calendar.PopupMaxWidth = 520
	}
	if c.Save.EditorTimeout <= 0 {
		c.Save.EditorTimeout = 20 * time.Second
	}
	if c.Save.SaveControlTimeout <= 0 {
		c.Save.SaveControlTimeout = 12 * time.Second
	}
	if c.Save.IdleQuiet <= 0 {
		c.Save.IdleQuiet = 800 * time.Millisecond
	}
	if c.Save.IdleMaxWait <= 0 {
		c.Save.IdleMaxWait = 10 * time.Second
	}
	if c.Save.ScrollLock <= 0 {
		c.Save.ScrollLock = 2 * time.Second
	}
	if c.Save.PromptChoice == "" {
		c.Save.PromptChoice = "send"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Calendar.URL == "" && c.Browser.Remote == "" {
		return fmt.Errorf("config: calendar.url is required when not attaching to a remote browser")
	}
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.stealth must be headless or headful, got %q", c.Browser.Stealth)
	}
	switch c.Save.PromptChoice {
	case "send", "dont_send":
	default:
		return fmt.Errorf("config: save.prompt_choice must be send or dont_send, got %q", c.Save.PromptChoice)
	}
	return nil
}

// Active reports whether the engine should operate at the given address.
func (c *CalendarConfig) Active(url string) bool {
	if len(c.URLPatterns) == 0 {
		return true
	}
	for _, p := range c.URLPatterns {
		if p != "" && strings.Contains(url, p) {
			return true
		}
	}
	return false
}
