package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type GlobalConfig struct {
	// APIURL is the server base URL, without the /api/v1 suffix.
	APIURL string `json:"apiUrl,omitempty"`
	APIKey string `json:"apiKey,omitempty"`

	CurrentWorkspace string `json:"currentWorkspace,omitempty"`
	CurrentProject   string `json:"currentProject,omitempty"`

	// RateLimitPerMinute caps API requests; 0 disables limiting.
	RateLimitPerMinute int `json:"rateLimitPerMinute,omitempty"`

	LogLevel string `json:"logLevel,omitempty"`
}

var configKeys = map[string]func(*GlobalConfig, string) error{
	"apiUrl": func(c *GlobalConfig, v string) error {
		c.APIURL = strings.TrimRight(v, "/")
		return nil
	},
	"apiKey": func(c *GlobalConfig, v string) error {
		c.APIKey = v
		return nil
	},
	"currentWorkspace": func(c *GlobalConfig, v string) error {
		c.CurrentWorkspace = v
		return nil
	},
	"currentProject": func(c *GlobalConfig, v string) error {
		c.CurrentProject = v
		return nil
	},
	"rateLimitPerMinute": func(c *GlobalConfig, v string) error {
		if v == "" {
			c.RateLimitPerMinute = 0
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("rateLimitPerMinute must be a non-negative integer: %q", v)
		}
		c.RateLimitPerMinute = n
		return nil
	},
	"logLevel": func(c *GlobalConfig, v string) error {
		c.LogLevel = v
		return nil
	},
}

// ConfigKeys lists the keys accepted by Set.
func ConfigKeys() []string {
	out := make([]string, 0, len(configKeys))
	for k := range configKeys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Set assigns one config key from its string form. An empty value clears it.
func (c *GlobalConfig) Set(key, value string) error {
	fn, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (want one of: %s)", key, strings.Join(ConfigKeys(), ", "))
	}
	return fn(c, strings.TrimSpace(value))
}

// Redacted returns a copy safe to print.
func (c GlobalConfig) Redacted() GlobalConfig {
	if len(c.APIKey) > 4 {
		c.APIKey = strings.Repeat("*", len(c.APIKey)-4) + c.APIKey[len(c.APIKey)-4:]
	} else if c.APIKey != "" {
		c.APIKey = "****"
	}
	return c
}

func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.planeview).
	if v := strings.TrimSpace(os.Getenv("PLANEVIEW_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, localDirName), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func LoadConfig() (*GlobalConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &GlobalConfig{}, nil
		}
		return nil, err
	}
	var cfg GlobalConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}

func SaveConfig(cfg *GlobalConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	// Keep the previous config around; failures here don't block the save.
	if prev, err := os.ReadFile(path); err == nil && len(prev) > 0 {
		_ = atomicWriteFile(dir, "config.json.bak.*.tmp", path+".bak", prev, 0o600)
	}

	// The file holds the API key.
	return atomicWriteFile(dir, "config.json.*.tmp", path, b, 0o600)
}
