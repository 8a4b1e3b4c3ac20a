package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	API     APIConfig     `toml:"api"`
	Sync    SyncConfig    `toml:"sync"`
	Board   BoardConfig   `toml:"board"`
	Serve   ServeConfig   `toml:"serve"`
	Logging LoggingConfig `toml:"logging"`
}

type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	CSRFToken      string `toml:"csrf_token"`
	PageSize       int    `toml:"page_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type SyncConfig struct {
	PollIntervalSeconds int  `toml:"poll_interval_seconds"`
	AutoSelect          bool `toml:"auto_select"`
}

type BoardConfig struct {
	GroupBy  string        `toml:"group_by"` // round | status
	Statuses []string      `toml:"statuses"`
	Groups   []GroupConfig `toml:"groups"`
}

type GroupConfig struct {
	Key     string   `toml:"key"`
	Display string   `toml:"display"`
	Values  []string `toml:"values"`
}

type ServeConfig struct {
	Bind        string `toml:"bind"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

func defaultGroups() []GroupConfig {
	return []GroupConfig{
		{Key: "active", Display: "In Review", Values: []string{"in_discussion", "internal_review", "external_review"}},
		{Key: "incoming", Display: "Incoming", Values: []string{"draft", "submitted"}},
		{Key: "decided", Display: "Decided", Values: []string{"accepted", "rejected"}},
	}
}

func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://127.0.0.1:8090/api",
			PageSize:       1000,
			TimeoutSeconds: 15,
		},
		Sync: SyncConfig{
			PollIntervalSeconds: 30,
			AutoSelect:          true,
		},
		Board: BoardConfig{
			GroupBy:  "status",
			Statuses: []string{},
			Groups:   defaultGroups(),
		},
		Serve: ServeConfig{
			Bind:        "127.0.0.1:8091",
			MCPEndpoint: "/mcp",
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".ansok/log",
			},
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.PageSize < 0 {
		return errors.New("api.page_size must be >= 0")
	}
	if c.API.TimeoutSeconds < 0 {
		return errors.New("api.timeout_seconds must be >= 0")
	}
	if c.Sync.PollIntervalSeconds <= 0 {
		return errors.New("sync.poll_interval_seconds must be > 0")
	}

	switch strings.TrimSpace(strings.ToLower(c.Board.GroupBy)) {
	case "", "round", "status":
	default:
		return fmt.Errorf("invalid board.group_by: %q", c.Board.GroupBy)
	}

	seenGroupKey := map[string]struct{}{}
	for idx := range c.Board.Groups {
		group := c.Board.Groups[idx]
		group.Key = strings.TrimSpace(strings.ToLower(group.Key))
		group.Display = strings.TrimSpace(group.Display)
		if group.Key == "" {
			return fmt.Errorf("board.groups[%d].key is required", idx)
		}
		if group.Display == "" {
			return fmt.Errorf("board.groups[%d].display is required", idx)
		}
		if len(group.Values) == 0 {
			return fmt.Errorf("board.groups[%d].values must include at least one value", idx)
		}
		if _, ok := seenGroupKey[group.Key]; ok {
			return fmt.Errorf("board.groups[%d].key is duplicated: %s", idx, group.Key)
		}
		seenGroupKey[group.Key] = struct{}{}
		c.Board.Groups[idx] = group
	}

	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
