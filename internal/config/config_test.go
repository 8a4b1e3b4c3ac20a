package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Sync.PollIntervalSeconds != 30 {
		t.Fatalf("poll interval = %d, want 30", cfg.Sync.PollIntervalSeconds)
	}
	if !cfg.Sync.AutoSelect {
		t.Fatal("auto select should default on")
	}
	if len(cfg.Board.Groups) == 0 {
		t.Fatal("default group layout missing")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"), Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != Default().API.BaseURL {
		t.Fatalf("base url = %q", cfg.API.BaseURL)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "https://review.example.org/api"
page_size = 200

[sync]
poll_interval_seconds = 10
auto_select = false

[board]
group_by = "round"
statuses = ["submitted", "in_discussion"]

[[board.groups]]
key = "r7"
display = "Spring Round"
values = ["7"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://review.example.org/api" || cfg.API.PageSize != 200 {
		t.Fatalf("api = %+v", cfg.API)
	}
	if cfg.Sync.PollIntervalSeconds != 10 || cfg.Sync.AutoSelect {
		t.Fatalf("sync = %+v", cfg.Sync)
	}
	if cfg.Board.GroupBy != "round" {
		t.Fatalf("group_by = %q", cfg.Board.GroupBy)
	}
	if !slices.Equal(cfg.Board.Statuses, []string{"submitted", "in_discussion"}) {
		t.Fatalf("statuses = %v", cfg.Board.Statuses)
	}
	if len(cfg.Board.Groups) != 1 || cfg.Board.Groups[0].Key != "r7" {
		t.Fatalf("groups = %+v", cfg.Board.Groups)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing base url",
			content: "[api]\nbase_url = \"  \"\n",
			wantErr: "api.base_url",
		},
		{
			name:    "zero poll interval",
			content: "[sync]\npoll_interval_seconds = 0\n",
			wantErr: "poll_interval_seconds",
		},
		{
			name:    "bad group by",
			content: "[board]\ngroup_by = \"color\"\n",
			wantErr: "group_by",
		},
		{
			name:    "group without values",
			content: "[[board.groups]]\nkey = \"x\"\ndisplay = \"X\"\nvalues = []\n",
			wantErr: "values",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, err := Load(path, Default())
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateRejectsDuplicateGroupKeys(t *testing.T) {
	cfg := Default()
	cfg.Board.Groups = []GroupConfig{
		{Key: "open", Display: "Open", Values: []string{"submitted"}},
		{Key: "Open", Display: "Also Open", Values: []string{"draft"}},
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "duplicated") {
		t.Fatalf("err = %v, want duplicate key error", err)
	}
}
