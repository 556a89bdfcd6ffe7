package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.PageSize != 200 {
		t.Errorf("expected default page size 200, got %d", cfg.PageSize)
	}
	if cfg.RequestRate != 0 {
		t.Errorf("expected unlimited request rate, got %v", cfg.RequestRate)
	}
	if cfg.Connection.HandshakeTimeout != 10*time.Second {
		t.Errorf("expected default handshake timeout 10s, got %v", cfg.Connection.HandshakeTimeout)
	}
	if cfg.Connection.ReadLimit != 64*1024*1024 {
		t.Errorf("expected default read limit 64MiB, got %d", cfg.Connection.ReadLimit)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
uri: wss://scanner.example.org/
out_dir: ./calls
talkgroups: ["100", "Fire Dispatch"]
page_size: 50
request_rate: 2.5
progress: true
connection:
  handshake_timeout: 30s
  read_limit: 128MiB
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.URI != "wss://scanner.example.org/" {
		t.Errorf("expected uri, got %q", cfg.URI)
	}
	if cfg.OutDir != "./calls" {
		t.Errorf("expected out_dir ./calls, got %q", cfg.OutDir)
	}
	if len(cfg.Talkgroups) != 2 || cfg.Talkgroups[1] != "Fire Dispatch" {
		t.Errorf("unexpected talkgroups %v", cfg.Talkgroups)
	}
	if cfg.PageSize != 50 {
		t.Errorf("expected page size 50, got %d", cfg.PageSize)
	}
	if cfg.RequestRate != 2.5 {
		t.Errorf("expected request rate 2.5, got %v", cfg.RequestRate)
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if cfg.Connection.HandshakeTimeout != 30*time.Second {
		t.Errorf("expected handshake timeout 30s, got %v", cfg.Connection.HandshakeTimeout)
	}
	if cfg.Connection.ReadLimit != 128*1024*1024 {
		t.Errorf("expected read limit 128MiB, got %d", cfg.Connection.ReadLimit)
	}
}

func TestLoadFromYAMLKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("out_dir: /data\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.PageSize != 200 || cfg.Connection.HandshakeTimeout != 10*time.Second {
		t.Errorf("expected defaults kept, got %+v", cfg)
	}
}

func TestLoadFromYAMLBadValues(t *testing.T) {
	tests := []string{
		"connection:\n  handshake_timeout: soon\n",
		"connection:\n  read_limit: lots\n",
	}
	for _, content := range tests {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("write config file: %v", err)
		}
		if _, err := LoadFromFile(configPath); err == nil {
			t.Errorf("expected error for %q", content)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCANFETCH_URI", "ws://localhost:3000/")
	t.Setenv("SCANFETCH_OUT_DIR", "s3://archive")
	t.Setenv("SCANFETCH_TALKGROUPS", "100, 200,,Fire Dispatch")
	t.Setenv("SCANFETCH_PAGE_SIZE", "500")
	t.Setenv("SCANFETCH_REQUEST_RATE", "10")
	t.Setenv("SCANFETCH_PROGRESS", "true")
	t.Setenv("SCANFETCH_VERBOSE", "1")
	t.Setenv("SCANFETCH_HANDSHAKE_TIMEOUT", "500ms")
	t.Setenv("SCANFETCH_READ_LIMIT", "1GiB")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.URI != "ws://localhost:3000/" {
		t.Errorf("expected uri from env, got %q", cfg.URI)
	}
	if cfg.OutDir != "s3://archive" {
		t.Errorf("expected out_dir from env, got %q", cfg.OutDir)
	}
	if want := []string{"100", "200", "Fire Dispatch"}; len(cfg.Talkgroups) != 3 || cfg.Talkgroups[2] != want[2] {
		t.Errorf("expected talkgroups %v, got %v", want, cfg.Talkgroups)
	}
	if cfg.PageSize != 500 {
		t.Errorf("expected page size 500, got %d", cfg.PageSize)
	}
	if cfg.RequestRate != 10 {
		t.Errorf("expected request rate 10, got %v", cfg.RequestRate)
	}
	if !cfg.Progress || !cfg.Verbose {
		t.Error("expected progress and verbose true")
	}
	if cfg.Connection.HandshakeTimeout != 500*time.Millisecond {
		t.Errorf("expected handshake timeout 500ms, got %v", cfg.Connection.HandshakeTimeout)
	}
	if cfg.Connection.ReadLimit != 1024*1024*1024 {
		t.Errorf("expected read limit 1GiB, got %d", cfg.Connection.ReadLimit)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("SCANFETCH_PAGE_SIZE", "many")
	cfg := Default()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for invalid page size")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.URI = "wss://scanner.example.org/"
		cfg.OutDir = "./calls"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"missing out_dir", func(c *Config) { c.OutDir = "" }, true},
		{"invalid page size", func(c *Config) { c.PageSize = 0 }, true},
		{"negative request rate", func(c *Config) { c.RequestRate = -1 }, true},
		{"invalid handshake timeout", func(c *Config) { c.Connection.HandshakeTimeout = 0 }, true},
		{"invalid read limit", func(c *Config) { c.Connection.ReadLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRemote(t *testing.T) {
	cfg := Default()
	cfg.OutDir = "./calls"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := cfg.ValidateRemote(); err == nil {
		t.Error("expected error for missing uri")
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	base.URI = "wss://scanner.example.org/"
	base.OutDir = "./calls"
	base.Talkgroups = []string{"100"}

	override := Config{
		PageSize:   25,
		Talkgroups: []string{"200", "300"},
	}

	merged := base.Merge(override)

	if merged.URI != "wss://scanner.example.org/" {
		t.Errorf("expected URI preserved, got %s", merged.URI)
	}
	if merged.Connection.ReadLimit != 64*1024*1024 {
		t.Errorf("expected ReadLimit preserved, got %d", merged.Connection.ReadLimit)
	}
	if merged.PageSize != 25 {
		t.Errorf("expected PageSize overridden to 25, got %d", merged.PageSize)
	}
	if len(merged.Talkgroups) != 2 {
		t.Errorf("expected talkgroups overridden, got %v", merged.Talkgroups)
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}
