package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.Resolver.ExtractStrings {
		t.Error("expected string extraction on by default")
	}
	if cfg.Resolver.MaxStringLen != 4096 || cfg.Resolver.AnimMaxStringLen != 200 {
		t.Errorf("expected string limits 4096/200, got %d/%d",
			cfg.Resolver.MaxStringLen, cfg.Resolver.AnimMaxStringLen)
	}

	if cfg.Animation.Speed != 1 {
		t.Errorf("expected speed 1, got %f", cfg.Animation.Speed)
	}
	if cfg.Animation.LoopMode != "loop" {
		t.Errorf("expected loop mode 'loop', got %s", cfg.Animation.LoopMode)
	}

	if cfg.Terrain.TileSize != 64 {
		t.Errorf("expected tile size 64, got %f", cfg.Terrain.TileSize)
	}
	if cfg.Terrain.LoadRadius != 1 {
		t.Errorf("expected load radius 1, got %d", cfg.Terrain.LoadRadius)
	}

	if !cfg.Export.Binary {
		t.Error("expected binary export by default")
	}
	if cfg.Text.Encoding != "utf-8" {
		t.Errorf("expected encoding utf-8, got %s", cfg.Text.Encoding)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
data:
  archives: ["base.zip", "patch.zip"]
  search_dirs: ["mods"]

resolver:
  extract_strings: false
  max_string_len: 512

animation:
  speed: 0.5
  loop_mode: pingpong

terrain:
  tile_size: 32
  workers: 4
  max_walk_slope: 30

export:
  binary: false
  embed_textures: true

text:
  encoding: euc-kr

logging:
  level: "debug"
  log_file: "viewer.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if got := cfg.Data.Sources(); len(got) != 3 || got[0] != "base.zip" || got[2] != "mods" {
		t.Errorf("expected sources [base.zip patch.zip mods], got %v", got)
	}
	if cfg.Resolver.ExtractStrings {
		t.Error("expected extract_strings to be false")
	}
	if cfg.Resolver.MaxStringLen != 512 {
		t.Errorf("expected max string len 512, got %d", cfg.Resolver.MaxStringLen)
	}
	// Keys missing from the file keep their defaults.
	if cfg.Resolver.AnimMaxStringLen != 200 {
		t.Errorf("expected anim max string len 200, got %d", cfg.Resolver.AnimMaxStringLen)
	}
	if cfg.Animation.Speed != 0.5 || cfg.Animation.LoopMode != "pingpong" {
		t.Errorf("expected animation 0.5/pingpong, got %f/%s", cfg.Animation.Speed, cfg.Animation.LoopMode)
	}
	if cfg.Terrain.TileSize != 32 || cfg.Terrain.Workers != 4 || cfg.Terrain.MaxWalkSlope != 30 {
		t.Errorf("unexpected terrain config %+v", cfg.Terrain)
	}
	if cfg.Export.Binary || !cfg.Export.EmbedTextures {
		t.Errorf("unexpected export config %+v", cfg.Export)
	}
	if cfg.Text.Encoding != "euc-kr" {
		t.Errorf("expected encoding euc-kr, got %s", cfg.Text.Encoding)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "viewer.log" {
		t.Errorf("expected log file 'viewer.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
terrain:
  tile_size: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"ping-pong spelling", func(c *Config) { c.Animation.LoopMode = "Ping-Pong" }, true},
		{"unknown loop mode", func(c *Config) { c.Animation.LoopMode = "bounce" }, false},
		{"negative speed", func(c *Config) { c.Animation.Speed = -1 }, false},
		{"zero fps", func(c *Config) { c.Animation.FPS = 0 }, false},
		{"zero tile size", func(c *Config) { c.Terrain.TileSize = 0 }, false},
		{"no workers", func(c *Config) { c.Terrain.Workers = 0 }, false},
		{"zero radius", func(c *Config) { c.Terrain.LoadRadius = 0 }, true},
		{"zero string limit", func(c *Config) { c.Resolver.MaxStringLen = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	// Actual path depends on OS
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "bdae.yaml")
	if err := os.WriteFile(configPath, []byte("terrain:\n  tile_size: 16\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find bdae.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "data flag mounts last",
			setup: func() { *flagData = "extra" },
			verify: func(t *testing.T, cfg *Config) {
				src := cfg.Data.Sources()
				if src[len(src)-1] != "extra" {
					t.Errorf("expected extra to be mounted last, got %v", src)
				}
			},
			teardown: func() { *flagData = "" },
		},
		{
			name: "animation flags",
			setup: func() {
				*flagSpeed = 2
				*flagLoop = "pingpong"
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Animation.Speed != 2 || cfg.Animation.LoopMode != "pingpong" {
					t.Errorf("expected 2/pingpong, got %f/%s", cfg.Animation.Speed, cfg.Animation.LoopMode)
				}
			},
			teardown: func() {
				*flagSpeed = 0
				*flagLoop = ""
			},
		},
		{
			name:  "radius flag accepts zero",
			setup: func() { *flagRadius = 0 },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Terrain.LoadRadius != 0 {
					t.Errorf("expected radius 0, got %d", cfg.Terrain.LoadRadius)
				}
			},
			teardown: func() { *flagRadius = -1 },
		},
		{
			name: "encoding and gltf flags",
			setup: func() {
				*flagEncoding = "shift-jis"
				*flagGLTF = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Text.Encoding != "shift-jis" {
					t.Errorf("expected shift-jis, got %s", cfg.Text.Encoding)
				}
				if cfg.Export.Binary {
					t.Error("expected JSON export with gltf flag")
				}
			},
			teardown: func() {
				*flagEncoding = ""
				*flagGLTF = false
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
animation:
  speed: 0.25
  fps: 60
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Set flag to override config file
	*flagConfig = configPath
	*flagSpeed = 3
	defer func() {
		*flagConfig = ""
		*flagSpeed = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Speed from flag, fps from file
	if cfg.Animation.Speed != 3 {
		t.Errorf("expected speed 3 from flag, got %f", cfg.Animation.Speed)
	}
	if cfg.Animation.FPS != 60 {
		t.Errorf("expected fps 60 from file, got %d", cfg.Animation.FPS)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Text.Encoding = "cp1252"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	back := Default()
	if err := loadFromFile(back, path); err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}
	if back.Text.Encoding != "cp1252" {
		t.Errorf("expected cp1252 after reload, got %s", back.Text.Encoding)
	}
}
