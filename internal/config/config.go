// Package config handles viewer configuration loading and management.
package config

// Config holds all viewer settings.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Animation AnimationConfig `yaml:"animation"`
	Terrain   TerrainConfig   `yaml:"terrain"`
	Export    ExportConfig    `yaml:"export"`
	Text      TextConfig      `yaml:"text"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DataConfig holds asset source paths. Archives are mounted before search
// directories and later sources shadow earlier ones.
type DataConfig struct {
	Archives   []string `yaml:"archives"`    // Zip archives
	SearchDirs []string `yaml:"search_dirs"` // Loose-file directories
}

// ResolverConfig controls container resolution.
type ResolverConfig struct {
	ExtractStrings   bool `yaml:"extract_strings"`
	MaxStringLen     int  `yaml:"max_string_len"`
	AnimMaxStringLen int  `yaml:"anim_max_string_len"`
}

// AnimationConfig holds playback settings.
type AnimationConfig struct {
	Speed    float32 `yaml:"speed"`
	LoopMode string  `yaml:"loop_mode"` // loop or pingpong
	FPS      int     `yaml:"fps"`       // sampling rate of the anim command
}

// TerrainConfig holds tile assembly and streaming settings.
type TerrainConfig struct {
	TileSize     float32 `yaml:"tile_size"`
	LoadRadius   int     `yaml:"load_radius"`
	Workers      int     `yaml:"workers"`
	LoadBudget   int     `yaml:"load_budget"`   // ready tiles integrated per poll
	UnloadBudget int     `yaml:"unload_budget"` // tile drops per update
	MaxWalkSlope float32 `yaml:"max_walk_slope"`
}

// ExportConfig holds glTF export settings.
type ExportConfig struct {
	Binary        bool `yaml:"binary"`
	Animations    bool `yaml:"animations"`
	EmbedTextures bool `yaml:"embed_textures"`
}

// TextConfig selects the encoding of names stored in containers.
type TextConfig struct {
	Encoding string `yaml:"encoding"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Sources returns the data paths in mount order.
func (d DataConfig) Sources() []string {
	out := make([]string, 0, len(d.Archives)+len(d.SearchDirs))
	out = append(out, d.Archives...)
	return append(out, d.SearchDirs...)
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			SearchDirs: []string{"."},
		},
		Resolver: ResolverConfig{
			ExtractStrings:   true,
			MaxStringLen:     4096,
			AnimMaxStringLen: 200,
		},
		Animation: AnimationConfig{
			Speed:    1,
			LoopMode: "loop",
			FPS:      30,
		},
		Terrain: TerrainConfig{
			TileSize:     64,
			LoadRadius:   1,
			Workers:      2,
			LoadBudget:   2,
			UnloadBudget: 4,
			MaxWalkSlope: 45,
		},
		Export: ExportConfig{
			Binary:     true,
			Animations: true,
		},
		Text: TextConfig{
			Encoding: "utf-8",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
