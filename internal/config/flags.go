package config

import "flag"

var (
	flagConfig   = flag.String("config", "", "Path to config file")
	flagDebug    = flag.Bool("debug", false, "Enable debug logging")
	flagData     = flag.String("data", "", "Archive or directory mounted over the configured sources")
	flagEncoding = flag.String("encoding", "", "Encoding of stored names")
	flagSpeed    = flag.Float64("speed", 0, "Animation speed multiplier")
	flagLoop     = flag.String("loop", "", "Animation loop mode (loop, pingpong)")
	flagRadius   = flag.Int("radius", -1, "Terrain load radius in tiles")
	flagGLTF     = flag.Bool("gltf", false, "Export JSON glTF instead of GLB")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagData != "" {
		cfg.Data.SearchDirs = append(cfg.Data.SearchDirs, *flagData)
	}
	if *flagEncoding != "" {
		cfg.Text.Encoding = *flagEncoding
	}
	if *flagSpeed > 0 {
		cfg.Animation.Speed = float32(*flagSpeed)
	}
	if *flagLoop != "" {
		cfg.Animation.LoopMode = *flagLoop
	}
	if *flagRadius >= 0 {
		cfg.Terrain.LoadRadius = *flagRadius
	}
	if *flagGLTF {
		cfg.Export.Binary = false
	}
}
