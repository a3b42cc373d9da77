// bdaetool is a CLI utility for inspecting and converting BDAE models,
// their animation companions and terrain tiles.
package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/bdae-viewer/internal/config"
	"github.com/Faultbox/bdae-viewer/internal/engine/model"
	"github.com/Faultbox/bdae-viewer/internal/logger"
	"github.com/Faultbox/bdae-viewer/pkg/archive"
	"github.com/Faultbox/bdae-viewer/pkg/encoding"
)

// env is the state shared by all commands.
type env struct {
	cfg     *config.Config
	files   *archive.Manager
	decoder *encoding.Decoder
	models  *model.Loader
}

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := args[0]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return
	}

	e, err := newEnv(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer e.files.Close()

	switch command {
	case "info":
		err = e.cmdInfo(args[1:])
	case "strings":
		err = e.cmdStrings(args[1:])
	case "nodes":
		err = e.cmdNodes(args[1:])
	case "anim":
		err = e.cmdAnim(args[1:])
	case "export":
		err = e.cmdExport(args[1:])
	case "terrain":
		err = e.cmdTerrain(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if errors.Is(err, errUsage) {
		os.Exit(1)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newEnv(cfg *config.Config) (*env, error) {
	dec, err := encoding.NewDecoder(cfg.Text.Encoding)
	if err != nil {
		return nil, err
	}

	files := archive.NewManager()
	for _, src := range cfg.Data.Sources() {
		if err := files.Mount(src); err != nil {
			logger.Warn("data source skipped", zap.String("path", src), zap.Error(err))
		}
	}

	opts := model.LoaderOptions{
		ExtractStrings:   cfg.Resolver.ExtractStrings,
		MaxStringLen:     cfg.Resolver.MaxStringLen,
		AnimMaxStringLen: cfg.Resolver.AnimMaxStringLen,
		Decoder:          dec,
	}
	return &env{
		cfg:     cfg,
		files:   files,
		decoder: dec,
		models:  model.NewLoader(files, model.NewCache(), opts),
	}, nil
}

func printUsage() {
	fmt.Println(`bdaetool - BDAE model, animation and terrain utility

Usage:
  bdaetool [flags] <command> [options]

Commands:
  info <file>                          Show container and model information
  strings <file>                       List extracted strings
  nodes <model>                        Print the node tree
  anim [-node id] <model> <anim...>    List animation sets, sample a node
  export [-o out] <model> [anim...]    Export to glTF/GLB
  terrain [-stream] <x> <z>            Assemble a terrain tile

Flags:
  -config <file>   Config file (default ./bdae.yaml or the user config dir)
  -data <path>     Archive or directory mounted over the configured sources
  -encoding <name> Encoding of stored names
  -debug           Enable debug logging
  -gltf            Export JSON glTF instead of GLB

Examples:
  bdaetool -data assets.zip info models/hero.bdae
  bdaetool nodes models/hero.bdae
  bdaetool anim -node Bip01 models/hero.bdae models/hero_run.anim
  bdaetool export -o hero.glb models/hero.bdae models/hero_run.anim
  bdaetool terrain -stream 3 4`)
}
