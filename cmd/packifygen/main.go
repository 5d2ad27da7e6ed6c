package main

import (
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/starfederation/packify-go/internal/logging"
)

type cli struct {
	Dir       string `help:"Root directory to scan for Go packages." default:"."`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"PACKIFY_LOG_LEVEL"`
	LogFormat string `help:"Log format (console, json)." default:"console" enum:"console,json" env:"PACKIFY_LOG_FORMAT"`
}

func main() {
	var args cli
	kong.Parse(&args,
		kong.Name("packifygen"),
		kong.Description("Generate packify extension methods for packify-tagged Go structs."),
		kong.UsageOnError(),
	)

	logger := logging.New(logging.Config{Level: args.LogLevel, Format: args.LogFormat, Output: os.Stderr})
	defer logger.Sync()

	if err := run(logger, args.Dir); err != nil {
		logger.Fatal("packifygen failed", zap.Error(err))
	}
}

func run(logger *zap.Logger, dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	g := &generator{log: logger}
	infos, err := g.collectPackageInfos(absDir)
	if err != nil {
		return err
	}

	wrote := 0
	removed := 0
	for _, info := range infos {
		if len(info.Structs) == 0 {
			wasRemoved, err := removeGeneratedFile(info.Dir)
			if err != nil {
				return err
			}
			if wasRemoved {
				removed++
			}
			continue
		}

		src, err := generatePackage(info)
		if err != nil {
			return err
		}

		outPath := filepath.Join(info.Dir, generatedFileName)
		changed, err := writeFileIfChanged(outPath, src)
		if err != nil {
			return err
		}
		if changed {
			logger.Debug("wrote generated file", zap.String("path", outPath), zap.Int("structs", len(info.Structs)))
			wrote++
		}
	}

	logger.Info("packifygen finished", zap.Int("wrote", wrote), zap.Int("removed", removed))
	return nil
}
