package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/starfederation/packify-go/internal/logging"
)

type cli struct {
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"warn" env:"PACKIFY_LOG_LEVEL"`
	LogFormat string `help:"Log format (console, json)." default:"console" enum:"console,json" env:"PACKIFY_LOG_FORMAT"`

	Encode  encodeCmd  `cmd:"" help:"Pack a JSON, YAML or CBOR document."`
	Decode  decodeCmd  `cmd:"" help:"Render packed data as JSON, YAML or CBOR."`
	Inspect inspectCmd `cmd:"" help:"Print the tag tree and fingerprint of packed data."`
}

// runContext is bound into every command's Run method.
type runContext struct {
	log    *zap.Logger
	stdin  io.Reader
	stdout io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "packify:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("packify"),
		kong.Description("Convert between packed data and JSON, YAML or CBOR."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Level: c.LogLevel, Format: c.LogFormat, Output: stderr})
	defer logger.Sync()

	return kctx.Run(&runContext{log: logger, stdin: stdin, stdout: stdout})
}
