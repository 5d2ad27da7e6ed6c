package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/starfederation/packify-go"
	"github.com/starfederation/packify-go/runtime/cbor"
	"github.com/starfederation/packify-go/runtime/yaml"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type ioFlags struct {
	Input  string `arg:"" optional:"" default:"-" help:"Input file, - for stdin."`
	Output string `short:"o" default:"-" help:"Output file, - for stdout."`
}

type encodeCmd struct {
	ioFlags
	From string `enum:"json,yaml,cbor" default:"json" help:"Input format (json, yaml, cbor)."`
	Zstd bool   `help:"Compress the packed output with zstd."`
}

func (c *encodeCmd) Run(rc *runContext) error {
	in, err := readInput(rc, c.Input)
	if err != nil {
		return err
	}
	var packed []byte
	switch c.From {
	case "json":
		var text []byte
		if text, err = stripBOM(in); err == nil {
			packed, err = packify.FromJSON(text)
		}
	case "yaml":
		var text []byte
		if text, err = stripBOM(in); err == nil {
			packed, err = yaml.FromYAML(text)
		}
	case "cbor":
		packed, err = cbor.FromCBOR(in)
	default:
		err = fmt.Errorf("unknown input format %q", c.From)
	}
	if err != nil {
		return err
	}
	rc.log.Debug("encoded", zap.String("from", c.From), zap.Int("in", len(in)), zap.Int("out", len(packed)))
	if c.Zstd {
		packed, err = compress(packed)
		if err != nil {
			return err
		}
	}
	return writeOutput(rc, c.Output, packed)
}

type decodeCmd struct {
	ioFlags
	To string `enum:"json,yaml,cbor" default:"json" help:"Output format (json, yaml, cbor)."`
}

func (c *decodeCmd) Run(rc *runContext) error {
	packed, err := readPacked(rc, c.Input)
	if err != nil {
		return err
	}
	var out []byte
	switch c.To {
	case "json":
		out, err = packify.ToJSON(packed)
		out = append(out, '\n')
	case "yaml":
		out, err = yaml.ToYAML(packed)
	case "cbor":
		out, err = cbor.ToCBOR(packed)
	default:
		err = fmt.Errorf("unknown output format %q", c.To)
	}
	if err != nil {
		return err
	}
	return writeOutput(rc, c.Output, out)
}

type inspectCmd struct {
	Input string `arg:"" optional:"" default:"-" help:"Input file, - for stdin."`
}

func (c *inspectCmd) Run(rc *runContext) error {
	packed, err := readPacked(rc, c.Input)
	if err != nil {
		return err
	}
	if err := packify.Dump(rc.stdout, packed); err != nil {
		return err
	}
	_, err = fmt.Fprintf(rc.stdout, "size %d bytes, xxh3 %016x\n", len(packed), packify.Fingerprint(packed))
	return err
}

func readInput(rc *runContext, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(rc.stdin)
	}
	return os.ReadFile(name)
}

// readPacked reads packed input, decompressing it when it carries a zstd
// frame header.
func readPacked(rc *runContext, name string) ([]byte, error) {
	data, err := readInput(rc, name)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	rc.log.Debug("input is zstd compressed", zap.Int("size", len(data)))
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func writeOutput(rc *runContext, name string, data []byte) error {
	if name == "-" {
		_, err := rc.stdout.Write(data)
		return err
	}
	return os.WriteFile(name, data, 0o644)
}

// stripBOM drops a UTF-8 byte order mark and converts UTF-16 input that
// starts with one to UTF-8.
func stripBOM(data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return nil, fmt.Errorf("decode input text: %w", err)
	}
	return out, nil
}
