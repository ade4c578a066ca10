package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/worklog/internal/codec"
)

// printer writes command results in the configured output format.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: format}
}

// Print writes v as indented JSON or as block-style YAML.
func (p *printer) Print(v any) error {
	var (
		data []byte
		err  error
	)
	if p.format == "yaml" {
		data, err = toYAML(v)
	} else {
		data, err = codec.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	_, err = p.w.Write(data)
	return err
}

// Text writes s followed by a newline.
func (p *printer) Text(s string) error {
	_, err := fmt.Fprintln(p.w, s)
	return err
}

// toYAML goes through JSON first so field names and key order match the
// JSON output.
func toYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
