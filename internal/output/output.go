// Package output renders command results as yaml or json.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Format is a structured output encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat validates a --output flag value. Empty means yaml.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatYAML:
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want yaml or json)", s)
}

// Printer writes values to W in Format.
type Printer struct {
	W      io.Writer
	Format Format
}

// New returns a printer for w.
func New(w io.Writer, format Format) *Printer {
	return &Printer{W: w, Format: format}
}

// Print encodes v.
func (p *Printer) Print(v any) error {
	switch p.Format {
	case FormatJSON:
		enc := json.NewEncoder(p.W)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML, "":
		enc := yaml.NewEncoder(p.W)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format: %s", p.Format)
	}
}

// Text writes s verbatim, adding a trailing newline when missing.
func (p *Printer) Text(s string) error {
	if _, err := io.WriteString(p.W, s); err != nil {
		return err
	}
	if len(s) == 0 || s[len(s)-1] != '\n' {
		_, err := io.WriteString(p.W, "\n")
		return err
	}
	return nil
}
