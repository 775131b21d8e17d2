package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	JSON Format = "json"
	EDN  Format = "edn"
	YAML Format = "yaml"
)

func Parse(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "edn":
		return EDN, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("unknown format: %s (want json, edn or yaml)", s)
	}
}

// Write writes v in format f. pretty only affects json and edn; yaml is
// always block style.
func Write(w io.Writer, v any, f Format, pretty bool) error {
	switch f {
	case "", JSON:
		return WriteJSON(w, v, pretty)
	case EDN:
		return WriteEDN(w, v, pretty)
	case YAML:
		return WriteYAML(w, v)
	default:
		return fmt.Errorf("unknown format: %s", f)
	}
}

func WriteJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// WriteYAML goes through JSON first so json tags and custom marshalers decide
// field names, as for the other formats.
func WriteYAML(w io.Writer, v any) error {
	x, err := toPlain(v)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(x); err != nil {
		return err
	}
	return enc.Close()
}

func toPlain(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return nil, err
	}
	return x, nil
}
