package templates

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed seeds/system_templates.yaml
var defaultSeeds []byte

type seedFile struct {
	Templates []Input `yaml:"templates"`
}

// DecodeSeeds reads a YAML document with a top-level templates list.
func DecodeSeeds(r io.Reader) ([]Input, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f seedFile
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("templates: decode seeds: %w", err)
	}
	return f.Templates, nil
}

// LoadSeeds returns the templates at path, or the built-in system templates
// when path is empty.
func LoadSeeds(path string) ([]Input, error) {
	if path == "" {
		return DecodeSeeds(bytes.NewReader(defaultSeeds))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("templates: open seeds: %w", err)
	}
	defer f.Close()
	return DecodeSeeds(f)
}
