package domain

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/validate"
)

// LoadManifest reads and validates a YAML manifest
func LoadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, perr.Wrapf(err, perr.ErrorCodeConfigParse, "read manifest %s", path)
	}
	return ParseManifest(b)
}

// ParseManifest decodes a manifest strictly (unknown keys are errors),
// fills defaults and validates it
func ParseManifest(b []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return Manifest{}, perr.Wrap(err, perr.ErrorCodeConfigParse, "decode manifest")
	}

	for i := range m.Configurations {
		c := &m.Configurations[i]
		c.ID = strings.TrimSpace(c.ID)
		c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
		if c.Source.Kind == "" {
			c.Source.Kind = SourceAPI
			if c.Source.Path != "" {
				c.Source.Kind = SourceFile
			}
		}
		if c.Name == "" {
			c.Name = "config_" + c.ID
		}
	}

	if err := validate.Err(validate.Struct(m)); err != nil {
		return Manifest{}, err
	}

	seen := map[string]struct{}{}
	for _, c := range m.Configurations {
		if _, dup := seen[c.ID]; dup {
			return Manifest{}, perr.WithField(perr.ConfigParsef("configuration %s listed twice", c.ID), "configurations")
		}
		seen[c.ID] = struct{}{}
	}
	return m, nil
}
