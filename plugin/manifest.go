// Package plugin loads dynamic chat commands from declarative YAML manifests.
// A manifest names the command, describes it, declares which inputs its
// templates may use, and provides a reply template, a broadcast template, or
// both.
package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Manifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Params      []string `yaml:"params"`
	Reply       string   `yaml:"reply"`
	Broadcast   string   `yaml:"broadcast"`
	Hidden      bool     `yaml:"hidden"`
}

// WantsSender reports whether the declared params include the caller's
// identity.
func (m Manifest) WantsSender() bool {
	return len(m.Params) == 2
}

// WantsArgs reports whether the declared params include the argument string.
func (m Manifest) WantsArgs() bool {
	return len(m.Params) >= 1
}

// Parse decodes and validates a single-document manifest. Unknown fields are
// rejected so typos fail loudly instead of producing half-configured
// commands.
func Parse(data []byte) (Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("plugin: decode manifest: %w", err)
	}
	var extra Manifest
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Manifest{}, ErrMultipleDocuments
	}
	if err := m.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	m.Name = strings.TrimSpace(m.Name)
	m.Description = strings.TrimSpace(m.Description)
	if m.Name == "" {
		return ErrMissingName
	}
	if m.Description == "" {
		return ErrMissingDescription
	}
	if m.Reply == "" && m.Broadcast == "" {
		return ErrNoOutput
	}
	for i, p := range m.Params {
		m.Params[i] = strings.ToLower(strings.TrimSpace(p))
	}
	switch len(m.Params) {
	case 0:
	case 1:
		if m.Params[0] != "args" {
			return ErrUnsupportedSignature
		}
	case 2:
		if m.Params[0] != "sender" || m.Params[1] != "args" {
			return ErrUnsupportedSignature
		}
	default:
		return ErrUnsupportedSignature
	}
	return nil
}

// LoadDir parses every *.yaml and *.yml manifest in dir, sorted by file name.
// A missing directory is not an error; a broken manifest is.
func LoadDir(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read dir: %w", err)
	}

	var manifests []Manifest
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("plugin: read %s: %w", entry.Name(), err)
		}
		m, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s: %w", entry.Name(), err)
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
