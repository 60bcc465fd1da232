// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed connectors.yaml
var builtinCatalog []byte

// CatalogEntry describes a known provider: how to reach it and how to show it
// on the login page.
type CatalogEntry struct {
	Name                 string   `yaml:"name"`
	Kind                 Kind     `yaml:"kind"`
	DisplayName          string   `yaml:"display_name"`
	BackgroundColor      string   `yaml:"background_color"`
	BackgroundColorHover string   `yaml:"background_color_hover"`
	AuthURL              string   `yaml:"auth_url,omitempty"`
	TokenURL             string   `yaml:"token_url,omitempty"`
	Issuer               string   `yaml:"issuer,omitempty"`
	APIBaseURL           string   `yaml:"api_base_url,omitempty"`
	Profile              string   `yaml:"profile,omitempty"`
	Scopes               []string `yaml:"scopes"`
}

// Catalog is an ordered list of provider descriptions.
type Catalog struct {
	Connectors []CatalogEntry `yaml:"connectors"`
}

// BuiltinCatalog returns the catalog embedded in the binary.
func BuiltinCatalog() (*Catalog, error) {
	return ParseCatalog(builtinCatalog)
}

// ParseCatalog decodes a YAML catalog. Unknown fields and duplicate names are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var catalog Catalog
	if err := dec.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to parse connector catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(catalog.Connectors))
	for _, entry := range catalog.Connectors {
		if entry.Name == "" {
			return nil, errors.New("connector catalog entry without a name")
		}
		if _, dup := seen[entry.Name]; dup {
			return nil, fmt.Errorf("duplicate connector %q in catalog", entry.Name)
		}
		seen[entry.Name] = struct{}{}
	}
	return &catalog, nil
}

// Lookup returns the entry named name.
func (c *Catalog) Lookup(name string) (CatalogEntry, bool) {
	for _, entry := range c.Connectors {
		if entry.Name == name {
			return entry, true
		}
	}
	return CatalogEntry{}, false
}
