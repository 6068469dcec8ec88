/*
Package factory provides YAML to Go adapter conversion.

PURPOSE:
  The extracts occasionally change shape: a column is renamed upstream, a
  new noise column appears. Declarations can be overridden from the
  configuration file instead of being rebuilt, and the factory turns those
  overrides into validated reconcile.Declaration values once at startup.

YAML SCHEMA:
  adapters:
    navy_check:
      tag: Navy
      drop: [PO_CURRENT_BUYER, KEY, KEY2]
      id:
        - {name: PO, numeric: true}
        - {name: LINE_NUM, numeric: true}
        - {name: RELEASE_NUM}
        - {name: DIST_PROJECT}
      rename:
        PO: NUMERO_COMMANDE
        CURR_VENDOR_NAME: FOURNISSEUR
      helpers: [FIRST_PO_APPROVED_DATE, PO_REL_LINE_FIRST_APPRO_DATE]

  Every key is optional. A key that is present replaces the built-in value
  of that format; the rest of the built-in declaration is kept. Format
  rules (eligibility, stamping) are code and cannot be overridden.

USAGE:
  f := factory.NewAdapterFactory()
  adapters, err := f.Adapters(cfg.Adapters)

SEE ALSO:
  - formats/: built-in declarations and rules
  - config/config.go: where the YAML is read
*/
package factory

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/celluledoc/docflow/formats"
	"github.com/celluledoc/docflow/reconcile"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

// DeclarationYAML is the YAML representation of a declaration override.
type DeclarationYAML struct {
	Tag     string            `yaml:"tag,omitempty"`
	Drop    []string          `yaml:"drop,omitempty"`
	ID      []IDColumnYAML    `yaml:"id,omitempty"`
	Rename  map[string]string `yaml:"rename,omitempty"`
	Helpers []string          `yaml:"helpers,omitempty"`
}

// IDColumnYAML is one identifier component.
type IDColumnYAML struct {
	Name    string `yaml:"name"`
	Numeric bool   `yaml:"numeric,omitempty"`
}

// File is the adapters section of a configuration file.
type File struct {
	Adapters map[string]DeclarationYAML `yaml:"adapters"`
}

// =============================================================================
// ADAPTER FACTORY
// =============================================================================

// AdapterFactory builds adapters from built-in declarations and overrides.
type AdapterFactory struct{}

// NewAdapterFactory creates a new adapter factory.
func NewAdapterFactory() *AdapterFactory {
	return &AdapterFactory{}
}

// Parse reads the adapters section of a YAML document.
func (f *AdapterFactory) Parse(data []byte) (map[string]DeclarationYAML, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse adapters YAML: %w", err)
	}
	return file.Adapters, nil
}

// FromYAML overlays dy on the built-in declaration of kind and validates
// the result.
func (f *AdapterFactory) FromYAML(kind string, dy DeclarationYAML) (reconcile.Declaration, error) {
	decl, ok := formats.Declarations()[kind]
	if !ok {
		return reconcile.Declaration{}, fmt.Errorf("adapters: unknown format %q", kind)
	}
	if dy.Tag != "" {
		decl.Tag = dy.Tag
	}
	if dy.Drop != nil {
		decl.ColumnsToDrop = dy.Drop
	}
	if dy.ID != nil {
		if len(dy.ID) != len(decl.IDColumns) {
			return reconcile.Declaration{}, fmt.Errorf("adapters %s: exactly %d id columns required, got %d",
				kind, len(decl.IDColumns), len(dy.ID))
		}
		for i, c := range dy.ID {
			decl.IDColumns[i] = reconcile.IDColumn{Name: c.Name, Numeric: c.Numeric}
		}
	}
	if dy.Rename != nil {
		decl.Rename = make(map[string]reconcile.Column, len(dy.Rename))
		for src, dst := range dy.Rename {
			decl.Rename[src] = reconcile.Column(dst)
		}
	}
	if dy.Helpers != nil {
		decl.Helpers = dy.Helpers
	}
	if err := decl.Validate(); err != nil {
		return reconcile.Declaration{}, fmt.Errorf("adapters %s: %w", kind, err)
	}
	return decl, nil
}

// Adapters returns one adapter per format, overrides applied.
func (f *AdapterFactory) Adapters(overrides map[string]DeclarationYAML) (map[string]reconcile.Adapter, error) {
	for kind := range overrides {
		if _, ok := formats.Declarations()[kind]; !ok {
			return nil, fmt.Errorf("adapters: unknown format %q", kind)
		}
	}
	out := make(map[string]reconcile.Adapter, len(formats.Kinds))
	for _, kind := range formats.Kinds {
		decl, err := f.FromYAML(kind, overrides[kind])
		if err != nil {
			return nil, err
		}
		a, err := formats.New(kind, decl)
		if err != nil {
			return nil, err
		}
		out[kind] = a
	}
	return out, nil
}

// ToYAML converts a declaration to its YAML representation.
func (f *AdapterFactory) ToYAML(decl reconcile.Declaration) DeclarationYAML {
	dy := DeclarationYAML{
		Tag:     decl.Tag,
		Drop:    decl.ColumnsToDrop,
		Rename:  make(map[string]string, len(decl.Rename)),
		Helpers: decl.Helpers,
	}
	for _, c := range decl.IDColumns {
		dy.ID = append(dy.ID, IDColumnYAML{Name: c.Name, Numeric: c.Numeric})
	}
	for src, dst := range decl.Rename {
		dy.Rename[src] = string(dst)
	}
	return dy
}

// Dump renders every built-in declaration as an adapters YAML document.
func (f *AdapterFactory) Dump() ([]byte, error) {
	file := File{Adapters: make(map[string]DeclarationYAML)}
	for kind, decl := range formats.Declarations() {
		file.Adapters[kind] = f.ToYAML(decl)
	}
	return yaml.Marshal(file)
}
