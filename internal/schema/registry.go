// Package schema holds the registry of extraction schemas: for each template
// name, the JSON shape the model must produce and the typed report it decodes into.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mesacredito/fidc-cli/internal/model"
)

// UnknownSchemaError is returned when a template name is not registered.
type UnknownSchemaError struct {
	Name  string
	Known []string
}

func (e *UnknownSchemaError) Error() string {
	return fmt.Sprintf("schema: unknown schema %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// ValidationError is returned when extracted JSON does not match the shape.
type ValidationError struct {
	Schema string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: output does not match %s: %v", e.Schema, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Descriptor describes one extraction template.
type Descriptor struct {
	Name      string
	Fund      string
	ImageMode bool
	Shape     map[string]any

	newReport func() Report

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// Definition returns the persisted audit form of the shape.
func (d *Descriptor) Definition() (json.RawMessage, error) {
	b, err := json.Marshal(d.Shape)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: marshal %s", d.Name)
	}
	return b, nil
}

func (d *Descriptor) compile() (*jsonschema.Schema, error) {
	d.once.Do(func() {
		b, err := d.Definition()
		if err != nil {
			d.err = err
			return
		}
		url := d.Name + ".json"
		c := jsonschema.NewCompiler()
		if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
			d.err = eris.Wrapf(err, "schema: add %s", d.Name)
			return
		}
		d.compiled, err = c.Compile(url)
		if err != nil {
			d.err = eris.Wrapf(err, "schema: compile %s", d.Name)
		}
	})
	return d.compiled, d.err
}

// Validate checks raw JSON against the shape without decoding it.
func (d *Descriptor) Validate(raw []byte) error {
	compiled, err := d.compile()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &ValidationError{Schema: d.Name, Err: err}
	}
	if err := compiled.Validate(v); err != nil {
		return &ValidationError{Schema: d.Name, Err: err}
	}
	return nil
}

// Decode validates raw JSON against the shape and decodes it into the typed report.
func (d *Descriptor) Decode(raw []byte) (Report, error) {
	if err := d.Validate(raw); err != nil {
		return nil, err
	}
	r := d.newReport()
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, &ValidationError{Schema: d.Name, Err: err}
	}
	return r, nil
}

// Registry maps template names to descriptors. Lookup is exact and case-sensitive.
type Registry struct {
	byName map[string]*Descriptor
	names  []string
}

// NewRegistry builds a registry, rejecting duplicate names.
func NewRegistry(ds ...*Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Descriptor, len(ds))}
	for _, d := range ds {
		if d.Name == "" {
			return nil, eris.New("schema: descriptor without name")
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, eris.Errorf("schema: duplicate schema %s", d.Name)
		}
		r.byName[d.Name] = d
		r.names = append(r.names, d.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, &UnknownSchemaError{Name: name, Known: r.Names()}
	}
	return d, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Records returns the audit rows for every registered schema, in name order.
func (r *Registry) Records() ([]model.SchemaRecord, error) {
	out := make([]model.SchemaRecord, 0, len(r.names))
	for _, n := range r.names {
		def, err := r.byName[n].Definition()
		if err != nil {
			return nil, err
		}
		out = append(out, model.SchemaRecord{Name: n, Definition: def})
	}
	return out, nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := NewRegistry(fundDescriptors()...)
	if err != nil {
		panic(err)
	}
	return r
})

// Default returns the process-wide registry of fund schemas.
func Default() *Registry {
	return defaultRegistry()
}
