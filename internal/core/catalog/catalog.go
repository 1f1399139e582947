// Package catalog loads the declared tool operations and compiles their
// schemas once at startup. A Catalog is read-only after Load returns.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/usecase"
)

//go:embed operations.yaml
var builtinYAML []byte

type document struct {
	Operations []domain.Operation `yaml:"operations"`
}

type Catalog struct {
	ops   map[string]usecase.CompiledOperation
	names []string
}

// Builtin returns the catalog of operations shipped with the bridge.
func Builtin() (*Catalog, error) {
	return Load()
}

// Load compiles the built-in operations followed by every extra source.
// Operations in later sources replace earlier ones with the same name.
func Load(extra ...io.Reader) (*Catalog, error) {
	ops, err := Parse(bytes.NewReader(builtinYAML))
	if err != nil {
		return nil, fmt.Errorf("builtin operations: %w", err)
	}
	for i, r := range extra {
		more, err := Parse(r)
		if err != nil {
			return nil, fmt.Errorf("operations source %d: %w", i+1, err)
		}
		ops = append(ops, more...)
	}
	return New(ops)
}

// LoadFile is Load with an optional YAML file path; an empty path loads only
// the built-ins.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Builtin()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open operations file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Parse decodes a YAML operations document. Unknown keys are rejected so a
// typo in a constraint name cannot silently drop the constraint.
func Parse(r io.Reader) ([]domain.Operation, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode operations yaml: %w", err)
	}
	return doc.Operations, nil
}

// New compiles ops into a catalog.
func New(ops []domain.Operation) (*Catalog, error) {
	c := &Catalog{ops: make(map[string]usecase.CompiledOperation, len(ops))}
	for _, op := range ops {
		compiled, err := usecase.CompileOperation(op)
		if err != nil {
			return nil, err
		}
		if _, exists := c.ops[op.Name]; !exists {
			c.names = append(c.names, op.Name)
		}
		c.ops[op.Name] = compiled
	}
	sort.Strings(c.names)
	return c, nil
}

func (c *Catalog) Get(name string) (usecase.CompiledOperation, error) {
	op, ok := c.ops[name]
	if !ok {
		return usecase.CompiledOperation{}, fmt.Errorf("%w: %q", domain.ErrUnknownOperation, name)
	}
	return op, nil
}

// List returns every operation sorted by name.
func (c *Catalog) List() []usecase.CompiledOperation {
	out := make([]usecase.CompiledOperation, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.ops[name])
	}
	return out
}
