package domain

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidOperation = errors.New("invalid operation declaration")
	ErrInvalidFilter    = errors.New("invalid filter")
)

var (
	operationNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	pathParamPattern     = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)
)

type GroupKind string

const (
	ExactlyOne GroupKind = "exactlyOne"
	AtMostOne  GroupKind = "atMostOne"
	AllOrNone  GroupKind = "allOrNone"
)

// ConstraintGroup is a cross-field rule over a set of field names.
type ConstraintGroup struct {
	Name   string    `yaml:"name" json:"name"`
	Kind   GroupKind `yaml:"kind" json:"kind"`
	Fields []string  `yaml:"fields" json:"fields"`
}

// DateRange pairs two date fields whose values must satisfy start <= end.
type DateRange struct {
	Name  string `yaml:"name" json:"name"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// PageConvention declares the page-number origin seen by callers and the one
// the upstream API expects.
type PageConvention struct {
	Field        string `yaml:"field" json:"field"`
	CallerBase   int    `yaml:"callerBase" json:"callerBase"`
	UpstreamBase int    `yaml:"upstreamBase" json:"upstreamBase"`
}

// Translate maps a caller-facing page number to the upstream origin.
func (p PageConvention) Translate(callerPage int64) int64 {
	return callerPage - int64(p.CallerBase) + int64(p.UpstreamBase)
}

type Transport string

const (
	TransportQuery Transport = "query"
	TransportJSON  Transport = "json"
)

// Operation is the immutable declaration of one tool the bridge exposes.
type Operation struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Method      string            `yaml:"method" json:"method"`
	Path        string            `yaml:"path" json:"path"`
	Transport   Transport         `yaml:"transport,omitempty" json:"transport,omitempty"`
	Fields      []FieldSpec       `yaml:"fields" json:"fields"`
	Groups      []ConstraintGroup `yaml:"groups,omitempty" json:"groups,omitempty"`
	Ranges      []DateRange       `yaml:"ranges,omitempty" json:"ranges,omitempty"`
	Page        *PageConvention   `yaml:"page,omitempty" json:"page,omitempty"`
}

// Field looks a declared field up by caller-facing name.
func (o Operation) Field(name string) (FieldSpec, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Location resolves where f travels for this operation.
func (o Operation) Location(f FieldSpec) Location {
	if f.In != InDefault {
		return f.In
	}
	if o.Transport == TransportJSON {
		return InBody
	}
	return InQuery
}

// Validate checks that the declaration is coherent. It is run once when the
// catalog is loaded.
func (o Operation) Validate() error {
	if !operationNamePattern.MatchString(o.Name) {
		return fmt.Errorf("%w: bad operation name %q", ErrInvalidOperation, o.Name)
	}
	switch strings.ToUpper(o.Method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("%w: %s: unsupported method %q", ErrInvalidOperation, o.Name, o.Method)
	}
	if !strings.HasPrefix(o.Path, "/") {
		return fmt.Errorf("%w: %s: path must start with /", ErrInvalidOperation, o.Name)
	}
	switch o.Transport {
	case "", TransportQuery, TransportJSON:
	default:
		return fmt.Errorf("%w: %s: unknown transport %q", ErrInvalidOperation, o.Name, o.Transport)
	}

	names := make(map[string]FieldSpec, len(o.Fields))
	params := make(map[string]string, len(o.Fields))
	for _, f := range o.Fields {
		if err := f.validate(); err != nil {
			return fmt.Errorf("%s: %w", o.Name, err)
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidOperation, o.Name, f.Name)
		}
		if !o.carries(f.In) {
			return fmt.Errorf("%w: %s: field %q is declared in %s but the transport is %s", ErrInvalidOperation, o.Name, f.Name, f.In, o.transport())
		}
		if other, dup := params[f.UpstreamName()]; dup {
			return fmt.Errorf("%w: %s: fields %q and %q share upstream name %q", ErrInvalidOperation, o.Name, other, f.Name, f.UpstreamName())
		}
		names[f.Name] = f
		params[f.UpstreamName()] = f.Name
	}

	placeholders := make(map[string]bool)
	for _, m := range pathParamPattern.FindAllStringSubmatch(o.Path, -1) {
		placeholders[m[1]] = true
	}
	for _, f := range o.Fields {
		if o.Location(f) != InPath {
			continue
		}
		if !placeholders[f.UpstreamName()] {
			return fmt.Errorf("%w: %s: path field %q has no {%s} placeholder", ErrInvalidOperation, o.Name, f.Name, f.UpstreamName())
		}
		delete(placeholders, f.UpstreamName())
	}
	for p := range placeholders {
		return fmt.Errorf("%w: %s: placeholder {%s} has no path field", ErrInvalidOperation, o.Name, p)
	}

	for _, g := range o.Groups {
		switch g.Kind {
		case ExactlyOne, AtMostOne, AllOrNone:
		default:
			return fmt.Errorf("%w: %s: group %q has unknown kind %q", ErrInvalidOperation, o.Name, g.Name, g.Kind)
		}
		if len(g.Fields) < 2 {
			return fmt.Errorf("%w: %s: group %q needs at least two fields", ErrInvalidOperation, o.Name, g.Name)
		}
		for _, name := range g.Fields {
			if _, ok := names[name]; !ok {
				return fmt.Errorf("%w: %s: group %q references unknown field %q", ErrInvalidOperation, o.Name, g.Name, name)
			}
		}
	}

	for _, r := range o.Ranges {
		for _, name := range []string{r.Start, r.End} {
			f, ok := names[name]
			if !ok {
				return fmt.Errorf("%w: %s: range %q references unknown field %q", ErrInvalidOperation, o.Name, r.Name, name)
			}
			if f.Type != TypeDate {
				return fmt.Errorf("%w: %s: range %q field %q is not a date", ErrInvalidOperation, o.Name, r.Name, name)
			}
		}
	}

	if o.Page != nil {
		f, ok := names[o.Page.Field]
		if !ok || f.Type != TypeInteger {
			return fmt.Errorf("%w: %s: page field %q must be a declared integer field", ErrInvalidOperation, o.Name, o.Page.Field)
		}
		if !validBase(o.Page.CallerBase) || !validBase(o.Page.UpstreamBase) {
			return fmt.Errorf("%w: %s: page bases must be 0 or 1", ErrInvalidOperation, o.Name)
		}
	}
	return nil
}

func (o Operation) transport() Transport {
	if o.Transport == "" {
		return TransportQuery
	}
	return o.Transport
}

// carries reports whether a field declared in loc can travel with this
// operation's transport. Query and body locations only restate the transport.
func (o Operation) carries(loc Location) bool {
	switch loc {
	case InQuery:
		return o.transport() == TransportQuery
	case InBody:
		return o.transport() == TransportJSON
	}
	return true
}

func validBase(b int) bool {
	return b == 0 || b == 1
}
