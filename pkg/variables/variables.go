// Package variables maintains the per-session map of named values
// accumulated during a run and substitutes ${name} placeholders in
// configuration strings. Names are case-insensitive; the map is shared
// read/write across all concurrently executing parameters of a session.
package variables

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	sdkerrors "github.com/wehubfusion/Argus/pkg/errors"
)

// Kind distinguishes simple string values from tabular ones.
type Kind string

const (
	KindSimple  Kind = "simple"
	KindTabular Kind = "tabular"
)

// Variable is a named value produced by a completed parameter, a key
// parameter, a common parameter, or flattened from the environment
// description.
type Variable struct {
	// Name as originally written; lookups ignore its case.
	Name string

	// Kind tags the variant. Only simple variables substitute into
	// ${name} placeholders.
	Kind Kind

	// Value holds the simple string value.
	Value string

	// Table holds the tabular value: ordered rows of column name to cell.
	Table []map[string]string
}

// placeholderPattern matches ${name} tokens. Names may contain any
// character except '}' so dotted and slashed parameter paths work.
var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Store is a concurrency-safe, case-insensitive variable map. Writers
// merge-or-replace by upper-cased name, last writer wins. The zero
// value is not usable; call NewStore.
type Store struct {
	vars sync.Map // upper-cased name -> Variable
}

// NewStore creates an empty variable store.
func NewStore() *Store {
	return &Store{}
}

// Put adds or replaces a simple variable.
func (s *Store) Put(name, value string) {
	s.PutVariable(Variable{Name: name, Kind: KindSimple, Value: value})
}

// PutTable adds or replaces a tabular variable.
func (s *Store) PutTable(name string, rows []map[string]string) {
	s.PutVariable(Variable{Name: name, Kind: KindTabular, Table: rows})
}

// PutVariable adds or replaces a variable under its upper-cased name.
func (s *Store) PutVariable(v Variable) {
	s.vars.Store(strings.ToUpper(v.Name), v)
}

// PutAll merges a batch of variables into the store.
func (s *Store) PutAll(vars []Variable) {
	for _, v := range vars {
		s.PutVariable(v)
	}
}

// Get looks up a variable by case-insensitive name.
func (s *Store) Get(name string) (Variable, bool) {
	v, ok := s.vars.Load(strings.ToUpper(name))
	if !ok {
		return Variable{}, false
	}
	return v.(Variable), true
}

// Table returns the tabular variable stored under the exact
// upper-cased name, or false if the name is absent or holds a simple
// variable.
func (s *Store) Table(name string) (Variable, bool) {
	v, ok := s.Get(name)
	if !ok || v.Kind != KindTabular {
		return Variable{}, false
	}
	return v, true
}

// Snapshot returns a copy of every variable currently in the store.
// The copy is point-in-time; concurrent writers are not reflected.
func (s *Store) Snapshot() []Variable {
	var out []Variable
	s.vars.Range(func(_, v any) bool {
		out = append(out, v.(Variable))
		return true
	})
	return out
}

// Resolve substitutes every ${name} placeholder in source with the
// matching simple variable's value. A blank resolved value is treated
// as absent and left un-substituted, so a required token is never
// silently erased. After substitution, any placeholder still present
// fails with a variable error naming the unresolved tokens.
//
// A source with no placeholders, including the empty string, passes
// through unchanged.
func (s *Store) Resolve(source string) (string, error) {
	if source == "" || !strings.Contains(source, "${") {
		return source, nil
	}

	resolved := placeholderPattern.ReplaceAllStringFunc(source, func(token string) string {
		name := token[2 : len(token)-1]
		v, ok := s.Get(name)
		if !ok || v.Kind != KindSimple || v.Value == "" {
			return token
		}
		return v.Value
	})

	if leftover := placeholderPattern.FindAllString(resolved, -1); len(leftover) > 0 {
		return "", sdkerrors.NewVariableError(
			fmt.Sprintf("unresolved variables in %q: %s", source, strings.Join(leftover, ", ")))
	}
	return resolved, nil
}

// FlattenEnvironment turns a target-environment description into simple
// variables, one per key. Nested maps flatten with dotted names, so
// {"db": {"host": "x"}} yields DB.HOST.
func FlattenEnvironment(env map[string]any) []Variable {
	var out []Variable
	flattenInto("", env, &out)
	return out
}

func flattenInto(prefix string, m map[string]any, out *[]Variable) {
	for k, v := range m {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flattenInto(name, val, out)
		case string:
			*out = append(*out, Variable{Name: name, Kind: KindSimple, Value: val})
		default:
			*out = append(*out, Variable{Name: name, Kind: KindSimple, Value: fmt.Sprintf("%v", val)})
		}
	}
}
