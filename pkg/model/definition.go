package model

// Definitions describe the configured shape of a run. They come from
// the configuration store collaborator and drive skeleton construction
// before any parameter executes.

// PageDefinition describes one configured page and its tabs.
type PageDefinition struct {
	Name string          `json:"name"`
	Tabs []TabDefinition `json:"tabs"`
}

// TabDefinition describes one configured tab and its parameters.
type TabDefinition struct {
	Name       string                `json:"name"`
	Parameters []ParameterDefinition `json:"parameters"`
}

// ParameterDefinition describes how one parameter's actual and expected
// values are resolved and validated. Source specs may contain ${name}
// placeholders resolved against the session's variable map at
// execution time.
type ParameterDefinition struct {
	// Path is the fully-qualified parameter name.
	Path string `json:"path"`

	// EngineType selects the connector that resolves the actual result.
	EngineType string `json:"engineType"`

	// SourceSpec is the connector-specific query or request for the
	// actual result.
	SourceSpec string `json:"sourceSpec"`

	// ExpectedLiteral is the literal expected value. When empty and
	// ExpectedSpec is set, the expected result comes from a second
	// connector call.
	ExpectedLiteral string `json:"expectedLiteral,omitempty"`

	// ExpectedSpec is an optional connector query for the expected result.
	ExpectedSpec string `json:"expectedSpec,omitempty"`

	// Observation marks pure-observation parameters, which skip
	// expected-result resolution and validation.
	Observation bool `json:"observation,omitempty"`

	// Ruleset names the compare-engine ruleset applied during validation.
	Ruleset string `json:"ruleset,omitempty"`

	// VariableName, when set, publishes the parameter's first actual
	// result into the session's variable map on completion.
	VariableName string `json:"variableName,omitempty"`

	// Preconfigured marks parameters included when the run requests
	// only preconfigured ones.
	Preconfigured bool `json:"preconfigured,omitempty"`
}

// ParameterCount returns the number of executable parameters in the
// page, honoring the only-preconfigured restriction.
func (p PageDefinition) ParameterCount(onlyPreconfigured bool) int {
	n := 0
	for _, tab := range p.Tabs {
		n += len(tab.Executable(onlyPreconfigured))
	}
	return n
}

// Executable returns the tab's parameters filtered by the
// only-preconfigured restriction.
func (t TabDefinition) Executable(onlyPreconfigured bool) []ParameterDefinition {
	if !onlyPreconfigured {
		return t.Parameters
	}
	var out []ParameterDefinition
	for _, p := range t.Parameters {
		if p.Preconfigured {
			out = append(out, p)
		}
	}
	return out
}
