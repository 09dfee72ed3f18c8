// Package nodetype defines the schemas that describe which slots, gates and
// parameters a node of a given type carries, and the registry that holds the
// standard types alongside externally defined native modules.
package nodetype

import (
	"fmt"
	"log/slog"
	"slices"
)

// Standard node type names.
const (
	Nodespace = "Nodespace"
	Comment   = "Comment"
	Register  = "Register"
	Sensor    = "Sensor"
	Actor     = "Actor"
	Concept   = "Concept"
	Script    = "Script"
	Pipe      = "Pipe"
	Activator = "Activator"
)

// Definition is the declarative description of a node type, as read from
// native-module definition files or supplied programmatically.
type Definition struct {
	Name              string                    `json:"name" yaml:"name"`
	SlotTypes         []string                  `json:"slottypes,omitempty" yaml:"slottypes,omitempty"`
	GateTypes         []string                  `json:"gatetypes,omitempty" yaml:"gatetypes,omitempty"`
	Parameters        []string                  `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	ParameterDefaults map[string]any            `json:"parameter_defaults,omitempty" yaml:"parameter_defaults,omitempty"`
	ParameterValues   map[string][]string       `json:"parameter_values,omitempty" yaml:"parameter_values,omitempty"`
	GateDefaults      map[string]map[string]any `json:"gate_defaults,omitempty" yaml:"gate_defaults,omitempty"`

	// NodeFunctionName refers to a registered node function.
	NodeFunctionName string `json:"nodefunction_name,omitempty" yaml:"nodefunction_name,omitempty"`
	// NodeFunctionSource is Go source defining NodeFunction; it takes
	// precedence over NodeFunctionName.
	NodeFunctionSource string `json:"nodefunction_definition,omitempty" yaml:"nodefunction_definition,omitempty"`

	Symbol string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Shape  string `json:"shape,omitempty" yaml:"shape,omitempty"`
}

// Nodetype is a validated Definition with resolved per-gate defaults.
type Nodetype struct {
	def          Definition
	native       bool
	gateDefaults map[string]GateParameters
}

// New validates def and resolves its gate defaults. Invalid gate default
// values fall back to the standard defaults and are reported to logger;
// gate defaults naming a gate the type does not have are rejected.
func New(def Definition, native bool, logger *slog.Logger) (*Nodetype, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("nodetype name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, list := range [][]string{def.SlotTypes, def.GateTypes, def.Parameters} {
		if dup := firstDuplicate(list); dup != "" {
			return nil, fmt.Errorf("nodetype %s: duplicate entry %q", def.Name, dup)
		}
	}

	t := &Nodetype{
		def:          def,
		native:       native,
		gateDefaults: make(map[string]GateParameters, len(def.GateTypes)),
	}
	for _, g := range def.GateTypes {
		t.gateDefaults[g] = DefaultGateParameters()
	}
	for gate, overrides := range def.GateDefaults {
		params, ok := t.gateDefaults[gate]
		if !ok {
			return nil, fmt.Errorf("nodetype %s: gate default for unknown gate %q", def.Name, gate)
		}
		for key, value := range overrides {
			if !IsTuningKey(key) {
				logger.Warn("ignoring unknown gate default", "nodetype", def.Name, "gate", gate, "key", key)
				continue
			}
			if err := params.Set(key, value); err != nil {
				logger.Warn("invalid gate default, using standard value",
					"nodetype", def.Name, "gate", gate, "key", key, "error", err)
			}
		}
		t.gateDefaults[gate] = params
	}
	for param, legal := range def.ParameterValues {
		if !slices.Contains(def.Parameters, param) {
			return nil, fmt.Errorf("nodetype %s: parameter values for unknown parameter %q", def.Name, param)
		}
		if len(legal) == 0 {
			return nil, fmt.Errorf("nodetype %s: empty value list for parameter %q", def.Name, param)
		}
	}
	return t, nil
}

func firstDuplicate(list []string) string {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		if seen[s] {
			return s
		}
		seen[s] = true
	}
	return ""
}

// Name returns the type name.
func (t *Nodetype) Name() string { return t.def.Name }

// Native reports whether the type is a native module.
func (t *Nodetype) Native() bool { return t.native }

// Definition returns a copy of the underlying definition.
func (t *Nodetype) Definition() Definition {
	d := t.def
	d.SlotTypes = slices.Clone(t.def.SlotTypes)
	d.GateTypes = slices.Clone(t.def.GateTypes)
	d.Parameters = slices.Clone(t.def.Parameters)
	return d
}

// SlotTypes returns the ordered slot names.
func (t *Nodetype) SlotTypes() []string { return slices.Clone(t.def.SlotTypes) }

// GateTypes returns the ordered gate names.
func (t *Nodetype) GateTypes() []string { return slices.Clone(t.def.GateTypes) }

// Parameters returns the ordered parameter names.
func (t *Nodetype) Parameters() []string { return slices.Clone(t.def.Parameters) }

// HasSlot reports whether the type carries slot name.
func (t *Nodetype) HasSlot(name string) bool { return slices.Contains(t.def.SlotTypes, name) }

// HasGate reports whether the type carries gate name.
func (t *Nodetype) HasGate(name string) bool { return slices.Contains(t.def.GateTypes, name) }

// GateDefaults returns the tuning a fresh gate of this type starts with.
func (t *Nodetype) GateDefaults(gate string) GateParameters {
	if p, ok := t.gateDefaults[gate]; ok {
		return p
	}
	return DefaultGateParameters()
}

// ParameterDefault returns the default value of a node parameter, or nil.
func (t *Nodetype) ParameterDefault(name string) any {
	return t.def.ParameterDefaults[name]
}

// ValidateParameter checks value against the enumerated legal values of
// the parameter, if the type declares any.
func (t *Nodetype) ValidateParameter(name string, value any) error {
	legal, ok := t.def.ParameterValues[name]
	if !ok || value == nil {
		return nil
	}
	s, isString := value.(string)
	if !isString || !slices.Contains(legal, s) {
		return fmt.Errorf("nodetype %s: illegal value %v for parameter %s (legal: %v)", t.def.Name, value, name, legal)
	}
	return nil
}

// CompatibleWith reports whether replacing t by other is a safe default
// override: the channel and parameter layout must be identical.
func (t *Nodetype) CompatibleWith(other *Nodetype) bool {
	return slices.Equal(t.def.SlotTypes, other.def.SlotTypes) &&
		slices.Equal(t.def.GateTypes, other.def.GateTypes) &&
		slices.Equal(t.def.Parameters, other.def.Parameters)
}
