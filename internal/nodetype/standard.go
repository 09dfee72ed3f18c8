package nodetype

// linkTypes are the gate names of the four reciprocal relation pairs plus gen.
var linkTypes = []string{"gen", "por", "ret", "sub", "sur", "cat", "exp", "sym", "ref"}

func pipeGateDefaults() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, g := range []string{"gen", "por", "ret", "sub", "sur", "cat", "exp"} {
		out[g] = map[string]any{
			ParamMinimum:       -100.0,
			ParamMaximum:       100.0,
			ParamThreshold:     -100.0,
			ParamSpreadSheaves: g == "sub" || g == "cat",
		}
	}
	return out
}

// StandardDefinitions returns the built-in node types. The returned slice is
// freshly allocated on every call.
func StandardDefinitions() []Definition {
	return []Definition{
		{
			Name: Nodespace,
		},
		{
			Name:       Comment,
			Parameters: []string{"comment"},
			Symbol:     "#",
			Shape:      "Rectangle",
		},
		{
			Name:             Register,
			SlotTypes:        []string{"gen"},
			GateTypes:        []string{"gen"},
			NodeFunctionName: "register",
		},
		{
			Name:             Sensor,
			GateTypes:        []string{"gen"},
			Parameters:       []string{"datasource"},
			NodeFunctionName: "sensor",
		},
		{
			Name:             Actor,
			SlotTypes:        []string{"gen"},
			GateTypes:        []string{"gen"},
			Parameters:       []string{"datatarget"},
			NodeFunctionName: "actor",
		},
		{
			Name:             Concept,
			SlotTypes:        []string{"gen"},
			GateTypes:        append([]string(nil), linkTypes...),
			NodeFunctionName: "concept",
		},
		{
			Name:             Script,
			SlotTypes:        []string{"gen", "por", "ret", "sub", "sur"},
			GateTypes:        append([]string(nil), linkTypes...),
			NodeFunctionName: "script",
			GateDefaults: map[string]map[string]any{
				"por": {ParamThreshold: -1.0},
				"ret": {ParamThreshold: -1.0},
				"sub": {ParamThreshold: -1.0},
				"sur": {ParamThreshold: -1.0},
			},
		},
		{
			Name:              Pipe,
			SlotTypes:         []string{"gen", "por", "ret", "sub", "sur", "cat", "exp"},
			GateTypes:         []string{"gen", "por", "ret", "sub", "sur", "cat", "exp"},
			Parameters:        []string{"expectation", "wait"},
			ParameterDefaults: map[string]any{"expectation": 1.0, "wait": 10.0},
			NodeFunctionName:  "pipe",
			GateDefaults:      pipeGateDefaults(),
			Symbol:            "πp",
			Shape:             "Rectangle",
		},
		{
			Name:             Activator,
			SlotTypes:        []string{"gen"},
			Parameters:       []string{"type"},
			ParameterValues:  map[string][]string{"type": append([]string(nil), linkTypes...)},
			NodeFunctionName: "activator",
		},
	}
}
