package nodenet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/nvandessel/nodenet/internal/gatefunc"
	"github.com/nvandessel/nodenet/internal/nodetype"
)

// NodeFunc computes one node for one sheaf. It reads slot activations and
// writes gate activations through the gates' Compute and OpenSheaf methods.
// Returning an error, or panicking, aborts the step.
type NodeFunc func(api *NetAPI, node *Node, sheaf SheafID, params map[string]any) error

// FunctionLibrary maps node function names to implementations. It starts
// with the functions of the standard node types.
type FunctionLibrary struct {
	mu    sync.RWMutex
	funcs map[string]NodeFunc
}

// NewFunctionLibrary returns a library holding the standard node functions.
func NewFunctionLibrary() *FunctionLibrary {
	return &FunctionLibrary{funcs: map[string]NodeFunc{
		"register":  registerFunc,
		"sensor":    sensorFunc,
		"actor":     actorFunc,
		"concept":   conceptFunc,
		"script":    scriptFunc,
		"pipe":      pipeFunc,
		"activator": activatorFunc,
	}}
}

// Register adds a named node function. Names cannot be registered twice.
func (l *FunctionLibrary) Register(name string, fn NodeFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("node function needs a name and an implementation")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.funcs[name]; exists {
		return fmt.Errorf("node function %q already registered", name)
	}
	l.funcs[name] = fn
	return nil
}

// Lookup returns the node function registered under name.
func (l *FunctionLibrary) Lookup(name string) (NodeFunc, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn, ok := l.funcs[name]
	return fn, ok
}

// Names returns the registered function names, sorted.
func (l *FunctionLibrary) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.funcs))
	for n := range l.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the node function a definition refers to. Source takes
// precedence over a name; a definition with neither has no node function
// and resolves to nil. Unknown names are an error.
func (l *FunctionLibrary) Resolve(def nodetype.Definition) (NodeFunc, error) {
	if def.NodeFunctionSource != "" {
		return CompileNodeFunction(def.NodeFunctionSource)
	}
	if def.NodeFunctionName == "" {
		return nil, nil
	}
	fn, ok := l.Lookup(def.NodeFunctionName)
	if !ok {
		return nil, fmt.Errorf("unknown node function %q", def.NodeFunctionName)
	}
	return fn, nil
}

// CompileNodeFunction interprets Go source defining
//
//	func NodeFunction(slots map[string]float64, params map[string]interface{}) (float64, map[string]float64)
//
// The function receives the slot activations of the sheaf being computed.
// It returns the node activation and the inputs for the gates it wants to
// drive; gates it omits keep their carried-over value.
func CompileNodeFunction(src string) (NodeFunc, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading stdlib symbols: %w", err)
	}
	if _, err := i.Eval(gatefunc.WrapSource(src)); err != nil {
		return nil, fmt.Errorf("compiling node function: %w", err)
	}
	v, err := i.Eval("main.NodeFunction")
	if err != nil {
		return nil, fmt.Errorf("node function source must define NodeFunction: %w", err)
	}
	compiled, ok := v.Interface().(func(map[string]float64, map[string]interface{}) (float64, map[string]float64))
	if !ok {
		return nil, fmt.Errorf("NodeFunction has signature %s", v.Type())
	}

	return func(_ *NetAPI, node *Node, sheaf SheafID, params map[string]any) error {
		slots := make(map[string]float64, len(node.slotOrder))
		for _, name := range node.slotOrder {
			slots[name] = node.slots[name].SheafActivation(sheaf)
		}
		activation, gates := compiled(slots, params)
		node.SetSheafActivation(sheaf, activation)
		for _, name := range node.gateOrder {
			if input, ok := gates[name]; ok {
				node.gates[name].Compute(input, sheaf)
			}
		}
		for name := range gates {
			if _, ok := node.gates[name]; !ok {
				return fmt.Errorf("%w: %q", ErrUnknownGate, name)
			}
		}
		return nil
	}, nil
}
