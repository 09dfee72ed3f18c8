// Package gatefunc provides the transfer functions applied by gates before
// amplification and clamping, plus compilation of user-supplied ones.
package gatefunc

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Func maps a gate input to its raw output. rho and theta are the gate's
// tuning parameters of the same name.
type Func func(x, rho, theta float64) float64

// Identity is the default gate function name.
const Identity = "identity"

var builtins = map[string]Func{
	Identity: func(x, _, _ float64) float64 { return x },
	"absolute": func(x, _, _ float64) float64 {
		return math.Abs(x)
	},
	"sigmoid": func(x, _, theta float64) float64 {
		return 1 / (1 + math.Exp(-(x + theta)))
	},
	"tanh": func(x, _, theta float64) float64 {
		return math.Tanh(x + theta)
	},
	"relu": func(x, _, theta float64) float64 {
		return math.Max(0, x+theta)
	},
	"one_over_x": func(x, _, _ float64) float64 {
		if x == 0 {
			return 0
		}
		return 1 / x
	},
	"threshold": func(x, rho, _ float64) float64 {
		if x > rho {
			return 1
		}
		return 0
	},
}

// Lookup returns the built-in gate function registered under name.
func Lookup(name string) (Func, bool) {
	f, ok := builtins[name]
	return f, ok
}

// Names returns the names of all built-in gate functions, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the function for spec, which is either the name of a
// built-in or Go source accepted by Compile. An empty spec is identity.
func Resolve(spec string) (Func, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return builtins[Identity], nil
	}
	if f, ok := builtins[spec]; ok {
		return f, nil
	}
	return Compile(spec)
}

// Compile interprets Go source that defines
//
//	func GateFunction(x, rho, theta float64) float64
//
// A missing package clause is added. Only standard library imports resolve.
func Compile(src string) (Func, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading stdlib symbols: %w", err)
	}
	if _, err := i.Eval(WrapSource(src)); err != nil {
		return nil, fmt.Errorf("compiling gate function: %w", err)
	}
	v, err := i.Eval("main.GateFunction")
	if err != nil {
		return nil, fmt.Errorf("gate function source must define GateFunction: %w", err)
	}
	fn, ok := v.Interface().(func(float64, float64, float64) float64)
	if !ok {
		return nil, fmt.Errorf("GateFunction has signature %s, want func(x, rho, theta float64) float64", v.Type())
	}
	return Func(fn), nil
}

// WrapSource prepends "package main" when src has no package clause.
func WrapSource(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if strings.HasPrefix(trimmed, "package ") {
			return src
		}
		break
	}
	return "package main\n\n" + src
}
