package nodetype

import (
	"fmt"
	"sort"
	"strconv"
)

// Gate tuning keys understood by the gate function.
const (
	ParamMinimum       = "minimum"
	ParamMaximum       = "maximum"
	ParamCertainty     = "certainty"
	ParamAmplification = "amplification"
	ParamThreshold     = "threshold"
	ParamDecay         = "decay"
	ParamTheta         = "theta"
	ParamRho           = "rho"
	ParamSpreadSheaves = "spreadsheaves"
)

// GateParameters is the tuning record of a single gate.
type GateParameters struct {
	Minimum       float64 `json:"minimum" yaml:"minimum"`
	Maximum       float64 `json:"maximum" yaml:"maximum"`
	Certainty     float64 `json:"certainty" yaml:"certainty"`
	Amplification float64 `json:"amplification" yaml:"amplification"`
	Threshold     float64 `json:"threshold" yaml:"threshold"`
	Decay         float64 `json:"decay" yaml:"decay"`
	Theta         float64 `json:"theta" yaml:"theta"`
	Rho           float64 `json:"rho" yaml:"rho"`
	SpreadSheaves bool    `json:"spreadsheaves" yaml:"spreadsheaves"`
}

// DefaultGateParameters returns the tuning every gate starts from before
// nodetype-specific defaults are applied.
func DefaultGateParameters() GateParameters {
	return GateParameters{
		Minimum:       -1,
		Maximum:       1,
		Certainty:     1,
		Amplification: 1,
		Threshold:     0,
		Decay:         0,
		Theta:         0,
		Rho:           0,
		SpreadSheaves: false,
	}
}

// IsTuningKey reports whether key names a known gate tuning parameter.
func IsTuningKey(key string) bool {
	switch key {
	case ParamMinimum, ParamMaximum, ParamCertainty, ParamAmplification,
		ParamThreshold, ParamDecay, ParamTheta, ParamRho, ParamSpreadSheaves:
		return true
	}
	return false
}

// TuningKeys returns the known tuning keys in sorted order.
func TuningKeys() []string {
	keys := []string{
		ParamMinimum, ParamMaximum, ParamCertainty, ParamAmplification,
		ParamThreshold, ParamDecay, ParamTheta, ParamRho, ParamSpreadSheaves,
	}
	sort.Strings(keys)
	return keys
}

// Get returns the numeric value of a tuning key. SpreadSheaves reads as 1 or 0.
func (p GateParameters) Get(key string) (float64, bool) {
	switch key {
	case ParamMinimum:
		return p.Minimum, true
	case ParamMaximum:
		return p.Maximum, true
	case ParamCertainty:
		return p.Certainty, true
	case ParamAmplification:
		return p.Amplification, true
	case ParamThreshold:
		return p.Threshold, true
	case ParamDecay:
		return p.Decay, true
	case ParamTheta:
		return p.Theta, true
	case ParamRho:
		return p.Rho, true
	case ParamSpreadSheaves:
		if p.SpreadSheaves {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Set coerces value and stores it under key. Unknown keys and values that
// cannot be coerced return an error and leave p unchanged.
func (p *GateParameters) Set(key string, value any) error {
	if key == ParamSpreadSheaves {
		b, err := coerceBool(value)
		if err != nil {
			return fmt.Errorf("gate parameter %s: %w", key, err)
		}
		p.SpreadSheaves = b
		return nil
	}
	f, err := CoerceFloat(value)
	if err != nil {
		return fmt.Errorf("gate parameter %s: %w", key, err)
	}
	switch key {
	case ParamMinimum:
		p.Minimum = f
	case ParamMaximum:
		p.Maximum = f
	case ParamCertainty:
		p.Certainty = f
	case ParamAmplification:
		p.Amplification = f
	case ParamThreshold:
		p.Threshold = f
	case ParamDecay:
		p.Decay = f
	case ParamTheta:
		p.Theta = f
	case ParamRho:
		p.Rho = f
	default:
		return fmt.Errorf("unknown gate parameter %q", key)
	}
	return nil
}

// CoerceFloat converts JSON/YAML-decoded numbers and numeric strings to float64.
func CoerceFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", v)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("missing value")
	}
	return 0, fmt.Errorf("not numeric: %v (%T)", value, value)
}

func coerceBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("not a boolean: %q", v)
		}
		return b, nil
	}
	f, err := CoerceFloat(value)
	if err != nil {
		return false, err
	}
	return f != 0, nil
}
