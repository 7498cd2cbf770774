package mixer

import "fmt"

// NewEffect constructs an insert effect node by type name, with its
// parameters applied. The known types are "delay", "reverb", "eq",
// "compressor" and "filter"; see each node for its parameter names.
func NewEffect(typ string, params map[string]float64) (Node, error) {
	var node Node
	switch typ {
	case "delay":
		node = NewDelay()
	case "reverb":
		node = NewReverb()
	case "eq":
		node = NewEQ()
	case "compressor":
		node = NewCompressor()
	case "filter":
		node = NewFilter()
	default:
		return nil, fmt.Errorf("unknown effect type %q", typ)
	}
	for name, value := range params {
		if err := node.Set(name, value); err != nil {
			return nil, fmt.Errorf("effect %q: %w", typ, err)
		}
	}
	return node, nil
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func errUnknownParam(typ, name string) error {
	return fmt.Errorf("%s has no parameter %q", typ, name)
}
