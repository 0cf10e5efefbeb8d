package engine

import (
	"context"
	"fmt"
	"strings"
)

// TransformNode reshapes the upstream data with a field mapping. Config:
//
//	mappings: map of output field -> dotted source path into the input
//	merge:    when true, unmapped input fields are carried through
type TransformNode struct{}

func NewTransformNode() *TransformNode { return &TransformNode{} }

func (n *TransformNode) Type() string { return "transform" }

func (n *TransformNode) Execute(_ context.Context, in *Input) (*Output, error) {
	rawMappings, ok := in.Config["mappings"].(map[string]any)
	if !ok || len(rawMappings) == 0 {
		return nil, fmt.Errorf("transform node requires mappings")
	}

	out := map[string]any{}
	if merge, _ := in.Config["merge"].(bool); merge {
		for k, v := range in.Data {
			out[k] = v
		}
	}

	for target, source := range rawMappings {
		path, ok := source.(string)
		if !ok {
			return nil, fmt.Errorf("mapping for %q must be a string path", target)
		}
		if value, found := lookupPath(in.Data, path); found {
			out[target] = value
		}
	}

	return &Output{Data: out}, nil
}

// lookupPath resolves a dotted path ("customer.address.city") into nested
// maps. Missing segments report not-found rather than erroring.
func lookupPath(data map[string]any, path string) (any, bool) {
	current := any(data)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
