// Package wamp adapts a gammazero/nexus WAMP v2 client to the caller and
// callee roles the SDK needs: progressive call results, registered stream
// procedures and ticket authentication.
package wamp

import (
	"encoding/json"
	"fmt"

	nxwamp "github.com/gammazero/nexus/v3/wamp"
)

const (
	URINoSuchRegistration = "wamp.error.no_such_registration"
	URIRuntimeError       = "wamp.error.runtime_error"
)

type List = nxwamp.List

type Dict = nxwamp.Dict

// Result is the outcome of a call, or one progressive part of it.
type Result struct {
	Args    List
	Kwargs  Dict
	Details Dict
}

func resultFrom(r *nxwamp.Result) *Result {
	if r == nil {
		return &Result{}
	}
	return &Result{Args: r.Arguments, Kwargs: r.ArgumentsKw, Details: r.Details}
}

// Decode unmarshals the keyword arguments into v, or the first positional
// argument when there are no keyword arguments.
func (r *Result) Decode(v any) error {
	var source any
	switch {
	case len(r.Kwargs) > 0:
		source = r.Kwargs
	case len(r.Args) > 0:
		source = r.Args[0]
	default:
		return nil
	}

	data, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// Progress reports whether the result is a progressive part.
func (r *Result) Progress() bool {
	p, _ := r.Details["progress"].(bool)
	return p
}

func cloneDict(d Dict) Dict {
	out := make(Dict, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}
