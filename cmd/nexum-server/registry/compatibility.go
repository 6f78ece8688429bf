package registry

import (
	"encoding/json"
	"reflect"
)

// Compatibility levels assigned to workflow versions at registration.
const (
	CompatibilityNew       = "NEW"
	CompatibilityIdentical = "IDENTICAL"
	CompatibilitySafe      = "SAFE"
	CompatibilityBreaking  = "BREAKING"
)

// Message returns the operator-facing advisory for a compatibility level.
func Message(compatibility string) string {
	switch compatibility {
	case CompatibilitySafe:
		return "New nodes added. Old executions continue on previous version."
	case CompatibilityBreaking:
		return "Breaking change detected. Run parallel workers for in-flight executions."
	case CompatibilityIdentical:
		return "No changes detected."
	default:
		return "New workflow registered."
	}
}

// Compare classifies a new IR against the previously registered one.
// Byte-identical documents are IDENTICAL without further analysis; a
// previous version that no longer parses is BREAKING.
func Compare(prevIRJSON, newIRJSON string) string {
	if prevIRJSON == newIRJSON {
		return CompatibilityIdentical
	}

	var prev, next map[string]any
	if err := json.Unmarshal([]byte(prevIRJSON), &prev); err != nil {
		return CompatibilityBreaking
	}
	if err := json.Unmarshal([]byte(newIRJSON), &next); err != nil {
		return CompatibilityBreaking
	}
	return analyze(prev, next)
}

// analyze walks every node of the old graph. Removing a node, or changing
// an existing node's dependencies or type, is BREAKING. A graph that only
// adds nodes is SAFE; otherwise the versions are IDENTICAL.
func analyze(oldIR, newIR map[string]any) string {
	oldNodes, okOld := oldIR["nodes"].(map[string]any)
	newNodes, okNew := newIR["nodes"].(map[string]any)
	if !okOld || !okNew {
		return CompatibilityBreaking
	}

	for nodeID, oldDef := range oldNodes {
		newDef, ok := newNodes[nodeID]
		if !ok {
			return CompatibilityBreaking
		}
		if !fieldsEqual(oldDef, newDef, "dependencies") {
			return CompatibilityBreaking
		}
		if !fieldsEqual(oldDef, newDef, "type") {
			return CompatibilityBreaking
		}
	}

	if len(newNodes) > len(oldNodes) {
		return CompatibilitySafe
	}
	return CompatibilityIdentical
}

func fieldsEqual(oldDef, newDef any, field string) bool {
	oldVal, oldOK := lookup(oldDef, field)
	newVal, newOK := lookup(newDef, field)
	if oldOK != newOK {
		return false
	}
	return reflect.DeepEqual(oldVal, newVal)
}

// lookup reads a field from a node definition. Non-object definitions
// have no fields.
func lookup(def any, field string) (any, bool) {
	obj, ok := def.(map[string]any)
	if !ok {
		return nil, false
	}
	val, ok := obj[field]
	return val, ok
}
