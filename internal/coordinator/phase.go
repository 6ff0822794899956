package coordinator

import (
	"slices"

	"github.com/rendis/diagramflow/pkg/schema"
)

// ValidPhaseTransitions defines the allowed view phase transitions. A new
// render call may enter validating from any phase and a reset may return to
// idle from any phase.
var ValidPhaseTransitions = map[schema.Phase][]schema.Phase{
	schema.PhaseIdle:       {schema.PhaseValidating, schema.PhaseIdle},
	schema.PhaseValidating: {schema.PhaseValidating, schema.PhaseRendering, schema.PhaseFailed, schema.PhaseIdle},
	schema.PhaseRendering:  {schema.PhaseValidating, schema.PhaseSuccess, schema.PhaseFailed, schema.PhaseIdle},
	schema.PhaseSuccess:    {schema.PhaseValidating, schema.PhaseIdle},
	schema.PhaseFailed:     {schema.PhaseValidating, schema.PhaseIdle},
}

func isValidTransition(from, to schema.Phase) bool {
	return slices.Contains(ValidPhaseTransitions[from], to)
}

func checkTransition(viewID string, from, to schema.Phase) error {
	if !isValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid phase transition: %s -> %s", from, to).
			WithDetails(map[string]any{"view_id": viewID, "from": string(from), "to": string(to)})
	}
	return nil
}
