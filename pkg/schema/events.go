package schema

// Event type constants for the pipeline state stream.
const (
	EventRenderStarted   = "render_started"
	EventRenderRendering = "render_rendering"
	EventRenderSucceeded = "render_succeeded"
	EventRenderFailed    = "render_failed"
	EventRenderReset     = "render_reset"
	EventViewClosed      = "view_closed"
)

// Phase represents the lifecycle state of a diagram view's pipeline.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseRendering  Phase = "rendering"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

// PhaseEventType maps the phase a view just entered to its stream event type.
func PhaseEventType(p Phase) string {
	switch p {
	case PhaseValidating:
		return EventRenderStarted
	case PhaseRendering:
		return EventRenderRendering
	case PhaseSuccess:
		return EventRenderSucceeded
	case PhaseFailed:
		return EventRenderFailed
	case PhaseIdle:
		return EventRenderReset
	default:
		return ""
	}
}
