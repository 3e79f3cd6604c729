package engine

// ActionPayload carries action-specific input supplied with a transition
// request, e.g. the council assigned by ASSIGN_COUNCIL.
type ActionPayload struct {
	CouncilID  string
	Comment    string
	ReasonCode string
}
