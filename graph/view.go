package graph

// Node is a flattened node record as returned to visualization callers.
// Meta carries the opaque serialized upstream record when present; readers
// must tolerate nodes that exist with only an id (created by a
// relationship-side upsert before the entity-side event arrived).
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Group string `json:"group"`
	Meta  string `json:"meta,omitempty"`
}

// Edge is a flattened relationship record. ID is synthesized with EdgeID so
// duplicates collapse client-side.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
	Group  string `json:"group"`
}

// View is a deduplicated node/edge collection for one snapshot request.
type View struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NewView returns an empty view with non-nil slices so an empty snapshot
// serializes as {"nodes":[],"edges":[]} rather than nulls.
func NewView() View {
	return View{Nodes: []Node{}, Edges: []Edge{}}
}
