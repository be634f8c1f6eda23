// Package graph defines the shared property-graph schema for the knowledge
// graph: node labels, relationship kinds, and the flattened node/edge view
// returned by snapshot and copilot queries.
package graph

import "fmt"

// Node labels. Node identity is always the external id carried by the
// upstream record; re-ingesting an id updates attributes in place.
const (
	LabelTeam         = "Team"
	LabelEvent        = "Event"
	LabelAction       = "Action"
	LabelPolicyRule   = "PolicyRule"
	LabelModelVersion = "ModelVersion"
	LabelReport       = "Report"
)

// Relationship kinds. Edges are directed and deduplicated by
// (source id, target id, kind); re-creating one is a no-op at the store.
const (
	RelAffects     = "AFFECTS"
	RelAppliedTo   = "APPLIED_TO"
	RelFiredOn     = "FIRED_ON"
	RelDeployedFor = "DEPLOYED_FOR"
	RelReplacedBy  = "REPLACED_BY"
	RelTriggered   = "TRIGGERED"
)

// Display groups used by the visualization layer. Policy and Model are
// shortened from their label names to match what the dashboard expects.
const (
	GroupTeam   = "Team"
	GroupEvent  = "Event"
	GroupAction = "Action"
	GroupPolicy = "Policy"
	GroupModel  = "Model"
	GroupReport = "Report"
)

// edgePrefixes gives each relationship kind a short stable prefix used when
// synthesizing edge ids.
var edgePrefixes = map[string]string{
	RelAffects:     "ae",
	RelAppliedTo:   "aa",
	RelFiredOn:     "pf",
	RelDeployedFor: "vd",
	RelReplacedBy:  "vr",
	RelTriggered:   "et",
}

// EdgeID synthesizes a deterministic edge identifier from the relationship
// kind and endpoint ids, so the same logical edge collapses to one entry no
// matter how many query paths produced it.
func EdgeID(kind, sourceID, targetID string) string {
	prefix, ok := edgePrefixes[kind]
	if !ok {
		prefix = "ed"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, sourceID, targetID)
}
