package types

import "time"

// Relationship is a typed, directed, weighted edge between two entities.
// The graph is a directed multigraph: several relationships may connect
// the same ordered pair, including relationships of the same type.
// Endpoints are weak references; the relationship only exists while both
// entities exist in the same graph.
type Relationship struct {
	ID         string     `json:"id"` // format: rel:uuid
	SourceID   string     `json:"source_id"`
	TargetID   string     `json:"target_id"`
	Type       string     `json:"type"`
	Attributes Attributes `json:"attributes,omitempty"`
	Confidence float64    `json:"confidence"` // 0.0 (weak inference) to 1.0 (asserted)
	CreatedAt  time.Time  `json:"created_at"`
}

// Clone returns a copy of the relationship with a detached attribute map.
func (r *Relationship) Clone() *Relationship {
	out := *r
	out.Attributes = r.Attributes.Clone()
	return &out
}

// Relationship types emitted by the inference rules. Callers may use any
// string type; these are the ones the engine proposes on its own.
const (
	RelSimilarTo   = "similar_to"
	RelWorksFor    = "works_for"
	RelColleagueOf = "colleague_of"
	RelInvolvedIn  = "involved_in"
	RelSameDomain  = "same_domain"
)

// Well-known entity types the inference rules pattern-match on.
const (
	EntityPerson       = "person"
	EntityOrganization = "organization"
	EntityProject      = "project"
	EntityTask         = "task"
	EntityDocument     = "document"
	EntityUnknown      = "unknown"
)
