package delta

import "time"

// Cursor is an opaque token from the change-history provider marking a point
// to resume change enumeration from. The protocol never interprets it.
type Cursor []byte

// Kind classifies a history change record.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Identity selects a logical record within an entity: the name of the
// identity-bearing attribute and its value.
type Identity struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Change is one entry of the provider's ordered change feed.
// Fields is the full attribute snapshot for inserts/updates; deletes carry
// the identity recovered from tombstone data instead.
type Change struct {
	Entity   string
	Kind     Kind
	Identity Identity
	Fields   map[string]any
	At       time.Time
	Cursor   Cursor
}

// Upsert carries a full record snapshot to create-or-update remotely.
type Upsert struct {
	Entity        string         `json:"entityName"`
	Identity      Identity       `json:"identity"`
	Fields        map[string]any `json:"fields"`
	ModifiedAt    time.Time      `json:"modifiedAt"`
	SchemaVersion int            `json:"schemaVersion"`
}

// Delete is a tombstone for a record removed locally.
type Delete struct {
	Entity    string    `json:"entityName"`
	Identity  Identity  `json:"identity"`
	DeletedAt time.Time `json:"deletedAt"`
}

// Delta is everything that changed since a cursor. Within one Delta there is
// at most one entry (upsert or delete) per (entity, identity); NewCursor is
// the cursor of the last accumulated change, empty when nothing changed.
type Delta struct {
	Upserts   []Upsert `json:"upserts"`
	Deletes   []Delete `json:"deletes"`
	NewCursor Cursor   `json:"newCursor,omitempty"`
}

// Empty reports whether the delta carries no operations.
func (d *Delta) Empty() bool {
	return len(d.Upserts) == 0 && len(d.Deletes) == 0
}
