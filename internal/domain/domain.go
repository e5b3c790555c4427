package domain

// FieldValues is the generic field map of a catalog resource. Keys are schema
// field names; nested object fields hold map[string]any values.
type FieldValues map[string]any

// Resource is one row of the catalog store. Type tags which concrete resource
// (course, section, lesson, membership, access-plan) the row belongs to.
type Resource struct {
	ID        int64
	Type      string
	Title     string
	Content   string
	Status    string
	ParentID  *int64
	MenuOrder int
	Meta      map[string]any
	CreatedAt string
	UpdatedAt string
}

type Student struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"date_created" format:"date-time"`
}

// EnrollmentEvent is one append-only row of the enrollment log. Rows are never
// updated or deleted on status change; a new status is a new row.
type EnrollmentEvent struct {
	ID        int64
	StudentID int64
	PostID    int64
	Key       string
	Value     string
	UpdatedAt string
}

// Enrollment is the derived latest-state record for a (student, post) pair:
// the value of the most recent _status row plus the pair's first and last
// timestamps.
type Enrollment struct {
	StudentID   int64  `json:"student_id"`
	PostID      int64  `json:"post_id"`
	Status      string `json:"status"`
	DateCreated string `json:"date_created" format:"date-time"`
	DateUpdated string `json:"date_updated" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	Name        string   `json:"name,omitempty"`
	KeyHash     string   `json:"key_hash"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

// Enrollment status values recorded in the log.
const (
	EnrollmentEnrolled  = "enrolled"
	EnrollmentExpired   = "expired"
	EnrollmentCancelled = "cancelled"
)

// EnrollmentStatusKey is the log key whose latest row per pair is the
// authoritative enrollment status.
const EnrollmentStatusKey = "_status"

// EnrollmentTriggerKey records what caused the enrollment.
const EnrollmentTriggerKey = "_enrollment_trigger"
