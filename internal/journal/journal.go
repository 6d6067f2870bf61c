// Package journal defines the records Almanac keeps for a tracked project:
// the project itself, its daily notes, its suggested tasks, and the signal
// entries (conversations, comments, logs) that feed absorption.
package journal

// Project is a tracked unit of work.
type Project struct {
	ID int64 `db:"id" json:"id"`

	Name string `db:"name" json:"name"`

	// Icon is an opaque icon reference for the UI.
	Icon string `db:"icon" json:"icon,omitempty"`

	// RepoPath is the version-control root read for commit history.
	RepoPath string `db:"repo_path" json:"repo_path,omitempty"`

	// ArtifactPath is where prior free-form artifacts (walkthroughs) live.
	ArtifactPath string `db:"artifact_path" json:"artifact_path,omitempty"`

	CreatedAt int64 `db:"created_at" json:"created_at"`
	UpdatedAt int64 `db:"updated_at" json:"updated_at"`
}

// DailyNote is the synthesized summary for one project on one calendar date.
// There is at most one per (ProjectID, Date).
type DailyNote struct {
	ID        int64 `db:"id" json:"id"`
	ProjectID int64 `db:"project_id" json:"project_id"`

	// Date is the operator's local calendar date, YYYY-MM-DD.
	Date string `db:"date" json:"date"`

	// Content is the rendering in the operator's preferred language.
	Content string `db:"content" json:"content"`

	ContentEn        string `db:"content_en" json:"content_en"`
	ContentSecondary string `db:"content_secondary" json:"content_secondary"`

	CreatedAt int64 `db:"created_at" json:"created_at"`
	UpdatedAt int64 `db:"updated_at" json:"updated_at"`
}

// SuggestedTask is a unit of follow-up work, AI-proposed or entered by hand.
type SuggestedTask struct {
	ID        int64 `db:"id" json:"id"`
	ProjectID int64 `db:"project_id" json:"project_id"`

	Description string `db:"description" json:"description"`

	// DescriptionNorm is Normalize(Description); the dedup key within a project.
	DescriptionNorm string `db:"description_norm" json:"-"`

	Status TaskStatus `db:"status" json:"status"`

	// Source is "absorption" or "manual".
	Source string `db:"source" json:"source"`

	CreatedAt int64 `db:"created_at" json:"created_at"`
	UpdatedAt int64 `db:"updated_at" json:"updated_at"`
}

// Task sources.
const (
	SourceAbsorption = "absorption"
	SourceManual     = "manual"
)

// EntryKind classifies a signal entry.
type EntryKind string

const (
	EntryConversation EntryKind = "conversation"
	EntryComment      EntryKind = "comment"
	EntryLog          EntryKind = "log"
)

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryConversation, EntryComment, EntryLog:
		return true
	}
	return false
}

// Entry is a conversation excerpt, comment or log line attached to a project.
// Absorption reads entries; it never writes them.
type Entry struct {
	ID        int64     `db:"id" json:"id"`
	ProjectID int64     `db:"project_id" json:"project_id"`
	Kind      EntryKind `db:"kind" json:"kind"`
	Title     string    `db:"title" json:"title,omitempty"`
	Body      string    `db:"body" json:"body"`
	CreatedAt int64     `db:"created_at" json:"created_at"`
}

// Absorption is the audit record of one absorption run.
type Absorption struct {
	ID             string `db:"id" json:"id"`
	ProjectID      int64  `db:"project_id" json:"project_id"`
	Date           string `db:"date" json:"date"`
	DegradedJSON   string `db:"degraded_json" json:"degraded_json"`
	ProposedCount  int    `db:"proposed_count" json:"proposed_count"`
	CompletedCount int    `db:"completed_count" json:"completed_count"`
	CreatedAt      int64  `db:"created_at" json:"created_at"`
}
