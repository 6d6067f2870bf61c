package journal

import "testing"

func TestTaskStatus_Valid(t *testing.T) {
	for _, s := range AllStatuses {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []TaskStatus{"", "done", "Proposed", "archived"} {
		if s.Valid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   TaskStatus
		wantOK bool
	}{
		{"added", StatusAdded, true},
		{"  Completed ", StatusCompleted, true},
		{"DISMISSED", StatusDismissed, true},
		{"done", "done", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseStatus(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestTaskStatus_IsCandidate(t *testing.T) {
	if !StatusAdded.IsCandidate() || !StatusProposed.IsCandidate() {
		t.Error("added and proposed are candidates")
	}
	if StatusCompleted.IsCandidate() || StatusDismissed.IsCandidate() {
		t.Error("completed and dismissed are not candidates")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{StatusProposed, StatusAdded, true},
		{StatusProposed, StatusDismissed, true},
		{StatusProposed, StatusCompleted, true},
		{StatusAdded, StatusCompleted, true},
		{StatusAdded, StatusDismissed, true},
		{StatusCompleted, StatusAdded, true},
		{StatusAdded, StatusAdded, true},
		{StatusDismissed, StatusAdded, false},
		{StatusDismissed, StatusProposed, false},
		{StatusCompleted, StatusDismissed, false},
		{StatusAdded, StatusProposed, false},
		{"bogus", "bogus", false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEntryKind_Valid(t *testing.T) {
	for _, k := range []EntryKind{EntryConversation, EntryComment, EntryLog} {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if EntryKind("email").Valid() {
		t.Error("email should be invalid")
	}
}
