package models

import "testing"

func TestJobStatusIsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		want   bool
	}{
		{"pending", JobStatusPending, false},
		{"processing", JobStatusProcessing, false},
		{"completed", JobStatusCompleted, true},
		{"failed", JobStatusFailed, true},
		{"cancelled", JobStatusCancelled, true},
		{"unknown", JobStatus("resumed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestJobStatusIsActive(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		want   bool
	}{
		{"pending", JobStatusPending, true},
		{"processing", JobStatusProcessing, true},
		{"completed", JobStatusCompleted, false},
		{"failed", JobStatusFailed, false},
		{"cancelled", JobStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsActive(); got != tt.want {
				t.Errorf("IsActive(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestParseIndexMode(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   IndexMode
		wantOK bool
	}{
		{"add", "add", IndexModeAdd, true},
		{"replace", "replace", IndexModeReplace, true},
		{"empty", "", "", false},
		{"unknown", "rebuild", "", false},
		{"case sensitive", "Add", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseIndexMode(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseIndexMode(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
