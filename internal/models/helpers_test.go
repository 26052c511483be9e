package models

import (
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestRecordIDString(t *testing.T) {
	tests := []struct {
		name    string
		id      surrealmodels.RecordID
		want    string
		wantErr bool
	}{
		{"string id", surrealmodels.RecordID{Table: "job", ID: "abc123"}, "abc123", false},
		{"empty string id", surrealmodels.RecordID{Table: "job", ID: ""}, "", false},
		{"int id rejected", surrealmodels.RecordID{Table: "job", ID: int64(42)}, "", true},
		{"nil id rejected", surrealmodels.RecordID{Table: "job", ID: nil}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecordIDString(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RecordIDString(%v) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RecordIDString(%v) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestMustRecordIDStringPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-string ID")
		}
	}()
	MustRecordIDString(surrealmodels.RecordID{Table: "job", ID: 7})
}
