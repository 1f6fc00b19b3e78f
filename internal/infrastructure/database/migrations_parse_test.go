package database

import "testing"

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260801_120000_create_events.up.sql", "20260801_120000", "create_events", true, true},
		{"20260801_120000_create_events.down.sql", "20260801_120000", "create_events", false, true},
		{"20270101_000000_add_event_indexes.up.sql", "20270101_000000", "add_event_indexes", true, true},
		{"20260801_120000.up.sql", "20260801_120000", "", true, true},
		{"README.md", "", "", false, false},
		{"create_events.sql", "", "", false, false},
		{"20260801_120000_create_events.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if version != tt.wantVersion || name != tt.wantName || isUp != tt.wantUp {
				t.Errorf("parsed (%q, %q, %v), want (%q, %q, %v)",
					version, name, isUp, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
