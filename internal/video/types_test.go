package video

import "testing"

func TestStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		valid  bool
	}{
		{name: "pending", status: StatusPending, valid: true},
		{name: "ready", status: StatusReady, valid: true},
		{name: "failed", status: StatusFailed, valid: true},
		{name: "empty", status: Status(""), valid: false},
		{name: "unknown", status: Status("processing"), valid: false},
		{name: "case sensitive", status: Status("Ready"), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.valid {
				t.Errorf("Status(%q).IsValid() = %v, want %v", tt.status, got, tt.valid)
			}
		})
	}
}
