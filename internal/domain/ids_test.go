package domain

import "testing"

func TestNewAgentNameValidation(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"a", false},
		{"agent-one", false},
		{"a1-b2", false},
		{"", true},
		{"Agent", true},
		{"1agent", true},
		{"agent-", true},
		{"agent--two", true},
		{"-agent", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAgentName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAgentName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestAgentIDRoundTrip(t *testing.T) {
	id := NewAgentID()
	parsed, err := ParseAgentID(id.String())
	if err != nil {
		t.Fatalf("ParseAgentID: %v", err)
	}
	if parsed != id {
		t.Errorf("round trip mismatch: %s != %s", parsed, id)
	}
}

func TestParseAgentIDRejectsGarbage(t *testing.T) {
	if _, err := ParseAgentID("not-a-uuid"); err == nil {
		t.Error("expected parse error for invalid uuid text")
	}
}

func TestAgentVersionIsZero(t *testing.T) {
	var v AgentVersion
	if !v.IsZero() {
		t.Error("zero-value AgentVersion should report IsZero")
	}
	if NewAgentVersion().IsZero() {
		t.Error("a freshly generated AgentVersion should not be zero")
	}
}
