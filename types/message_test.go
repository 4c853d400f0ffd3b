package types //nolint:revive // types is a valid package name

import (
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key := GenerateKey("summer", "call")

	if !strings.HasPrefix(key, "summer_call_") {
		t.Errorf("key = %q, want summer_call_ prefix", key)
	}
	suffix := strings.TrimPrefix(key, "summer_call_")
	if len(suffix) < 13 {
		t.Errorf("timestamp suffix %q too short for millisecond precision", suffix)
	}
}

func TestRefKey(t *testing.T) {
	if got := RefKey("summer_call_1"); got != "summer_call_1_ref" {
		t.Errorf("RefKey = %q, want summer_call_1_ref", got)
	}
	if !IsRefKey("summer_call_1_ref") {
		t.Error("IsRefKey(ref key) = false, want true")
	}
	if IsRefKey("summer_call_1") {
		t.Error("IsRefKey(plain key) = true, want false")
	}
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"empty key ok", Message{}, false},
		{"plain key ok", Message{Key: "list1"}, false},
		{"namespaced key ok", Message{Key: "secrets/aws"}, false},
		{"traversal rejected", Message{Key: "../etc/passwd"}, true},
		{"nul rejected", Message{Key: "a\x00b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunStatusPending, false},
		{RunStatusStreaming, false},
		{RunStatusDone, true},
		{RunStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("RunStatus(%q).IsTerminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestRunRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     RunRecord
		wantErr bool
	}{
		{"pending ok", RunRecord{Key: "k", Status: RunStatusPending}, false},
		{"missing key", RunRecord{Status: RunStatusDone}, true},
		{"bad status", RunRecord{Key: "k", Status: "finished"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
