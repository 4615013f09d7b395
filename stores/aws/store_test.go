package aws

import "testing"

func TestExportKey(t *testing.T) {
	key, err := exportKey("session-1", "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	if err != nil {
		t.Fatalf("exportKey failed: %v", err)
	}
	if key != "session-1/01ARZ3NDEKTSV4RRFFQ69G5FAV" {
		t.Errorf("got key %q", key)
	}
}

func TestExportKeyRejectsTraversal(t *testing.T) {
	cases := []struct {
		sessionID string
		id        string
	}{
		{"../escaped", "id"},
		{"a/b", "id"},
		{"..", "id"},
		{"", "id"},
		{"session-1", "../other"},
		{"session-1", "a/b"},
		{"session-1", ".."},
		{"session-1", ""},
	}
	for _, tc := range cases {
		if _, err := exportKey(tc.sessionID, tc.id); err == nil {
			t.Errorf("exportKey(%q, %q) should be rejected", tc.sessionID, tc.id)
		}
	}
}
