package instance

import "testing"

func TestGetID(t *testing.T) {
	t.Setenv("MARKETPLACE_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	if got := GetID(); got != "local" {
		t.Fatalf("expected local, got %q", got)
	}

	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected dyno name, got %q", got)
	}

	t.Setenv("MARKETPLACE_INSTANCE_ID", "api-blue")
	if got := GetID(); got != "api-blue" {
		t.Fatalf("expected explicit instance id, got %q", got)
	}
}
