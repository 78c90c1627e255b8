package protocol

import "testing"

func TestActionForIsTotalOverKnownTools(t *testing.T) {
	for _, name := range ToolNames() {
		if name == StatusToolName {
			continue
		}
		action, ok := ActionFor(name)
		if !ok {
			t.Errorf("tool %q has no action mapping", name)
			continue
		}
		if !IsKnownAction(action) {
			t.Errorf("tool %q maps to unknown action %q", name, action)
		}
	}
}

func TestActionForUnknownTool(t *testing.T) {
	if _, ok := ActionFor("not_a_real_tool"); ok {
		t.Fatalf("expected unknown tool to report ok=false")
	}
}

func TestIsKnownAction(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		want   bool
	}{
		{"navigate is known", ActionNavigate, true},
		{"empty string unknown", Action(""), false},
		{"garbage unknown", Action("delete_everything"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsKnownAction(tt.action); got != tt.want {
				t.Errorf("IsKnownAction(%q) = %v, want %v", tt.action, got, tt.want)
			}
		})
	}
}
