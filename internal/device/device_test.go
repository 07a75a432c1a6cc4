package device

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		deviceID string
		want     Class
	}{
		{"tool-windows-abc", ClassTool},
		{"web-chrome-xxx", ClassWeb},
		{"client-windows-xxx", ClassClient},
		{"random-id", ClassUnknown},
		{"", ClassUnknown},
		{"TOOL-WIN-123", ClassTool},
		{"WebKit-Client", ClassClient},
		// Precedence when an identifier contains several tokens: tool wins
		// over client, client wins over web.
		{"tool-client-web", ClassTool},
		{"client-web", ClassClient},
		{"my-webtool", ClassTool},
	}
	for _, tt := range tests {
		if got := Classify(tt.deviceID); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.deviceID, got, tt.want)
		}
	}
}

func TestClassValid(t *testing.T) {
	for _, c := range []Class{ClassWeb, ClassClient, ClassTool} {
		if !c.Valid() {
			t.Errorf("Class(%q).Valid() = false, want true", c)
		}
	}
	if ClassUnknown.Valid() {
		t.Error("ClassUnknown.Valid() = true, want false")
	}
	if Class("desktop").Valid() {
		t.Error(`Class("desktop").Valid() = true, want false`)
	}
}
