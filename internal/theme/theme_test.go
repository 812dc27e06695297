package theme

import "testing"

func TestStateColorAndGlyph(t *testing.T) {
	tests := []struct {
		state string
		color string
		glyph string
	}{
		{"loading", string(ColorPending), "◌"},
		{"ready", string(ColorReady), "✓"},
		{"errored", string(ColorFailed), "✗"},
		{"uninitialized", string(ColorIdle), "○"},
		{"bogus", string(ColorDefault), "·"},
	}
	for _, tt := range tests {
		if got := string(StateColor(tt.state)); got != tt.color {
			t.Errorf("StateColor(%q) = %s, want %s", tt.state, got, tt.color)
		}
		if got := StateGlyph(tt.state); got != tt.glyph {
			t.Errorf("StateGlyph(%q) = %s, want %s", tt.state, got, tt.glyph)
		}
	}
}
