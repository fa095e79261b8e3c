package hotkey

import "testing"

func TestParseCombo(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ctrl+shift+space", "Ctrl+Shift+Space", false},
		{"Shift+Ctrl+Space", "Ctrl+Shift+Space", false},
		{"cmd+option+k", "Alt+Super+K", false},
		{"ctrl+f9", "Ctrl+F9", false},
		{"ctrl+ctrl+1", "Ctrl+1", false},
		{"space", "", true},
		{"hyper+space", "", true},
		{"ctrl+f13", "", true},
		{"ctrl+pageup", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseCombo(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", c)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := c.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComboHas(t *testing.T) {
	c, err := ParseCombo(Default)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Has("ctrl") || !c.Has("shift") || c.Has("alt") || c.Key != "space" {
		t.Errorf("combo = %+v", c)
	}
}
