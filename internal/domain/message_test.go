package domain

import "testing"

func TestSocketMessage_Known(t *testing.T) {
	for _, action := range []SocketAction{SocketActionBreakout, SocketActionConnect, SocketActionDisconnect, SocketActionRender} {
		if !(SocketMessage{Action: action}).Known() {
			t.Errorf("action %q should be known", action)
		}
	}
	if (SocketMessage{Action: "reboot"}).Known() {
		t.Error("unknown action accepted")
	}
}

func TestSocketMessage_TargetedAt(t *testing.T) {
	tests := []struct {
		name   string
		target UserID
		user   UserID
		want   bool
	}{
		{"untargeted applies to everyone", "", "u1", true},
		{"direct target", "u1", "u1", true},
		{"other target", "u2", "u1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := SocketMessage{Action: SocketActionBreakout, UserID: tt.target}
			if got := m.TargetedAt(tt.user); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStripScheme(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		changed bool
	}{
		{"livekit.example.com", "livekit.example.com", false},
		{"wss://livekit.example.com", "livekit.example.com", true},
		{"https://livekit.example.com", "livekit.example.com", true},
		{"https://wss://livekit.example.com", "livekit.example.com", true},
	}
	for _, tt := range tests {
		got, changed := StripScheme(tt.in)
		if got != tt.want || changed != tt.changed {
			t.Errorf("StripScheme(%q) = (%q, %v), want (%q, %v)", tt.in, got, changed, tt.want, tt.changed)
		}
	}
}
