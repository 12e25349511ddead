package topic

import "testing"

func TestBuilder(t *testing.T) {
	b := NewBuilder("")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"telemetry", b.Telemetry("R7", KindBattery), "robot/R7/battery"},
		{"trip state wildcard", b.Wildcard(KindTripState), "robot/+/trip/state"},
		{"move", b.Move("R7"), "robot/R7/command/move"},
		{"qr", b.QR("R7"), "robot/R7/command/qr"},
		{"pickup", b.ContainerPickup("R7", "C2"), "robot/R7/container/C2/command/pickup"},
		{"load", b.ContainerLoad("R7", "C2"), "robot/R7/container/C2/command/load"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestSubscriptionsCoverEveryKind(t *testing.T) {
	subs := NewBuilder("/robot/").Subscriptions()
	if len(subs) != len(Kinds) {
		t.Fatalf("got %d filters, want %d", len(subs), len(Kinds))
	}
	seen := map[string]bool{}
	for _, s := range subs {
		seen[s] = true
	}
	for _, want := range []string{"robot/+/heartbeat", "robot/+/trip", "robot/+/trip/state", "robot/+/force_move"} {
		if !seen[want] {
			t.Errorf("missing filter %q", want)
		}
	}
}
