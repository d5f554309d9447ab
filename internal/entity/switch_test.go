package entity

import (
	"context"
	"testing"

	"github.com/nerrad567/c4bridge/internal/director"
)

func newTestSwitch(cmd *fakeCommander, relayState int) *Switch {
	sw := NewSwitch(testItem(450, "relaysingle_relay_c4"), testParent(449), cmd)
	sw.ApplyUpdate(map[string]any{varRelayState: relayState})
	return sw
}

func TestSwitch_IsOn(t *testing.T) {
	if sw := newTestSwitch(&fakeCommander{}, 1); !sw.IsOn() {
		t.Error("IsOn() = false with relay closed")
	}
	if sw := newTestSwitch(&fakeCommander{}, 0); sw.IsOn() {
		t.Error("IsOn() = true with relay open")
	}
}

func TestSwitch_Commands(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"turn_on", "CLOSE"},
		{"turn_off", "OPEN"},
		{"toggle", "TOGGLE"},
	}
	for _, tt := range tests {
		cmd := &fakeCommander{}
		sw := newTestSwitch(cmd, 0)
		if err := sw.HandleCommand(context.Background(), tt.command, nil); err != nil {
			t.Fatalf("%s error = %v", tt.command, err)
		}
		if sent := cmd.last(t); sent.command != tt.want {
			t.Errorf("%s sent %q, want %q", tt.command, sent.command, tt.want)
		}
	}
}

func TestSwitch_RelayEvent(t *testing.T) {
	sw := newTestSwitch(&fakeCommander{}, 0)

	sw.HandleEvent(director.Event{
		ItemID: 450,
		Name:   "relay_state",
		Data:   map[string]any{"current_state": "CLOSED"},
	})
	if !sw.IsOn() {
		t.Error("IsOn() = false after relay closed event")
	}
}

func TestSwitchProxyDetection(t *testing.T) {
	if !IsSwitchProxy("relaysingle_relay_c4") || !IsSwitchProxy("cardaccess_wirelessrelay") {
		t.Error("relay proxies should be switches")
	}
	if IsSwitchProxy("light_v2") {
		t.Error("light proxy should not be a switch")
	}
}
