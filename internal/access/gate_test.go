package access

import (
	"testing"

	"github.com/uflbot/uflbot/internal/bus"
)

func TestClassifyDecisionTable(t *testing.T) {
	gate := NewGate([]int64{42}, nil)

	cases := []struct {
		name     string
		senderID int64
		chatType bus.ChatType
		want     Outcome
	}{
		{"direct allowed", 42, bus.ChatDirect, Pass},
		{"direct disallowed", 7, bus.ChatDirect, Refuse},
		{"group allowed", 42, bus.ChatGroup, Pass},
		{"group disallowed", 7, bus.ChatGroup, ArchiveOnly},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := gate.Classify(tc.senderID, tc.chatType)
			if got != tc.want {
				t.Errorf("Classify(%d, %s) = %s, want %s", tc.senderID, tc.chatType, got, tc.want)
			}
		})
	}
}

func TestEmptyAllowListAdmitsEveryone(t *testing.T) {
	gate := NewGate(nil, nil)

	if got := gate.Classify(12345, bus.ChatDirect); got != Pass {
		t.Errorf("direct with empty allow-list = %s, want pass", got)
	}
	if got := gate.Classify(12345, bus.ChatGroup); got != Pass {
		t.Errorf("group with empty allow-list = %s, want pass", got)
	}
}

func TestIsAdminOrthogonalToAllowList(t *testing.T) {
	gate := NewGate([]int64{1}, []int64{2})

	if !gate.IsAdmin(2) {
		t.Error("id 2 should be admin")
	}
	if gate.IsAdmin(1) {
		t.Error("id 1 should not be admin")
	}
	// Admin status does not imply allow-list membership.
	if got := gate.Classify(2, bus.ChatDirect); got != Refuse {
		t.Errorf("admin outside allow-list = %s, want refuse", got)
	}
}
