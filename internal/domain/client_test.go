package domain

import "testing"

func TestClientRef(t *testing.T) {
	byID := ClientByID(7)
	if id, ok := byID.ID(); !ok || id != 7 {
		t.Errorf("ClientByID(7).ID() = %d, %v", id, ok)
	}
	if _, ok := byID.Username(); ok {
		t.Error("id reference reported a username")
	}

	byName := ClientByUsername("alice")
	if name, ok := byName.Username(); !ok || name != "alice" {
		t.Errorf("Username() = %q, %v", name, ok)
	}
	if _, ok := byName.ID(); ok {
		t.Error("username reference reported an id")
	}

	byLedger := ClientByLedger(3)
	if id, ok := byLedger.ID(); !ok || id != 3 {
		t.Errorf("ClientByLedger(3).ID() = %d, %v", id, ok)
	}

	for ref, want := range map[ClientRef]string{
		byID:        "client#7",
		byName:      "@alice",
		byLedger:    "ledger#3",
		ClientRef{}: "client(?)",
	} {
		if got := ref.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
