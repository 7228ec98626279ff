package directory

import "testing"

func TestSnapshot_JoinOrder(t *testing.T) {
	d := New()
	d.Join("r1", "a")
	d.Join("r1", "b")
	d.Join("r1", "c")
	d.RecordName("r1", "c", "Carol")
	d.RecordName("r1", "a", "Alice")

	snap := d.Snapshot("r1")
	if len(snap) != 2 {
		t.Fatalf("expected 2 names (b never set one), got %d", len(snap))
	}
	if snap[0] != (NameEntry{UserID: "a", Name: "Alice"}) || snap[1] != (NameEntry{UserID: "c", Name: "Carol"}) {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestRecordName_Upsert(t *testing.T) {
	d := New()
	d.Join("r1", "a")
	d.RecordName("r1", "a", "Alice")
	d.RecordName("r1", "a", "Alicia")

	snap := d.Snapshot("r1")
	if len(snap) != 1 || snap[0].Name != "Alicia" {
		t.Errorf("expected upserted name, got %+v", snap)
	}
}

func TestRecordName_NonMemberIgnored(t *testing.T) {
	d := New()
	if d.RecordName("ghost", "a", "Alice") {
		t.Error("expected name for unknown room to be rejected")
	}
	if d.Exists("ghost") {
		t.Error("recording a name must not create a room")
	}
}

func TestLeave_LastMemberRemovesRoom(t *testing.T) {
	d := New()
	d.Join("r1", "a")
	d.Join("r1", "b")
	d.RecordName("r1", "a", "Alice")

	d.Leave("r1", "a")
	if !d.Exists("r1") {
		t.Fatal("room must survive while b is still present")
	}
	if len(d.Snapshot("r1")) != 0 {
		t.Error("expected a's name to be gone")
	}

	d.Leave("r1", "b")
	if d.Exists("r1") {
		t.Error("expected room entry to be removed after last leave")
	}
	if snap := d.Snapshot("r1"); len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
	if d.Rooms() != 0 {
		t.Errorf("expected no rooms, got %d", d.Rooms())
	}
}

func TestJoin_Idempotent(t *testing.T) {
	d := New()
	d.Join("r1", "a")
	d.Join("r1", "a")

	if n := d.Members("r1"); n != 1 {
		t.Errorf("expected 1 member, got %d", n)
	}
}
