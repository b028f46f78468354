package store

import (
	"testing"
)

func TestUpsertIsIdempotent(t *testing.T) {
	db := testDB(t)
	m := testMessage(1, 100, 5000, "first sighting")

	inserted, updated, err := db.UpsertMessage(m)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !inserted || updated {
		t.Errorf("first upsert = (%v, %v), want (true, false)", inserted, updated)
	}

	inserted, updated, err = db.UpsertMessage(testMessage(1, 100, 5000, "first sighting"))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted || updated {
		t.Errorf("identical re-upsert = (%v, %v), want (false, false)", inserted, updated)
	}

	revs, err := db.ListRevisions(1, 100)
	if err != nil {
		t.Fatalf("list revisions: %v", err)
	}
	if len(revs) != 1 || revs[0].Kind != RevisionCreate {
		t.Fatalf("revisions = %+v, want single create", revs)
	}
}

func TestUpsertChangeLogsEdit(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testMessage(1, 100, 5000, "original"))

	edited := testMessage(1, 100, 5000, "revised text")
	editTS := int64(6000)
	edited.EditedAt = &editTS
	inserted, updated, err := db.UpsertMessage(edited)
	if err != nil {
		t.Fatalf("edit upsert: %v", err)
	}
	if inserted || !updated {
		t.Errorf("edit upsert = (%v, %v), want (false, true)", inserted, updated)
	}

	got, err := db.GetMessage(1, 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "revised text" {
		t.Errorf("text = %q, want revised", got.Text)
	}
	if got.EditedAt == nil || *got.EditedAt != 6000 {
		t.Errorf("edited_ts = %v, want 6000", got.EditedAt)
	}

	revs, err := db.ListRevisions(1, 100)
	if err != nil {
		t.Fatalf("list revisions: %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("revision count = %d, want 2", len(revs))
	}
	if revs[0].Kind != RevisionCreate || revs[0].Text != "original" {
		t.Errorf("first revision = %+v", revs[0])
	}
	if revs[1].Kind != RevisionEdit || revs[1].Text != "revised text" || revs[1].Timestamp != 6000 {
		t.Errorf("second revision = %+v", revs[1])
	}

	// Replaying the same edit adds no third revision.
	if _, _, err := db.UpsertMessage(edited); err != nil {
		t.Fatalf("replay edit: %v", err)
	}
	revs, _ = db.ListRevisions(1, 100)
	if len(revs) != 2 {
		t.Fatalf("revision count after replay = %d, want 2", len(revs))
	}
}

func TestDeleteThenResurrect(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testMessage(1, 100, 5000, "doomed"))

	ok, err := db.MarkDeleted(1, 100, 7000)
	if err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	if !ok {
		t.Fatal("mark deleted returned false for known message")
	}

	got, _ := db.GetMessage(1, 100)
	if !got.IsDeleted || got.DeletedAt == nil || *got.DeletedAt != 7000 {
		t.Fatalf("after delete: %+v", got)
	}

	// The message reappearing in a later sync clears the flag.
	inserted, updated, err := db.UpsertMessage(testMessage(1, 100, 5000, "doomed"))
	if err != nil {
		t.Fatalf("resurrect upsert: %v", err)
	}
	if inserted || !updated {
		t.Errorf("resurrect = (%v, %v), want (false, true)", inserted, updated)
	}
	got, _ = db.GetMessage(1, 100)
	if got.IsDeleted || got.DeletedAt != nil {
		t.Fatalf("delete flag not cleared: %+v", got)
	}

	revs, _ := db.ListRevisions(1, 100)
	kinds := make([]string, len(revs))
	for i, r := range revs {
		kinds[i] = r.Kind
	}
	want := []string{RevisionCreate, RevisionDelete, RevisionEdit}
	if len(kinds) != 3 || kinds[0] != want[0] || kinds[1] != want[1] || kinds[2] != want[2] {
		t.Fatalf("revision kinds = %v, want %v", kinds, want)
	}
}

func TestMarkDeletedUnknownMessage(t *testing.T) {
	db := testDB(t)
	ok, err := db.MarkDeleted(1, 999, 7000)
	if err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	if ok {
		t.Error("deleting an unknown message should report false")
	}
}

func TestQueryFilters(t *testing.T) {
	db := testDB(t)
	out := testMessage(1, 1, 1000, "going out")
	out.Outgoing = true
	mustUpsert(t, db, out)
	mustUpsert(t, db, testMessage(1, 2, 2000, "coming in"))
	mustUpsert(t, db, testMessage(1, 3, 3000, "late arrival"))
	mustUpsert(t, db, testMessage(2, 4, 2500, "other conversation"))

	msgs, err := db.QueryMessages(1, QueryOptions{Since: 1500, Until: 2500})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(msgs) != 1 || msgs[0].MsgID != 2 {
		t.Fatalf("time filter = %+v, want msg 2 only", msgs)
	}

	msgs, _ = db.QueryMessages(1, QueryOptions{Sender: SenderSelf})
	if len(msgs) != 1 || msgs[0].MsgID != 1 {
		t.Fatalf("sender filter = %+v, want msg 1 only", msgs)
	}

	msgs, _ = db.QueryMessages(1, QueryOptions{TextPattern: "arriv"})
	if len(msgs) != 1 || msgs[0].MsgID != 3 {
		t.Fatalf("pattern filter = %+v, want msg 3 only", msgs)
	}

	// Malformed pattern degrades to no filter instead of erroring.
	msgs, err = db.QueryMessages(1, QueryOptions{TextPattern: `broken\`})
	if err != nil {
		t.Fatalf("malformed pattern: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("degraded query = %d messages, want 3", len(msgs))
	}
}

func TestLikePattern(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"", "", false},
		{"plain", "%plain%", true},
		{"pre%", "pre%", true},
		{"a_b", "a_b", true},
		{`trailing\`, "", false},
		{`escaped\\`, `escaped\\`, true},
	}
	for _, c := range cases {
		got, ok := likePattern(c.in)
		if got != c.want || ok != c.wantOK {
			t.Errorf("likePattern(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.wantOK)
		}
	}
}

func TestFindConversationsContaining(t *testing.T) {
	db := testDB(t)
	mustUpsert(t, db, testMessage(1, 100, 1000, "a"))
	mustUpsert(t, db, testMessage(2, 100, 2000, "b"))
	mustUpsert(t, db, testMessage(3, 200, 3000, "c"))

	ids, err := db.FindConversationsContaining(100)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("conversations = %v, want [1 2]", ids)
	}
}
