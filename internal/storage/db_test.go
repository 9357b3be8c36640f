package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ndquang/portfolio-rtc/internal/signaling"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func msg(sender, content, ts string) signaling.ChatMessage {
	return signaling.ChatMessage{
		Sender:    sender,
		Content:   content,
		Type:      signaling.MessageChat,
		Timestamp: ts,
	}
}

func TestOpenCreatesParentDirs(t *testing.T) {
	db := openTestDB(t)
	if n, err := db.Count(); err != nil || n != 0 {
		t.Fatalf("fresh db count = %d err = %v", n, err)
	}
}

func TestAppendAndRecent(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		m := msg("Admin", fmt.Sprintf("m%d", i), fmt.Sprintf("2026-08-29T10:00:0%dZ", i))
		if err := db.Append(m); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	// Newest window, oldest first.
	if got[0].Content != "m2" || got[2].Content != "m4" {
		t.Fatalf("window = %+v, want m2..m4", got)
	}
	if got[0].Type != signaling.MessageChat {
		t.Fatalf("type lost: %+v", got[0])
	}
}

func TestAppendIgnoresDuplicates(t *testing.T) {
	db := openTestDB(t)

	m := msg("Guest_1", "hello", "2026-08-29T10:00:00Z")
	for i := 0; i < 3; i++ {
		if err := db.Append(m); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1 after duplicate appends", n)
	}
}

func TestSaveMessagesMergesWithExisting(t *testing.T) {
	db := openTestDB(t)

	replay := []signaling.ChatMessage{
		msg("Admin", "first", "2026-08-29T09:00:00Z"),
		msg("Guest_1", "second", "2026-08-29T09:01:00Z"),
	}
	if err := db.SaveMessages(replay); err != nil {
		t.Fatal(err)
	}
	// A second replay containing the same messages plus one new entry only
	// adds the new one.
	replay = append(replay, msg("Admin", "third", "2026-08-29T09:02:00Z"))
	if err := db.SaveMessages(replay); err != nil {
		t.Fatal(err)
	}

	n, err := db.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}

	got, err := db.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Content != "first" || got[2].Content != "third" {
		t.Fatalf("order = %+v", got)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Append(msg("Admin", "persisted", "2026-08-29T09:00:00Z")); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()

	got, err := db2.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "persisted" {
		t.Fatalf("reopened db lost data: %+v", got)
	}
}
