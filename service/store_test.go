package service

import (
	"testing"

	"github.com/Hussein135-coder/souriana-extract-bot/model"
)

func TestStoreSetAndGetPending(t *testing.T) {
	store := NewConversationStore()

	record := model.Record{"name": "أحمد", "number": "75000"}
	store.SetPending(100, record)

	got := store.Pending(100)
	if got == nil {
		t.Fatal("Expected pending record")
	}
	if got["name"] != "أحمد" {
		t.Errorf("Unexpected record: %v", got)
	}

	// Returned record is a copy
	got["name"] = "changed"
	if store.Pending(100)["name"] != "أحمد" {
		t.Error("Expected stored record to be isolated from returned copy")
	}
}

func TestStorePendingMissingChat(t *testing.T) {
	store := NewConversationStore()
	if got := store.Pending(999); got != nil {
		t.Errorf("Expected nil for unknown chat, got %v", got)
	}
}

func TestStorePerChatIsolation(t *testing.T) {
	store := NewConversationStore()

	store.SetPending(1, model.Record{"name": "first"})
	store.SetPending(2, model.Record{"name": "second"})

	if store.Pending(1)["name"] != "first" {
		t.Error("Chat 1 record was clobbered")
	}
	if store.Pending(2)["name"] != "second" {
		t.Error("Chat 2 record was clobbered")
	}
}

func TestStoreNewPhotoOverwritesPending(t *testing.T) {
	store := NewConversationStore()

	store.SetPending(1, model.Record{"name": "old"})
	store.SetAwaitingEdit(1, "company")
	store.SetPending(1, model.Record{"name": "new"})

	if store.Pending(1)["name"] != "new" {
		t.Error("Expected new record to replace old one")
	}
	// A fresh photo cancels a stale edit prompt
	if _, ok := store.TakeAwaitingEdit(1); ok {
		t.Error("Expected awaiting-edit state to be cleared by new pending record")
	}
}

func TestStoreUpdateField(t *testing.T) {
	store := NewConversationStore()

	original := model.Record{
		"name":    "أحمد",
		"number":  "75000",
		"date":    "2025-03-15",
		"company": "الهرم",
		"status":  "0",
		"user":    "hussein",
	}
	store.SetPending(1, original.Clone())

	if !store.UpdateField(1, "company", "الفؤاد") {
		t.Fatal("Expected update to succeed")
	}

	got := store.Pending(1)
	if got["company"] != "الفؤاد" {
		t.Errorf("Expected company updated, got %q", got["company"])
	}
	// Every other field is untouched
	for _, field := range []string{"name", "number", "date", "status", "user"} {
		if got[field] != original[field] {
			t.Errorf("Field %s changed: %q vs %q", field, got[field], original[field])
		}
	}
	if len(got) != len(original) {
		t.Errorf("Expected no keys added or removed, got %v", got)
	}
}

func TestStoreUpdateFieldNoPending(t *testing.T) {
	store := NewConversationStore()
	if store.UpdateField(1, "name", "x") {
		t.Error("Expected update to fail with no pending record")
	}
}

func TestStoreAwaitingEditOneShot(t *testing.T) {
	store := NewConversationStore()
	store.SetPending(1, model.Record{"name": "x"})
	store.SetAwaitingEdit(1, "company")

	field, ok := store.TakeAwaitingEdit(1)
	if !ok || field != "company" {
		t.Fatalf("Expected to take company, got %q/%v", field, ok)
	}

	// Second take finds nothing: the listener does not leak
	if _, ok := store.TakeAwaitingEdit(1); ok {
		t.Error("Expected awaiting-edit to be consumed")
	}
}

func TestStoreClear(t *testing.T) {
	store := NewConversationStore()
	store.SetPending(1, model.Record{"name": "x"})
	store.SetAwaitingEdit(1, "name")
	store.SetConfirmMessageID(1, 55)

	store.Clear(1)

	if store.Pending(1) != nil {
		t.Error("Expected pending record cleared")
	}
	if _, ok := store.TakeAwaitingEdit(1); ok {
		t.Error("Expected awaiting-edit cleared")
	}
	if store.ConfirmMessageID(1) != 0 {
		t.Error("Expected confirmation message id cleared")
	}
	if store.Count() != 0 {
		t.Errorf("Expected empty store, got %d", store.Count())
	}
}

func TestStoreConfirmMessageID(t *testing.T) {
	store := NewConversationStore()
	store.SetPending(1, model.Record{"name": "x"})
	store.SetConfirmMessageID(1, 42)

	if got := store.ConfirmMessageID(1); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	if got := store.ConfirmMessageID(2); got != 0 {
		t.Errorf("Expected 0 for unknown chat, got %d", got)
	}
}
