package cart

import (
	"context"
	"testing"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Cart_AddAndItems(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddItem(ctx, "u1", "Red Dress", 1, 49.99); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddItem(ctx, "u1", "Blue Boots", 2, 89.50); err != nil {
		t.Fatalf("add: %v", err)
	}

	items, err := s.Items(ctx, "u1")
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2 items, got %d", len(items))
	}
	if items[0].Name != "Red Dress" || items[0].Quantity != 1 {
		t.Errorf("item[0]: got %+v", items[0])
	}
	if items[1].Name != "Blue Boots" || items[1].Quantity != 2 || items[1].Price != 89.50 {
		t.Errorf("item[1]: got %+v", items[1])
	}
}

func Test_Cart_AddIncrementsQuantity(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddItem(ctx, "u1", "Red Dress", 1, 49.99); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddItem(ctx, "u1", "Red Dress", 2, 49.99); err != nil {
		t.Fatalf("add again: %v", err)
	}

	items, err := s.Items(ctx, "u1")
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 3 {
		t.Fatalf("want single item with quantity 3, got %+v", items)
	}
}

func Test_Cart_RemoveDecrementsAndDeletes(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddItem(ctx, "u1", "Red Dress", 3, 49.99); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.RemoveItem(ctx, "u1", "Red Dress", 1); err != nil {
		t.Fatalf("remove: %v", err)
	}

	items, err := s.Items(ctx, "u1")
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 2 {
		t.Fatalf("want quantity 2, got %+v", items)
	}

	if err := s.RemoveItem(ctx, "u1", "Red Dress", 5); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	items, err = s.Items(ctx, "u1")
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("want empty cart, got %+v", items)
	}
}

func Test_Cart_RemoveAbsentIsNoop(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RemoveItem(ctx, "u1", "Ghost Item", 1); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func Test_Cart_ClearCart(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddItem(ctx, "u1", "Red Dress", 1, 49.99); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.ClearCart(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	items, err := s.Items(ctx, "u1")
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("want empty cart, got %+v", items)
	}
}

func Test_Cart_UserIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddItem(ctx, "u1", "Red Dress", 1, 49.99); err != nil {
		t.Fatalf("add u1: %v", err)
	}
	if err := s.AddItem(ctx, "u2", "Blue Boots", 1, 89.50); err != nil {
		t.Fatalf("add u2: %v", err)
	}

	items1, err := s.Items(ctx, "u1")
	if err != nil {
		t.Fatalf("items u1: %v", err)
	}
	items2, err := s.Items(ctx, "u2")
	if err != nil {
		t.Fatalf("items u2: %v", err)
	}
	if len(items1) != 1 || items1[0].Name != "Red Dress" {
		t.Errorf("user u1 isolation failed: got %+v", items1)
	}
	if len(items2) != 1 || items2[0].Name != "Blue Boots" {
		t.Errorf("user u2 isolation failed: got %+v", items2)
	}
}

func Test_Cart_InvalidQuantity(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddItem(ctx, "u1", "Red Dress", 0, 49.99); err == nil {
		t.Fatal("want error for zero quantity add")
	}
	if err := s.RemoveItem(ctx, "u1", "Red Dress", -1); err == nil {
		t.Fatal("want error for negative quantity remove")
	}
}

func Test_Context_AppendAndReplace(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendContext(ctx, "u1", "user: show me dresses"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendContext(ctx, "u1", "assistant: here are some dresses"); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := s.Context(ctx, "u1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(entries) != 2 || entries[0] != "user: show me dresses" {
		t.Fatalf("unexpected context: %v", entries)
	}

	if err := s.ReplaceContext(ctx, "u1", []string{"summary: user is shopping for dresses"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	entries, err = s.Context(ctx, "u1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(entries) != 1 || entries[0] != "summary: user is shopping for dresses" {
		t.Fatalf("replace did not take: %v", entries)
	}

	if err := s.ClearContext(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err = s.Context(ctx, "u1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("want empty context, got %v", entries)
	}
}
