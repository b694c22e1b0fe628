package schema

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRenderCollection(t *testing.T) {
	doc := `{
  "fields": {
    "_id": {"type": ["ObjectId"], "description": "Order id"},
    "total_amount": {"type": ["double", "int"], "description": ["Order total", "ignored"]},
    "details": {
      "type": ["array"],
      "description": "Line items",
      "items": {
        "name": {"type": ["string"], "description": "Item name"},
        "modifiers": {
          "type": ["array"],
          "items": {"label": {"type": ["string"]}}
        }
      }
    },
    "tags": {"type": ["array"], "items": {"type": ["string"]}},
    "note": "not a field"
  }
}`
	got, err := RenderCollection("orders", []byte(doc))
	if err != nil {
		t.Fatalf("RenderCollection: %v", err)
	}
	want := strings.Join([]string{
		"## orders",
		"  _id: ObjectId — Order id",
		"  total_amount: double,int — Order total",
		"  details: array — Line items",
		"  details[].name: string — Item name",
		"  details[].modifiers: array — ",
		"  details[].modifiers[].label: string — ",
		"  tags: array — ",
	}, "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("render mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderCollection_NoFields(t *testing.T) {
	got, err := RenderCollection("stores", []byte(`{"collection": "stores"}`))
	if err != nil {
		t.Fatalf("RenderCollection: %v", err)
	}
	if got != "## stores" {
		t.Errorf("got %q, want header only", got)
	}
}

func TestRenderCollection_InvalidDocument(t *testing.T) {
	if _, err := RenderCollection("x", []byte(`{"fields": [`)); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad(t *testing.T) {
	idx, text, err := Load(filepath.Join("testdata", "schema.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"orders", "products", "users"}, idx.Collections()); diff != "" {
		t.Errorf("collections mismatch (-want +got):\n%s", diff)
	}
	if idx.Sources[0].Path != filepath.Join("testdata", "orders.json") {
		t.Errorf("path = %q, want resolved against index dir", idx.Sources[0].Path)
	}

	for _, want := range []string{
		"## orders\n  _id: ObjectId — Order id",
		"  total_amount: double,int — Order total including fees",
		"  details[].qty: int — Quantity",
		"  created_at: date — ",
		"## products\n  name: string — Display name",
		"## users\nError: ",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered schema missing %q\n%s", want, text)
		}
	}
	if strings.Contains(text, "tags[]") || strings.Contains(text, "version") {
		t.Errorf("rendered schema includes skipped entries:\n%s", text)
	}
	if strings.Index(text, "## orders") > strings.Index(text, "## products") {
		t.Error("collections not in index order")
	}
}

func TestLoadIndex_Missing(t *testing.T) {
	if _, err := LoadIndex(filepath.Join("testdata", "nope.yaml")); err == nil {
		t.Error("expected error for missing index")
	}
}

func TestLoadIndex_NoPaths(t *testing.T) {
	idx, err := LoadIndex(filepath.Join("testdata", "orders.json"))
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if len(idx.Sources) != 0 {
		t.Errorf("sources = %v, want none", idx.Sources)
	}
}

func TestShippedSchemas(t *testing.T) {
	idx, text, err := Load(filepath.Join("..", "..", "schemas", "schema.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"orders", "products", "stores", "categories", "users"}
	if diff := cmp.Diff(want, idx.Collections()); diff != "" {
		t.Errorf("collections mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(text, "Error:") {
		t.Errorf("shipped schema failed to render:\n%s", text)
	}
	if !strings.Contains(text, "  details[].name: string — Item name at time of order") {
		t.Errorf("order line items not flattened:\n%s", text)
	}
}
