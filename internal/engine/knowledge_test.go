package engine

import (
	"reflect"
	"testing"
)

func TestKnowledgeStoreAddDedup(t *testing.T) {
	s, err := NewKnowledgeStore()
	if err != nil {
		t.Fatalf("NewKnowledgeStore() error: %v", err)
	}
	defer s.Close()

	item, ok := s.Add("https://a.example", "fact one", 1)
	if !ok {
		t.Fatal("first Add should report a new item")
	}
	if item.ID == "" {
		t.Error("added item should carry an ID")
	}
	if item.Step != 1 {
		t.Errorf("Step = %d, want 1", item.Step)
	}

	// Same (sourceID, summary) pair is a silent no-op.
	if _, ok := s.Add("https://a.example", "fact one", 2); ok {
		t.Error("duplicate (sourceID, summary) should not be added")
	}
	// Same source with a different summary is a distinct item.
	if _, ok := s.Add("https://a.example", "fact two", 2); !ok {
		t.Error("same source with a new summary should be added")
	}
	// Same summary from a different source is a distinct item.
	if _, ok := s.Add("https://b.example", "fact one", 2); !ok {
		t.Error("same summary from a new source should be added")
	}

	if s.Size() != 3 {
		t.Errorf("Size() = %d, want 3", s.Size())
	}
}

func TestKnowledgeStoreMerge(t *testing.T) {
	s, err := NewKnowledgeStore()
	if err != nil {
		t.Fatalf("NewKnowledgeStore() error: %v", err)
	}
	defer s.Close()

	s.Add("src", "existing", 1)

	added := s.Merge([]KnowledgeItem{
		{SourceID: "src", Summary: "existing"}, // duplicate
		{SourceID: "src", Summary: "new"},
		{SourceID: "other", Summary: "also new"},
	}, 2)

	if added != 2 {
		t.Errorf("Merge added %d, want 2", added)
	}
	if s.Size() != 3 {
		t.Errorf("Size() = %d, want 3", s.Size())
	}
}

func TestKnowledgeStoreRecent(t *testing.T) {
	s, err := NewKnowledgeStore()
	if err != nil {
		t.Fatalf("NewKnowledgeStore() error: %v", err)
	}
	defer s.Close()

	s.Add("a", "first", 1)
	s.Add("b", "second", 2)
	s.Add("c", "third", 3)

	recent := s.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) returned %d items, want 2", len(recent))
	}
	if recent[0].Summary != "third" || recent[1].Summary != "second" {
		t.Errorf("Recent(2) = [%q, %q], want most recent first", recent[0].Summary, recent[1].Summary)
	}

	// Zero or oversized n returns everything.
	if got := s.Recent(0); len(got) != 3 {
		t.Errorf("Recent(0) returned %d items, want 3", len(got))
	}
	if got := s.Recent(10); len(got) != 3 {
		t.Errorf("Recent(10) returned %d items, want 3", len(got))
	}
}

func TestKnowledgeStoreSources(t *testing.T) {
	s, err := NewKnowledgeStore()
	if err != nil {
		t.Fatalf("NewKnowledgeStore() error: %v", err)
	}
	defer s.Close()

	s.Add("https://a.example", "one", 1)
	s.Add("https://b.example", "two", 1)
	s.Add("https://a.example", "three", 2)

	want := []string{"https://a.example", "https://b.example"}
	if got := s.Sources(); !reflect.DeepEqual(got, want) {
		t.Errorf("Sources() = %v, want %v", got, want)
	}
}

func TestKnowledgeStoreSearchFallsBackToRecent(t *testing.T) {
	s, err := NewKnowledgeStore()
	if err != nil {
		t.Fatalf("NewKnowledgeStore() error: %v", err)
	}
	defer s.Close()

	s.Add("a", "the capital of France is Paris", 1)
	s.Add("b", "unrelated note about compilers", 2)

	// Empty query degrades to recency order.
	got := s.Search("", 1)
	if len(got) != 1 || got[0].SourceID != "b" {
		t.Errorf("Search(\"\") = %v, want most recent item", got)
	}

	// A query matching nothing still returns something usable.
	if got := s.Search("zzzzqqqq", 2); len(got) == 0 {
		t.Error("Search with no hits should fall back to Recent, not return nothing")
	}
}
