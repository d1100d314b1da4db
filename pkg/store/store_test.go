package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/menta2k/photo-annotator/pkg/types"
)

func annotation(n int) types.Annotation {
	return types.Annotation{
		Rect: types.Rect{
			Start: types.Point{X: float64(n), Y: float64(n)},
			End:   types.Point{X: float64(n + 10), Y: float64(n + 10)},
		},
		Kind:    types.TagCatalog,
		Product: &types.ProductRef{ID: types.IntID(int64(n)), Label: fmt.Sprintf("p%d", n)},
	}
}

func TestAppendKeepsOrder(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		if idx := s.Append(annotation(i)); idx != i {
			t.Errorf("Expected index %d, got %d", i, idx)
		}
	}

	if s.Len() != 5 {
		t.Fatalf("Expected 5 annotations, got %d", s.Len())
	}
	for i, a := range s.All() {
		if a.Label() != fmt.Sprintf("p%d", i) {
			t.Errorf("Annotation %d out of order: %s", i, a.Label())
		}
	}
}

func TestDuplicatesAllowed(t *testing.T) {
	s := New()
	s.Append(annotation(1))
	s.Append(annotation(1))
	if s.Len() != 2 {
		t.Errorf("Expected duplicate to be kept, got %d annotations", s.Len())
	}
}

func TestAllReturnsCopy(t *testing.T) {
	s := New()
	s.Append(annotation(1))

	all := s.All()
	all[0].ProductName = "changed"

	if s.All()[0].ProductName != "" {
		t.Error("Mutating the returned slice should not change the store")
	}
}

func TestRecords(t *testing.T) {
	s := New()
	s.Append(annotation(2))
	s.Append(types.Annotation{Kind: types.TagText, ProductName: "Lamp", Description: "brass"})

	recs := s.Records()
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
	if recs[0].ProductID == nil || *recs[0].ProductID != types.IntID(2) {
		t.Errorf("Expected productId 2, got %+v", recs[0].ProductID)
	}
	if recs[1].Product == nil || *recs[1].Product != "Lamp" {
		t.Errorf("Expected product Lamp, got %+v", recs[1].Product)
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Append(annotation(n))
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Expected 50 annotations, got %d", s.Len())
	}
}
