package filter

import (
	"fmt"
	"testing"
)

func TestBloomFilterNoFalseNegative(t *testing.T) {
	f := NewBloomFilter(1000, 0.01)
	items := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		items = append(items, fmt.Sprintf("item-%d", i))
	}
	for _, it := range items {
		f.Insert(it)
	}
	for _, it := range items {
		if !f.Contains(it) {
			t.Fatalf("inserted item %q not reported as contained", it)
		}
	}
}

func TestBloomFilterDefaults(t *testing.T) {
	f := NewBloomFilter(0, 0)
	if f.numItems != 1 {
		t.Fatalf("expected numItems to default to 1, got %d", f.numItems)
	}
	if f.fpr != 0.01 {
		t.Fatalf("expected fpr to default to 0.01, got %f", f.fpr)
	}
}

func TestBloomFilterSizing(t *testing.T) {
	f := NewBloomFilter(100, 0.01)
	if f.NumBits() <= 0 || f.NumHashes() <= 0 {
		t.Fatalf("expected positive m,k, got m=%d k=%d", f.NumBits(), f.NumHashes())
	}
}

func TestBloomFilterExportImportRoundTrip(t *testing.T) {
	f := NewBloomFilter(50, 0.01)
	f.Insert("a")
	f.Insert("b")
	m, k, words := f.Export()

	g := ImportBloomFilter(m, k, words)
	if !g.Contains("a") || !g.Contains("b") {
		t.Fatalf("imported filter lost membership")
	}
}

func TestBloomFilterEstimatedFpr(t *testing.T) {
	f := NewBloomFilter(100, 0.05)
	fpr := f.EstimatedFpr()
	if fpr <= 0 || fpr >= 1 {
		t.Fatalf("expected estimated fpr in (0,1), got %f", fpr)
	}
}
