package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[*domain.Customer](5 * time.Minute)
	defer c.Close()

	c.Set("cust-1", &domain.Customer{ID: "cust-1", Name: "Acme Coatings"})
	val, ok := c.Get("cust-1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val.Name != "Acme Coatings" {
		t.Errorf("expected 'Acme Coatings', got '%s'", val.Name)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_GetMany(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("a", "A")
	c.Set("c", "C")

	hits, misses := c.GetMany([]string{"a", "b", "c", "d"})
	if len(hits) != 2 || hits["a"] != "A" || hits["c"] != "C" {
		t.Errorf("unexpected hits: %v", hits)
	}
	if len(misses) != 2 || misses[0] != "b" || misses[1] != "d" {
		t.Errorf("unexpected misses: %v", misses)
	}
}

func TestCache_ZeroTTLDisables(t *testing.T) {
	c := cache.New[string](0)
	defer c.Close()

	c.Set("key1", "value1")
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := cache.New[string](time.Minute)
	c.Close()
	c.Close()
}
