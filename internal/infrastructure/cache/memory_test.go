package cache

import (
	"testing"
	"time"
)

func TestResultCache_SetGet(t *testing.T) {
	c := NewResultCache()
	c.Set("k", []byte("value"), time.Minute)

	got, ok := c.Get("k")
	if !ok {
		t.Fatalf("expected hit")
	}
	if string(got) != "value" {
		t.Fatalf("unexpected value %s", got)
	}
}

func TestResultCache_Expiry(t *testing.T) {
	c := NewResultCache()
	c.Set("k", []byte("value"), -time.Second)

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestResultCache_Delete(t *testing.T) {
	c := NewResultCache()
	c.Set("k", []byte("value"), time.Minute)
	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after delete")
	}
}
