package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestTokenCache_FetchesOnce(t *testing.T) {
	calls := 0
	cache := NewTokenCache(func(context.Context) (string, error) {
		calls++
		return "tok-1", nil
	}, time.Minute)

	for i := 0; i < 5; i++ {
		tok, err := cache.Token(context.Background())
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if tok != "tok-1" {
			t.Errorf("expected tok-1, got %q", tok)
		}
	}

	if calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}
}

func TestTokenCache_RefreshesAfterTTL(t *testing.T) {
	calls := 0
	cache := NewTokenCache(func(context.Context) (string, error) {
		calls++
		return "tok", nil
	}, time.Minute)

	clock := time.Now()
	cache.now = func() time.Time { return clock }

	if _, err := cache.Token(context.Background()); err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(2 * time.Minute)

	if _, err := cache.Token(context.Background()); err != nil {
		t.Fatal(err)
	}

	if calls != 2 {
		t.Errorf("expected refetch after TTL, got %d fetches", calls)
	}
}

func TestTokenCache_FetchError(t *testing.T) {
	want := errors.New("upstream down")
	cache := NewTokenCache(func(context.Context) (string, error) {
		return "", want
	}, time.Minute)

	_, err := cache.Token(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("expected fetch error, got %v", err)
	}
}

func TestTokenCache_Invalidate(t *testing.T) {
	calls := 0
	cache := NewTokenCache(func(context.Context) (string, error) {
		calls++
		return "tok", nil
	}, time.Hour)

	if _, err := cache.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	cache.Invalidate()
	if _, err := cache.Token(context.Background()); err != nil {
		t.Fatal(err)
	}

	if calls != 2 {
		t.Errorf("expected refetch after Invalidate, got %d fetches", calls)
	}
}

func TestTokenCache_ConcurrentAccess(t *testing.T) {
	calls := 0
	cache := NewTokenCache(func(context.Context) (string, error) {
		calls++
		time.Sleep(5 * time.Millisecond)
		return "tok", nil
	}, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Token(context.Background()); err != nil {
				t.Errorf("Token failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected single fetch under concurrency, got %d", calls)
	}
}

func TestStatic(t *testing.T) {
	cache := Static("api-key")
	tok, err := cache.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "api-key" {
		t.Errorf("expected api-key, got %q", tok)
	}
}
