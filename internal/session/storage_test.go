package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoragePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	first := NewFileStorage(path)
	if err := first.Set(ctx, KeyAccessToken, "a"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := first.Set(ctx, KeyRefreshToken, "r"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	second := NewFileStorage(path)
	if v, ok, err := second.Get(ctx, KeyAccessToken); err != nil || !ok || v != "a" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("mode = %v, want 0600", perm)
	}

	if err := second.Delete(ctx, KeyAccessToken, KeyRefreshToken); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := first.Get(ctx, KeyRefreshToken); ok {
		t.Fatal("refresh token survived Delete")
	}
}

func TestFileStorageMissingFileIsEmpty(t *testing.T) {
	s := NewFileStorage(filepath.Join(t.TempDir(), "absent.json"))
	if _, ok, err := s.Get(context.Background(), KeyAccessToken); ok || err != nil {
		t.Fatalf("Get = %v %v", ok, err)
	}
	if err := s.Delete(context.Background(), KeyAccessToken); err != nil {
		t.Fatalf("Delete on missing file: %v", err)
	}
}

func TestFileStorageCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewFileStorage(path).Get(context.Background(), KeyAccessToken); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRedisStorageKeys(t *testing.T) {
	client, err := ConnectRedis("localhost:6379")
	if err != nil {
		t.Fatalf("ConnectRedis: %v", err)
	}
	defer client.Close()
	s := NewRedisStorage(client, "kiosk-1:", 0)
	if got := s.key(KeyAccessToken); got != "kiosk-1:token" {
		t.Fatalf("key = %q", got)
	}
	if got := NewRedisStorage(client, "", 0).key(KeyRefreshToken); got != "firewatch:session:refresh_token" {
		t.Fatalf("default key = %q", got)
	}
}

// Runs against a live server when FIREWATCH_TEST_REDIS_URL is set.
func TestRedisStorageRoundTrip(t *testing.T) {
	url := os.Getenv("FIREWATCH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FIREWATCH_TEST_REDIS_URL not set")
	}
	client, err := ConnectRedis(url)
	if err != nil {
		t.Fatalf("ConnectRedis: %v", err)
	}
	ctx := context.Background()
	s := NewRedisStorage(client, "firewatch:test:"+time.Now().Format("150405.000000"), time.Minute)
	defer s.Close()

	if err := s.Set(ctx, KeyAccessToken, "a"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := s.Get(ctx, KeyAccessToken); err != nil || !ok || v != "a" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
	if err := s.Delete(ctx, KeyAccessToken); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := s.Get(ctx, KeyAccessToken); ok || err != nil {
		t.Fatalf("Get after Delete = %v %v", ok, err)
	}
}
