package scan_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shuttle/internal/services"
	"shuttle/internal/services/scan"
)

func TestScanPostsRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Library/Refresh" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Emby-Token") != "token" {
			t.Fatalf("token header = %q", r.Header.Get("X-Emby-Token"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := scan.New(server.URL, "token").Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
}

func TestScanServerErrorIsScanFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	err := scan.New(server.URL, "bad-token").Scan(context.Background())
	if !errors.Is(err, services.ErrScan) {
		t.Fatalf("expected scan failure, got %v", err)
	}
}

func TestScanMissingURL(t *testing.T) {
	err := scan.New("", "token").Scan(context.Background())
	if !errors.Is(err, services.ErrScan) {
		t.Fatalf("expected scan failure, got %v", err)
	}
}
