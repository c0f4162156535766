package omdb_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shuttle/internal/metadata/omdb"
	"shuttle/internal/services"
)

func TestIdentifyMovie(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("apikey") != "key" || query.Get("t") != "Manjummel Boys" || query.Get("y") != "2024" {
			t.Fatalf("query = %v", query)
		}
		w.Write([]byte(`{
			"Title": "Manjummel Boys",
			"Year": "2024",
			"Type": "movie",
			"Language": "Malayalam, Tamil",
			"imdbID": "tt26915862",
			"Response": "True"
		}`))
	}))
	defer server.Close()

	client, err := omdb.New("key", server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	identity, err := client.Identify(context.Background(), "Manjummel Boys", 2024)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if identity == nil || identity.Title != "Manjummel Boys" || identity.Year != 2024 {
		t.Fatalf("identity = %+v", identity)
	}
	if identity.Series {
		t.Fatal("movie reported as series")
	}
	if identity.IMDbID != "tt26915862" {
		t.Fatalf("imdb id = %q", identity.IMDbID)
	}
}

func TestIdentifySeriesYearRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"Title": "Kerala Crime Files",
			"Year": "2023–2024",
			"Type": "series",
			"Language": "Malayalam",
			"Response": "True"
		}`))
	}))
	defer server.Close()

	client, err := omdb.New("key", server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	identity, err := client.Identify(context.Background(), "Kerala Crime Files", 0)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if !identity.Series {
		t.Fatal("series not detected")
	}
	if identity.Year != 2023 {
		t.Fatalf("year = %d, want 2023", identity.Year)
	}
}

func TestIdentifyMissIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response": "False", "Error": "Movie not found!"}`))
	}))
	defer server.Close()

	client, err := omdb.New("key", server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	identity, err := client.Identify(context.Background(), "Nonexistent", 0)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if identity != nil {
		t.Fatalf("identity = %+v, want nil on miss", identity)
	}
}

func TestIdentifyServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := omdb.New("key", server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Identify(context.Background(), "Anything", 0)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestNewRequiresKeyAndURL(t *testing.T) {
	if _, err := omdb.New("", "https://www.omdbapi.com"); err == nil {
		t.Fatal("expected error for missing key")
	}
	if _, err := omdb.New("key", ""); err == nil {
		t.Fatal("expected error for missing base url")
	}
}
