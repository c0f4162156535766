package rename_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"shuttle/internal/metadata"
	"shuttle/internal/services"
	"shuttle/internal/services/rename"
	"shuttle/internal/testsupport"
)

func TestRenameMovie(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "premalu.2024.1080p.webrip.mkv")
	testsupport.WriteFile(t, source, 16)

	renamed, err := rename.New().Rename(context.Background(), source, metadata.Resolved{
		Title: "premalu",
		Year:  2024,
	})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if want := filepath.Join(dir, "Premalu (2024).mkv"); renamed != want {
		t.Fatalf("renamed = %s, want %s", renamed, want)
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatal("source still exists after rename")
	}
}

func TestRenameEpisode(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "kerala.crime.files.s01e02.720p.mkv")
	testsupport.WriteFile(t, source, 16)

	renamed, err := rename.New().Rename(context.Background(), source, metadata.Resolved{
		Title:    "kerala crime files",
		IsSeries: true,
		Season:   1,
		Episode:  2,
	})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if want := filepath.Join(dir, "Kerala Crime Files S01E02.mkv"); renamed != want {
		t.Fatalf("renamed = %s, want %s", renamed, want)
	}
}

func TestRenameEpisodeWithEnrichedTitle(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "kerala.crime.files.s01e02.720p.mkv")
	testsupport.WriteFile(t, source, 16)

	renamed, err := rename.New().Rename(context.Background(), source, metadata.Resolved{
		Title:        "kerala crime files",
		IsSeries:     true,
		Season:       1,
		Episode:      2,
		EpisodeTitle: "The Wedding Gift",
	})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if want := filepath.Join(dir, "Kerala Crime Files S01E02 - The Wedding Gift.mkv"); renamed != want {
		t.Fatalf("renamed = %s, want %s", renamed, want)
	}
}

func TestRenameEpisodeTitleWithSeparatorIsSanitized(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "some.show.s02e05.mkv")
	testsupport.WriteFile(t, source, 16)

	renamed, err := rename.New().Rename(context.Background(), source, metadata.Resolved{
		Title:        "some show",
		IsSeries:     true,
		Season:       2,
		Episode:      5,
		EpisodeTitle: "Before/After",
	})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if want := filepath.Join(dir, "Some Show S02E05 - Before-After.mkv"); renamed != want {
		t.Fatalf("renamed = %s, want %s", renamed, want)
	}
}

func TestRenameMovieCollisionGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "Premalu (2024).mkv")
	testsupport.WriteFile(t, existing, 16)
	source := filepath.Join(dir, "premalu.2024.restored.mkv")
	testsupport.WriteFile(t, source, 16)

	renamed, err := rename.New().Rename(context.Background(), source, metadata.Resolved{
		Title: "premalu",
		Year:  2024,
	})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if want := filepath.Join(dir, "Premalu (2024) (2).mkv"); renamed != want {
		t.Fatalf("renamed = %s, want %s", renamed, want)
	}
	if _, err := os.Stat(existing); err != nil {
		t.Fatalf("existing file disturbed: %v", err)
	}
}

func TestRenameEpisodeCollisionFails(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "Some Show S01E01.mkv"), 16)
	source := filepath.Join(dir, "some.show.s01e01.proper.mkv")
	testsupport.WriteFile(t, source, 16)

	_, err := rename.New().Rename(context.Background(), source, metadata.Resolved{
		Title:    "some show",
		IsSeries: true,
		Season:   1,
		Episode:  1,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, statErr := os.Stat(source); statErr != nil {
		t.Fatalf("source removed despite collision: %v", statErr)
	}
}

func TestRenameEmptyTitleIsNoop(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "unresolved.mkv")
	testsupport.WriteFile(t, source, 16)

	renamed, err := rename.New().Rename(context.Background(), source, metadata.Resolved{})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed != source {
		t.Fatalf("renamed = %s, want unchanged", renamed)
	}
}

func TestRenameAlreadyCanonical(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "Premalu (2024).mkv")
	testsupport.WriteFile(t, source, 16)

	renamed, err := rename.New().Rename(context.Background(), source, metadata.Resolved{
		Title: "Premalu",
		Year:  2024,
	})
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed != source {
		t.Fatalf("canonical name changed: %s", renamed)
	}
}
