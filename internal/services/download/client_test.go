package download

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"shuttle/internal/services"
	"shuttle/internal/testsupport"
)

func stubCommand(t *testing.T, script string) {
	t.Helper()
	old := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	t.Cleanup(func() { commandContext = old })
}

func TestDownloadReportsProgressAndEnumerates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "job-1")
	stubCommand(t, `
echo '[#2089b0 100MiB/512MiB(19%) CN:8 DL:2.1MiB ETA:50s]'
echo '[#2089b0 512MiB/512MiB(100%) CN:8 DL:2.1MiB]'
`)

	// Pre-place the payload the stubbed downloader "fetched".
	payload := filepath.Join(dir, "movie.mkv")
	testsupport.WriteFile(t, payload, 4096)

	var fractions []float64
	result, err := NewCLI().Download(context.Background(), services.DownloadRequest{
		Sources:     []string{"https://example.com/movie.torrent"},
		Dir:         dir,
		Connections: 8,
	}, func(fraction float64, message string) {
		fractions = append(fractions, fraction)
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(result.Files) != 1 || result.Files[0].Path != payload {
		t.Fatalf("files = %+v", result.Files)
	}
	if result.Files[0].Size != 4096 {
		t.Fatalf("size = %d, want 4096", result.Files[0].Size)
	}
	if len(fractions) != 2 || fractions[0] != 0.19 || fractions[1] != 1 {
		t.Fatalf("fractions = %v", fractions)
	}
}

func TestDownloadSkipsIncompletePayloads(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "job-1")
	stubCommand(t, "true")

	complete := filepath.Join(dir, "done.mkv")
	testsupport.WriteFile(t, complete, 64)
	testsupport.WriteFile(t, filepath.Join(dir, "partial.mkv"), 64)
	testsupport.WriteFile(t, filepath.Join(dir, "partial.mkv.aria2"), 8)

	result, err := NewCLI().Download(context.Background(), services.DownloadRequest{
		Sources: []string{"https://example.com/batch.torrent"},
		Dir:     dir,
	}, nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(result.Files) != 1 || result.Files[0].Path != complete {
		t.Fatalf("files = %+v", result.Files)
	}
}

func TestDownloadFailureIsTransient(t *testing.T) {
	stubCommand(t, "exit 1")

	_, err := NewCLI().Download(context.Background(), services.DownloadRequest{
		Sources: []string{"https://example.com/movie.torrent"},
		Dir:     filepath.Join(t.TempDir(), "job-1"),
	}, nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDownloadNoCompletedFilesIsTransient(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "job-1")
	stubCommand(t, "true")
	testsupport.WriteFile(t, filepath.Join(dir, "partial.mkv"), 64)
	testsupport.WriteFile(t, filepath.Join(dir, "partial.mkv.aria2"), 8)

	_, err := NewCLI().Download(context.Background(), services.DownloadRequest{
		Sources: []string{"https://example.com/movie.torrent"},
		Dir:     dir,
	}, nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDownloadNoSourcesIsValidation(t *testing.T) {
	_, err := NewCLI().Download(context.Background(), services.DownloadRequest{
		Dir: t.TempDir(),
	}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCleanupPartialRemovesPayloadAndControl(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "partial.mkv"), 64)
	testsupport.WriteFile(t, filepath.Join(dir, "partial.mkv.aria2"), 8)
	complete := filepath.Join(dir, "done.mkv")
	testsupport.WriteFile(t, complete, 64)

	if err := NewCLI().CleanupPartial(dir); err != nil {
		t.Fatalf("CleanupPartial: %v", err)
	}
	for _, name := range []string{"partial.mkv", "partial.mkv.aria2"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("%s survived cleanup", name)
		}
	}
	if _, err := os.Stat(complete); err != nil {
		t.Fatalf("completed file removed: %v", err)
	}
}

func TestCleanupPartialMissingDir(t *testing.T) {
	if err := NewCLI().CleanupPartial(filepath.Join(t.TempDir(), "gone")); err != nil {
		t.Fatalf("CleanupPartial: %v", err)
	}
}
