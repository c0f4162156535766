package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shuttle/internal/config"
	"shuttle/internal/metadata"
	"shuttle/internal/nas"
	"shuttle/internal/publisher"
	"shuttle/internal/queue"
	"shuttle/internal/services"
	"shuttle/internal/testsupport"
	"shuttle/internal/workflow"
)

type fakeDownloader struct {
	err      error
	cleanups int
}

func (f *fakeDownloader) Download(ctx context.Context, req services.DownloadRequest, progress services.ProgressFunc) (*services.DownloadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(req.Dir, "Premalu.2024.Malayalam.1080p.mkv")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		return nil, err
	}
	progress(1, "")
	return &services.DownloadResult{Files: []services.DownloadedFile{{Path: path, Size: 7, Speed: 7}}}, nil
}

func (f *fakeDownloader) CleanupPartial(dir string) error {
	f.cleanups++
	return nil
}

type fakeFilter struct{}

func (fakeFilter) FilterTracks(ctx context.Context, req services.FilterRequest, progress services.ProgressFunc) (string, error) {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(req.OutputDir, filepath.Base(req.Path))
	if err := os.WriteFile(out, []byte("filtered"), 0o644); err != nil {
		return "", err
	}
	progress(1, "")
	return out, nil
}

type recordingFilter struct {
	languages []string
}

func (f *recordingFilter) FilterTracks(ctx context.Context, req services.FilterRequest, progress services.ProgressFunc) (string, error) {
	f.languages = append(f.languages, req.KeepLanguage)
	return fakeFilter{}.FilterTracks(ctx, req, progress)
}

type fakeRenamer struct{}

func (fakeRenamer) Rename(ctx context.Context, path string, meta metadata.Resolved) (string, error) {
	renamed := filepath.Join(filepath.Dir(path), "Premalu (2024).mkv")
	return renamed, os.Rename(path, renamed)
}

type fakeTransfer struct {
	destDirs []string
	err      error
}

func (f *fakeTransfer) Transfer(ctx context.Context, files []string, destDir string, progress services.ProgressFunc) (*services.TransferResult, error) {
	f.destDirs = append(f.destDirs, destDir)
	if f.err != nil {
		return &services.TransferResult{Failed: files}, f.err
	}
	var copied int64
	for range files {
		copied += 7
	}
	progress(1, "")
	return &services.TransferResult{Transferred: files, BytesCopied: copied}, nil
}

type fakeScanner struct {
	calls int
	err   error
}

func (f *fakeScanner) Scan(ctx context.Context) error {
	f.calls++
	return f.err
}

type executorFixture struct {
	cfg      *config.Config
	store    *queue.Store
	hub      *publisher.Hub
	executor *workflow.Executor
}

func newExecutorFixture(t *testing.T, collab workflow.Collaborators) *executorFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Download.MinFreeDiskGiB = 0
	cfg.Download.ConnectionSequence = []int{2, 1}
	cfg.Workflow.ErrorRetryInterval = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	hub := publisher.NewHub(64)
	pub := publisher.New(store, hub, nil)

	if collab.Resolver == nil {
		collab.Resolver = metadata.NewResolver(nil, nil, nil)
	}
	if collab.Router == nil {
		router, err := nas.NewRouter(cfg, nas.NewMountManager(filepath.Join(cfg.Paths.LogDir, "locks"), nil), nil)
		if err != nil {
			t.Fatalf("new router: %v", err)
		}
		collab.Router = router
	}

	return &executorFixture{
		cfg:      cfg,
		store:    store,
		hub:      hub,
		executor: workflow.NewExecutor(cfg, store, pub, collab, nil),
	}
}

func (f *executorFixture) claim(t *testing.T, jobType queue.Type, input []string, language string, dest queue.Destination) *queue.Job {
	t.Helper()
	if _, err := f.store.Create(context.Background(), jobType, input, language, dest); err != nil {
		t.Fatalf("create job: %v", err)
	}
	job, err := f.store.ClaimNextPending(context.Background())
	if err != nil {
		t.Fatalf("claim job: %v", err)
	}
	if job == nil {
		t.Fatal("no job claimed")
	}
	return job
}

func (f *executorFixture) reload(t *testing.T, id string) *queue.Job {
	t.Helper()
	job, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job == nil {
		t.Fatalf("job %s disappeared", id)
	}
	return job
}

func TestExecuteCompositeHappyPath(t *testing.T) {
	downloader := &fakeDownloader{}
	transfer := &fakeTransfer{}
	scanner := &fakeScanner{}
	fixture := newExecutorFixture(t, workflow.Collaborators{
		Downloader:  downloader,
		AudioFilter: fakeFilter{},
		Renamer:     fakeRenamer{},
		Transfer:    transfer,
		Scanner:     scanner,
	})

	job := fixture.claim(t, queue.TypeComposite,
		[]string{"https://example.com/premalu.torrent"}, "malayalam", queue.Destination{})

	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", stored.Status, stored.ErrorMessage)
	}
	if stored.Progress != 100 {
		t.Fatalf("progress = %v, want 100", stored.Progress)
	}
	if stored.Summary.Downloaded != 1 || stored.Summary.Filtered != 1 || stored.Summary.Renamed != 1 || stored.Summary.Transferred != 1 {
		t.Fatalf("summary = %+v", stored.Summary)
	}
	if scanner.calls != 1 {
		t.Fatalf("scanner called %d times, want 1", scanner.calls)
	}
	if len(transfer.destDirs) != 1 {
		t.Fatalf("transfer routed to %v", transfer.destDirs)
	}
	wantDir := filepath.Join(fixture.cfg.Targets[0].Path, string(metadata.CategoryMalayalamMovies))
	if transfer.destDirs[0] != wantDir {
		t.Fatalf("dest = %s, want %s", transfer.destDirs[0], wantDir)
	}
	if stored.Output != wantDir {
		t.Fatalf("output = %s, want %s", stored.Output, wantDir)
	}
}

func TestExecuteFilterAudioJob(t *testing.T) {
	fixture := newExecutorFixture(t, workflow.Collaborators{AudioFilter: fakeFilter{}})

	input := filepath.Join(t.TempDir(), "Movie.2021.Hindi.mkv")
	testsupport.WriteFile(t, input, 64)

	job := fixture.claim(t, queue.TypeFilterAudio, []string{input}, "hindi", queue.Destination{})
	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusCompleted {
		t.Fatalf("status = %s (%s)", stored.Status, stored.ErrorMessage)
	}
	wantOutput := filepath.Join(fixture.cfg.Paths.StagingDir, job.ID)
	if stored.Output != wantOutput {
		t.Fatalf("output = %s, want %s", stored.Output, wantOutput)
	}
	if _, err := os.Stat(filepath.Join(wantOutput, "Movie.2021.Hindi.mkv")); err != nil {
		t.Fatalf("filtered file missing: %v", err)
	}
}

func TestExecuteFilteringFallsBackToResolvedLanguage(t *testing.T) {
	filter := &recordingFilter{}
	fixture := newExecutorFixture(t, workflow.Collaborators{AudioFilter: filter})

	input := filepath.Join(t.TempDir(), "Jawan.2023.Hindi.1080p.mkv")
	testsupport.WriteFile(t, input, 64)

	// No explicit language; the filename heuristic must decide.
	job := fixture.claim(t, queue.TypeFilterAudio, []string{input}, "", queue.Destination{})
	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusCompleted {
		t.Fatalf("status = %s (%s)", stored.Status, stored.ErrorMessage)
	}
	if len(filter.languages) != 1 || filter.languages[0] != "hindi" {
		t.Fatalf("kept languages = %v, want [hindi]", filter.languages)
	}
}

func TestExecuteFilteringUnknownInputUsesDefaultLanguage(t *testing.T) {
	filter := &recordingFilter{}
	fixture := newExecutorFixture(t, workflow.Collaborators{AudioFilter: filter})

	input := filepath.Join(t.TempDir(), "Untitled.Recording.mkv")
	testsupport.WriteFile(t, input, 64)

	job := fixture.claim(t, queue.TypeFilterAudio, []string{input}, "", queue.Destination{})
	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusCompleted {
		t.Fatalf("status = %s (%s)", stored.Status, stored.ErrorMessage)
	}
	if len(filter.languages) != 1 || filter.languages[0] != metadata.DefaultLanguage {
		t.Fatalf("kept languages = %v, want [%s]", filter.languages, metadata.DefaultLanguage)
	}
}

func TestExecuteExplicitLanguageOverridesResolved(t *testing.T) {
	filter := &recordingFilter{}
	fixture := newExecutorFixture(t, workflow.Collaborators{AudioFilter: filter})

	input := filepath.Join(t.TempDir(), "Jawan.2023.Hindi.1080p.mkv")
	testsupport.WriteFile(t, input, 64)

	job := fixture.claim(t, queue.TypeFilterAudio, []string{input}, "malayalam", queue.Destination{})
	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(filter.languages) != 1 || filter.languages[0] != "malayalam" {
		t.Fatalf("kept languages = %v, want [malayalam]", filter.languages)
	}
}

func TestExecuteFilteringInsufficientSpaceFails(t *testing.T) {
	fixture := newExecutorFixture(t, workflow.Collaborators{AudioFilter: fakeFilter{}})
	// A floor no volume satisfies.
	fixture.cfg.Download.MinFreeDiskGiB = 1 << 20

	input := filepath.Join(t.TempDir(), "Movie.2021.Hindi.mkv")
	testsupport.WriteFile(t, input, 64)

	job := fixture.claim(t, queue.TypeFilterAudio, []string{input}, "hindi", queue.Destination{})
	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "free") {
		t.Fatalf("error = %q, want free-space detail", stored.ErrorMessage)
	}
}

func TestExecuteMissingLocalInputFails(t *testing.T) {
	fixture := newExecutorFixture(t, workflow.Collaborators{
		Renamer:  fakeRenamer{},
		Transfer: &fakeTransfer{},
	})

	job := fixture.claim(t, queue.TypeOrganize,
		[]string{filepath.Join(t.TempDir(), "missing.mkv")}, "", queue.Destination{})
	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "not accessible") {
		t.Fatalf("error message = %q", stored.ErrorMessage)
	}
}

func TestExecuteDownloadExhaustionCleansUp(t *testing.T) {
	downloader := &fakeDownloader{err: errors.New("connection reset")}
	fixture := newExecutorFixture(t, workflow.Collaborators{
		Downloader: downloader,
		Transfer:   &fakeTransfer{},
	})

	job := fixture.claim(t, queue.TypeDownload,
		[]string{"https://example.com/file.torrent"}, "", queue.Destination{})
	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "failed after 2 attempts") {
		t.Fatalf("error message = %q", stored.ErrorMessage)
	}
	if downloader.cleanups != 1 {
		t.Fatalf("cleanup ran %d times, want 1", downloader.cleanups)
	}
}

func TestExecuteScanFailureStillCompletes(t *testing.T) {
	scanner := &fakeScanner{err: services.Wrap(services.ErrScan, "scanning", "scan", "server unreachable", nil)}
	downloader := &fakeDownloader{}
	fixture := newExecutorFixture(t, workflow.Collaborators{
		Downloader: downloader,
		Renamer:    fakeRenamer{},
		Transfer:   &fakeTransfer{},
		Scanner:    scanner,
	})

	job := fixture.claim(t, queue.TypeDownload,
		[]string{"https://example.com/file.torrent"}, "malayalam", queue.Destination{})
	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed despite scan failure", stored.Status, stored.ErrorMessage)
	}

	logs, err := fixture.store.LogsSince(context.Background(), job.ID, 0, 0)
	if err != nil {
		t.Fatalf("LogsSince: %v", err)
	}
	var warned bool
	for _, entry := range logs {
		if entry.Level == queue.LevelWarning && strings.Contains(entry.Message, "library scan failed") {
			warned = true
		}
	}
	if !warned {
		t.Fatal("scan failure was not surfaced as a warning")
	}
}

func TestExecuteObservesCancellationAtBoundary(t *testing.T) {
	fixture := newExecutorFixture(t, workflow.Collaborators{AudioFilter: fakeFilter{}})

	input := filepath.Join(t.TempDir(), "Movie.mkv")
	testsupport.WriteFile(t, input, 8)

	job := fixture.claim(t, queue.TypeFilterAudio, []string{input}, "malayalam", queue.Destination{})
	if _, err := fixture.store.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", stored.Status)
	}
}

func TestExecuteDestinationCategoryOverride(t *testing.T) {
	downloader := &fakeDownloader{}
	transfer := &fakeTransfer{}
	fixture := newExecutorFixture(t, workflow.Collaborators{
		Downloader: downloader,
		Renamer:    fakeRenamer{},
		Transfer:   transfer,
	})

	job := fixture.claim(t, queue.TypeDownload,
		[]string{"https://example.com/file.torrent"}, "",
		queue.Destination{Category: "music"})
	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusCompleted {
		t.Fatalf("status = %s (%s)", stored.Status, stored.ErrorMessage)
	}
	wantDir := filepath.Join(fixture.cfg.Targets[0].Path, string(metadata.CategoryMusic))
	if len(transfer.destDirs) != 1 || transfer.destDirs[0] != wantDir {
		t.Fatalf("dest = %v, want [%s]", transfer.destDirs, wantDir)
	}
}

// cancellingFilter requests cancellation while the filtering call is in
// flight, then completes normally.
type cancellingFilter struct {
	store *queue.Store
	jobID string
	calls int
}

func (f *cancellingFilter) FilterTracks(ctx context.Context, req services.FilterRequest, progress services.ProgressFunc) (string, error) {
	f.calls++
	if _, err := f.store.Cancel(ctx, f.jobID); err != nil {
		return "", err
	}
	return fakeFilter{}.FilterTracks(ctx, req, progress)
}

type countingRenamer struct {
	calls int
}

func (r *countingRenamer) Rename(ctx context.Context, path string, meta metadata.Resolved) (string, error) {
	r.calls++
	return fakeRenamer{}.Rename(ctx, path, meta)
}

func TestExecuteCancelDuringFilteringStopsBeforeOrganizing(t *testing.T) {
	filter := &cancellingFilter{}
	renamer := &countingRenamer{}
	transfer := &fakeTransfer{}
	fixture := newExecutorFixture(t, workflow.Collaborators{
		AudioFilter: filter,
		Renamer:     renamer,
		Transfer:    transfer,
	})
	filter.store = fixture.store

	input := filepath.Join(t.TempDir(), "Movie.2024.mkv")
	testsupport.WriteFile(t, input, 16)

	job := fixture.claim(t, queue.TypeConvert, []string{input}, "malayalam", queue.Destination{})
	filter.jobID = job.ID

	if err := fixture.executor.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored := fixture.reload(t, job.ID)
	if stored.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", stored.Status)
	}
	if filter.calls != 1 {
		t.Fatalf("filter calls = %d, want 1", filter.calls)
	}
	if renamer.calls != 0 {
		t.Fatalf("renamer ran %d times after cancellation", renamer.calls)
	}
	if len(transfer.destDirs) != 0 {
		t.Fatalf("transfer ran after cancellation: %v", transfer.destDirs)
	}
}
