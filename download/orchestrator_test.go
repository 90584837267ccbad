package download

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"dlsite-manager/catalog"
	"dlsite-manager/db"
)

func newTestStore(t *testing.T) (*catalog.Store, int64) {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	store, err := catalog.NewStore(gdb)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	account := db.Account{Username: "alice", SessionJSON: "session=abc"}
	if err := store.CreateAccount(&account); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	product := db.Product{
		ProductID:   "RJ001",
		Type:        string(catalog.TypeGame),
		Age:         string(catalog.AgeAll),
		Title:       db.LocalizedString{JA: "タイトル"},
		PurchasedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.UpsertProduct(account.ID, product); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return store, account.ID
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// stubFetcher serves canned manifests and payloads from memory.
type stubFetcher struct {
	mu                sync.Mutex
	files             []RemoteFile
	payloads          map[string][]byte
	transportFailures int           // FetchFile calls to fail before succeeding
	fetchCalls        int
	block             chan struct{} // when set, FetchFile waits for it or ctx
}

func (f *stubFetcher) ProductFiles(ctx context.Context, session, productID string) ([]RemoteFile, error) {
	return f.files, nil
}

func (f *stubFetcher) FetchFile(ctx context.Context, session string, file RemoteFile, destPath string, onProgress func(received int64)) error {
	f.mu.Lock()
	f.fetchCalls++
	fail := f.transportFailures > 0
	if fail {
		f.transportFailures--
	}
	block := f.block
	f.mu.Unlock()

	if fail {
		return fmt.Errorf("%w: connection reset", ErrTransportFailure)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	data := f.payloads[file.FileName]
	if len(data) > 1 {
		onProgress(int64(len(data) / 2))
	}
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	onProgress(int64(len(data)))
	return nil
}

func (f *stubFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func testOptions() Options {
	return Options{MaxRetries: 3, RetryDelay: time.Millisecond, Timeout: 5 * time.Second}
}

// waitTerminal drains events until a complete or failed event arrives,
// checking that progress never decreases within a phase.
func waitTerminal(t *testing.T, events <-chan Event) Event {
	t.Helper()
	var last float64
	var decompressing bool
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case EventProgress:
				if ev.Decompressing != decompressing {
					decompressing = ev.Decompressing
					last = 0
				}
				if ev.Progress < last {
					t.Errorf("progress regressed from %v to %v", last, ev.Progress)
				}
				last = ev.Progress
			default:
				return ev
			}
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for a terminal event")
		}
	}
}

func TestDownloadHappyPath(t *testing.T) {
	store, accountID := newTestStore(t)
	payload := []byte("product file payload")
	fetcher := &stubFetcher{
		files: []RemoteFile{
			{FileName: "content.bin", Size: int64(len(payload)), SHA1: sha1Hex(payload)},
		},
		payloads: map[string][]byte{"content.bin": payload},
	}

	rootDir := t.TempDir()
	events := make(chan Event, 100)
	orch := NewOrchestrator(store, fetcher, events, rootDir, zap.NewNop().Sugar(), testOptions())

	if err := orch.Start(accountID, "RJ001"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ev := waitTerminal(t, events)
	if ev.Type != EventComplete {
		t.Fatalf("terminal event = %+v, want complete", ev)
	}
	if ev.Download == nil || ev.Download.Path == "" {
		t.Fatal("complete event carries no download record")
	}

	got, err := store.Get(accountID, "RJ001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Download.State != string(catalog.StateDownloaded) {
		t.Errorf("state = %q, want Downloaded", got.Download.State)
	}

	wantPath := filepath.Join(rootDir, fmt.Sprintf("%d", accountID), "RJ001")
	if got.Download.Path != wantPath {
		t.Errorf("path = %q, want %q", got.Download.Path, wantPath)
	}
	data, err := os.ReadFile(filepath.Join(wantPath, "content.bin"))
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("downloaded file content differs from payload")
	}
}

func TestDownloadClearsUpgradePending(t *testing.T) {
	store, accountID := newTestStore(t)
	if err := store.SetUpgradePending(accountID, "RJ001", true); err != nil {
		t.Fatalf("SetUpgradePending failed: %v", err)
	}

	payload := []byte("v2")
	fetcher := &stubFetcher{
		files:    []RemoteFile{{FileName: "content.bin", Size: 2}},
		payloads: map[string][]byte{"content.bin": payload},
	}
	events := make(chan Event, 100)
	orch := NewOrchestrator(store, fetcher, events, t.TempDir(), zap.NewNop().Sugar(), testOptions())

	if err := orch.Start(accountID, "RJ001"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if ev := waitTerminal(t, events); ev.Type != EventComplete {
		t.Fatalf("terminal event = %+v, want complete", ev)
	}

	got, _ := store.Get(accountID, "RJ001")
	if got.UpgradePending {
		t.Error("UpgradePending should be cleared by a successful download")
	}
}

func TestDownloadExtractsSingleZip(t *testing.T) {
	store, accountID := newTestStore(t)

	// Archive wrapping everything in one top-level directory, as the
	// storefront serves them.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"RJ001/readme.txt":    "hello",
		"RJ001/data/body.dat": "payload",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to build test archive: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to build test archive: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to build test archive: %v", err)
	}
	archive := buf.Bytes()

	fetcher := &stubFetcher{
		files: []RemoteFile{
			{FileName: "RJ001.zip", Size: int64(len(archive)), SHA1: sha1Hex(archive)},
		},
		payloads: map[string][]byte{"RJ001.zip": archive},
	}

	rootDir := t.TempDir()
	events := make(chan Event, 100)
	orch := NewOrchestrator(store, fetcher, events, rootDir, zap.NewNop().Sugar(), testOptions())

	if err := orch.Start(accountID, "RJ001"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if ev := waitTerminal(t, events); ev.Type != EventComplete {
		t.Fatalf("terminal event = %+v, want complete", ev)
	}

	finalDir := filepath.Join(rootDir, fmt.Sprintf("%d", accountID), "RJ001")
	data, err := os.ReadFile(filepath.Join(finalDir, "readme.txt"))
	if err != nil {
		t.Fatalf("flattened file missing: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("readme.txt = %q, want %q", data, "hello")
	}
	if _, err := os.Stat(filepath.Join(finalDir, "data", "body.dat")); err != nil {
		t.Errorf("nested file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(finalDir, "RJ001.zip")); !os.IsNotExist(err) {
		t.Error("archive should be deleted after extraction")
	}
}

func TestDownloadRetriesTransportFailures(t *testing.T) {
	store, accountID := newTestStore(t)
	payload := []byte("payload")
	fetcher := &stubFetcher{
		files:             []RemoteFile{{FileName: "content.bin", Size: int64(len(payload))}},
		payloads:          map[string][]byte{"content.bin": payload},
		transportFailures: 2,
	}
	events := make(chan Event, 100)
	orch := NewOrchestrator(store, fetcher, events, t.TempDir(), zap.NewNop().Sugar(), testOptions())

	if err := orch.Start(accountID, "RJ001"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if ev := waitTerminal(t, events); ev.Type != EventComplete {
		t.Fatalf("terminal event = %+v, want complete after retries", ev)
	}
	if calls := fetcher.calls(); calls != 3 {
		t.Errorf("fetch attempts = %d, want 3", calls)
	}
}

func TestDownloadIntegrityFailureIsNotRetried(t *testing.T) {
	store, accountID := newTestStore(t)
	payload := []byte("payload")
	fetcher := &stubFetcher{
		files: []RemoteFile{
			{FileName: "content.bin", Size: int64(len(payload)), SHA1: sha1Hex([]byte("different"))},
		},
		payloads: map[string][]byte{"content.bin": payload},
	}
	events := make(chan Event, 100)
	orch := NewOrchestrator(store, fetcher, events, t.TempDir(), zap.NewNop().Sugar(), testOptions())

	if err := orch.Start(accountID, "RJ001"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ev := waitTerminal(t, events)
	if ev.Type != EventFailed {
		t.Fatalf("terminal event = %+v, want failed", ev)
	}
	if ev.FailureKind != KindIntegrity {
		t.Errorf("failure kind = %q, want %q", ev.FailureKind, KindIntegrity)
	}
	if calls := fetcher.calls(); calls != 1 {
		t.Errorf("fetch attempts = %d, want 1 (no retry on corruption)", calls)
	}

	got, _ := store.Get(accountID, "RJ001")
	if got.Download.State != string(catalog.StateFailed) {
		t.Errorf("state = %q, want Failed", got.Download.State)
	}
	if got.Download.FailureKind != KindIntegrity {
		t.Errorf("stored failure kind = %q, want %q", got.Download.FailureKind, KindIntegrity)
	}
}

func TestCancelRestoresNotDownloaded(t *testing.T) {
	store, accountID := newTestStore(t)
	fetcher := &stubFetcher{
		files:    []RemoteFile{{FileName: "content.bin", Size: 8}},
		payloads: map[string][]byte{"content.bin": []byte("payload!")},
		block:    make(chan struct{}),
	}
	rootDir := t.TempDir()
	events := make(chan Event, 100)
	orch := NewOrchestrator(store, fetcher, events, rootDir, zap.NewNop().Sugar(), testOptions())

	if err := orch.Start(accountID, "RJ001"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := orch.Cancel(accountID, "RJ001"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	got, _ := store.Get(accountID, "RJ001")
	if got.Download.State != string(catalog.StateNotDownloaded) {
		t.Errorf("state after cancel = %q, want NotDownloaded", got.Download.State)
	}
	if got.Download.Path != "" {
		t.Errorf("path after cancel = %q, want empty", got.Download.Path)
	}

	// Partial staging data is discarded.
	entries, err := os.ReadDir(filepath.Join(rootDir, fmt.Sprintf("%d", accountID)))
	if err == nil && len(entries) != 0 {
		t.Errorf("staging leftovers after cancel: %v", entries)
	}

	if orch.Active(accountID, "RJ001") {
		t.Error("task still registered after cancel")
	}
}

func TestCancelDuringUpgradeKeepsOldCopy(t *testing.T) {
	store, accountID := newTestStore(t)
	if err := store.SetDownloadState(accountID, "RJ001", catalog.StateDownloaded, "/dl/old/RJ001"); err != nil {
		t.Fatalf("SetDownloadState failed: %v", err)
	}
	if err := store.SetUpgradePending(accountID, "RJ001", true); err != nil {
		t.Fatalf("SetUpgradePending failed: %v", err)
	}

	fetcher := &stubFetcher{
		files:    []RemoteFile{{FileName: "content.bin", Size: 8}},
		payloads: map[string][]byte{"content.bin": []byte("payload!")},
		block:    make(chan struct{}),
	}
	events := make(chan Event, 100)
	orch := NewOrchestrator(store, fetcher, events, t.TempDir(), zap.NewNop().Sugar(), testOptions())

	if err := orch.Start(accountID, "RJ001"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := orch.Cancel(accountID, "RJ001"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	got, _ := store.Get(accountID, "RJ001")
	if got.Download.State != string(catalog.StateDownloaded) {
		t.Errorf("state after cancelled upgrade = %q, want Downloaded", got.Download.State)
	}
	if got.Download.Path != "/dl/old/RJ001" {
		t.Errorf("path after cancelled upgrade = %q, want the old copy", got.Download.Path)
	}
}

func TestStartConflicts(t *testing.T) {
	store, accountID := newTestStore(t)
	fetcher := &stubFetcher{
		files:    []RemoteFile{{FileName: "content.bin", Size: 8}},
		payloads: map[string][]byte{"content.bin": []byte("payload!")},
		block:    make(chan struct{}),
	}
	events := make(chan Event, 100)
	orch := NewOrchestrator(store, fetcher, events, t.TempDir(), zap.NewNop().Sugar(), testOptions())

	if err := orch.Start(accountID, "RJ404"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Start for unknown product = %v, want ErrNotFound", err)
	}

	if err := orch.Start(accountID, "RJ001"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := orch.Start(accountID, "RJ001"); !errors.Is(err, ErrAlreadyInProgress) {
		t.Errorf("concurrent Start = %v, want ErrAlreadyInProgress", err)
	}
	close(fetcher.block)
	if ev := waitTerminal(t, events); ev.Type != EventComplete {
		t.Fatalf("terminal event = %+v, want complete", ev)
	}

	// Downloaded without a pending upgrade refuses a re-download.
	if err := orch.Start(accountID, "RJ001"); !errors.Is(err, catalog.ErrConflictingState) {
		t.Errorf("Start on downloaded product = %v, want ErrConflictingState", err)
	}
}

func TestRecoverDemotesInterrupted(t *testing.T) {
	store, accountID := newTestStore(t)
	if err := store.SetDownloadState(accountID, "RJ001", catalog.StateDecompressing, ""); err != nil {
		t.Fatalf("SetDownloadState failed: %v", err)
	}

	events := make(chan Event, 100)
	orch := NewOrchestrator(store, &stubFetcher{}, events, t.TempDir(), zap.NewNop().Sugar(), testOptions())
	orch.Recover()

	got, _ := store.Get(accountID, "RJ001")
	if got.Download.State != string(catalog.StateFailed) {
		t.Errorf("state after recovery = %q, want Failed", got.Download.State)
	}
	if got.Download.FailureKind != KindInterrupted {
		t.Errorf("failure kind = %q, want %q", got.Download.FailureKind, KindInterrupted)
	}
}
