package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"dlsite-manager/catalog"
	"dlsite-manager/db"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options tunes the orchestrator's retry and timeout behavior.
type Options struct {
	MaxRetries int           // Extra attempts after a transport failure
	RetryDelay time.Duration // Base backoff, multiplied by the attempt number
	Timeout    time.Duration // Per-request network timeout
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// Orchestrator drives the fetch → verify → decompress → finalize lifecycle of
// product downloads. It owns no durable state of its own: the catalog store
// is the source of truth, and the in-memory task registry is rebuilt empty on
// restart (Recover demotes records the previous process left in flight).
// At most one task runs per (account, product) key.
type Orchestrator struct {
	store   *catalog.Store
	fetcher Fetcher
	events  chan<- Event
	rootDir string
	opts    Options
	log     *zap.SugaredLogger

	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	id        string
	accountID int64
	productID string
	cancel    context.CancelFunc
	done      chan struct{}

	prevState catalog.DownloadState
	prevPath  string

	// Accessed from the task goroutine only
	lastFraction  float64
	decompressing bool
	bytesReceived int64
}

// NewOrchestrator builds an orchestrator emitting events on the given
// channel. Progress events are dropped when the channel is full; completion
// and failure events always block until delivered.
func NewOrchestrator(store *catalog.Store, fetcher Fetcher, events chan<- Event, rootDir string, log *zap.SugaredLogger, opts Options) *Orchestrator {
	return &Orchestrator{
		store:   store,
		fetcher: fetcher,
		events:  events,
		rootDir: rootDir,
		opts:    opts.withDefaults(),
		log:     log,
		tasks:   make(map[string]*task),
	}
}

// Start begins downloading a product. It fails with catalog.ErrNotFound for
// an unknown key, ErrAlreadyInProgress while a task is active, and
// catalog.ErrConflictingState when the product is already downloaded and the
// remote has not reported an upgrade.
func (o *Orchestrator) Start(accountID int64, productID string) error {
	product, err := o.store.Get(accountID, productID)
	if err != nil {
		return err
	}
	account, err := o.store.GetAccount(accountID)
	if err != nil {
		return err
	}

	state := catalog.StateNotDownloaded
	prevPath := ""
	if product.Download != nil {
		state = catalog.DownloadState(product.Download.State)
		prevPath = product.Download.Path
	}
	if state == catalog.StateDownloaded && !product.UpgradePending {
		return catalog.ErrConflictingState
	}

	key := db.ProductKey(accountID, productID)
	o.mu.Lock()
	if _, active := o.tasks[key]; active || state.InFlight() {
		o.mu.Unlock()
		return ErrAlreadyInProgress
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:        uuid.NewString(),
		accountID: accountID,
		productID: productID,
		cancel:    cancel,
		done:      make(chan struct{}),
		prevState: state,
		prevPath:  prevPath,
	}
	o.tasks[key] = t
	o.mu.Unlock()

	if err := o.store.SetDownloadState(accountID, productID, catalog.StateDownloading, ""); err != nil {
		o.mu.Lock()
		delete(o.tasks, key)
		o.mu.Unlock()
		cancel()
		close(t.done)
		return err
	}

	o.log.Infow("Download started",
		zap.Int64("account_id", accountID),
		zap.String("product_id", productID),
		zap.String("task_id", t.id),
	)

	go o.run(ctx, t, account.SessionJSON)
	return nil
}

// Cancel requests cooperative cancellation of an active download and waits
// until the task has released its partial files. Without an active task it
// fails with catalog.ErrConflictingState.
func (o *Orchestrator) Cancel(accountID int64, productID string) error {
	key := db.ProductKey(accountID, productID)
	o.mu.Lock()
	t, ok := o.tasks[key]
	o.mu.Unlock()
	if !ok {
		return catalog.ErrConflictingState
	}

	t.cancel()
	<-t.done
	return nil
}

// Active reports whether a task is currently running for the key.
func (o *Orchestrator) Active(accountID int64, productID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.tasks[db.ProductKey(accountID, productID)]
	return ok
}

// Recover demotes downloads the previous process left mid-flight to Failed
// so they can be retried explicitly. A Downloaded claim is never resurrected
// from a dead task.
func (o *Orchestrator) Recover() {
	for _, p := range o.store.ListInFlight() {
		var bytes int64
		if p.Download != nil {
			bytes = p.Download.BytesReceived
		}
		if err := o.store.SetDownloadFailure(p.AccountID, p.ProductID, KindInterrupted,
			"download interrupted by process restart", bytes); err != nil {
			o.log.Warnw("Failed to demote interrupted download",
				zap.Int64("account_id", p.AccountID),
				zap.String("product_id", p.ProductID),
				zap.Error(err),
			)
			continue
		}
		o.log.Infow("Demoted interrupted download to Failed",
			zap.Int64("account_id", p.AccountID),
			zap.String("product_id", p.ProductID),
		)
	}
}

func (o *Orchestrator) run(ctx context.Context, t *task, session string) {
	key := db.ProductKey(t.accountID, t.productID)
	defer func() {
		o.mu.Lock()
		delete(o.tasks, key)
		o.mu.Unlock()
		close(t.done)
	}()

	err := o.execute(ctx, t, session)
	if err == nil {
		return
	}

	if errors.Is(err, context.Canceled) {
		// Partial data is already discarded; restore the pre-download state.
		restored := catalog.StateNotDownloaded
		path := ""
		if t.prevState == catalog.StateDownloaded {
			restored = catalog.StateDownloaded
			path = t.prevPath
		}
		if stateErr := o.store.SetDownloadState(t.accountID, t.productID, restored, path); stateErr != nil {
			o.log.Errorw("Failed to restore state after cancellation", zap.String("key", key), zap.Error(stateErr))
		}
		o.log.Infow("Download cancelled", zap.String("key", key))
		return
	}

	kind := kindOf(err)
	if failErr := o.store.SetDownloadFailure(t.accountID, t.productID, kind, err.Error(), t.bytesReceived); failErr != nil {
		o.log.Errorw("Failed to persist download failure", zap.String("key", key), zap.Error(failErr))
	}
	o.log.Errorw("Download failed",
		zap.String("key", key),
		zap.String("kind", kind),
		zap.Error(err),
	)
	o.events <- Event{
		Type:           EventFailed,
		AccountID:      t.accountID,
		ProductID:      t.productID,
		FailureKind:    kind,
		FailureMessage: err.Error(),
	}
}

func (o *Orchestrator) execute(ctx context.Context, t *task, session string) error {
	accountDir := filepath.Join(o.rootDir, strconv.FormatInt(t.accountID, 10))
	finalDir := filepath.Join(accountDir, t.productID)
	stageDir := filepath.Join(accountDir, fmt.Sprintf(".%s.part-%s", t.productID, t.id[:8]))

	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return fmt.Errorf("%w: creating staging directory: %v", ErrStorageFailure, err)
	}
	defer os.RemoveAll(stageDir)

	var files []RemoteFile
	err := o.withRetry(ctx, func(ctx context.Context) error {
		var err error
		files, err = o.fetcher.ProductFiles(ctx, session, t.productID)
		return err
	})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: product %s has no files", ErrTransportFailure, t.productID)
	}

	var total int64
	for _, f := range files {
		if strings.Contains(f.FileName, "..") || strings.ContainsAny(f.FileName, `/\`) {
			return fmt.Errorf("%w: unsafe file name in manifest: %s", ErrIntegrityFailure, f.FileName)
		}
		total += f.Size
	}
	if total <= 0 {
		total = 1
	}

	o.emitProgress(t, 0, false)

	var completed int64
	for _, f := range files {
		dest := filepath.Join(stageDir, f.FileName)
		err := o.withRetry(ctx, func(ctx context.Context) error {
			return o.fetcher.FetchFile(ctx, session, f, dest, func(received int64) {
				t.bytesReceived = completed + received
				o.emitProgress(t, float64(completed+received)/float64(total), false)
			})
		})
		if err != nil {
			return err
		}

		if f.SHA1 != "" {
			sum, hashErr := calculateSHA1(dest)
			if hashErr != nil {
				return fmt.Errorf("%w: hashing %s: %v", ErrStorageFailure, f.FileName, hashErr)
			}
			if !strings.EqualFold(sum, f.SHA1) {
				return fmt.Errorf("%w: checksum mismatch for %s", ErrIntegrityFailure, f.FileName)
			}
		}

		completed += f.Size
		t.bytesReceived = completed
		o.emitProgress(t, float64(completed)/float64(total), false)
	}

	if len(files) == 1 && strings.HasSuffix(strings.ToLower(files[0].FileName), ".zip") {
		if err := o.store.SetDownloadState(t.accountID, t.productID, catalog.StateDecompressing, ""); err != nil {
			return err
		}
		o.emitProgress(t, 0, true)

		if err := ctx.Err(); err != nil {
			return err
		}
		archivePath := filepath.Join(stageDir, files[0].FileName)
		if err := extractZip(archivePath, stageDir, func(fraction float64) {
			o.emitProgress(t, fraction, true)
		}); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// The old copy survives until the new one supersedes it here.
	if t.prevPath != "" || dirExists(finalDir) {
		if err := os.RemoveAll(finalDir); err != nil {
			return fmt.Errorf("%w: replacing previous copy: %v", ErrStorageFailure, err)
		}
	}
	if err := os.Rename(stageDir, finalDir); err != nil {
		return fmt.Errorf("%w: finalizing download: %v", ErrStorageFailure, err)
	}

	// Store commit happens before the completion event so a read triggered by
	// the event observes consistent state.
	if err := o.store.SetDownloadState(t.accountID, t.productID, catalog.StateDownloaded, finalDir); err != nil {
		return err
	}
	if err := o.store.SetUpgradePending(t.accountID, t.productID, false); err != nil {
		return err
	}

	product, err := o.store.Get(t.accountID, t.productID)
	if err != nil {
		return err
	}
	o.log.Infow("Download complete",
		zap.Int64("account_id", t.accountID),
		zap.String("product_id", t.productID),
		zap.String("path", finalDir),
	)
	o.events <- Event{
		Type:      EventComplete,
		AccountID: t.accountID,
		ProductID: t.productID,
		Progress:  1,
		Download:  product.Download,
	}
	return nil
}

// withRetry runs attempt with the per-request timeout, retrying transport
// failures with linear backoff. Other failure kinds surface immediately.
func (o *Orchestrator) withRetry(ctx context.Context, attempt func(context.Context) error) error {
	var lastErr error
	for i := 0; i <= o.opts.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(o.opts.RetryDelay * time.Duration(i)):
			case <-ctx.Done():
				return ctx.Err()
			}
			o.log.Infow("Retrying after transport failure", zap.Int("attempt", i+1))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
		err := attempt(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, ErrTransportFailure) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// emitProgress forwards a progress fraction, clamped so the stream never
// decreases within a phase. The decompressing flag marks the phase switch.
func (o *Orchestrator) emitProgress(t *task, fraction float64, decompressing bool) {
	if decompressing != t.decompressing {
		t.decompressing = decompressing
		t.lastFraction = 0
	}
	if fraction < t.lastFraction {
		fraction = t.lastFraction
	}
	if fraction > 1 {
		fraction = 1
	}
	t.lastFraction = fraction

	o.store.SetProgress(t.accountID, t.productID, fraction, t.bytesReceived)

	select {
	case o.events <- Event{
		Type:          EventProgress,
		AccountID:     t.accountID,
		ProductID:     t.productID,
		Progress:      fraction,
		Decompressing: decompressing,
	}:
	default:
		// Consumers that fall behind miss intermediate fractions only.
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
