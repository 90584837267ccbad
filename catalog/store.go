package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"dlsite-manager/db"

	"gorm.io/gorm"
)

// Store is the single source of truth for the local catalog. It persists to
// SQLite through GORM and keeps a full in-memory image of the catalog so the
// hot metadata path never touches the filesystem. Writes are serialized per
// (account, product) key; readers of unrelated keys are never blocked.
type Store struct {
	gdb *gorm.DB

	keysMu sync.Mutex
	keys   map[string]*sync.Mutex

	cacheMu  sync.RWMutex
	products map[string]*db.Product
	accounts map[int64]*db.Account
}

// NewStore builds a Store on top of an opened catalog database and warms the
// in-memory image from it.
func NewStore(gdb *gorm.DB) (*Store, error) {
	s := &Store{
		gdb:      gdb,
		keys:     make(map[string]*sync.Mutex),
		products: make(map[string]*db.Product),
		accounts: make(map[int64]*db.Account),
	}

	var accounts []db.Account
	if err := gdb.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	for i := range accounts {
		s.accounts[accounts[i].ID] = &accounts[i]
	}

	var products []db.Product
	if err := gdb.Preload("Download").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	for i := range products {
		s.products[products[i].Key()] = &products[i]
	}

	return s, nil
}

// lockKey acquires the write lock for one catalog key. The caller must call
// the returned unlock function.
func (s *Store) lockKey(key string) func() {
	s.keysMu.Lock()
	m, ok := s.keys[key]
	if !ok {
		m = &sync.Mutex{}
		s.keys[key] = m
	}
	s.keysMu.Unlock()

	m.Lock()
	return m.Unlock
}

func copyProduct(p *db.Product) db.Product {
	out := *p
	if p.Download != nil {
		dl := *p.Download
		out.Download = &dl
	}
	return out
}

// === Accounts ===

// CreateAccount inserts a new linked account.
func (s *Store) CreateAccount(account *db.Account) error {
	if err := s.gdb.Create(account).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.cacheMu.Lock()
	a := *account
	s.accounts[a.ID] = &a
	s.cacheMu.Unlock()
	return nil
}

// GetAccount returns one account by id.
func (s *Store) GetAccount(id int64) (db.Account, error) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return db.Account{}, ErrNotFound
	}
	return *account, nil
}

// ListAccounts returns all linked accounts ordered by id.
func (s *Store) ListAccounts() []db.Account {
	s.cacheMu.RLock()
	accounts := make([]db.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, *account)
	}
	s.cacheMu.RUnlock()

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

// UpdateAccount replaces the mutable fields of an existing account.
func (s *Store) UpdateAccount(account db.Account) error {
	s.cacheMu.RLock()
	_, ok := s.accounts[account.ID]
	s.cacheMu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	if err := s.gdb.Save(&account).Error; err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	s.cacheMu.Lock()
	a := account
	s.accounts[a.ID] = &a
	s.cacheMu.Unlock()
	return nil
}

// RemoveAccount deletes an account and cascades to its products and download
// records. The cascade is refused with ErrConflictingState while any owned
// download is in flight. Files already on disk are left in place.
func (s *Store) RemoveAccount(id int64) error {
	s.cacheMu.RLock()
	_, ok := s.accounts[id]
	if !ok {
		s.cacheMu.RUnlock()
		return ErrNotFound
	}
	var owned []string
	for key, p := range s.products {
		if p.AccountID != id {
			continue
		}
		if p.Download != nil && DownloadState(p.Download.State).InFlight() {
			s.cacheMu.RUnlock()
			return ErrConflictingState
		}
		owned = append(owned, key)
	}
	s.cacheMu.RUnlock()

	err := s.gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_row_id IN (?)",
			tx.Model(&db.Product{}).Select("id").Where("account_id = ?", id),
		).Delete(&db.ProductDownload{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", id).Delete(&db.Product{}).Error; err != nil {
			return err
		}
		return tx.Delete(&db.Account{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("failed to remove account %d: %w", id, err)
	}

	s.cacheMu.Lock()
	delete(s.accounts, id)
	for _, key := range owned {
		delete(s.products, key)
	}
	s.cacheMu.Unlock()
	return nil
}

// === Products ===

// UpsertProduct inserts or fully replaces the metadata stored for
// (accountID, product.ProductID). An existing download association is never
// touched, and a tombstoned product that reappears is revived. Applying the
// same product twice leaves the store unchanged.
func (s *Store) UpsertProduct(accountID int64, product db.Product) error {
	s.cacheMu.RLock()
	_, ok := s.accounts[accountID]
	s.cacheMu.RUnlock()
	if !ok {
		return ErrInvalidReference
	}

	product.AccountID = accountID
	product.Download = nil

	key := product.Key()
	unlock := s.lockKey(key)
	defer unlock()

	s.cacheMu.RLock()
	existing := s.products[key]
	s.cacheMu.RUnlock()

	var download *db.ProductDownload
	if existing != nil {
		product.ID = existing.ID
		product.CreatedAt = existing.CreatedAt
		product.UpgradePending = existing.UpgradePending
		if existing.Download != nil {
			dl := *existing.Download
			download = &dl
		}
	}
	product.Removed = false

	if err := s.gdb.Save(&product).Error; err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", key, err)
	}

	product.Download = download
	s.cacheMu.Lock()
	p := product
	s.products[key] = &p
	s.cacheMu.Unlock()
	return nil
}

// Get returns the product stored under (accountID, productID).
func (s *Store) Get(accountID int64, productID string) (db.Product, error) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	p, ok := s.products[db.ProductKey(accountID, productID)]
	if !ok {
		return db.Product{}, ErrNotFound
	}
	return copyProduct(p), nil
}

// List returns every product owned by one account, in no particular order.
func (s *Store) List(accountID int64) []db.Product {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	products := make([]db.Product, 0)
	for _, p := range s.products {
		if p.AccountID == accountID {
			products = append(products, copyProduct(p))
		}
	}
	return products
}

// ListAll returns every product across all accounts, in no particular order.
func (s *Store) ListAll() []db.Product {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	products := make([]db.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, copyProduct(p))
	}
	return products
}

// ListInFlight returns every product whose download is currently marked
// Downloading or Decompressing. Used for restart recovery.
func (s *Store) ListInFlight() []db.Product {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	var products []db.Product
	for _, p := range s.products {
		if p.Download != nil && DownloadState(p.Download.State).InFlight() {
			products = append(products, copyProduct(p))
		}
	}
	return products
}

// SetDownloadState transitions the download associated with a product,
// creating the record when absent and the target state is not NotDownloaded.
// A non-empty path replaces the stored local path; transitioning to
// NotDownloaded clears path, progress and diagnostics.
func (s *Store) SetDownloadState(accountID int64, productID string, state DownloadState, path string) error {
	key := db.ProductKey(accountID, productID)
	unlock := s.lockKey(key)
	defer unlock()

	s.cacheMu.RLock()
	existing := s.products[key]
	s.cacheMu.RUnlock()
	if existing == nil {
		return ErrNotFound
	}

	var dl db.ProductDownload
	if existing.Download != nil {
		dl = *existing.Download
	} else {
		if state == StateNotDownloaded {
			return nil
		}
		dl = db.ProductDownload{ProductRowID: existing.ID}
	}

	dl.State = string(state)
	if path != "" {
		dl.Path = path
	}
	switch state {
	case StateNotDownloaded:
		dl.Path = ""
		dl.Progress = 0
		dl.BytesReceived = 0
		dl.FailureKind = ""
		dl.FailureMessage = ""
	case StateDownloading:
		dl.FailureKind = ""
		dl.FailureMessage = ""
	case StateDownloaded:
		dl.Progress = 1
		dl.FailureKind = ""
		dl.FailureMessage = ""
	}

	if err := s.gdb.Save(&dl).Error; err != nil {
		return fmt.Errorf("failed to persist download state for %s: %w", key, err)
	}

	s.cacheMu.Lock()
	d := dl
	existing.Download = &d
	s.cacheMu.Unlock()
	return nil
}

// SetDownloadFailure marks a download Failed and preserves the diagnostic
// payload so the failure is visible to the user.
func (s *Store) SetDownloadFailure(accountID int64, productID, kind, message string, bytesReceived int64) error {
	key := db.ProductKey(accountID, productID)
	unlock := s.lockKey(key)
	defer unlock()

	s.cacheMu.RLock()
	existing := s.products[key]
	s.cacheMu.RUnlock()
	if existing == nil {
		return ErrNotFound
	}

	var dl db.ProductDownload
	if existing.Download != nil {
		dl = *existing.Download
	} else {
		dl = db.ProductDownload{ProductRowID: existing.ID}
	}
	dl.State = string(StateFailed)
	dl.FailureKind = kind
	dl.FailureMessage = message
	dl.BytesReceived = bytesReceived

	if err := s.gdb.Save(&dl).Error; err != nil {
		return fmt.Errorf("failed to persist download failure for %s: %w", key, err)
	}

	s.cacheMu.Lock()
	d := dl
	existing.Download = &d
	s.cacheMu.Unlock()
	return nil
}

// SetProgress records the last known progress fraction for an active
// download. Progress is kept in memory only; durable state is re-derived by
// restart recovery, so the hot path never pays a database round-trip.
func (s *Store) SetProgress(accountID int64, productID string, fraction float64, bytesReceived int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	p, ok := s.products[db.ProductKey(accountID, productID)]
	if !ok || p.Download == nil {
		return
	}
	p.Download.Progress = fraction
	p.Download.BytesReceived = bytesReceived
}

// SetUpgradePending flags a product as eligible for a re-download because the
// remote reported a newer revision.
func (s *Store) SetUpgradePending(accountID int64, productID string, pending bool) error {
	return s.updateProductFlag(accountID, productID, "upgrade_pending", pending, func(p *db.Product) {
		p.UpgradePending = pending
	})
}

// MarkRemoved soft-tombstones a product (or revives it). The download record
// and any files on disk are untouched.
func (s *Store) MarkRemoved(accountID int64, productID string, removed bool) error {
	return s.updateProductFlag(accountID, productID, "removed", removed, func(p *db.Product) {
		p.Removed = removed
	})
}

func (s *Store) updateProductFlag(accountID int64, productID, column string, value bool, apply func(*db.Product)) error {
	key := db.ProductKey(accountID, productID)
	unlock := s.lockKey(key)
	defer unlock()

	s.cacheMu.RLock()
	existing := s.products[key]
	s.cacheMu.RUnlock()
	if existing == nil {
		return ErrNotFound
	}

	if err := s.gdb.Model(&db.Product{}).Where("id = ?", existing.ID).Update(column, value).Error; err != nil {
		return fmt.Errorf("failed to update %s for %s: %w", column, key, err)
	}

	s.cacheMu.Lock()
	apply(existing)
	s.cacheMu.Unlock()
	return nil
}

// RemoveProduct deletes a product and its download record. Removal of an
// in-flight download is refused with ErrConflictingState; the orchestrator
// must cancel it first. Files on disk are not deleted here.
func (s *Store) RemoveProduct(accountID int64, productID string) error {
	key := db.ProductKey(accountID, productID)
	unlock := s.lockKey(key)
	defer unlock()

	s.cacheMu.RLock()
	existing := s.products[key]
	s.cacheMu.RUnlock()
	if existing == nil {
		return ErrNotFound
	}
	if existing.Download != nil && DownloadState(existing.Download.State).InFlight() {
		return ErrConflictingState
	}

	err := s.gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_row_id = ?", existing.ID).Delete(&db.ProductDownload{}).Error; err != nil {
			return err
		}
		return tx.Delete(&db.Product{}, existing.ID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to remove product %s: %w", key, err)
	}

	s.cacheMu.Lock()
	delete(s.products, key)
	s.cacheMu.Unlock()
	return nil
}

// IsNotFound reports whether err is the store's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
