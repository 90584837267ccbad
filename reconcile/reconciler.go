package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dlsite-manager/catalog"
	"dlsite-manager/db"
	"dlsite-manager/dlsite"
)

// PurchaseSource is the remote side of a sync. The production implementation
// is the storefront client; tests substitute canned pages.
type PurchaseSource interface {
	GetPurchases(ctx context.Context, session string, page int) ([]dlsite.PurchaseRecord, int, error)
}

// Result summarizes what one reconciliation changed, keyed by product id.
type Result struct {
	Added   []string
	Updated []string
	Removed []string
}

// Reconciler folds remote purchase snapshots into the local catalog.
// Applying the same snapshot twice is a no-op.
type Reconciler struct {
	store *catalog.Store
	log   *zap.SugaredLogger
}

func NewReconciler(store *catalog.Store, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// ApplyPage upserts one page of remote records into the catalog and appends
// what changed to result. A record whose remote upgrade timestamp is newer
// than the stored one marks the product as having a pending upgrade; the
// flag survives the upsert so a later download picks up the new files.
func (r *Reconciler) ApplyPage(accountID int64, records []dlsite.PurchaseRecord, result *Result) error {
	for _, rec := range records {
		if rec.ID == "" {
			r.log.Warnf("Skipping purchase record with empty product id for account %d", accountID)
			continue
		}

		existing, err := r.store.Get(accountID, rec.ID)
		exists := err == nil
		if err != nil && !catalog.IsNotFound(err) {
			return fmt.Errorf("failed to look up product '%s': %w", rec.ID, err)
		}

		upgraded := exists && isNewer(rec.UpgradedAt, existing.UpgradedAt)

		if err := r.store.UpsertProduct(accountID, toProduct(accountID, rec)); err != nil {
			return fmt.Errorf("failed to upsert product '%s': %w", rec.ID, err)
		}

		if upgraded {
			if err := r.store.SetUpgradePending(accountID, rec.ID, true); err != nil {
				return fmt.Errorf("failed to flag upgrade for '%s': %w", rec.ID, err)
			}
			r.log.Infof("Product %s has a newer version available", rec.ID)
		}

		if exists {
			result.Updated = append(result.Updated, rec.ID)
		} else {
			result.Added = append(result.Added, rec.ID)
		}
	}
	return nil
}

// Reconcile applies a complete snapshot of the account's purchases and then
// soft-removes every local product absent from it. Download records and
// on-disk files of removed products are left untouched.
func (r *Reconciler) Reconcile(accountID int64, snapshot []dlsite.PurchaseRecord) (Result, error) {
	var result Result

	if err := r.ApplyPage(accountID, snapshot, &result); err != nil {
		return result, err
	}

	seen := make(map[string]struct{}, len(snapshot))
	for _, rec := range snapshot {
		seen[rec.ID] = struct{}{}
	}

	removed, err := r.removeAbsent(accountID, seen)
	if err != nil {
		return result, err
	}
	result.Removed = removed
	return result, nil
}

// FetchAndReconcile pulls the full purchase list page by page and reconciles
// it. The removal phase only runs once every page fetched successfully, so a
// partial fetch can never tombstone products that are still owned.
func (r *Reconciler) FetchAndReconcile(ctx context.Context, source PurchaseSource, accountID int64, session string) (Result, error) {
	var result Result
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		records, total, err := source.GetPurchases(ctx, session, page)
		if err != nil {
			return result, fmt.Errorf("failed to fetch purchases page %d: %w", page, err)
		}
		if len(records) == 0 {
			break
		}

		if err := r.ApplyPage(accountID, records, &result); err != nil {
			return result, err
		}
		for _, rec := range records {
			seen[rec.ID] = struct{}{}
		}

		if len(seen) >= total {
			break
		}
	}

	removed, err := r.removeAbsent(accountID, seen)
	if err != nil {
		return result, err
	}
	result.Removed = removed

	r.log.Infof("Account %d synced: %d added, %d updated, %d removed",
		accountID, len(result.Added), len(result.Updated), len(result.Removed))
	return result, nil
}

func (r *Reconciler) removeAbsent(accountID int64, seen map[string]struct{}) ([]string, error) {
	var removed []string
	for _, p := range r.store.List(accountID) {
		if _, ok := seen[p.ProductID]; ok {
			continue
		}
		if p.Removed {
			continue
		}
		if err := r.store.MarkRemoved(p.AccountID, p.ProductID, true); err != nil {
			return removed, fmt.Errorf("failed to mark '%s' removed: %w", p.ProductID, err)
		}
		removed = append(removed, p.ProductID)
	}
	return removed, nil
}

func toProduct(accountID int64, rec dlsite.PurchaseRecord) db.Product {
	return db.Product{
		AccountID:    accountID,
		ProductID:    rec.ID,
		Type:         string(catalog.ProductTypeOrUnknown(rec.Type)),
		Age:          string(catalog.AgeCategoryOrUnknown(rec.Age)),
		Title:        toLocalized(rec.Title),
		GroupID:      rec.GroupID,
		GroupName:    toLocalized(rec.GroupName),
		IconMain:     rec.IconMain,
		IconSmall:    rec.IconSmall,
		RegisteredAt: rec.RegisteredAt,
		UpgradedAt:   rec.UpgradedAt,
		PurchasedAt:  rec.PurchasedAt,
	}
}

func toLocalized(t dlsite.LocalizedText) db.LocalizedString {
	return db.LocalizedString{JA: t.JA, EN: t.EN, KO: t.KO, ZHTW: t.ZHTW, ZHCN: t.ZHCN}
}

func isNewer(remote, local *time.Time) bool {
	if remote == nil {
		return false
	}
	if local == nil {
		return true
	}
	return remote.After(*local)
}
