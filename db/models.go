package db

import (
	"time"
)

// LocalizedString holds one string per supported storefront language.
// Lookup always goes through query.Resolve with the configured display
// language order; fields are never accessed dynamically.
type LocalizedString struct {
	JA   string
	EN   string
	KO   string
	ZHTW string `gorm:"column:zh_tw"`
	ZHCN string `gorm:"column:zh_cn"`
}

// Empty reports whether no variant is present.
func (l LocalizedString) Empty() bool {
	return l.JA == "" && l.EN == "" && l.KO == "" && l.ZHTW == "" && l.ZHCN == ""
}

// Variants returns all non-empty variants, in the fixed storage order.
func (l LocalizedString) Variants() []string {
	variants := make([]string, 0, 5)
	for _, v := range []string{l.JA, l.EN, l.KO, l.ZHTW, l.ZHCN} {
		if v != "" {
			variants = append(variants, v)
		}
	}
	return variants
}

// Account represents a linked storefront credential set.
// The session blob is produced by the login layer and treated as opaque here.
type Account struct {
	ID          int64  `gorm:"primaryKey"`
	Label       string // Display label
	Username    string `gorm:"uniqueIndex"`
	Memo        string
	SessionJSON string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is a purchased catalog entry owned by one account.
// (AccountID, ProductID) is unique across the catalog.
type Product struct {
	ID             uint            `gorm:"primaryKey"`
	AccountID      int64           `gorm:"uniqueIndex:idx_account_product;index"`
	ProductID      string          `gorm:"uniqueIndex:idx_account_product"` // Remote product id, e.g. RJ123456
	Type           string          // Stable string tag, see catalog.ProductType
	Age            string          // Stable string tag, see catalog.AgeCategory
	Title          LocalizedString `gorm:"embedded;embeddedPrefix:title_"`
	GroupID        string
	GroupName      LocalizedString `gorm:"embedded;embeddedPrefix:group_name_"`
	IconMain       string          // Main image locator
	IconSmall      string          // Small image locator
	RegisteredAt   *time.Time      // Absent if the remote does not report one
	UpgradedAt     *time.Time      // Set when remote content is revised after registration
	PurchasedAt    time.Time       // Required, tie-break key for stable ordering
	UpgradePending bool            // Remote has a newer revision than the local copy
	Removed        bool            // Soft-tombstone, hidden from default queries
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Download *ProductDownload `gorm:"foreignKey:ProductRowID;constraint:OnDelete:CASCADE"`
}

// Key returns the (account id, product id) catalog key.
func (p Product) Key() string {
	return ProductKey(p.AccountID, p.ProductID)
}

// ProductDownload tracks the local download lifecycle of one product.
// At most one exists per product; it persists across process restarts.
type ProductDownload struct {
	ID             uint `gorm:"primaryKey"`
	ProductRowID   uint `gorm:"uniqueIndex"`
	State          string // Stable string tag, see catalog.DownloadState
	Path           string // Local directory holding the unpacked content
	Progress       float64
	BytesReceived  int64
	FailureKind    string // Diagnostic payload, set on Failed
	FailureMessage string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
