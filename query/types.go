package query

import (
	"fmt"

	"dlsite-manager/catalog"
)

// OrderBy selects the sort key and direction of a product query. Values are
// stable string tags so a remembered query survives schema evolution.
type OrderBy string

const (
	OrderIdAsc                OrderBy = "IdAsc"
	OrderIdDesc               OrderBy = "IdDesc"
	OrderTitleAsc             OrderBy = "TitleAsc"
	OrderTitleDesc            OrderBy = "TitleDesc"
	OrderGroupAsc             OrderBy = "GroupAsc"
	OrderGroupDesc            OrderBy = "GroupDesc"
	OrderRegistrationDateAsc  OrderBy = "RegistrationDateAsc"
	OrderRegistrationDateDesc OrderBy = "RegistrationDateDesc"
	OrderPurchaseDateAsc      OrderBy = "PurchaseDateAsc"
	OrderPurchaseDateDesc     OrderBy = "PurchaseDateDesc"
)

var orderByValues = []OrderBy{
	OrderIdAsc, OrderIdDesc,
	OrderTitleAsc, OrderTitleDesc,
	OrderGroupAsc, OrderGroupDesc,
	OrderRegistrationDateAsc, OrderRegistrationDateDesc,
	OrderPurchaseDateAsc, OrderPurchaseDateDesc,
}

// ParseOrderBy maps a tag to an OrderBy value.
func ParseOrderBy(raw string) (OrderBy, error) {
	for _, o := range orderByValues {
		if string(o) == raw {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown order key %q", raw)
}

// DisplayState is the download state as shown to the user. Unlike the stored
// catalog.DownloadState it includes the derived composite for a product that
// is re-downloading an upgrade while an older copy is still present.
type DisplayState string

const (
	DisplayNotDownloaded            DisplayState = "NotDownloaded"
	DisplayDownloading              DisplayState = "Downloading"
	DisplayDecompressing            DisplayState = "Decompressing"
	DisplayDownloaded               DisplayState = "Downloaded"
	DisplayFailed                   DisplayState = "Failed"
	DisplayDownloadingAndDownloaded DisplayState = "DownloadingAndDownloaded"
)

var displayStateValues = []DisplayState{
	DisplayNotDownloaded, DisplayDownloading, DisplayDecompressing,
	DisplayDownloaded, DisplayFailed, DisplayDownloadingAndDownloaded,
}

// ParseDisplayState maps a tag to a DisplayState value.
func ParseDisplayState(raw string) (DisplayState, error) {
	for _, s := range displayStateValues {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown download state %q", raw)
}

// ProductQuery is a filter+sort specification over the catalog. Nil filter
// fields pass everything through.
type ProductQuery struct {
	Query    string
	Type     *catalog.ProductType
	Age      *catalog.AgeCategory
	Download *DisplayState
	OrderBy  OrderBy
}
