package query

import (
	"sort"
	"strings"
	"time"

	"dlsite-manager/db"
)

// matchesText reports whether any localized title or group-name variant
// contains the needle, case-insensitively.
func matchesText(p db.Product, needle string) bool {
	for _, v := range p.Title.Variants() {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	for _, v := range p.GroupName.Variants() {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func matches(p db.Product, q ProductQuery, needle string) bool {
	if p.Removed {
		return false
	}
	if needle != "" && !matchesText(p, needle) {
		return false
	}
	if q.Type != nil && p.Type != string(*q.Type) {
		return false
	}
	if q.Age != nil && p.Age != string(*q.Age) {
		return false
	}
	if q.Download != nil && DisplayStateOf(p) != *q.Download {
		return false
	}
	return true
}

// Evaluate filters and sorts a catalog snapshot. The result is deterministic:
// ties on the chosen sort key are broken by purchase timestamp ascending,
// then product id ascending, so repeated evaluations of an unchanged catalog
// yield identical sequences. Tombstoned products are excluded.
func Evaluate(products []db.Product, q ProductQuery, languages []string) []db.Product {
	needle := strings.ToLower(strings.TrimSpace(q.Query))

	results := make([]db.Product, 0, len(products))
	for _, p := range products {
		if matches(p, q, needle) {
			results = append(results, p)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return less(results[i], results[j], q.OrderBy, languages)
	})
	return results
}

// less orders two products by the query's sort key. The tie-break is always
// purchase timestamp ascending then product id ascending, regardless of the
// primary key's direction.
func less(a, b db.Product, orderBy OrderBy, languages []string) bool {
	if cmp := compareKey(a, b, orderBy, languages); cmp != 0 {
		return cmp < 0
	}
	if !a.PurchasedAt.Equal(b.PurchasedAt) {
		return a.PurchasedAt.Before(b.PurchasedAt)
	}
	return a.ProductID < b.ProductID
}

func compareKey(a, b db.Product, orderBy OrderBy, languages []string) int {
	switch orderBy {
	case OrderIdAsc:
		return strings.Compare(a.ProductID, b.ProductID)
	case OrderIdDesc:
		return -strings.Compare(a.ProductID, b.ProductID)
	case OrderTitleAsc:
		return strings.Compare(Resolve(a.Title, languages), Resolve(b.Title, languages))
	case OrderTitleDesc:
		return -strings.Compare(Resolve(a.Title, languages), Resolve(b.Title, languages))
	case OrderGroupAsc:
		return strings.Compare(Resolve(a.GroupName, languages), Resolve(b.GroupName, languages))
	case OrderGroupDesc:
		return -strings.Compare(Resolve(a.GroupName, languages), Resolve(b.GroupName, languages))
	case OrderRegistrationDateAsc:
		return compareOptionalTime(a.RegisteredAt, b.RegisteredAt)
	case OrderRegistrationDateDesc:
		return -compareOptionalTime(a.RegisteredAt, b.RegisteredAt)
	case OrderPurchaseDateAsc:
		return compareTimes(a.PurchasedAt, b.PurchasedAt)
	case OrderPurchaseDateDesc:
		return -compareTimes(a.PurchasedAt, b.PurchasedAt)
	}
	// Unset order falls back to purchase date descending.
	return -compareTimes(a.PurchasedAt, b.PurchasedAt)
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// compareOptionalTime orders absent timestamps before present ones so that
// products without a registration date group together deterministically.
func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return compareTimes(*a, *b)
}
