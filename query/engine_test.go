package query

import (
	"testing"
	"time"

	"dlsite-manager/catalog"
	"dlsite-manager/db"
)

var testLanguages = []string{"ja", "en", "ko", "zh-tw", "zh-cn"}

func mkProduct(id, titleJA, titleEN, group string, ty catalog.ProductType, purchased time.Time) db.Product {
	return db.Product{
		AccountID:   1,
		ProductID:   id,
		Type:        string(ty),
		Age:         string(catalog.AgeAll),
		Title:       db.LocalizedString{JA: titleJA, EN: titleEN},
		GroupName:   db.LocalizedString{JA: group},
		PurchasedAt: purchased,
	}
}

func withDownload(p db.Product, state catalog.DownloadState, path string) db.Product {
	p.Download = &db.ProductDownload{State: string(state), Path: path}
	return p
}

func ids(products []db.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ProductID
	}
	return out
}

func equalIDs(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEvaluateTextFilter(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	products := []db.Product{
		mkProduct("RJ001", "アルファの冒険", "Alpha Quest", "CircleA", catalog.TypeGame, base),
		mkProduct("RJ002", "ベータ", "Beta Tales", "CircleB", catalog.TypeVoice, base.Add(day)),
		mkProduct("RJ003", "Gamma", "", "AlphaWorks", catalog.TypeGame, base.Add(2*day)),
	}

	tests := []struct {
		name  string
		query ProductQuery
		want  []string
	}{
		{
			"substring on english title, case-insensitive",
			ProductQuery{Query: "alpha", OrderBy: OrderIdAsc},
			[]string{"RJ001", "RJ003"}, // matches title and group name
		},
		{
			"substring on japanese title",
			ProductQuery{Query: "ベータ", OrderBy: OrderIdAsc},
			[]string{"RJ002"},
		},
		{
			"no match",
			ProductQuery{Query: "delta", OrderBy: OrderIdAsc},
			[]string{},
		},
		{
			"empty query passes everything",
			ProductQuery{OrderBy: OrderIdAsc},
			[]string{"RJ001", "RJ002", "RJ003"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Evaluate(products, tt.query, testLanguages))
			if !equalIDs(got, tt.want) {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.query.Query, got, tt.want)
			}
		})
	}
}

func TestEvaluateTypeAndStateFilters(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	products := []db.Product{
		withDownload(mkProduct("RJ001", "One", "", "G", catalog.TypeGame, base), catalog.StateDownloaded, "/dl/1/RJ001"),
		mkProduct("RJ002", "Two", "", "G", catalog.TypeGame, base),
		withDownload(mkProduct("RJ003", "Three", "", "G", catalog.TypeVoice, base), catalog.StateDownloading, ""),
		withDownload(mkProduct("RJ004", "Four", "", "G", catalog.TypeVoice, base), catalog.StateDownloading, "/dl/1/RJ004"),
	}

	game := catalog.TypeGame
	downloaded := DisplayDownloaded
	composite := DisplayDownloadingAndDownloaded

	got := ids(Evaluate(products, ProductQuery{Type: &game, OrderBy: OrderIdAsc}, testLanguages))
	if !equalIDs(got, []string{"RJ001", "RJ002"}) {
		t.Errorf("type filter = %v, want [RJ001 RJ002]", got)
	}

	got = ids(Evaluate(products, ProductQuery{Download: &downloaded, OrderBy: OrderIdAsc}, testLanguages))
	if !equalIDs(got, []string{"RJ001"}) {
		t.Errorf("downloaded filter = %v, want [RJ001]", got)
	}

	// A product re-downloading an upgrade keeps its old copy visible.
	got = ids(Evaluate(products, ProductQuery{Download: &composite, OrderBy: OrderIdAsc}, testLanguages))
	if !equalIDs(got, []string{"RJ004"}) {
		t.Errorf("composite filter = %v, want [RJ004]", got)
	}
}

func TestEvaluateExcludesRemoved(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	gone := mkProduct("RJ001", "One", "", "G", catalog.TypeGame, base)
	gone.Removed = true
	products := []db.Product{gone, mkProduct("RJ002", "Two", "", "G", catalog.TypeGame, base)}

	got := ids(Evaluate(products, ProductQuery{OrderBy: OrderIdAsc}, testLanguages))
	if !equalIDs(got, []string{"RJ002"}) {
		t.Errorf("Evaluate = %v, want [RJ002]", got)
	}
}

func TestEvaluateOrdering(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	reg := base.Add(-30 * day)
	products := []db.Product{
		mkProduct("RJ002", "", "Banana", "G", catalog.TypeGame, base.Add(day)),
		mkProduct("RJ001", "", "Cherry", "G", catalog.TypeGame, base.Add(2*day)),
		mkProduct("RJ003", "", "Apple", "G", catalog.TypeGame, base),
	}
	products[0].RegisteredAt = &reg

	tests := []struct {
		name    string
		orderBy OrderBy
		want    []string
	}{
		{"id ascending", OrderIdAsc, []string{"RJ001", "RJ002", "RJ003"}},
		{"id descending", OrderIdDesc, []string{"RJ003", "RJ002", "RJ001"}},
		{"title ascending falls back across languages", OrderTitleAsc, []string{"RJ003", "RJ002", "RJ001"}},
		{"purchase date descending", OrderPurchaseDateDesc, []string{"RJ001", "RJ002", "RJ003"}},
		{"purchase date ascending", OrderPurchaseDateAsc, []string{"RJ003", "RJ002", "RJ001"}},
		// Products without a registration date sort before dated ones, tied
		// ones by purchase date ascending.
		{"registration date ascending", OrderRegistrationDateAsc, []string{"RJ003", "RJ001", "RJ002"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Evaluate(products, ProductQuery{OrderBy: tt.orderBy}, testLanguages))
			if !equalIDs(got, tt.want) {
				t.Errorf("order %s = %v, want %v", tt.orderBy, got, tt.want)
			}
		})
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	// Same title and same purchase date force the id tie-break.
	products := []db.Product{
		mkProduct("RJ002", "Same", "", "G", catalog.TypeGame, base),
		mkProduct("RJ001", "Same", "", "G", catalog.TypeGame, base),
		mkProduct("RJ003", "Same", "", "G", catalog.TypeGame, base),
	}

	q := ProductQuery{OrderBy: OrderTitleAsc}
	first := ids(Evaluate(products, q, testLanguages))
	second := ids(Evaluate(products, q, testLanguages))

	if !equalIDs(first, second) {
		t.Fatalf("two evaluations differ: %v vs %v", first, second)
	}
	if !equalIDs(first, []string{"RJ001", "RJ002", "RJ003"}) {
		t.Errorf("tie-break order = %v, want [RJ001 RJ002 RJ003]", first)
	}
}
