package dlsite

import "time"

// LocalizedText carries per-language variants of a remote string.
type LocalizedText struct {
	JA   string `json:"ja,omitempty"`
	EN   string `json:"en,omitempty"`
	KO   string `json:"ko,omitempty"`
	ZHTW string `json:"zh_tw,omitempty"`
	ZHCN string `json:"zh_cn,omitempty"`
}

// PurchaseRecord is one purchased product as reported by the storefront.
type PurchaseRecord struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Age          string        `json:"age"`
	Title        LocalizedText `json:"title"`
	GroupID      string        `json:"group_id"`
	GroupName    LocalizedText `json:"group_name"`
	IconMain     string        `json:"icon_main"`
	IconSmall    string        `json:"icon_small"`
	RegisteredAt *time.Time    `json:"registered_at"`
	UpgradedAt   *time.Time    `json:"upgraded_at"`
	PurchasedAt  time.Time     `json:"purchased_at"`
}

type purchasesResponse struct {
	Total int              `json:"total"`
	Works []PurchaseRecord `json:"works"`
}

type productFilesResponse struct {
	Files []struct {
		FileName string `json:"file_name"`
		URL      string `json:"url"`
		Size     int64  `json:"size"`
		SHA1     string `json:"sha1"`
	} `json:"files"`
}
