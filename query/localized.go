package query

import "dlsite-manager/db"

// defaultLanguageOrder is the fallback order used when the display language
// setting matches no present variant.
var defaultLanguageOrder = []string{"ja", "en", "ko", "zh-tw", "zh-cn"}

func variantForTag(ls db.LocalizedString, tag string) string {
	switch tag {
	case "ja":
		return ls.JA
	case "en":
		return ls.EN
	case "ko":
		return ls.KO
	case "zh-tw":
		return ls.ZHTW
	case "zh-cn":
		return ls.ZHCN
	}
	return ""
}

// Resolve returns the first present variant of a localized string following
// the given display language order, then the fixed default order. The result
// is empty only when no variant is present at all.
func Resolve(ls db.LocalizedString, languages []string) string {
	for _, tag := range languages {
		if v := variantForTag(ls, tag); v != "" {
			return v
		}
	}
	for _, tag := range defaultLanguageOrder {
		if v := variantForTag(ls, tag); v != "" {
			return v
		}
	}
	return ""
}
