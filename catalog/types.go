package catalog

// ProductType classifies a purchased product. Values are persisted and
// serialized as stable string tags, never as ordinals.
type ProductType string

const (
	TypeAdult    ProductType = "Adult"
	TypeGame     ProductType = "Game"
	TypeComic    ProductType = "Comic"
	TypeManga    ProductType = "Manga"
	TypeMusic    ProductType = "Music"
	TypeNovel    ProductType = "Novel"
	TypeVoice    ProductType = "Voice"
	TypeSoftware ProductType = "Software"
	TypeUnknown  ProductType = "Unknown"
)

// ProductTypes lists every valid product type tag.
var ProductTypes = []ProductType{
	TypeAdult, TypeGame, TypeComic, TypeManga, TypeMusic,
	TypeNovel, TypeVoice, TypeSoftware, TypeUnknown,
}

// ProductTypeOrUnknown maps a raw tag to a known product type, folding
// anything unrecognized to Unknown so schema drift on the remote side
// never breaks the catalog.
func ProductTypeOrUnknown(raw string) ProductType {
	for _, ty := range ProductTypes {
		if string(ty) == raw {
			return ty
		}
	}
	return TypeUnknown
}

// AgeCategory is the age rating of a product.
type AgeCategory string

const (
	AgeAll     AgeCategory = "All"
	AgeR15     AgeCategory = "R15"
	AgeR18     AgeCategory = "R18"
	AgeUnknown AgeCategory = "Unknown"
)

// AgeCategories lists every valid age rating tag.
var AgeCategories = []AgeCategory{AgeAll, AgeR15, AgeR18, AgeUnknown}

// AgeCategoryOrUnknown maps a raw tag to a known age rating.
func AgeCategoryOrUnknown(raw string) AgeCategory {
	for _, age := range AgeCategories {
		if string(age) == raw {
			return age
		}
	}
	return AgeUnknown
}

// DownloadState is the stored lifecycle state of a product download.
// Composite display states are derived at query time, never stored.
type DownloadState string

const (
	StateNotDownloaded DownloadState = "NotDownloaded"
	StateDownloading   DownloadState = "Downloading"
	StateDecompressing DownloadState = "Decompressing"
	StateDownloaded    DownloadState = "Downloaded"
	StateFailed        DownloadState = "Failed"
)

// InFlight reports whether the state describes an active download task.
func (s DownloadState) InFlight() bool {
	return s == StateDownloading || s == StateDecompressing
}
