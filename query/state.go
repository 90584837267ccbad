package query

import (
	"dlsite-manager/catalog"
	"dlsite-manager/db"
)

// DisplayStateOf derives the user-visible download state of a product from
// its stored state. A product re-downloading an upgrade still holds its old
// copy at the recorded path, which yields the composite state.
func DisplayStateOf(p db.Product) DisplayState {
	if p.Download == nil {
		return DisplayNotDownloaded
	}

	switch catalog.DownloadState(p.Download.State) {
	case catalog.StateDownloading:
		if p.Download.Path != "" {
			return DisplayDownloadingAndDownloaded
		}
		return DisplayDownloading
	case catalog.StateDecompressing:
		if p.Download.Path != "" {
			return DisplayDownloadingAndDownloaded
		}
		return DisplayDecompressing
	case catalog.StateDownloaded:
		return DisplayDownloaded
	case catalog.StateFailed:
		return DisplayFailed
	}
	return DisplayNotDownloaded
}
