package download

import "context"

// RemoteFile is one entry of a product's asset manifest.
type RemoteFile struct {
	FileName string
	URL      string
	Size     int64
	SHA1     string // Optional; verified after fetch when present
}

// Fetcher retrieves product manifests and streams file payloads. The dlsite
// client implements it; tests substitute a stub.
type Fetcher interface {
	// ProductFiles returns the asset manifest of a product.
	ProductFiles(ctx context.Context, session, productID string) ([]RemoteFile, error)

	// FetchFile streams one file to destPath, reporting cumulative received
	// bytes through onProgress. It must observe ctx at I/O checkpoints.
	FetchFile(ctx context.Context, session string, file RemoteFile, destPath string, onProgress func(received int64)) error
}
