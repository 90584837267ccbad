package dlsite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"dlsite-manager/config"
	"dlsite-manager/download"
)

const (
	playAPIURL     = "https://play.dlsite.com/api"
	defaultTimeout = 30 * time.Second
)

// Client handles communication with the storefront's play API. All requests
// are authenticated with an opaque session blob produced by the login layer.
type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

// NewClient creates a new storefront API client using the provided configuration.
func NewClient(cfg config.Config) (*Client, error) {
	if cfg.UserAgent == "" {
		// Should be handled by LoadConfig default, but double-check
		return nil, fmt.Errorf("USERAGENT is not configured")
	}

	timeout := cfg.HTTPTimeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		BaseURL:   playAPIURL,
		UserAgent: cfg.UserAgent,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (c *Client) makeRequest(ctx context.Context, method, path string, queryParams url.Values, target interface{}, session string, isBinary bool) (*http.Response, error) {
	fullURL := c.BaseURL + path
	if isBinary {
		// For binary downloads, the 'path' is expected to be the full URL already
		fullURL = path
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if queryParams != nil {
		req.URL.RawQuery = queryParams.Encode()
	}

	req.Header.Set("User-Agent", c.UserAgent)
	if session != "" {
		req.Header.Set("Cookie", session)
	}

	if !isBinary {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "application/octet-stream")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", download.ErrTransportFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Try to read body for more error info, but don't fail if it's unreadable
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close() // Close body even on error
		return resp, fmt.Errorf("%w: api request failed: status %d, body: %s", download.ErrTransportFailure, resp.StatusCode, string(bodyBytes))
	}

	// Don't try to decode JSON or close body for binary responses here
	if target != nil && !isBinary {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return resp, fmt.Errorf("%w: failed to decode json response: %v", download.ErrTransportFailure, err)
		}
	}

	return resp, nil // For binary, return the response so the caller can handle the body
}

// GetPurchases retrieves one page of the account's purchased products,
// returning the page records and the total purchase count for pagination.
func (c *Client) GetPurchases(ctx context.Context, session string, page int) ([]PurchaseRecord, int, error) {
	params := url.Values{}
	params.Add("page", fmt.Sprintf("%d", page))

	var purchases purchasesResponse
	_, err := c.makeRequest(ctx, "GET", "/purchases", params, &purchases, session, false)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get purchases page %d: %w", page, err)
	}
	return purchases.Works, purchases.Total, nil
}

// ProductFiles retrieves the asset manifest of a product.
func (c *Client) ProductFiles(ctx context.Context, session, productID string) ([]download.RemoteFile, error) {
	var manifest productFilesResponse
	_, err := c.makeRequest(ctx, "GET", fmt.Sprintf("/product/%s/files", productID), nil, &manifest, session, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get files for '%s': %w", productID, err)
	}

	files := make([]download.RemoteFile, 0, len(manifest.Files))
	for _, f := range manifest.Files {
		files = append(files, download.RemoteFile{
			FileName: f.FileName,
			URL:      f.URL,
			Size:     f.Size,
			SHA1:     f.SHA1,
		})
	}
	return files, nil
}

// FetchFile downloads one product file to destPath, reporting cumulative
// received bytes through onProgress.
func (c *Client) FetchFile(ctx context.Context, session string, file download.RemoteFile, destPath string, onProgress func(received int64)) error {
	resp, err := c.makeRequest(ctx, "GET", file.URL, nil, nil, session, true)
	if err != nil {
		return fmt.Errorf("failed to start download of '%s': %w", file.FileName, err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("%w: failed to create target directory: %v", download.ErrStorageFailure, err)
	}

	outFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: failed to create file '%s': %v", download.ErrStorageFailure, destPath, err)
	}
	defer outFile.Close()

	var received int64
	buf := make([]byte, 64*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := outFile.Write(buf[:n]); writeErr != nil {
				os.Remove(destPath)
				return fmt.Errorf("%w: failed to write '%s': %v", download.ErrStorageFailure, destPath, writeErr)
			}
			received += int64(n)
			if onProgress != nil {
				onProgress(received)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			os.Remove(destPath)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: interrupted while downloading '%s': %v", download.ErrTransportFailure, file.FileName, readErr)
		}
	}
}
