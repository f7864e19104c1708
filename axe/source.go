// CLAUDE:SUMMARY Loads the axe-core script from a local file or downloads it once with retries.
package axe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultScriptURL is the axe-core build fetched when no local script is given.
const DefaultScriptURL = "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.10.2/axe.min.js"

// maxScriptSize caps the download; axe.min.js is ~550 KiB.
const maxScriptSize = 8 << 20

// Source locates the axe-core script. Path wins over URL.
type Source struct {
	Path   string
	URL    string
	Logger *slog.Logger
}

// Load returns the script bytes.
func (s Source) Load(ctx context.Context) ([]byte, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if s.Path != "" {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("axe: read script: %w", err)
		}
		return checkScript(data)
	}

	url := s.URL
	if url == "" {
		url = DefaultScriptURL
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("axe: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("axe: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("axe: download %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize+1))
	if err != nil {
		return nil, fmt.Errorf("axe: read body: %w", err)
	}
	if len(data) > maxScriptSize {
		return nil, fmt.Errorf("axe: script exceeds %d bytes", maxScriptSize)
	}

	logger.Info("axe: script downloaded", "url", url, "size", len(data))
	return checkScript(data)
}

func checkScript(data []byte) ([]byte, error) {
	if !bytes.Contains(data, []byte("axe")) {
		return nil, fmt.Errorf("axe: script does not look like axe-core")
	}
	return data, nil
}
