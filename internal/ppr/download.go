// Package ppr downloads the Irish property price register and turns its CSV
// exports into upload batches.
package ppr

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Kind selects the register to download.
type Kind string

const (
	KindResidential Kind = "residential"
	KindCommercial  Kind = "commercial"
)

// ParseKind parses a register name.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindResidential, "":
		return KindResidential, nil
	case KindCommercial:
		return KindCommercial, nil
	default:
		return "", fmt.Errorf("unknown register %q (expected residential or commercial)", s)
	}
}

// Download URL templates; the filter is substituted for %[1]s.
const (
	ResidentialURL = "https://propertypriceregister.ie/website/npsra/ppr/npsra-ppr.nsf/Downloads/PPR-%[1]s.zip/$FILE/PPR-%[1]s.zip"
	CommercialURL  = "https://propertypriceregister.ie/website/npsra/ppr/npsra-ppr-com.nsf/Downloads/CLR-%[1]s.csv/$FILE/CLR-%[1]s.csv"
)

// filterPattern accepts ALL, a year (2021) or a month (2021-03).
var filterPattern = regexp.MustCompile(`^(ALL|\d{4}(-\d{2})?)$`)

// ValidateFilter checks a period filter.
func ValidateFilter(filter string) error {
	if !filterPattern.MatchString(filter) {
		return fmt.Errorf("invalid period %q (expected ALL, YYYY or YYYY-MM)", filter)
	}
	return nil
}

// FileName is the local CSV name for a register and period.
func FileName(kind Kind, filter string) string {
	return string(kind) + "-" + filter + ".csv"
}

// Downloader fetches register exports over HTTP.
type Downloader struct {
	Client *http.Client
	Logger *slog.Logger
	// URL templates; empty means the public register.
	ResidentialURL string
	CommercialURL  string
}

// NewDownloader returns a Downloader using client, or a client with a
// five-minute timeout when nil.
func NewDownloader(client *http.Client, logger *slog.Logger) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{Client: client, Logger: logger}
}

// URL returns the download address for a register and period.
func (d *Downloader) URL(kind Kind, filter string) (string, error) {
	if err := ValidateFilter(filter); err != nil {
		return "", err
	}
	switch kind {
	case KindResidential:
		return fmt.Sprintf(orDefault(d.ResidentialURL, ResidentialURL), filter), nil
	case KindCommercial:
		return fmt.Sprintf(orDefault(d.CommercialURL, CommercialURL), filter), nil
	default:
		return "", fmt.Errorf("unknown register %q", kind)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Download fetches the export for kind and filter into dir and returns the
// path of the CSV. Zip payloads are detected by content and their first CSV
// entry is extracted.
func (d *Downloader) Download(ctx context.Context, dir string, kind Kind, filter string) (string, error) {
	url, err := d.URL(kind, filter)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}

	d.Logger.Info("downloading register", "kind", kind, "period", filter, "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	data := body
	if isZip(body) {
		data, err = extractCSV(body)
		if err != nil {
			return "", err
		}
	}

	path := filepath.Join(dir, FileName(kind, filter))
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	d.Logger.Info("saved register", "path", path, "bytes", len(data))
	return path, nil
}

func isZip(b []byte) bool {
	return bytes.HasPrefix(b, []byte("PK\x03\x04"))
}

func extractCSV(body []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	for _, f := range zr.File {
		if !strings.EqualFold(filepath.Ext(f.Name), ".csv") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("zip archive contains no CSV file")
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
