// Package record holds the loosely-typed tree-planting survey records that
// flow through rule checks and AI validation.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrUnsupportedSource is returned when a source is neither a file path nor an HTTP(S) URL.
var ErrUnsupportedSource = errors.New("unsupported record source")

// Record is a single survey record. Only id and name are expected; every
// other field (gpsData, images, scientificName, ...) is forwarded untouched.
type Record map[string]any

// Dataset is an ordered collection of records.
type Dataset []Record

// ID returns the record's id field, or "" if absent or not a string.
func (r Record) ID() string {
	s, _ := r["id"].(string)
	return s
}

// Name returns the record's name field, or "" if absent or not a string.
func (r Record) Name() string {
	s, _ := r["name"].(string)
	return s
}

// Label identifies a record in logs and reports.
func (r Record) Label(index int) string {
	if id := r.ID(); id != "" {
		return id
	}
	return fmt.Sprintf("record-%d", index+1)
}

// Decode parses a JSON array of records.
func Decode(r io.Reader) (Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return ds, nil
}

// Load reads a dataset from a local JSON file or an HTTP(S) endpoint.
// A nil client falls back to one with a 30s timeout.
func Load(ctx context.Context, source string, client *http.Client) (Dataset, error) {
	switch {
	case source == "":
		return nil, fmt.Errorf("%w: empty source", ErrUnsupportedSource)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return fetch(ctx, source, client)
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("opening records file: %w", err)
		}
		defer f.Close()
		return Decode(f)
	}
}

func fetch(ctx context.Context, url string, client *http.Client) (Dataset, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 600))
		return nil, fmt.Errorf("fetching records: http %d: %s", resp.StatusCode, string(body))
	}

	return Decode(resp.Body)
}
