// Package sheets implements the store contract against a spreadsheet
// values API. A sheet's first row carries the headers; every cell is a
// string. The workbook service is rate limited, so HTTP 429 and 5xx map
// to transient store errors for the caller's retry policy.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ritetech/rcm-intake/internal/store"
)

type Config struct {
	BaseURL       string        `mapstructure:"base_url"`
	SpreadsheetID string        `mapstructure:"spreadsheet_id"`
	Token         string        `mapstructure:"token"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Backend talks to the workbook over its REST values API. One shared
// http.Client is reused for the life of the process.
type Backend struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Backend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Backend{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values"`
}

func (b *Backend) ReadAll(ctx context.Context, table string) ([]store.Row, error) {
	grid, err := b.readGrid(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(grid) < 2 {
		return nil, nil
	}

	headers := grid[0]
	rows := make([]store.Row, 0, len(grid)-1)
	for _, raw := range grid[1:] {
		r := store.Row{}
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(raw) {
				r[h] = raw[i]
			} else {
				r[h] = ""
			}
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func (b *Backend) AppendRow(ctx context.Context, table string, headers, values []string) error {
	if err := b.EnsureSchema(ctx, table, headers); err != nil {
		return err
	}
	body := valueRange{Values: [][]string{values}}
	path := fmt.Sprintf("/values/%s:append?valueInputOption=USER_ENTERED", url.PathEscape(table))
	return b.do(ctx, http.MethodPost, path, body, nil, "append", table)
}

func (b *Backend) UpsertByKey(ctx context.Context, table, keyColumn string, headers []string, record store.Row) error {
	if err := b.EnsureSchema(ctx, table, headers); err != nil {
		return err
	}

	grid, err := b.readGrid(ctx, table)
	if err != nil {
		return err
	}

	values := make([]string, len(headers))
	for i, h := range headers {
		values[i] = record[h]
	}

	if len(grid) > 1 {
		keyIdx := indexOf(grid[0], keyColumn)
		if keyIdx >= 0 {
			for i, raw := range grid[1:] {
				if keyIdx < len(raw) && raw[keyIdx] == record[keyColumn] {
					// Sheet rows are 1-based and row 1 is the header.
					rng := fmt.Sprintf("%s!A%d", table, i+2)
					path := fmt.Sprintf("/values/%s?valueInputOption=USER_ENTERED", url.PathEscape(rng))
					return b.do(ctx, http.MethodPut, path, valueRange{Values: [][]string{values}}, nil, "upsert", table)
				}
			}
		}
	}

	path := fmt.Sprintf("/values/%s:append?valueInputOption=USER_ENTERED", url.PathEscape(table))
	return b.do(ctx, http.MethodPost, path, valueRange{Values: [][]string{values}}, nil, "upsert", table)
}

func (b *Backend) EnsureSchema(ctx context.Context, table string, columns []string) error {
	grid, err := b.readGrid(ctx, table)
	if err != nil {
		return err
	}

	var header []string
	if len(grid) > 0 {
		header = grid[0]
	}
	if containsAll(header, columns) {
		return nil
	}

	if len(grid) == 0 {
		// Best effort: the tab may not exist at all. An "already
		// exists" rejection is fine, the header write below settles it.
		req := map[string]interface{}{
			"requests": []interface{}{
				map[string]interface{}{
					"addSheet": map[string]interface{}{
						"properties": map[string]interface{}{"title": table},
					},
				},
			},
		}
		if err := b.do(ctx, http.MethodPost, ":batchUpdate", req, nil, "ensure_schema", table); err != nil && store.IsTransient(err) {
			return err
		}
	}

	merged := append([]string{}, header...)
	for _, c := range columns {
		if indexOf(merged, c) < 0 {
			merged = append(merged, c)
		}
	}
	rng := fmt.Sprintf("%s!A1", table)
	path := fmt.Sprintf("/values/%s?valueInputOption=USER_ENTERED", url.PathEscape(rng))
	return b.do(ctx, http.MethodPut, path, valueRange{Values: [][]string{merged}}, nil, "ensure_schema", table)
}

// errSheetMissing marks a 404 from the values API: the tab has not been
// created yet. Readers treat that the same as an empty sheet.
var errSheetMissing = errors.New("sheet missing")

func (b *Backend) readGrid(ctx context.Context, table string) ([][]string, error) {
	var out valueRange
	path := "/values/" + url.PathEscape(table)
	if err := b.do(ctx, http.MethodGet, path, nil, &out, "read", table); err != nil {
		if errors.Is(err, errSheetMissing) {
			return nil, nil
		}
		return nil, err
	}
	return out.Values, nil
}

func (b *Backend) do(ctx context.Context, method, path string, body, out interface{}, op, table string) error {
	u := strings.TrimRight(b.cfg.BaseURL, "/") + "/" + b.cfg.SpreadsheetID + path

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return store.NewPermanent(op, table, err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return store.NewPermanent(op, table, err)
	}
	req.Header.Set("Authorization", "Bearer "+b.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return store.NewTransient(op, table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("workbook API %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return store.NewTransient(op, table, err)
		case resp.StatusCode == http.StatusNotFound:
			return store.NewPermanent(op, table, fmt.Errorf("%w: %v", errSheetMissing, err))
		}
		return store.NewPermanent(op, table, err)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return store.NewPermanent(op, table, err)
		}
	}
	return nil
}

func indexOf(ss []string, want string) int {
	for i, s := range ss {
		if s == want {
			return i
		}
	}
	return -1
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if indexOf(have, w) < 0 {
			return false
		}
	}
	return len(have) > 0
}
