package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"summit/internal/core"
	"summit/internal/export"
	ports "summit/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and the credentials used to reach it.
type Config struct {
	SpreadsheetID   string
	TabPrefix       string
	CredentialsJSON string
	CredentialsFile string
}

// Client writes each processed journal of a dataset into its own tab.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabPrefix     string
}

var _ ports.Mirror = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx, cfg.CredentialsJSON, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return newClient(svc, spreadsheetID, cfg.TabPrefix), nil
}

func newClient(svc *gsheet.Service, spreadsheetID, tabPrefix string) *Client {
	if strings.TrimSpace(tabPrefix) == "" {
		tabPrefix = "Summit"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, tabPrefix: tabPrefix}
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials, inline JSON first, then the credentials file.
func newSheetsService(ctx context.Context, serviceAccountJSON, serviceAccountFile string) (*gsheet.Service, error) {
	serviceAccountJSON = strings.TrimSpace(serviceAccountJSON)
	serviceAccountFile = strings.TrimSpace(serviceAccountFile)

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// WriteJournal creates the journal's tab when missing and replaces its
// values with table. Values are written RAW so amounts keep their text.
func (c *Client) WriteJournal(ctx context.Context, key core.DatasetKey, journalType core.JournalType, table export.Table) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	name := ports.TabName(c.tabPrefix, key, journalType)
	tabs, err := c.tabs(ctx)
	if err != nil {
		return "", err
	}
	if _, ok := tabs[name]; !ok {
		if err := c.addTab(ctx, name); err != nil {
			return "", err
		}
	}

	rng := quoteTab(name)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear tab %q: %w", name, err)
	}

	vr := &gsheet.ValueRange{Values: toValues(table)}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update tab %q: %w", name, err)
	}

	slog.InfoContext(ctx, "Wrote journal tab",
		"tab", name,
		"rows", len(table.Rows),
		"updated_range", resp.UpdatedRange)
	return resp.UpdatedRange, nil
}

// ClearDataset deletes every tab of the dataset. A spreadsheet must keep at
// least one sheet, so when the dataset owns all of them the last one is
// emptied instead.
func (c *Client) ClearDataset(ctx context.Context, key core.DatasetKey) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	tabs, err := c.tabs(ctx)
	if err != nil {
		return err
	}

	prefix := ports.DatasetTabPrefix(c.tabPrefix, key)
	var requests []*gsheet.Request
	var keep string
	for title, id := range tabs {
		if !strings.HasPrefix(title, prefix) {
			continue
		}
		if len(requests) == len(tabs)-1 {
			keep = title
			continue
		}
		requests = append(requests, &gsheet.Request{
			DeleteSheet: &gsheet.DeleteSheetRequest{SheetId: id, ForceSendFields: []string{"SheetId"}},
		})
	}

	if len(requests) > 0 {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: requests}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("delete dataset tabs: %w", err)
		}
	}
	if keep != "" {
		if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoteTab(keep), &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
			return fmt.Errorf("clear tab %q: %w", keep, err)
		}
	}

	slog.InfoContext(ctx, "Cleared dataset tabs",
		"job_id", key.JobID,
		"subsidiary_id", key.SubsidiaryID,
		"deleted", len(requests))
	return nil
}

// tabs maps sheet titles to sheet ids.
func (c *Client) tabs(ctx context.Context) (map[string]int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}

	out := make(map[string]int64, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		out[sh.Properties.Title] = sh.Properties.SheetId
	}
	return out, nil
}

func (c *Client) addTab(ctx context.Context, name string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %q: %w", name, err)
	}
	return nil
}

// quoteTab renders a sheet title as an A1 range reference.
func quoteTab(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func toValues(t export.Table) [][]interface{} {
	out := make([][]interface{}, 0, len(t.Rows)+1)
	out = append(out, toRow(t.Header))
	for _, r := range t.Rows {
		out = append(out, toRow(r))
	}
	return out
}

func toRow(cells []string) []interface{} {
	row := make([]interface{}, len(cells))
	for i, v := range cells {
		row[i] = v
	}
	return row
}
