package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"summit/internal/services"
	"summit/internal/storage"
)

func newTestServer(t *testing.T, rateLimit int) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "summit.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	svc := services.NewReconcileService(repo, nil, services.Options{EUSubsidiaryID: 4})
	srv := NewServer(":0", svc, Options{MaxUploadBytes: 1 << 20, RateLimitPerMinute: rateLimit})
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = svc.Close()
	})
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

// jsonBody decodes numbers as json.Number so amounts compare as text.
func jsonBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(rr.Body.Bytes()))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return body
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, want, rr.Body.String())
	}
}

func num(v any) string {
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	return ""
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, 100)

	rr := do(t, srv, http.MethodGet, "/", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "Summit Installments") {
		t.Fatalf("index body missing heading")
	}
	if !strings.Contains(rr.Body.String(), "Cross_Subsidiary_EU") {
		t.Fatalf("index body missing journal types")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/static/app.css"} {
		rr := do(t, srv, http.MethodGet, path, "")
		expectStatus(t, rr, http.StatusOK)
	}

	rr = do(t, srv, http.MethodGet, "/metrics", "")
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("metrics body %s", rr.Body.String())
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}
}

func uploadWorkedExample(t *testing.T, srv *Server, dataset string) {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/upload-journals/"+dataset,
		`{"journal_type":"Main","filename":"main.csv","rows":[{"Client":"A","Invoice":"INV-1","Amount":"100"}]}`)
	expectStatus(t, rr, http.StatusCreated)
	rr = do(t, srv, http.MethodPost, "/upload-journals/"+dataset,
		`{"journal_type":"POA","filename":"poa.csv","rows":[{"Client":"A","Invoice":"INV-2","Amount":"50"}]}`)
	expectStatus(t, rr, http.StatusCreated)
	rr = do(t, srv, http.MethodPost, "/upload-summit/"+dataset,
		`{"summit_data":[{"oak_id":"A","region":"IE","installment_amount":90}]}`)
	expectStatus(t, rr, http.StatusOK)
}

func TestWorkflow_WorkedExample(t *testing.T) {
	srv := newTestServer(t, 1000)
	uploadWorkedExample(t, srv, "7/1")

	rr := do(t, srv, http.MethodGet, "/status/7/1", "")
	expectStatus(t, rr, http.StatusOK)
	status := jsonBody(t, rr)
	if status["dataset_status"] != "summit_uploaded" || status["summit_uploaded"] != true {
		t.Fatalf("status before processing = %v", status)
	}
	original := status["original_journals"].(map[string]any)
	if num(original["count"]) != "2" || num(original["total"]) != "150.00" {
		t.Fatalf("original_journals = %v", original)
	}

	rr = do(t, srv, http.MethodPost, "/process/7/1", "")
	expectStatus(t, rr, http.StatusOK)
	proc := jsonBody(t, rr)
	if proc["success"] != true || proc["verification_passed"] != true {
		t.Fatalf("process = %v", proc)
	}
	checks := map[string]string{
		"matched_count":       "1",
		"unmatched_count":     "0",
		"total_summit_amount": "90.00",
		"original_total":      "150.00",
		"processed_total":     "150.00",
		"difference":          "0.00",
	}
	for field, want := range checks {
		if got := num(proc[field]); got != want {
			t.Errorf("%s = %q, want %q", field, got, want)
		}
	}
	if files, _ := proc["generated_files"].([]any); len(files) != 3 {
		t.Errorf("generated_files = %v", proc["generated_files"])
	}

	rr = do(t, srv, http.MethodGet, "/status/7/1", "")
	status = jsonBody(t, rr)
	if status["processing_complete"] != true || status["last_run"] == nil {
		t.Fatalf("status after processing = %v", status)
	}
	processed := status["processed_journals"].(map[string]any)
	if num(processed["summit_total"]) != "90.00" || num(processed["total"]) != "150.00" {
		t.Fatalf("processed_journals = %v", processed)
	}

	rr = do(t, srv, http.MethodGet, "/list-journals/7/1", "")
	expectStatus(t, rr, http.StatusOK)
	if journals, _ := jsonBody(t, rr)["journals"].([]any); len(journals) != 3 {
		t.Fatalf("journals = %v", journals)
	}

	rr = do(t, srv, http.MethodGet, "/download/7/1/Main", "")
	expectStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if got := rr.Body.String(); got != "Client,Invoice,Amount\nA,INV-1,40.00\n" {
		t.Fatalf("Main csv = %q", got)
	}

	rr = do(t, srv, http.MethodGet, "/download/7/1/POA", "")
	if !strings.Contains(rr.Body.String(), "A,INV-2,20.00") {
		t.Fatalf("POA csv = %q", rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/download/7/1/Salon_Summit_Installments", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.HasPrefix(rr.Body.String(), "client_id,region,amount") || !strings.Contains(rr.Body.String(), "A,IE,90.00") {
		t.Fatalf("summit csv = %q", rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/download/7/1/Main?format=xlsx", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Header().Get("Content-Type"), "spreadsheetml") || !strings.Contains(rr.Header().Get("Content-Disposition"), "Main_job7_sub1.xlsx") {
		t.Fatalf("xlsx headers = %v", rr.Header())
	}

	rr = do(t, srv, http.MethodGet, "/download/7/1/Main?format=pdf", "")
	expectStatus(t, rr, http.StatusBadRequest)

	rr = do(t, srv, http.MethodPost, "/process/7/1", "")
	expectStatus(t, rr, http.StatusConflict)

	rr = do(t, srv, http.MethodDelete, "/clear/7/1", "")
	expectStatus(t, rr, http.StatusOK)
	cleared := jsonBody(t, rr)
	if deleted := cleared["deleted"].(map[string]any); num(deleted["processed"]) != "3" || num(deleted["installments"]) != "1" {
		t.Fatalf("deleted = %v", deleted)
	}

	rr = do(t, srv, http.MethodGet, "/status/7/1", "")
	if st := jsonBody(t, rr); st["dataset_status"] != "journals_uploaded" {
		t.Fatalf("status after clear = %v", st)
	}
	rr = do(t, srv, http.MethodGet, "/download/7/1/Main", "")
	expectStatus(t, rr, http.StatusNotFound)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, 1000)
	rr := do(t, srv, http.MethodPost, "/upload-journals/2/1",
		`{"journal_type":"Main","rows":[{"Client":"A","Amount":"10"}]}`)
	expectStatus(t, rr, http.StatusCreated)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"invalid job id", http.MethodGet, "/status/0/1", "", http.StatusBadRequest},
		{"non numeric subsidiary", http.MethodGet, "/list-journals/1/x", "", http.StatusBadRequest},
		{"process empty dataset", http.MethodPost, "/process/1/1", "", http.StatusNotFound},
		{"summit before journals", http.MethodPost, "/upload-summit/1/1", `{"summit_data":[{"oak_id":"A","installment_amount":1}]}`, http.StatusBadRequest},
		{"process before summit", http.MethodPost, "/process/2/1", "", http.StatusBadRequest},
		{"duplicate journal type", http.MethodPost, "/upload-journals/2/1", `{"journal_type":"Main","rows":[{"Client":"B","Amount":"1"}]}`, http.StatusConflict},
		{"journal type of other subsidiary", http.MethodPost, "/upload-journals/2/1", `{"journal_type":"Main_EU","rows":[{"Client":"B","Amount":"1"}]}`, http.StatusBadRequest},
		{"non numeric amount", http.MethodPost, "/upload-journals/2/1", `{"journal_type":"POA","rows":[{"Client":"B","Amount":"ten"}]}`, http.StatusBadRequest},
		{"download before processing", http.MethodGet, "/download/2/1/Main", "", http.StatusNotFound},
		{"download unknown type", http.MethodGet, "/download/2/1/Bogus", "", http.StatusBadRequest},
		{"clear empty dataset", http.MethodDelete, "/clear/1/1", "", http.StatusNotFound},
		{"combined data empty", http.MethodGet, "/combined-data/1/1", "", http.StatusNotFound},
		{"unmatched before processing", http.MethodGet, "/download-unmatched/2/1", "", http.StatusNotFound},
		{"malformed body", http.MethodPost, "/upload-summit/2/1", `{"summit_data":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body)
			expectStatus(t, rr, tt.want)
			body := jsonBody(t, rr)
			if body["success"] != false {
				t.Fatalf("success = %v", body["success"])
			}
			if msg, _ := body["message"].(string); msg == "" {
				t.Fatal("message is empty")
			}
		})
	}

	rr = do(t, srv, http.MethodGet, "/process/2/1", "")
	expectStatus(t, rr, http.StatusMethodNotAllowed)
}

func TestJournalUploadEndpoints(t *testing.T) {
	srv := newTestServer(t, 1000)

	rr := do(t, srv, http.MethodGet, "/journals-upload-status/3/1", "")
	expectStatus(t, rr, http.StatusOK)
	if body := jsonBody(t, rr); body["any_uploaded"] != false {
		t.Fatalf("upload status = %v", body)
	}

	req := multipartRequest(t, "/upload-journals/3/1", map[string]string{"journal_type": "Main"}, "main.csv",
		"Client,Invoice,Amount,Memo\nA,INV-1,100,first\nB,INV-2,,second\n")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusCreated)
	if body := jsonBody(t, rr); num(body["created"]) != "2" || num(body["total"]) != "100.00" || body["dataset_status"] != "journals_uploaded" {
		t.Fatalf("upload = %v", body)
	}

	rr = do(t, srv, http.MethodGet, "/journals-upload-status/3/1", "")
	body := jsonBody(t, rr)
	uploaded := body["uploaded"].(map[string]any)
	if body["any_uploaded"] != true || body["all_uploaded"] != false || uploaded["Main"] != true || uploaded["POA"] != false {
		t.Fatalf("upload status = %v", body)
	}

	rr = do(t, srv, http.MethodGet, "/combined-data/3/1", "")
	expectStatus(t, rr, http.StatusOK)
	body = jsonBody(t, rr)
	rows := body["rows"].([]any)
	if len(rows) != 2 || num(body["total"]) != "100.00" {
		t.Fatalf("combined = %v", body)
	}
	first := rows[0].(map[string]any)
	if first["_journal_type"] != "Main" || first["_amount"] != "100.00" || first["Memo"] != "first" {
		t.Fatalf("first row = %v", first)
	}

	rr = do(t, srv, http.MethodDelete, "/clear-journals/3/1", "")
	expectStatus(t, rr, http.StatusOK)
	if deleted := jsonBody(t, rr)["deleted"].(map[string]any); num(deleted["journals"]) != "2" {
		t.Fatalf("deleted = %v", deleted)
	}
	rr = do(t, srv, http.MethodGet, "/status/3/1", "")
	if st := jsonBody(t, rr); st["dataset_status"] != "empty" {
		t.Fatalf("status = %v", st)
	}
}

func TestMatchAndUnmatchedEndpoints(t *testing.T) {
	srv := newTestServer(t, 1000)
	rr := do(t, srv, http.MethodPost, "/upload-journals/5/1",
		`{"journal_type":"Main","rows":[{"Client":"A","Amount":"100"},{"Client":"B","Amount":"5"}]}`)
	expectStatus(t, rr, http.StatusCreated)
	rr = do(t, srv, http.MethodPost, "/upload-summit/5/1",
		`{"summit_data":[{"oak_id":"A","installment_amount":60},{"oak_id":"A","installment_amount":30},{"oak_id":"B","installment_amount":10},{"oak_id":"Z","region":"UK","installment_amount":7}]}`)
	expectStatus(t, rr, http.StatusOK)
	upload := jsonBody(t, rr)
	if num(upload["client_count"]) != "3" || num(upload["duplicates_combined"]) != "1" || num(upload["total_amount"]) != "107.00" {
		t.Fatalf("summit upload = %v", upload)
	}

	rr = do(t, srv, http.MethodPost, "/match-summit/5/1", "")
	expectStatus(t, rr, http.StatusOK)
	match := jsonBody(t, rr)
	if len(match["matched"].([]any)) != 1 || len(match["insufficient"].([]any)) != 1 || len(match["unmatched"].([]any)) != 1 {
		t.Fatalf("match = %v", match)
	}
	rr = do(t, srv, http.MethodPost, "/match-summit/5/1", "")
	expectStatus(t, rr, http.StatusConflict)

	rr = do(t, srv, http.MethodGet, "/match-results/5/1", "")
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, srv, http.MethodGet, "/download-match-results/5/1/unmatched", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.HasPrefix(rr.Body.String(), "Client ID,Total Received,Installment Amount,Remaining Amount,Status\n") || !strings.Contains(rr.Body.String(), "Z,") {
		t.Fatalf("match csv = %q", rr.Body.String())
	}
	rr = do(t, srv, http.MethodGet, "/download-match-results/5/1/bogus", "")
	expectStatus(t, rr, http.StatusBadRequest)

	rr = do(t, srv, http.MethodDelete, "/clear-matches/5/1", "")
	expectStatus(t, rr, http.StatusOK)
	if n := num(jsonBody(t, rr)["deleted_count"]); n != "3" {
		t.Fatalf("deleted_count = %s", n)
	}
	rr = do(t, srv, http.MethodDelete, "/clear-matches/5/1", "")
	expectStatus(t, rr, http.StatusNotFound)

	rr = do(t, srv, http.MethodPost, "/process/5/1", "")
	expectStatus(t, rr, http.StatusOK)
	proc := jsonBody(t, rr)
	if num(proc["matched_count"]) != "1" || num(proc["unmatched_count"]) != "2" || num(proc["unmatched_summit_total"]) != "17.00" {
		t.Fatalf("process = %v", proc)
	}

	rr = do(t, srv, http.MethodGet, "/download-unmatched/5/1", "")
	expectStatus(t, rr, http.StatusOK)
	csv := rr.Body.String()
	if !strings.HasPrefix(csv, "OAK ID,Region,Amount (Instalment),Reason\n") || !strings.Contains(csv, "Z,UK,7.00,Not found in journals") {
		t.Fatalf("unmatched csv = %q", csv)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	srv := newTestServer(t, 1)

	rr := do(t, srv, http.MethodDelete, "/clear/1/1", "")
	expectStatus(t, rr, http.StatusNotFound)

	rr = do(t, srv, http.MethodGet, "/status/1/1", "")
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, srv, http.MethodDelete, "/clear/1/1", "")
	expectStatus(t, rr, http.StatusTooManyRequests)
	if body := jsonBody(t, rr); body["success"] != false || rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("rate limited response = %v", body)
	}
}
