// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// dataset ids from the path and uploads sent either as JSON or as a
// multipart spreadsheet.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"summit/internal/core"
	"summit/internal/ingest"
)

// ParseDatasetKey reads {job_id} and {subsidiary_id} from the route.
func ParseDatasetKey(r *http.Request) (core.DatasetKey, error) {
	jobID, err := parsePositiveID(r.PathValue("job_id"), "job_id")
	if err != nil {
		return core.DatasetKey{}, err
	}
	subID, err := parsePositiveID(r.PathValue("subsidiary_id"), "subsidiary_id")
	if err != nil {
		return core.DatasetKey{}, err
	}
	return core.DatasetKey{JobID: jobID, SubsidiaryID: subID}, nil
}

func parsePositiveID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Message: fmt.Sprintf("%s must be a positive integer, got %q", name, sanitizeInput(raw))}
	}
	return id, nil
}

// JournalUpload is a parsed journal file.
type JournalUpload struct {
	JournalType core.JournalType
	Filename    string
	Records     []core.Record
}

type journalUploadBody struct {
	JournalType string        `json:"journal_type"`
	Filename    string        `json:"filename"`
	Rows        []core.Record `json:"rows"`
}

// ParseJournalUpload reads a journal upload: a JSON body
// {journal_type, filename, rows} or a multipart form with journal_type and
// a CSV/XLSX file.
func ParseJournalUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (JournalUpload, error) {
	var (
		up      JournalUpload
		rawType string
	)

	if isMultipart(r) {
		records, filename, err := parseUploadedFile(w, r, maxBytes)
		if err != nil {
			return up, err
		}
		rawType = r.FormValue("journal_type")
		up.Filename, up.Records = filename, records
	} else {
		var body journalUploadBody
		if err := decodeJSONBody(w, r, maxBytes, &body); err != nil {
			return up, err
		}
		rawType = body.JournalType
		up.Filename, up.Records = sanitizeInput(body.Filename), body.Rows
	}

	if strings.TrimSpace(rawType) == "" {
		return up, &core.ValidationError{Message: "journal_type is required"}
	}
	jt, err := core.ParseJournalType(rawType)
	if err != nil {
		return up, err
	}
	if jt == core.JournalSummitInstallments {
		return up, &core.ValidationError{Message: fmt.Sprintf("%s is generated by processing and cannot be uploaded", jt)}
	}
	up.JournalType = jt
	return up, nil
}

type summitUploadBody struct {
	SummitData []core.Record `json:"summit_data"`
}

// ParseSummitUpload reads installment lines from a JSON body
// {summit_data: [{oak_id, region, installment_amount}]} or a multipart
// CSV/XLSX file.
func ParseSummitUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]core.InstallmentLine, error) {
	var records []core.Record

	if isMultipart(r) {
		recs, _, err := parseUploadedFile(w, r, maxBytes)
		if err != nil {
			return nil, err
		}
		records = recs
	} else {
		var body summitUploadBody
		if err := decodeJSONBody(w, r, maxBytes, &body); err != nil {
			return nil, err
		}
		records = body.SummitData
	}

	if len(records) == 0 {
		return nil, &core.ValidationError{Message: "no summit data provided"}
	}
	return core.NewInstallmentLines(records), nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return bodyError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &core.ValidationError{Message: "request body must contain a single JSON object"}
	}
	return nil
}

func parseUploadedFile(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]core.Record, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, "", bodyError(err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", &core.ValidationError{Message: "no file provided"}
	}
	defer file.Close()

	filename := sanitizeInput(header.Filename)
	if filename == "" {
		return nil, "", &core.ValidationError{Message: "no file selected"}
	}

	records, err := ingest.ParseTable(filename, file)
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return nil, "", &core.ValidationError{Message: "invalid file type, expected CSV or XLSX", Err: err}
	case errors.Is(err, ingest.ErrEmptyFile):
		return nil, "", &core.ValidationError{Message: fmt.Sprintf("%s contains no rows", filename)}
	case err != nil:
		return nil, "", &core.ValidationError{Message: fmt.Sprintf("cannot read %s", filename), Err: err}
	}
	return records, filename, nil
}

// errRequestTooLarge is mapped to 413 by writeError.
var errRequestTooLarge = errors.New("request body too large")

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: limit is %d bytes", errRequestTooLarge, maxErr.Limit)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return &core.ValidationError{Message: "request body is empty"}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return &core.ValidationError{Message: "malformed JSON body", Err: err}
	}
	return &core.ValidationError{Message: "invalid request body", Err: err}
}
