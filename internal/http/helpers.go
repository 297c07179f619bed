package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"summit/internal/core"
	"summit/internal/export"
	"summit/internal/log"
)

// amount renders a decimal as a JSON number with two places.
func amount(d decimal.Decimal) json.Number {
	return json.Number(core.FormatAmount(d))
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// writeError maps domain errors onto status codes. Unknown errors are
// logged and answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, key core.DatasetKey, err error) {
	status, errorType := http.StatusInternalServerError, log.ErrorTypeInternal
	message := "internal server error"

	switch {
	case core.IsValidation(err):
		status, errorType, message = http.StatusBadRequest, log.ErrorTypeValidation, err.Error()
	case core.IsState(err):
		status, errorType, message = http.StatusBadRequest, log.ErrorTypeState, err.Error()
	case core.IsConflict(err):
		status, errorType, message = http.StatusConflict, log.ErrorTypeConflict, err.Error()
	case core.IsNotFound(err):
		status, errorType, message = http.StatusNotFound, log.ErrorTypeNotFound, err.Error()
	case errors.Is(err, errRequestTooLarge):
		status, errorType, message = http.StatusRequestEntityTooLarge, log.ErrorTypeValidation, err.Error()
	}

	fields := log.NewFields().WithOperation(op)
	if key != (core.DatasetKey{}) {
		fields = fields.WithDataset(key.JobID, key.SubsidiaryID)
	}
	logger := log.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", fields.WithError(err, errorType).ToSlice()...)
	} else {
		logger.InfoContext(r.Context(), "Request rejected", fields.WithError(err, errorType).ToSlice()...)
	}

	ErrorResponse(status, message).Write(w)
}

// writeTable renders t as a download. The file is built in memory first so
// a rendering failure can still be answered with a JSON error.
func (s *Server) writeTable(w http.ResponseWriter, r *http.Request, key core.DatasetKey, name string, t export.Table) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, log.OpDownload, key, err)
		return
	}

	var buf bytes.Buffer
	if err := t.Write(&buf, format); err != nil {
		s.writeError(w, r, log.OpDownload, key, fmt.Errorf("render %s: %w", name, err))
		return
	}

	filename := fmt.Sprintf("%s_job%d_sub%d.%s", name, key.JobID, key.SubsidiaryID, format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
