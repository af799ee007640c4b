package controllers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/internal/imports"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

const (
	maxImportBytes = 10 << 20
	xlsxMediaType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ImportInventory accepts a multipart "file" field holding a CSV or XLSX
// sheet and applies it row by row. Row failures are reported, not fatal.
func ImportInventory(svc imports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "import service unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
		if err := r.ParseMultipartForm(maxImportBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart upload"))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file field is required"))
			return
		}
		defer file.Close()

		parse := imports.ParseCSV
		if isSpreadsheet(header.Filename, header.Header.Get("Content-Type")) {
			parse = imports.ParseXLSX
		}
		rows, err := parse(io.Reader(file))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable import file"))
			return
		}

		ctx := logg.WithFields(r.Context(), map[string]any{
			"file": header.Filename,
			"rows": len(rows),
		})
		report, err := svc.Apply(ctx, tenantID, rows)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(ctx, "inventory.import.completed")

		responses.WriteSuccess(w, report)
	}
}

func isSpreadsheet(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(contentType), xlsxMediaType)
}
