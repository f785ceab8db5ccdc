package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/IshaanNene/CertGoat/internal/certificate"
)

// XLSXStorage writes a workbook with a "certificates" sheet and a "metadata"
// sheet. Each Store rewrites the workbook.
type XLSXStorage struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

const (
	certificatesSheet = "certificates"
	metadataSheet     = "metadata"
)

// NewXLSXStorage creates a new Excel storage.
func NewXLSXStorage(outputPath string, logger *slog.Logger) (*XLSXStorage, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &XLSXStorage{
		path:   outputPath,
		logger: logger.With("component", "xlsx_storage"),
	}, nil
}

func (s *XLSXStorage) Name() string { return "xlsx" }

func (s *XLSXStorage) Store(out *certificate.Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), certificatesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(certificatesSheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for i, rec := range out.Certificates {
		r := i + 2
		for col, v := range flatRow(rec) {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, r)
			if err := f.SetCellValue(certificatesSheet, cell, v); err != nil {
				return fmt.Errorf("write %s row %d: %w", rec.ISIN, r, err)
			}
		}
	}

	if err := writeMetadataSheet(f, out.Metadata); err != nil {
		return err
	}

	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	s.logger.Info("XLSX written", "path", s.path, "certificates", len(out.Certificates))
	return nil
}

func writeMetadataSheet(f *excelize.File, meta certificate.Metadata) error {
	if _, err := f.NewSheet(metadataSheet); err != nil {
		return fmt.Errorf("create metadata sheet: %w", err)
	}

	rows := [][2]any{
		{"timestamp", meta.Timestamp.UTC().Format("2006-01-02T15:04:05Z")},
		{"total", meta.Total},
		{"enriched", meta.Enriched},
		{"failed", meta.Failed},
		{"excluded", meta.Excluded},
		{"rejected_isins", meta.RejectedISINs},
		{"rules_version", meta.RulesVersion},
	}
	for i, src := range meta.Sources {
		rows = append(rows, [2]any{fmt.Sprintf("source_%d", i+1), src})
	}

	for i, row := range rows {
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+1)
			if err := f.SetCellValue(metadataSheet, cell, v); err != nil {
				return fmt.Errorf("write metadata: %w", err)
			}
		}
	}
	return nil
}

func (s *XLSXStorage) Close() error { return nil }
