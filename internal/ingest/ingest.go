// Package ingest turns uploaded files into stored tables and keeps an import history
package ingest

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/julienbonastre/tariff-helpers/internal/database"
	"github.com/julienbonastre/tariff-helpers/internal/logging"
	"github.com/julienbonastre/tariff-helpers/internal/metrics"
	"github.com/julienbonastre/tariff-helpers/internal/table"
)

//go:embed demo/*.csv
var demoFS embed.FS

// expectedColumns are the headers each file type is normally used with.
// Absent columns are reported as warnings, not rejected.
var expectedColumns = map[table.FileType][]string{
	table.FileTypeSupplyChain: {
		table.ColRawMaterial, table.ColExportCountry, table.ColImportCountry,
		table.ColTariffs, table.ColSubCategory, table.ColPercentRequired,
	},
	table.FileTypeProduct: {
		table.ColRawMaterial, table.ColFromCountry, table.ColToCountry,
		table.ColBasePrice, table.ColCurrentTariff,
	},
}

// Result describes a stored upload
type Result struct {
	Table    table.Summary `json:"table"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Service handles table intake
type Service struct {
	db     *database.DB
	logger *zap.Logger
}

// NewService creates a new ingest service
func NewService(db *database.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger.Named("ingest")}
}

// Ingest parses, maps and stores one upload. Every attempt leaves an import
// history record that ends in success or failed.
func (s *Service) Ingest(ctx context.Context, fileName string, fileType table.FileType, r io.Reader) (*Result, error) {
	start := time.Now()
	history := &database.ImportHistory{
		FileName:  fileName,
		FileType:  string(fileType),
		Status:    database.ImportRunning,
		StartedAt: start,
	}
	if err := s.db.CreateImportHistory(history); err != nil {
		return nil, fmt.Errorf("failed to create import history: %w", err)
	}

	log := logging.WithFields(s.logger, map[string]interface{}{
		"file":     fileName,
		"fileType": string(fileType),
		"importId": history.ID,
	})
	log.Info("Importing table")

	result, err := s.store(ctx, log, fileName, fileType, r)

	now := time.Now().UTC()
	history.CompletedAt = &now
	rows := 0
	if err != nil {
		history.Status = database.ImportFailed
		history.ErrorMessage = err.Error()
		log.Warn("Import failed", zap.Error(err))
	} else {
		rows = result.Table.RowCount
		history.Status = database.ImportSuccess
		history.TableID = result.Table.ID
		history.RowsImported = rows
		log.Info("Import complete", zap.String("tableId", result.Table.ID), zap.Int("rows", rows), zap.Int("warnings", len(result.Warnings)))
	}
	metrics.RecordUpload(string(fileType), rows, time.Since(start), err)

	if uerr := s.db.UpdateImportHistory(history); uerr != nil {
		return nil, fmt.Errorf("failed to update import history: %w", uerr)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) store(ctx context.Context, log *zap.Logger, fileName string, fileType table.FileType, r io.Reader) (*Result, error) {
	tbl, err := table.Read(fileName, fileType, r)
	if err != nil {
		return nil, err
	}

	warnings, err := validate(tbl)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logging.LogDataQualityEvent(log, fileName, w, "warning")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.db.SaveTable(tbl); err != nil {
		return nil, err
	}

	return &Result{Table: tbl.Summary(), Warnings: warnings}, nil
}

// validate maps the table onto its record type and lists expected columns it lacks
func validate(tbl *table.UploadedTable) ([]string, error) {
	var warnings []string
	if err := tbl.RequireColumns(expectedColumns[tbl.FileType]...); err != nil {
		var mc *table.MissingColumnsError
		if !errors.As(err, &mc) {
			return nil, err
		}
		warnings = append(warnings, mc.Error())
	}

	var err error
	switch tbl.FileType {
	case table.FileTypeSupplyChain:
		_, err = tbl.SupplyRecords()
	case table.FileTypeProduct:
		_, err = tbl.ProductRecords()
	default:
		err = fmt.Errorf("%w: %q", table.ErrUnknownFileType, tbl.FileType)
	}
	if err != nil {
		return nil, err
	}

	if len(tbl.Rows) == 0 {
		warnings = append(warnings, "file has a header row but no data rows")
	}
	return warnings, nil
}

// SeedDemo stores the bundled demo tables when no table of that type exists yet
func (s *Service) SeedDemo(ctx context.Context) error {
	demos := []struct {
		file     string
		fileType table.FileType
	}{
		{"supply_chain.csv", table.FileTypeSupplyChain},
		{"product.csv", table.FileTypeProduct},
	}

	for _, d := range demos {
		existing, err := s.db.LatestTable(d.fileType)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		data, err := demoFS.ReadFile("demo/" + d.file)
		if err != nil {
			return fmt.Errorf("failed to read demo file %s: %w", d.file, err)
		}
		if _, err := s.Ingest(ctx, d.file, d.fileType, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("failed to seed %s: %w", d.file, err)
		}
	}
	return nil
}
