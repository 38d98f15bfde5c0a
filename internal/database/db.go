package database

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/julienbonastre/tariff-helpers/internal/table"
	"github.com/julienbonastre/tariff-helpers/internal/tariff"
)

//go:embed schema.sql
var schemaSQL string

// ErrTableNotFound is returned when deleting a table that does not exist
var ErrTableNotFound = errors.New("table not found")

// ErrSettingNotFound is returned when updating a key that was never seeded
var ErrSettingNotFound = errors.New("setting not found")

// Import statuses
const (
	ImportRunning = "running"
	ImportSuccess = "success"
	ImportFailed  = "failed"
)

// DB wraps the SQLite database
type DB struct {
	*sql.DB
}

// ImportHistory represents one upload attempt
type ImportHistory struct {
	ID           int64      `json:"id"`
	TableID      string     `json:"tableId,omitempty"`
	FileName     string     `json:"fileName"`
	FileType     string     `json:"fileType"`
	Status       string     `json:"status"` // "running", "success", "failed"
	RowsImported int        `json:"rowsImported"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Open opens or creates the database
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

// SaveTable stores an uploaded table
func (db *DB) SaveTable(t *table.UploadedTable) error {
	headers, err := json.Marshal(t.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	rows, err := json.Marshal(t.Rows)
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO uploaded_tables (id, file_name, file_type, headers, data_rows, row_count, upload_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.FileName, string(t.FileType), string(headers), string(rows), len(t.Rows), t.UploadDate.UTC())
	if err != nil {
		return fmt.Errorf("failed to save table %s: %w", t.FileName, err)
	}
	return nil
}

// GetTable retrieves a table by ID. Returns nil if not found.
func (db *DB) GetTable(id string) (*table.UploadedTable, error) {
	return db.scanTable(db.QueryRow(`
		SELECT id, file_name, file_type, headers, data_rows, upload_date
		FROM uploaded_tables
		WHERE id = ?
	`, id))
}

// LatestTable returns the most recently uploaded table of a type. Returns nil if none.
func (db *DB) LatestTable(fileType table.FileType) (*table.UploadedTable, error) {
	return db.scanTable(db.QueryRow(`
		SELECT id, file_name, file_type, headers, data_rows, upload_date
		FROM uploaded_tables
		WHERE file_type = ?
		ORDER BY upload_date DESC, rowid DESC
		LIMIT 1
	`, string(fileType)))
}

func (db *DB) scanTable(row *sql.Row) (*table.UploadedTable, error) {
	var t table.UploadedTable
	var fileType, headers, rows string
	err := row.Scan(&t.ID, &t.FileName, &fileType, &headers, &rows, &t.UploadDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.FileType = table.FileType(fileType)
	if err := json.Unmarshal([]byte(headers), &t.Headers); err != nil {
		return nil, fmt.Errorf("failed to decode headers of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(rows), &t.Rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows of %s: %w", t.ID, err)
	}
	return &t, nil
}

// ListTables returns summaries of all tables, newest first
func (db *DB) ListTables() ([]table.Summary, error) {
	rows, err := db.Query(`
		SELECT id, file_name, file_type, headers, row_count, upload_date
		FROM uploaded_tables
		ORDER BY upload_date DESC, rowid DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []table.Summary{}
	for rows.Next() {
		var s table.Summary
		var fileType, headers string
		if err := rows.Scan(&s.ID, &s.FileName, &fileType, &headers, &s.RowCount, &s.UploadDate); err != nil {
			return nil, err
		}
		s.FileType = table.FileType(fileType)
		if err := json.Unmarshal([]byte(headers), &s.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers of %s: %w", s.ID, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DeleteTable removes a table by ID
func (db *DB) DeleteTable(id string) error {
	result, err := db.Exec(`DELETE FROM uploaded_tables WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTableNotFound, id)
	}
	return nil
}

// CreateImportHistory creates a new import history record
func (db *DB) CreateImportHistory(ih *ImportHistory) error {
	result, err := db.Exec(`
		INSERT INTO import_history (table_id, file_name, file_type, status, rows_imported, error_message, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ih.TableID, ih.FileName, ih.FileType, ih.Status, ih.RowsImported, ih.ErrorMessage, ih.StartedAt.UTC())
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	ih.ID = id
	return nil
}

// UpdateImportHistory updates an import history record
func (db *DB) UpdateImportHistory(ih *ImportHistory) error {
	_, err := db.Exec(`
		UPDATE import_history
		SET table_id = ?, status = ?, rows_imported = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, ih.TableID, ih.Status, ih.RowsImported, ih.ErrorMessage, ih.CompletedAt, ih.ID)
	return err
}

// GetImportHistory returns the newest import records
func (db *DB) GetImportHistory(limit int) ([]ImportHistory, error) {
	rows, err := db.Query(`
		SELECT id, COALESCE(table_id, ''), file_name, file_type, status, rows_imported, error_message, started_at, completed_at
		FROM import_history
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []ImportHistory{}
	for rows.Next() {
		var ih ImportHistory
		err := rows.Scan(&ih.ID, &ih.TableID, &ih.FileName, &ih.FileType, &ih.Status,
			&ih.RowsImported, &ih.ErrorMessage, &ih.StartedAt, &ih.CompletedAt)
		if err != nil {
			return nil, err
		}
		history = append(history, ih)
	}
	return history, rows.Err()
}

// PriceQuote is a stored quote calculation
type PriceQuote struct {
	ID        int64              `json:"id"`
	Params    tariff.QuoteParams `json:"params"`
	Result    tariff.QuoteResult `json:"result"`
	CreatedAt time.Time          `json:"createdAt"`
}

// SaveQuote stores a quote and trims history to the newest keep entries
func (db *DB) SaveQuote(q *PriceQuote, keep int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	result, err := tx.Exec(`
		INSERT INTO price_quotes (base_price, weight, tariff_percent, supplier_absorption,
			cost, new_cost, tariff_increase, supplier_absorption_cost, final_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.Params.BasePrice, q.Params.Weight, q.Params.TariffPercent, q.Params.SupplierAbsorption,
		q.Result.Cost, q.Result.NewCost, q.Result.TariffIncrease, q.Result.SupplierAbsorptionCost,
		q.Result.FinalPrice, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save quote: %w", err)
	}
	if q.ID, err = result.LastInsertId(); err != nil {
		return err
	}

	_, err = tx.Exec(`
		DELETE FROM price_quotes
		WHERE id NOT IN (SELECT id FROM price_quotes ORDER BY id DESC LIMIT ?)
	`, keep)
	if err != nil {
		return fmt.Errorf("failed to trim quote history: %w", err)
	}

	return tx.Commit()
}

// GetQuotes returns stored quotes, newest first
func (db *DB) GetQuotes() ([]PriceQuote, error) {
	rows, err := db.Query(`
		SELECT id, base_price, weight, tariff_percent, supplier_absorption,
		       cost, new_cost, tariff_increase, supplier_absorption_cost, final_price, created_at
		FROM price_quotes
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotes := []PriceQuote{}
	for rows.Next() {
		var q PriceQuote
		err := rows.Scan(&q.ID, &q.Params.BasePrice, &q.Params.Weight, &q.Params.TariffPercent,
			&q.Params.SupplierAbsorption, &q.Result.Cost, &q.Result.NewCost, &q.Result.TariffIncrease,
			&q.Result.SupplierAbsorptionCost, &q.Result.FinalPrice, &q.CreatedAt)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// Setting represents an application setting (key-value pair)
type Setting struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	DataType    string    `json:"dataType"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Setting keys
const (
	SettingUnitMultiplier  = "unit_multiplier_default"
	SettingDisplayDecimals = "display_decimals"
)

// GetAllSettings returns all application settings
func (db *DB) GetAllSettings() ([]Setting, error) {
	rows, err := db.Query(`
		SELECT id, key, value, COALESCE(description, ''), data_type, created_at, updated_at
		FROM settings
		ORDER BY key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var s Setting
		err := rows.Scan(&s.ID, &s.Key, &s.Value, &s.Description, &s.DataType, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// GetSetting returns a single setting by key
func (db *DB) GetSetting(key string) (*Setting, error) {
	var s Setting
	err := db.QueryRow(`
		SELECT id, key, value, COALESCE(description, ''), data_type, created_at, updated_at
		FROM settings
		WHERE key = ?
	`, key).Scan(&s.ID, &s.Key, &s.Value, &s.Description, &s.DataType, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil // Setting not found
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSetting updates the value of an existing setting. Unknown keys fail
// with ErrSettingNotFound; settings are never created here.
func (db *DB) UpdateSetting(key, value string) error {
	result, err := db.Exec(`
		UPDATE settings
		SET value = ?, updated_at = CURRENT_TIMESTAMP
		WHERE key = ?
	`, value, key)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSettingNotFound, key)
	}
	return nil
}

// SeedInitialData seeds the settings table with calculation conventions
func (db *DB) SeedInitialData() error {
	defaults := []Setting{
		{Key: SettingUnitMultiplier, Value: "1", DataType: "number",
			Description: "Unit multiplier used when none is selected"},
		{Key: SettingDisplayDecimals, Value: fmt.Sprint(tariff.DisplayDecimals), DataType: "number",
			Description: "Decimal places shown for weights and amounts"},
	}

	for _, s := range defaults {
		_, err := db.Exec(`
			INSERT INTO settings (key, value, description, data_type)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO NOTHING
		`, s.Key, s.Value, s.Description, s.DataType)
		if err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", s.Key, err)
		}
	}
	return nil
}
