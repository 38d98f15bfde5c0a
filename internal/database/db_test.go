package database

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julienbonastre/tariff-helpers/internal/table"
	"github.com/julienbonastre/tariff-helpers/internal/tariff"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTable(t *testing.T, name string, ft table.FileType, content string) *table.UploadedTable {
	t.Helper()
	tbl, err := table.Read(name, ft, strings.NewReader(content))
	require.NoError(t, err)
	return tbl
}

func TestTables(t *testing.T) {
	db := openTestDB(t)

	first := newTable(t, "a.csv", table.FileTypeProduct, "From_Country,To_Country,Current_Tariff_Percent\nChina,United States,10\n")
	second := newTable(t, "b.csv", table.FileTypeProduct, "From_Country,To_Country,Current_Tariff_Percent\nChina,United States,25\nIndia,United States,5\n")
	second.UploadDate = first.UploadDate.Add(time.Second)
	supply := newTable(t, "s.csv", table.FileTypeSupplyChain, "Raw_Material_Name\nSugar\n")

	for _, tbl := range []*table.UploadedTable{first, second, supply} {
		require.NoError(t, db.SaveTable(tbl))
	}

	got, err := db.GetTable(second.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.Headers, got.Headers)
	assert.Equal(t, second.Rows, got.Rows)
	assert.Equal(t, table.FileTypeProduct, got.FileType)

	latest, err := db.LatestTable(table.FileTypeProduct)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	list, err := db.ListTables()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, 2, list[0].RowCount)

	require.NoError(t, db.DeleteTable(second.ID))
	latest, err = db.LatestTable(table.FileTypeProduct)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)

	assert.ErrorIs(t, db.DeleteTable(second.ID), ErrTableNotFound)

	missing, err := db.GetTable("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestImportHistory(t *testing.T) {
	db := openTestDB(t)

	ih := &ImportHistory{FileName: "a.csv", FileType: "product", Status: ImportRunning, StartedAt: time.Now()}
	require.NoError(t, db.CreateImportHistory(ih))
	assert.NotZero(t, ih.ID)

	now := time.Now().UTC()
	ih.Status = ImportSuccess
	ih.TableID = "t-1"
	ih.RowsImported = 4
	ih.CompletedAt = &now
	require.NoError(t, db.UpdateImportHistory(ih))

	history, err := db.GetImportHistory(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ImportSuccess, history[0].Status)
	assert.Equal(t, "t-1", history[0].TableID)
	assert.Equal(t, 4, history[0].RowsImported)
	assert.NotNil(t, history[0].CompletedAt)
}

func TestQuotesAreTrimmed(t *testing.T) {
	db := openTestDB(t)

	for i := 1; i <= 5; i++ {
		params := tariff.QuoteParams{BasePrice: float64(i), Weight: 10, TariffPercent: 10}
		q := &PriceQuote{Params: params, Result: tariff.Quote(params)}
		require.NoError(t, db.SaveQuote(q, 3))
	}

	quotes, err := db.GetQuotes()
	require.NoError(t, err)
	require.Len(t, quotes, 3)
	assert.Equal(t, 5.0, quotes[0].Params.BasePrice, "newest first")
	assert.Equal(t, 3.0, quotes[2].Params.BasePrice)
	assert.InDelta(t, 55.0, quotes[0].Result.FinalPrice, 1e-9)
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SeedInitialData())
	require.NoError(t, db.SeedInitialData(), "seeding is idempotent")

	s, err := db.GetSetting(SettingDisplayDecimals)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "2", s.Value)

	require.NoError(t, db.UpdateSetting(SettingUnitMultiplier, "1000"))
	s, err = db.GetSetting(SettingUnitMultiplier)
	require.NoError(t, err)
	assert.Equal(t, "1000", s.Value)

	all, err := db.GetAllSettings()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	s, err = db.GetSetting("nope")
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.ErrorIs(t, db.UpdateSetting("nope", "1"), ErrSettingNotFound)
	all, err = db.GetAllSettings()
	require.NoError(t, err)
	assert.Len(t, all, 2, "unknown keys are not created")
}

func testKey() string {
	return base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func TestSealer(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("workspace"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "workspace")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "workspace", string(plain))

	sealed[len(sealed)-1] ^= 0xff
	_, err = s.Open(sealed)
	assert.Error(t, err)

	_, err = NewSealer(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
	_, err = NewSealer("")
	assert.Error(t, err)
}

func roundTripSession(t *testing.T, store *DBSessionStore) (*sessions.Session, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := store.New(req, "workspace")
	require.NoError(t, err)
	assert.True(t, sess.IsNew)
	sess.Values["state"] = `{"country":"United States"}`

	rec := httptest.NewRecorder()
	require.NoError(t, store.Save(req, rec, sess))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	loaded, err := store.New(next, "workspace")
	require.NoError(t, err)
	return loaded, sess.ID
}

func TestSessionStore(t *testing.T) {
	db := openTestDB(t)
	store := NewDBSessionStore(db, []byte("hash-key-for-tests-0123456789abc"))

	loaded, id := roundTripSession(t, store)
	assert.False(t, loaded.IsNew)
	assert.Equal(t, `{"country":"United States"}`, loaded.Values["state"])

	var raw string
	require.NoError(t, db.QueryRow(`SELECT data FROM sessions WHERE session_id = ?`, id).Scan(&raw))
	assert.Contains(t, raw, "United States")
}

func TestSessionStoreSealed(t *testing.T) {
	db := openTestDB(t)
	store := NewDBSessionStore(db, []byte("hash-key-for-tests-0123456789abc"))
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)
	store.SetSealer(sealer)

	loaded, id := roundTripSession(t, store)
	assert.False(t, loaded.IsNew)
	assert.Equal(t, `{"country":"United States"}`, loaded.Values["state"])

	var raw string
	require.NoError(t, db.QueryRow(`SELECT data FROM sessions WHERE session_id = ?`, id).Scan(&raw))
	assert.True(t, strings.HasPrefix(raw, sealedPrefix))
	assert.NotContains(t, raw, "United States")
}

func TestSessionStoreExpiry(t *testing.T) {
	db := openTestDB(t)
	store := NewDBSessionStore(db, []byte("hash-key-for-tests-0123456789abc"))

	require.NoError(t, store.saveToDB("old", []byte(`{}`), time.Now().Add(-time.Hour)))
	require.NoError(t, store.saveToDB("live", []byte(`{}`), time.Now().Add(time.Hour)))

	_, err := store.loadFromDB("old")
	assert.Error(t, err)

	n, err := store.CleanupExpiredSessions()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.loadFromDB("live")
	assert.NoError(t, err)
}
