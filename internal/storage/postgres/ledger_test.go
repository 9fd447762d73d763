package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

func sampleRecord() crawler.DocumentRecord {
	return crawler.DocumentRecord{
		ID:          "uuid-v7",
		RunID:       "run-1",
		ArtCode:     "AN202403281234567890",
		StockCode:   "601225",
		ShortName:   "陕西煤业",
		Title:       "2023年年度报告",
		Column:      "临时公告",
		NoticeDate:  "2024-03-28",
		SourceURL:   "https://pdf.dfcfw.com/pdf/H2_AN202403281234567890_1.pdf",
		LocalPath:   "/data/陕西煤业/临时公告/a.pdf",
		DeclaredKB:  1200,
		SizeBytes:   1200345,
		ContentHash: "abc123",
		ArchiveURI:  "gs://bucket/mirror/a.pdf",
		Attempts:    1,
		RetrievedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestRecordDocumentUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "")
	require.NoError(t, err)

	rec := sampleRecord()
	mock.ExpectExec("INSERT INTO announcement_documents").
		WithArgs(
			rec.ArtCode,
			rec.ID,
			rec.RunID,
			rec.StockCode,
			rec.ShortName,
			rec.Title,
			rec.Column,
			rec.NoticeDate,
			rec.SourceURL,
			rec.LocalPath,
			rec.DeclaredKB,
			rec.SizeBytes,
			rec.ContentHash,
			rec.ArchiveURI,
			rec.Attempts,
			rec.RetrievedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, ledger.RecordDocument(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDocumentPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "docs")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO docs").WillReturnError(errors.New("boom"))
	err = ledger.RecordDocument(context.Background(), sampleRecord())
	require.ErrorContains(t, err, "insert document")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDocumentRequiresArtCode(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, ledger.RecordDocument(context.Background(), crawler.DocumentRecord{}))
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS announcement_documents").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, ledger.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLedgerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewLedgerWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewLedgerWithPool(mock, "bad-name;")
	require.Error(t, err)

	_, err = NewLedger(context.Background(), LedgerConfig{})
	require.Error(t, err)
}
