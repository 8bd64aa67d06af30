package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewDocumentRepository(db), mock, func() { _ = db.Close() }
}

var fragmentColumnNames = []string{"id", "document_id", "chunk_index", "text", "start_offset", "end_offset", "char_count", "token_count", "file", "report_date", "unit", "shift", "page"}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, mime_type, owner, storage_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDScansDocument(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "filename", "mime_type", "owner", "storage_path", "status", "error_message", "fragment_count", "created_at", "updated_at"}).
		AddRow("doc-1", "2025-03-01_unit7.txt", "text/plain", "ops", "doc-1_2025-03-01_unit7.txt", string(domain.StatusReady), "", 4, now, now)
	mock.ExpectQuery("FROM documents").WithArgs("doc-1").WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.Status != domain.StatusReady || doc.FragmentCount != 4 || doc.Owner != "ops" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", string(domain.StatusProcessing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusProcessing, "")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM documents").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "missing"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceFragmentsRunsInTransaction(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	fragments := []domain.Fragment{
		{ID: "f-0", DocumentID: "doc-1", Index: 0, Text: "a", End: 1, CharCount: 1, TokenCount: 1, Metadata: domain.Metadata{File: "a", Date: "2025-03-01"}},
		{ID: "f-1", DocumentID: "doc-1", Index: 1, Text: "b", Start: 1, End: 2, CharCount: 1, TokenCount: 1, Metadata: domain.Metadata{File: "a", Date: "2025-03-01"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM fragments").WithArgs("doc-1").WillReturnResult(sqlmock.NewResult(0, 3))
	prep := mock.ExpectPrepare("INSERT INTO fragments")
	prep.ExpectExec().WithArgs("f-0", "doc-1", 0, "a", 0, 1, 1, 1, "a", "2025-03-01", "", "", "").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("f-1", "doc-1", 1, "b", 1, 2, 1, 1, "a", "2025-03-01", "", "", "").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").WithArgs("doc-1", 2, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ReplaceFragments(context.Background(), "doc-1", fragments); err != nil {
		t.Fatalf("ReplaceFragments() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceFragmentsRollsBackOnInsertFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM fragments").WithArgs("doc-1").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO fragments")
	prep.ExpectExec().WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.ReplaceFragments(context.Background(), "doc-1", []domain.Fragment{{ID: "f-0", DocumentID: "doc-1"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListAllFragmentsScansMetadata(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows(fragmentColumnNames).
		AddRow("f-0", "doc-1", 0, "beban unit 7", 0, 12, 12, 3, "2025-03-01_unit7", "2025-03-01", "Unit 7", "1", "").
		AddRow("f-0b", "doc-2", 0, "trip", 0, 4, 4, 1, "catatan", "", "", "", "")
	mock.ExpectQuery("FROM fragments").WillReturnRows(rows)

	got, err := repo.ListAllFragments(context.Background())
	if err != nil {
		t.Fatalf("ListAllFragments() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(got))
	}
	if got[0].Metadata.Unit != "Unit 7" || got[0].Metadata.Date != "2025-03-01" {
		t.Fatalf("unexpected metadata: %+v", got[0].Metadata)
	}
	if got[1].Metadata.Date != "" {
		t.Fatalf("expected undated fragment, got %q", got[1].Metadata.Date)
	}
}

func TestReplaceFragmentsRejectsForeignFragmentBeforeTouchingRows(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	err := repo.ReplaceFragments(context.Background(), "doc-1", []domain.Fragment{{ID: "f-9", DocumentID: "doc-2"}})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected no statements, got %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
