package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
)

const fragmentColumns = `id, document_id, chunk_index, text, start_offset, end_offset, char_count, token_count, file, report_date, unit, shift, page`

// ReplaceFragments swaps the stored fragments of a document in one
// transaction and records the new count on the document.
func (r *DocumentRepository) ReplaceFragments(ctx context.Context, documentID string, fragments []domain.Fragment) error {
	for _, f := range fragments {
		if f.DocumentID != documentID {
			return domain.WrapError(domain.ErrInvalidInput, "replace fragments", fmt.Errorf("fragment %s belongs to %s", f.ID, f.DocumentID))
		}
	}

	return r.inTx(ctx, "replace fragments", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fragments WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("delete fragments: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO fragments (`+fragmentColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`)
		if err != nil {
			return fmt.Errorf("prepare fragment insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range fragments {
			if _, err := stmt.ExecContext(ctx,
				f.ID, f.DocumentID, f.Index, f.Text, f.Start, f.End, f.CharCount, f.TokenCount,
				f.Metadata.File, f.Metadata.Date, f.Metadata.Unit, f.Metadata.Shift, f.Metadata.Page,
			); err != nil {
				return fmt.Errorf("insert fragment %d: %w", f.Index, err)
			}
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE documents SET fragment_count = $2, updated_at = $3 WHERE id = $1`,
			documentID, len(fragments), r.now(),
		)
		if err != nil {
			return fmt.Errorf("update fragment count: %w", err)
		}
		return requireRow(result, "replace fragments", documentID)
	})
}

func (r *DocumentRepository) ListFragments(ctx context.Context, documentID string) ([]domain.Fragment, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+fragmentColumns+`
FROM fragments
WHERE document_id = $1
ORDER BY chunk_index
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}
	return scanFragments(rows)
}

// ListAllFragments returns every fragment ordered by document and index. It
// is the source both search projections are rebuilt from.
func (r *DocumentRepository) ListAllFragments(ctx context.Context) ([]domain.Fragment, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+fragmentColumns+`
FROM fragments
ORDER BY document_id, chunk_index
`)
	if err != nil {
		return nil, fmt.Errorf("query all fragments: %w", err)
	}
	return scanFragments(rows)
}

func scanFragments(rows *sql.Rows) ([]domain.Fragment, error) {
	defer rows.Close()

	out := make([]domain.Fragment, 0)
	for rows.Next() {
		var f domain.Fragment
		if err := rows.Scan(
			&f.ID, &f.DocumentID, &f.Index, &f.Text, &f.Start, &f.End, &f.CharCount, &f.TokenCount,
			&f.Metadata.File, &f.Metadata.Date, &f.Metadata.Unit, &f.Metadata.Shift, &f.Metadata.Page,
		); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fragments: %w", err)
	}
	return out, nil
}
