package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nimbusworks/artforge/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// Insert writes a new record. The database assigns id and created_at; callers
// re-fetch to observe them.
func (r *GenerationRepository) Insert(ctx context.Context, rec *models.GenerationRecord) error {
	params, err := encodeParams(rec.Params)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO generations (owner_id, kind, prompt, source_path, result_path, result_url, credits, params, status)
VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, rec.OwnerID, rec.Kind, rec.Prompt, rec.SourcePath, rec.ResultPath, rec.ResultURL, rec.Credits, params, rec.Status)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListByOwner returns all records for the owner, newest first.
func (r *GenerationRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.GenerationRecord, error) {
	const query = `
SELECT id, owner_id, kind, prompt, COALESCE(source_path, ''), result_path, COALESCE(result_url, ''), credits, COALESCE(params, ''), status, created_at
FROM generations WHERE owner_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var records []models.GenerationRecord
	for rows.Next() {
		var rec models.GenerationRecord
		var params string
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Kind, &rec.Prompt, &rec.SourcePath, &rec.ResultPath, &rec.ResultURL, &rec.Credits, &params, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		if params != "" {
			if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
				return nil, fmt.Errorf("decode generation params: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func encodeParams(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode generation params: %w", err)
	}
	return string(raw), nil
}
