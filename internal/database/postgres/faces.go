package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/lib/pq"

	"github.com/kozaktomas/face-indexer/internal/database"
	"github.com/kozaktomas/face-indexer/internal/facematch"
)

// safeIntToInt32 converts int to int32 with clamping to prevent overflow.
func safeIntToInt32(v int) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

const faceColumns = `face_id, collection_id, external_image_id, user_id, coord, celeb, confidence,
       gender, age_low, age_high, thumbnail_key, full_image_key, created_at, updated_at`

// FaceRepository provides PostgreSQL-backed face registry storage.
type FaceRepository struct {
	db *sql.DB
}

// NewFaceRepository creates a face repository on an open, migrated database.
func NewFaceRepository(db *sql.DB) *FaceRepository {
	return &FaceRepository{db: db}
}

// Lookup retrieves a face by id, returns nil if not found.
func (r *FaceRepository) Lookup(ctx context.Context, faceID string) (*database.FaceRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+faceColumns+" FROM faces WHERE face_id = $1", faceID)
	rec, err := scanFace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup face %s: %w", faceID, err)
	}
	return rec, nil
}

// BatchGet retrieves faces by id in a single query.
func (r *FaceRepository) BatchGet(ctx context.Context, faceIDs []string) (map[string]database.FaceRecord, error) {
	result := make(map[string]database.FaceRecord, len(faceIDs))
	if len(faceIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx, "SELECT "+faceColumns+" FROM faces WHERE face_id = ANY($1)", pq.Array(faceIDs))
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanFace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		result[rec.FaceID] = *rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return result, nil
}

// RegisterFace inserts a face or replaces the record with the same id.
func (r *FaceRepository) RegisterFace(ctx context.Context, rec database.FaceRecord) error {
	var ageLow, ageHigh sql.NullInt32
	if rec.AgeRange != nil {
		ageLow = sql.NullInt32{Int32: safeIntToInt32(rec.AgeRange.Low), Valid: true}
		ageHigh = sql.NullInt32{Int32: safeIntToInt32(rec.AgeRange.High), Valid: true}
	}
	coord := []float64{rec.Coord.Left, rec.Coord.Top, rec.Coord.Width, rec.Coord.Height}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO faces (face_id, collection_id, external_image_id, user_id, coord, celeb, confidence,
		                   gender, age_low, age_high, thumbnail_key, full_image_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (face_id) DO UPDATE SET
			collection_id = EXCLUDED.collection_id,
			external_image_id = EXCLUDED.external_image_id,
			user_id = EXCLUDED.user_id,
			coord = EXCLUDED.coord,
			celeb = EXCLUDED.celeb,
			confidence = EXCLUDED.confidence,
			gender = EXCLUDED.gender,
			age_low = EXCLUDED.age_low,
			age_high = EXCLUDED.age_high,
			thumbnail_key = EXCLUDED.thumbnail_key,
			full_image_key = EXCLUDED.full_image_key,
			updated_at = NOW()
	`, rec.FaceID, rec.CollectionID, rec.ExternalImageID, rec.UserID, pq.Array(coord), rec.Celeb,
		rec.Confidence, rec.Gender, ageLow, ageHigh, rec.Key, rec.FullImageKey)
	if err != nil {
		return fmt.Errorf("register face %s: %w", rec.FaceID, err)
	}
	return nil
}

// UpdateCeleb sets the identity name of a face.
func (r *FaceRepository) UpdateCeleb(ctx context.Context, faceID, celeb string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE faces SET celeb = $2, updated_at = NOW() WHERE face_id = $1", faceID, celeb)
	if err != nil {
		return fmt.Errorf("update celeb of %s: %w", faceID, err)
	}
	return nil
}

// DeleteFace removes a face.
func (r *FaceRepository) DeleteFace(ctx context.Context, faceID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM faces WHERE face_id = $1", faceID); err != nil {
		return fmt.Errorf("delete face %s: %w", faceID, err)
	}
	return nil
}

// Count returns the total number of faces stored.
func (r *FaceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faces").Scan(&count); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFace(row rowScanner) (*database.FaceRecord, error) {
	var (
		rec             database.FaceRecord
		coord           pq.Float64Array
		ageLow, ageHigh sql.NullInt32
	)
	err := row.Scan(&rec.FaceID, &rec.CollectionID, &rec.ExternalImageID, &rec.UserID, &coord,
		&rec.Celeb, &rec.Confidence, &rec.Gender, &ageLow, &ageHigh, &rec.Key, &rec.FullImageKey,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context and check sql.ErrNoRows
	}
	if len(coord) == 4 {
		rec.Coord = facematch.Box{Left: coord[0], Top: coord[1], Width: coord[2], Height: coord[3]}
	}
	if ageLow.Valid && ageHigh.Valid {
		rec.AgeRange = &database.AgeRange{Low: int(ageLow.Int32), High: int(ageHigh.Int32)}
	}
	return &rec, nil
}

var _ database.FaceRegistry = (*FaceRepository)(nil)
