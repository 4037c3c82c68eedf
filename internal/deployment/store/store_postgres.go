package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"deploygate/internal/deployment/models"
	id "deploygate/pkg/domain"
	"deploygate/pkg/platform/sentinel"
	"deploygate/pkg/platform/tx"
)

// PostgresRecordStore persists records in the deployments table.
type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

func (s *PostgresRecordStore) ListByOwner(ctx context.Context, owner, namespace string) ([]models.Record, error) {
	query := `
		SELECT id, owner_name, namespace, deployment_name, app_name, image, replicas, api_version, kind, created_at
		FROM deployments
		WHERE owner_name = $1 AND ($2 = '' OR namespace = $2)
		ORDER BY created_at DESC, namespace, deployment_name
	`
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, query, owner, namespace)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	for rows.Next() {
		var (
			r        models.Record
			recordID uuid.UUID
		)
		if err := rows.Scan(
			&recordID,
			&r.OwnerName,
			&r.Namespace,
			&r.DeploymentName,
			&r.AppName,
			&r.Image,
			&r.Replicas,
			&r.APIVersion,
			&r.Kind,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		r.ID = id.RecordID(recordID)
		r.CreatedAt = r.CreatedAt.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployments: %w", err)
	}
	return records, nil
}

// SaveAll upserts every record in a single transaction.
func (s *PostgresRecordStore) SaveAll(ctx context.Context, records []models.Record) error {
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		for i := range records {
			if err := s.upsert(ctx, &records[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresRecordStore) Save(ctx context.Context, record *models.Record) error {
	return s.upsert(ctx, record)
}

// upsert writes r and reads back the ID that won, which is the existing row's
// when the natural key was already stored.
func (s *PostgresRecordStore) upsert(ctx context.Context, r *models.Record) error {
	assignID(r)
	query := `
		INSERT INTO deployments (id, owner_name, namespace, deployment_name, app_name, image, replicas, api_version, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_name, namespace, deployment_name) DO UPDATE SET
			app_name = EXCLUDED.app_name,
			image = EXCLUDED.image,
			replicas = EXCLUDED.replicas,
			api_version = EXCLUDED.api_version,
			kind = EXCLUDED.kind,
			created_at = EXCLUDED.created_at
		RETURNING id
	`
	var recordID uuid.UUID
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(r.ID),
		r.OwnerName,
		r.Namespace,
		r.DeploymentName,
		r.AppName,
		r.Image,
		r.Replicas,
		r.APIVersion,
		r.Kind,
		r.CreatedAt,
	).Scan(&recordID)
	if err != nil {
		return fmt.Errorf("upsert deployment %s: %w", r.NaturalKey(), err)
	}
	r.ID = id.RecordID(recordID)
	return nil
}

func (s *PostgresRecordStore) Delete(ctx context.Context, owner, namespace, name string) error {
	query := `
		DELETE FROM deployments
		WHERE owner_name = $1 AND namespace = $2 AND deployment_name = $3
	`
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, query, owner, namespace, name)
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
