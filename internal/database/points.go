package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookswap/internal/models"

	sq "github.com/Masterminds/squirrel"
)

const pointColumns = `id, name, kind, address, latitude, longitude, enabled, created_at`

func scanPoint(row rowScanner) (*models.MeetingPoint, error) {
	var p models.MeetingPoint
	if err := row.Scan(&p.ID, &p.Name, &p.Kind, &p.Address, &p.Latitude, &p.Longitude, &p.Enabled, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func getMeetingPoint(ctx context.Context, q queryer, id int64) (*models.MeetingPoint, error) {
	p, err := scanPoint(q.QueryRowContext(ctx, `SELECT `+pointColumns+` FROM meeting_points WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMeetingPointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting point %d: %w", id, err)
	}
	return p, nil
}

func (db *DB) GetMeetingPoint(ctx context.Context, id int64) (*models.MeetingPoint, error) {
	return getMeetingPoint(ctx, db, id)
}

// ListMeetingPoints filters the registry by kind (empty for all) and enabled flag.
func (db *DB) ListMeetingPoints(ctx context.Context, kind string, onlyEnabled bool) ([]*models.MeetingPoint, error) {
	b := qb.Select(pointColumns).From("meeting_points").OrderBy("name", "id")
	if kind != "" {
		b = b.Where(sq.Eq{"kind": kind})
	}
	if onlyEnabled {
		b = b.Where(sq.Eq{"enabled": true})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build points query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list meeting points: %w", err)
	}
	defer rows.Close()

	points := []*models.MeetingPoint{}
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// UpsertMeetingPoint inserts a point, or replaces it when ID is set and known.
func (db *DB) UpsertMeetingPoint(ctx context.Context, p *models.MeetingPoint) error {
	if p.Kind == "" {
		p.Kind = models.PointOther
	}
	ts := now()
	if p.ID == 0 {
		res, err := db.ExecContext(ctx, `
            INSERT INTO meeting_points (name, kind, address, latitude, longitude, enabled, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.Name, p.Kind, p.Address, p.Latitude, p.Longitude, p.Enabled, ts)
		if err != nil {
			return fmt.Errorf("failed to create meeting point: %w", err)
		}
		p.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		p.CreatedAt = ts
		return nil
	}

	_, err := db.ExecContext(ctx, `
        INSERT INTO meeting_points (id, name, kind, address, latitude, longitude, enabled, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, kind = excluded.kind, address = excluded.address,
            latitude = excluded.latitude, longitude = excluded.longitude, enabled = excluded.enabled`,
		p.ID, p.Name, p.Kind, p.Address, p.Latitude, p.Longitude, p.Enabled, ts)
	if err != nil {
		return fmt.Errorf("failed to upsert meeting point %d: %w", p.ID, err)
	}
	return nil
}
