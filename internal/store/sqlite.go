package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/edge-foundry/collector/internal/domain"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (and if necessary creates) the database at dbPath
// and applies the schema. Pass ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			protocol TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			endpoint_url TEXT NOT NULL DEFAULT '',
			timeout_ms INTEGER NOT NULL DEFAULT 0,
			enabled INTEGER NOT NULL DEFAULT 1,
			description TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id INTEGER NOT NULL REFERENCES devices(id),
			name TEXT NOT NULL,
			address TEXT NOT NULL,
			data_kind TEXT NOT NULL DEFAULT 'float',
			enabled INTEGER NOT NULL DEFAULT 1,
			description TEXT NOT NULL DEFAULT '',
			UNIQUE(device_id, name)
		);
		CREATE TABLE IF NOT EXISTS samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tag_id INTEGER NOT NULL REFERENCES tags(id),
			value REAL NOT NULL,
			quality TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tags_device_id ON tags(device_id);
		CREATE INDEX IF NOT EXISTS idx_samples_tag_id ON samples(tag_id, id);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) CreateDevice(ctx context.Context, device *domain.Device) (*domain.Device, error) {
	if err := device.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO devices (name, protocol, host, port, endpoint_url, timeout_ms, enabled, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		device.Name,
		string(device.Protocol),
		device.Host,
		device.Port,
		device.EndpointURL,
		device.Timeout.Milliseconds(),
		device.Enabled,
		device.Description,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read device id: %w", err)
	}

	created := *device
	created.ID = id
	return &created, nil
}

func (s *SQLiteStore) GetDevice(ctx context.Context, id int64) (*domain.Device, error) {
	query := `
		SELECT id, name, protocol, host, port, endpoint_url, timeout_ms, enabled, description
		FROM devices WHERE id = ?
	`

	device, err := scanDevice(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

func (s *SQLiteStore) ListEnabledDevices(ctx context.Context) ([]*domain.Device, error) {
	query := `
		SELECT id, name, protocol, host, port, endpoint_url, timeout_ms, enabled, description
		FROM devices WHERE enabled = 1 ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*domain.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func (s *SQLiteStore) CountDevices(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CreateTag(ctx context.Context, tag *domain.Tag) (*domain.Tag, error) {
	if err := tag.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO tags (device_id, name, address, data_kind, enabled, description)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		tag.DeviceID,
		tag.Name,
		tag.Address,
		string(tag.DataKind),
		tag.Enabled,
		tag.Description,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read tag id: %w", err)
	}

	created := *tag
	created.ID = id
	return &created, nil
}

func (s *SQLiteStore) ListEnabledTags(ctx context.Context, deviceID int64) ([]*domain.Tag, error) {
	query := `
		SELECT id, device_id, name, address, data_kind, enabled, description
		FROM tags WHERE device_id = ? AND enabled = 1 ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*domain.Tag
	for rows.Next() {
		tag := &domain.Tag{}
		var kind string
		if err := rows.Scan(&tag.ID, &tag.DeviceID, &tag.Name, &tag.Address, &kind, &tag.Enabled, &tag.Description); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tag.DataKind = domain.DataKind(kind)
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *SQLiteStore) AppendSample(ctx context.Context, sample *domain.Sample) (*domain.Sample, error) {
	query := `
		INSERT INTO samples (tag_id, value, quality, timestamp)
		VALUES (?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		sample.TagID,
		sample.Value,
		string(sample.Quality),
		sample.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append sample: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read sample id: %w", err)
	}

	stored := *sample
	stored.ID = id
	return &stored, nil
}

func (s *SQLiteStore) LatestSample(ctx context.Context, tagID int64) (*domain.Sample, error) {
	query := `
		SELECT id, tag_id, value, quality, timestamp
		FROM samples WHERE tag_id = ? ORDER BY id DESC LIMIT 1
	`

	sample := &domain.Sample{}
	var quality, ts string
	err := s.db.QueryRowContext(ctx, query, tagID).Scan(&sample.ID, &sample.TagID, &sample.Value, &quality, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}

	sample.Quality = domain.Quality(quality)
	sample.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sample timestamp: %w", err)
	}
	return sample, nil
}

func (s *SQLiteStore) CountSamples(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	device := &domain.Device{}
	var protocol string
	var timeoutMs int64
	err := row.Scan(
		&device.ID,
		&device.Name,
		&protocol,
		&device.Host,
		&device.Port,
		&device.EndpointURL,
		&timeoutMs,
		&device.Enabled,
		&device.Description,
	)
	if err != nil {
		return nil, err
	}
	device.Protocol = domain.Protocol(protocol)
	device.Timeout = time.Duration(timeoutMs) * time.Millisecond
	return device, nil
}
