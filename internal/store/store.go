// Package store persists device records in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/fgeck/landalf/internal/models"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no device has the requested id.
var ErrNotFound = errors.New("device not found")

// Store defines the device persistence operations.
type Store interface {
	List(ctx context.Context) ([]models.Device, error)
	Get(ctx context.Context, id int64) (*models.Device, error)
	Create(ctx context.Context, d models.Device) (*models.Device, error)
	Update(ctx context.Context, d models.Device) error
	Delete(ctx context.Context, id int64) error
	SetOnline(ctx context.Context, id int64, online bool) error
}

// SQLiteStore implements Store on top of database/sql and modernc.org/sqlite.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database at path and applies pending migrations.
func Open(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug().Str("path", path).Msg("device database ready")

	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const deviceColumns = "id, name, mac_address, ip_address, broadcast_address, is_online"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var (
		d         models.Device
		mac       string
		ip        sql.NullString
		broadcast sql.NullString
	)

	if err := row.Scan(&d.ID, &d.Name, &mac, &ip, &broadcast, &d.IsOnline); err != nil {
		return nil, err
	}

	hw, err := decodeMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("device %d: %w", d.ID, err)
	}
	d.MACAddress = hw
	d.IPAddress = decodeIP(ip)
	d.BroadcastAddress = decodeIP(broadcast)

	return &d, nil
}

// List returns all devices ordered by id.
func (s *SQLiteStore) List(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	return devices, nil
}

// Get returns the device with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*models.Device, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)

	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting device %d: %w", id, err)
	}

	return d, nil
}

// Create inserts d and returns the stored record. d.ID is ignored.
func (s *SQLiteStore) Create(ctx context.Context, d models.Device) (*models.Device, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO devices (name, mac_address, ip_address, broadcast_address, is_online) VALUES (?, ?, ?, ?, ?)",
		d.Name, encodeMAC(d.MACAddress), encodeIP(d.IPAddress), encodeIP(d.BroadcastAddress), d.IsOnline,
	)
	if err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}

	s.logger.Debug().Int64("device_id", id).Str("name", d.Name).Msg("device created")

	return s.Get(ctx, id)
}

// Update replaces every field of the device identified by d.ID.
func (s *SQLiteStore) Update(ctx context.Context, d models.Device) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE devices SET name = ?, mac_address = ?, ip_address = ?, broadcast_address = ?, is_online = ? WHERE id = ?",
		d.Name, encodeMAC(d.MACAddress), encodeIP(d.IPAddress), encodeIP(d.BroadcastAddress), d.IsOnline, d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device %d: %w", d.ID, err)
	}

	return expectOneRow(res)
}

// Delete removes the device with the given id.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device %d: %w", id, err)
	}

	return expectOneRow(res)
}

// SetOnline records the last observed power state of a device.
func (s *SQLiteStore) SetOnline(ctx context.Context, id int64, online bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE devices SET is_online = ? WHERE id = ?", online, id)
	if err != nil {
		return fmt.Errorf("updating device %d status: %w", id, err)
	}

	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MACs are stored as 12 upper-case hex digits without separators.
func encodeMAC(hw net.HardwareAddr) string {
	return strings.ToUpper(hex.EncodeToString(hw))
}

func decodeMAC(s string) (net.HardwareAddr, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid stored MAC address %q: %w", s, err)
	}
	return net.HardwareAddr(b), nil
}

func encodeIP(ip net.IP) sql.NullString {
	if ip == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: ip.String(), Valid: true}
}

func decodeIP(s sql.NullString) net.IP {
	if !s.Valid || s.String == "" {
		return nil
	}
	return net.ParseIP(s.String)
}
