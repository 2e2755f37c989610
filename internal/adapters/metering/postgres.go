// Package metering records sensor activation changes on behalf of the
// accounting collaborator.
package metering

import (
	"database/sql"
	"fmt"
	"time"

	"sensormux/internal/ports"
)

// PostgresLog journals one row per activation or deactivation, attributed to
// the client uid that caused it, so power accounting can be reconciled
// offline.
type PostgresLog struct {
	db    *sql.DB
	table string
}

func NewPostgresLog(db *sql.DB, table string) *PostgresLog {
	if table == "" {
		table = "sensor_activity"
	}
	return &PostgresLog{db: db, table: table}
}

func (m *PostgresLog) NoteStartSensor(uid, handle int32) error {
	return m.note(uid, handle, "start")
}

func (m *PostgresLog) NoteStopSensor(uid, handle int32) error {
	return m.note(uid, handle, "stop")
}

func (m *PostgresLog) note(uid, handle int32, action string) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (uid, handle, action, noted_at) VALUES ($1, $2, $3, $4)",
		m.table)
	if _, err := m.db.Exec(q, uid, handle, action, time.Now().UTC()); err != nil {
		return fmt.Errorf("note %s for sensor %d: %w", action, handle, err)
	}
	return nil
}

var _ ports.Metering = (*PostgresLog)(nil)

// Nop discards metering notes; used when no activity log is configured.
type Nop struct{}

func (Nop) NoteStartSensor(int32, int32) error { return nil }
func (Nop) NoteStopSensor(int32, int32) error  { return nil }

var _ ports.Metering = Nop{}
