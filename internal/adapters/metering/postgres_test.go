package metering

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

const insertPattern = "INSERT INTO sensor_activity (uid, handle, action, noted_at) VALUES ($1, $2, $3, $4)"

func TestNoteStartInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(insertPattern)).
		WithArgs(int32(1000), int32(4), "start", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := NewPostgresLog(db, "")
	if err := log.NoteStartSensor(1000, 4); err != nil {
		t.Fatalf("note start: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNoteStopInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(insertPattern)).
		WithArgs(int32(1000), int32(4), "stop", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := NewPostgresLog(db, "")
	if err := log.NoteStopSensor(1000, 4); err != nil {
		t.Fatalf("note stop: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNoteWrapsDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	dbErr := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta(insertPattern)).
		WillReturnError(dbErr)

	log := NewPostgresLog(db, "")
	if err := log.NoteStartSensor(1, 1); !errors.Is(err, dbErr) {
		t.Fatalf("expected wrapped database error, got %v", err)
	}
}

func TestCustomTableName(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO power_journal (uid, handle, action, noted_at)")).
		WithArgs(int32(7), int32(2), "start", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := NewPostgresLog(db, "power_journal")
	if err := log.NoteStartSensor(7, 2); err != nil {
		t.Fatalf("note start: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNopDiscards(t *testing.T) {
	var n Nop
	if err := n.NoteStartSensor(1, 1); err != nil {
		t.Fatalf("nop start: %v", err)
	}
	if err := n.NoteStopSensor(1, 1); err != nil {
		t.Fatalf("nop stop: %v", err)
	}
}
