// Package store records fusion sessions and their fused samples in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/rocket_attitude/internal/fusion"
	"github.com/relabs-tech/rocket_attitude/internal/imu"
	"github.com/relabs-tech/rocket_attitude/internal/linalg"
	"github.com/relabs-tech/rocket_attitude/internal/orientation"
)

// Session is one recorded fusion run.
type Session struct {
	ID        int64
	UUID      uuid.UUID
	StartTime time.Time
	Filter    fusion.Kind
	Source    string
	Config    *string // JSON, if recorded
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore returns a store backed by the database file at dbPath.
// The file and schema are created on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		dsn := fmt.Sprintf("file:%s?%s", s.dbPath,
			"_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			s.dbErr = fmt.Errorf("opening database: %w", err)
			return
		}
		// one writer; avoids SQLITE_BUSY between the recorder and readers
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.dbErr
}

// CreateSession registers a fusion run. config may be a string, []byte or
// any JSON-serializable value; nil stores NULL.
func (s *SqliteStore) CreateSession(ctx context.Context, id uuid.UUID, filter fusion.Kind, source string, config any) (sessionID int64, err error) {
	var configData sql.NullString

	switch c := config.(type) {
	case nil:
	case string:
		configData = sql.NullString{String: c, Valid: true}
	case []byte:
		configData = sql.NullString{String: string(c), Valid: true}
	default:
		var p []byte
		if p, err = json.Marshal(c); err != nil {
			err = fmt.Errorf("marshaling config: %w", err)
			return
		}
		configData = sql.NullString{String: string(p), Valid: true}
	}

	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	result, err := db.ExecContext(ctx, insertSessionSQL,
		id.String(), time.Now().UTC().UnixMilli(), string(filter), source, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

// Sessions returns every recorded session, oldest first.
func (s *SqliteStore) Sessions(ctx context.Context) (sessions []Session, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			sess    Session
			rawUUID string
			startMS int64
			filter  string
			config  sql.NullString
		)
		if err = rows.Scan(&sess.ID, &rawUUID, &startMS, &filter, &sess.Source, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if sess.UUID, err = uuid.Parse(rawUUID); err != nil {
			err = fmt.Errorf("session %d uuid: %w", sess.ID, err)
			return
		}
		sess.StartTime = time.UnixMilli(startMS).UTC()
		sess.Filter = fusion.Kind(filter)
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

// InsertFused appends fused samples to a session in one transaction.
func (s *SqliteStore) InsertFused(ctx context.Context, sessionID int64, samples []fusion.FusedSample) (err error) {
	if len(samples) == 0 {
		return nil
	}

	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackWithError(tx, &err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertFusedSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, f := range samples {
		var cx, cy, cz sql.NullFloat64
		if f.CompAccel != nil {
			cx = sql.NullFloat64{Float64: f.CompAccel.X, Valid: true}
			cy = sql.NullFloat64{Float64: f.CompAccel.Y, Valid: true}
			cz = sql.NullFloat64{Float64: f.CompAccel.Z, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, sessionID,
			f.Timestamp, f.RelativeTime,
			f.AccelX, f.AccelY, f.AccelZ,
			f.GyroX, f.GyroY, f.GyroZ,
			f.Altitude,
			f.Roll, f.Pitch, f.Yaw,
			cx, cy, cz,
			string(f.Filter),
		); err != nil {
			return fmt.Errorf("inserting fused sample at t=%.3f: %w", f.RelativeTime, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Samples returns a session's fused samples in insertion order.
func (s *SqliteStore) Samples(ctx context.Context, sessionID int64) (samples []fusion.FusedSample, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFusedSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying fused samples: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			smp        imu.Sample
			pose       orientation.Pose
			cx, cy, cz sql.NullFloat64
			filter     string
		)
		if err = rows.Scan(
			&smp.Timestamp, &smp.RelativeTime,
			&smp.AccelX, &smp.AccelY, &smp.AccelZ,
			&smp.GyroX, &smp.GyroY, &smp.GyroZ,
			&smp.Altitude,
			&pose.Roll, &pose.Pitch, &pose.Yaw,
			&cx, &cy, &cz,
			&filter,
		); err != nil {
			err = fmt.Errorf("scanning fused sample: %w", err)
			return
		}

		f := fusion.FusedSample{Sample: smp, Pose: pose, Filter: fusion.Kind(filter)}
		if cx.Valid && cy.Valid && cz.Valid {
			f.CompAccel = &linalg.Vec3{X: cx.Float64, Y: cy.Float64, Z: cz.Float64}
		}
		samples = append(samples, f)
	}
	err = rows.Err()
	return
}

// Close closes the database. Safe to call more than once.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}
