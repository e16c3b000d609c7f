// Package archive persists ingested frame stores in DuckDB files so a replay
// can be reopened without parsing the text data again.
package archive

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kinereplay/backend/internal/frames"
	"github.com/kinereplay/backend/internal/models"
	"github.com/marcboeker/go-duckdb"
)

// ErrNoTimeColumn is returned by time queries on archives without a time column.
var ErrNoTimeColumn = errors.New("archive: frames have no time column")

// Options tunes the DuckDB connection.
type Options struct {
	MemoryLimit string // e.g. "1GB"; empty keeps the DuckDB default
	Threads     int    // 0 keeps the DuckDB default
}

// DefaultOptions mirrors the application config defaults.
func DefaultOptions() Options {
	return Options{MemoryLimit: "1GB", Threads: 4}
}

func (o Options) pragmas() []string {
	pragmas := []string{"PRAGMA enable_progress_bar=false"}
	if o.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", o.MemoryLimit))
	}
	if o.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", o.Threads))
	}
	return pragmas
}

func openDB(dsn string, opts Options) (*sql.DB, error) {
	connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		for _, pragma := range opts.pragmas() {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				fmt.Printf("[Archive] Pragma warning: %v\n", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func fieldColumn(slot int) string {
	return fmt.Sprintf("f%d", slot)
}

// Save writes the store and its layout to a new DuckDB file, replacing any
// file already at path.
func Save(ctx context.Context, path string, store *frames.Store, opts Options) error {
	start := time.Now()
	fmt.Printf("[Archive] Writing %d frames to %s\n", store.Len(), path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace archive: %w", err)
	}

	db, err := openDB(path, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	layout := store.Layout()
	cols := make([]string, 0, layout.Width()+1)
	cols = append(cols, "idx INTEGER PRIMARY KEY")
	for _, s := range layout.Slots {
		cols = append(cols, fieldColumn(s.Index)+" DOUBLE NOT NULL")
	}

	stmts := []string{
		`CREATE TABLE layout (
			slot   INTEGER PRIMARY KEY,
			col    INTEGER NOT NULL,
			target VARCHAR NOT NULL,
			body   INTEGER NOT NULL,
			field  VARCHAR NOT NULL
		)`,
		"CREATE TABLE frames (" + strings.Join(cols, ", ") + ")",
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, s := range layout.Slots {
		_, err := db.ExecContext(ctx, "INSERT INTO layout VALUES (?, ?, ?, ?, ?)",
			s.Index, s.Entry.Column, string(s.Entry.Target), s.Entry.Body, string(s.Entry.Field))
		if err != nil {
			return fmt.Errorf("failed to write layout: %w", err)
		}
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "frames")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		row := make([]driver.Value, layout.Width()+1)
		for i := 0; i < store.Len(); i++ {
			f := store.Frame(i)
			row[0] = int32(i)
			for slot := 0; slot < f.Len(); slot++ {
				row[slot+1] = f.Value(slot)
			}
			if err := appender.AppendRow(row...); err != nil {
				return fmt.Errorf("failed to append frame %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	fmt.Printf("[Archive] Wrote %d frames in %v\n", store.Len(), time.Since(start))
	return nil
}

// Archive is an open, read-only frame archive.
type Archive struct {
	db      *sql.DB
	path    string
	entries []models.InputMapEntry
	count   int
}

// Open opens an existing archive read-only.
func Open(path string, opts Options) (*Archive, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := openDB(path+"?access_mode=READ_ONLY", opts)
	if err != nil {
		return nil, err
	}

	a := &Archive{db: db, path: path}
	if err := a.readLayout(); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM frames").Scan(&a.count); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get frame count: %w", err)
	}

	fmt.Printf("[Archive] Opened %s: %d frames, %d fields\n", path, a.count, len(a.entries))
	return a, nil
}

func (a *Archive) readLayout() error {
	rows, err := a.db.Query("SELECT col, target, body, field FROM layout ORDER BY slot")
	if err != nil {
		return fmt.Errorf("failed to read layout: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.InputMapEntry
		var target, field string
		if err := rows.Scan(&e.Column, &target, &e.Body, &field); err != nil {
			return fmt.Errorf("failed to read layout: %w", err)
		}
		e.Target = models.InputTarget(target)
		e.Field = models.PoseField(field)
		a.entries = append(a.entries, e)
	}
	return rows.Err()
}

// Len returns the number of archived frames.
func (a *Archive) Len() int { return a.count }

// Compatible reports whether the archive was written for the given input map.
func (a *Archive) Compatible(entries []models.InputMapEntry) bool {
	if len(entries) != len(a.entries) {
		return false
	}
	for i, e := range entries {
		if e != a.entries[i] {
			return false
		}
	}
	return true
}

// Load reads every frame into a new frozen store.
func (a *Archive) Load(ctx context.Context) (*frames.Store, error) {
	layout := frames.NewLayout(a.entries)
	store := frames.NewStore(layout)

	cols := make([]string, layout.Width())
	for i := range cols {
		cols[i] = fieldColumn(i)
	}
	rows, err := a.db.QueryContext(ctx, "SELECT "+strings.Join(cols, ", ")+" FROM frames ORDER BY idx")
	if err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}
	defer rows.Close()

	values := make([]float64, layout.Width())
	dest := make([]interface{}, layout.Width())
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to read frame %d: %w", store.Len(), err)
		}
		if layout.HasTime() {
			if err := store.CheckTime(values[layout.TimeSlot]); err != nil {
				return nil, &models.DataFormatError{Line: store.Len() + 1, Column: a.entries[layout.TimeSlot].Column, Reason: err.Error()}
			}
		}
		store.Append(values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if store.Len() == 0 {
		return nil, &models.DataFormatError{Reason: "no frames"}
	}

	store.Freeze()
	return store, nil
}

// NearestTime returns the index of the frame whose time is closest to t,
// searching every frame. Ties go to the lower index.
func (a *Archive) NearestTime(ctx context.Context, t float64) (int, error) {
	slot := -1
	for i, e := range a.entries {
		if e.IsTime() {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, ErrNoTimeColumn
	}

	var idx int
	q := fmt.Sprintf("SELECT idx FROM frames ORDER BY abs(%s - ?), idx LIMIT 1", fieldColumn(slot))
	if err := a.db.QueryRowContext(ctx, q, t).Scan(&idx); err != nil {
		return 0, fmt.Errorf("nearest time query failed: %w", err)
	}
	return idx, nil
}

// Close closes the database. The file is kept.
func (a *Archive) Close() error {
	return a.db.Close()
}
