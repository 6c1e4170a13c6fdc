package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // sqlite driver

	"github.com/okian/shipwatch/internal/domain/dedupe"
	"github.com/okian/shipwatch/internal/domain/model"
	"github.com/okian/shipwatch/pkg/logger"
	"github.com/okian/shipwatch/pkg/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// tsLayout is fixed-width so stored timestamps sort lexically in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) (time.Time, error) { return time.Parse(tsLayout, s) }

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
	log    logger.Logger
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database and applies the schema. For sqlite, target
// is a file path (or ":memory:"); for postgres it is a DSN.
func Open(ctx context.Context, driver, target string, opts ...Option) (*SQLStore, error) {
	var (
		db     *sql.DB
		err    error
		schema string
	)
	switch driver {
	case DriverSQLite:
		dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", target)
		if target == ":memory:" {
			dsn = "file::memory:?_foreign_keys=on"
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// single writer; also keeps :memory: on one connection
		db.SetMaxOpenConns(1)
		schema = schemaSQLite
	case DriverPostgres:
		db, err = sql.Open("pgx", target)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		schema = schemaPostgres
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", driver, err)
	}
	s := &SQLStore{db: db, driver: driver, log: logger.Get().Named("store")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Driver returns the configured driver name.
func (s *SQLStore) Driver() string { return s.driver }

// q rewrites ? placeholders to $n for postgres.
func (s *SQLStore) q(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// observe is deferred by every operation; errp is read when it runs.
func observe(op string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordStoreOp(op, float64(time.Since(start).Milliseconds()), err)
}

func (s *SQLStore) PutShipment(ctx context.Context, sh model.ShipmentRecord) (err error) {
	defer observe("put_shipment", time.Now(), &err)
	if sh.ShipmentID == "" {
		return fmt.Errorf("%w: empty shipment_id", ErrInvalidShipment)
	}
	body, err := json.Marshal(sh)
	if err != nil {
		return fmt.Errorf("encode shipment: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO shipments (shipment_id, owner, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (shipment_id) DO UPDATE SET owner = excluded.owner, body = excluded.body, updated_at = excluded.updated_at`),
		sh.ShipmentID, sh.Owner, string(body), formatTS(time.Now()))
	if err != nil {
		return fmt.Errorf("put shipment %s: %w", sh.ShipmentID, err)
	}
	if err = markStale(ctx, tx, s.q, sh.ShipmentID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// markStale flags the stored alert of a shipment whose plan or events changed.
func markStale(ctx context.Context, tx *sql.Tx, q func(string) string, shipmentID string) error {
	if _, err := tx.ExecContext(ctx, q(`UPDATE alerts SET stale = 1 WHERE shipment_id = ?`), shipmentID); err != nil {
		return fmt.Errorf("mark alert stale %s: %w", shipmentID, err)
	}
	return nil
}

func (s *SQLStore) GetShipment(ctx context.Context, shipmentID string) (sh model.ShipmentRecord, err error) {
	defer observe("get_shipment", time.Now(), &err)
	var body string
	err = s.db.QueryRowContext(ctx, s.q(`SELECT body FROM shipments WHERE shipment_id = ?`), shipmentID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return sh, fmt.Errorf("%w: shipment %s", ErrNotFound, shipmentID)
	}
	if err != nil {
		return sh, fmt.Errorf("get shipment %s: %w", shipmentID, err)
	}
	if err = json.Unmarshal([]byte(body), &sh); err != nil {
		return sh, fmt.Errorf("decode shipment %s: %w", shipmentID, err)
	}
	return sh, nil
}

func (s *SQLStore) ListShipmentIDs(ctx context.Context) (ids []string, err error) {
	defer observe("list_shipments", time.Now(), &err)
	rows, err := s.db.QueryContext(ctx, `SELECT shipment_id FROM shipments ORDER BY shipment_id`)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	return scanIDs(rows)
}

func (s *SQLStore) AppendEvents(ctx context.Context, shipmentID string, events []model.Event) (added int, err error) {
	defer observe("append_events", time.Now(), &err)
	if len(events) == 0 {
		return 0, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM shipments WHERE shipment_id = ?`), shipmentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: shipment %s", ErrNotFound, shipmentID)
	}
	if err != nil {
		return 0, fmt.Errorf("append events %s: %w", shipmentID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.q(`
		INSERT INTO events (shipment_id, event_key, body) VALUES (?, ?, ?)
		ON CONFLICT (shipment_id, event_key) DO NOTHING`))
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		e.ShipmentID = shipmentID
		body, mErr := json.Marshal(e)
		if mErr != nil {
			err = fmt.Errorf("encode event: %w", mErr)
			return 0, err
		}
		res, xErr := stmt.ExecContext(ctx, shipmentID, dedupe.Key(shipmentID, e), string(body))
		if xErr != nil {
			err = fmt.Errorf("insert event: %w", xErr)
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added += int(n)
		}
	}
	if added > 0 {
		if err = markStale(ctx, tx, s.q, shipmentID); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return added, nil
}

func (s *SQLStore) Events(ctx context.Context, shipmentID string) (out []model.Event, err error) {
	defer observe("events", time.Now(), &err)
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT body FROM events WHERE shipment_id = ? ORDER BY seq`), shipmentID)
	if err != nil {
		return nil, fmt.Errorf("events %s: %w", shipmentID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var body string
		if err = rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e model.Event
		if err = json.Unmarshal([]byte(body), &e); err != nil {
			// one corrupt row must not hide the rest of the history
			s.log.Warn(ctx, "skipping undecodable event", logger.String("shipment_id", shipmentID), logger.Error(err))
			err = nil
			continue
		}
		out = append(out, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("events %s: %w", shipmentID, err)
	}
	return out, nil
}

func (s *SQLStore) SaveAlert(ctx context.Context, a model.Alert) (err error) {
	defer observe("save_alert", time.Now(), &err)
	a.AcknowledgedAt = nil
	a.Stale = false
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO alerts (shipment_id, severity, status, risk_score, computed_at, acknowledged_at, stale, body)
		VALUES (?, ?, ?, ?, ?, NULL, 0, ?)
		ON CONFLICT (shipment_id) DO UPDATE SET
			acknowledged_at = CASE WHEN alerts.severity = excluded.severity THEN alerts.acknowledged_at ELSE NULL END,
			severity = excluded.severity,
			status = excluded.status,
			risk_score = excluded.risk_score,
			computed_at = excluded.computed_at,
			stale = 0,
			body = excluded.body`),
		a.ShipmentID, string(a.Severity), string(a.Status), a.RiskScore, formatTS(a.ComputedAt), string(body))
	if err != nil {
		return fmt.Errorf("save alert %s: %w", a.ShipmentID, err)
	}
	return nil
}

const alertColumns = `a.body, a.acknowledged_at, a.stale`

func (s *SQLStore) GetAlert(ctx context.Context, shipmentID string) (a model.Alert, err error) {
	defer observe("get_alert", time.Now(), &err)
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+alertColumns+` FROM alerts a WHERE a.shipment_id = ?`), shipmentID)
	a, err = scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("%w: alert %s", ErrNotFound, shipmentID)
	}
	if err != nil {
		return a, fmt.Errorf("get alert %s: %w", shipmentID, err)
	}
	return a, nil
}

func (s *SQLStore) ListAlerts(ctx context.Context, f AlertFilter) (out []model.Alert, err error) {
	defer observe("list_alerts", time.Now(), &err)
	if f.Limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, f.Limit)
	}

	var (
		where []string
		args  []any
	)
	if f.Severity != "" {
		where = append(where, "a.severity = ?")
		args = append(args, string(f.Severity))
	}
	if f.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Owner != "" {
		where = append(where, "s.owner = ?")
		args = append(args, f.Owner)
	}
	if f.Acknowledged != nil {
		if *f.Acknowledged {
			where = append(where, "a.acknowledged_at IS NOT NULL")
		} else {
			where = append(where, "a.acknowledged_at IS NULL")
		}
	}

	query := `SELECT ` + alertColumns + ` FROM alerts a JOIN shipments s ON s.shipment_id = a.shipment_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY a.risk_score DESC, a.shipment_id ASC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, sErr := scanAlert(rows)
		if sErr != nil {
			err = fmt.Errorf("scan alert: %w", sErr)
			return nil, err
		}
		out = append(out, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Acknowledge(ctx context.Context, shipmentID string, at time.Time) (a model.Alert, err error) {
	defer observe("acknowledge", time.Now(), &err)
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE alerts SET acknowledged_at = ? WHERE shipment_id = ?`), formatTS(at), shipmentID)
	if err != nil {
		return a, fmt.Errorf("acknowledge %s: %w", shipmentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return a, fmt.Errorf("%w: alert %s", ErrNotFound, shipmentID)
	}
	return s.GetAlert(ctx, shipmentID)
}

func (s *SQLStore) StaleAlertIDs(ctx context.Context, olderThan time.Time, limit int) (ids []string, err error) {
	defer observe("stale_alerts", time.Now(), &err)
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT s.shipment_id FROM shipments s
		LEFT JOIN alerts a ON a.shipment_id = s.shipment_id
		WHERE a.shipment_id IS NULL
		   OR a.stale = 1
		   OR (a.computed_at < ? AND a.status NOT IN (?, ?))
		ORDER BY s.shipment_id
		LIMIT ?`),
		formatTS(olderThan), string(model.StatusCompleted), string(model.StatusCanceled), limit)
	if err != nil {
		return nil, fmt.Errorf("stale alerts: %w", err)
	}
	return scanIDs(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (model.Alert, error) {
	var (
		a     model.Alert
		body  string
		acked sql.NullString
		stale int
	)
	if err := row.Scan(&body, &acked, &stale); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return a, fmt.Errorf("decode alert: %w", err)
	}
	a.Stale = stale != 0
	if acked.Valid && acked.String != "" {
		at, err := parseTS(acked.String)
		if err != nil {
			return a, fmt.Errorf("decode acknowledged_at: %w", err)
		}
		a.AcknowledgedAt = &at
	}
	return a, nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
