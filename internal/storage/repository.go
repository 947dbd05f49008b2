package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrAlertNotFound is returned when an alert id does not exist.
	ErrAlertNotFound = errors.New("storage: alert not found")
)

const (
	insertPriceSQL = `INSERT INTO price_history (
        asset_symbol,
        asset_name,
        currency,
        price,
        source,
        origin,
        recorded_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7);`

	prunePricesSQL = `DELETE FROM price_history WHERE recorded_at < $1;`

	selectPriceColumns = `SELECT
        id,
        asset_symbol,
        asset_name,
        currency,
        price::text,
        source,
        origin,
        recorded_at
    FROM price_history`

	listPricesBetweenSQL = selectPriceColumns + `
    WHERE asset_symbol = $1
      AND recorded_at >= $2
      AND recorded_at < $3
    ORDER BY recorded_at DESC
    LIMIT NULLIF($4::int, 0);`

	listRecentPricesSQL = selectPriceColumns + `
    ORDER BY recorded_at DESC, asset_symbol
    LIMIT $1;`

	latestPricesSQL = `SELECT DISTINCT ON (asset_symbol)
        id,
        asset_symbol,
        asset_name,
        currency,
        price::text,
        source,
        origin,
        recorded_at
    FROM price_history
    ORDER BY asset_symbol, recorded_at DESC;`

	selectAlertColumns = `SELECT
        id,
        asset_symbol,
        threshold_price::text,
        condition_type,
        is_active,
        notification_email,
        created_at,
        last_triggered_at
    FROM alerts`

	listActiveAlertsSQL = selectAlertColumns + `
    WHERE is_active
    ORDER BY id;`

	listAlertsSQL = selectAlertColumns + `
    ORDER BY created_at DESC
    LIMIT $1;`

	deactivateAlertSQL = `UPDATE alerts
    SET is_active = FALSE, last_triggered_at = $2
    WHERE id = $1 AND is_active;`

	reactivateAlertSQL = `UPDATE alerts SET is_active = TRUE WHERE id = $1;`

	createAlertSQL = `INSERT INTO alerts (
        asset_symbol,
        threshold_price,
        condition_type,
        is_active,
        notification_email
    ) VALUES ($1,$2,$3,TRUE,$4)
    RETURNING id, created_at;`

	// alert_id resolves to NULL when the rule was deleted after it triggered.
	insertNotificationSQL = `INSERT INTO notifications (
        alert_id,
        asset_symbol,
        asset_name,
        currency,
        threshold_price,
        current_price,
        condition_type,
        status,
        transport,
        error,
        sent_at
    ) VALUES (
        (SELECT id FROM alerts WHERE id = $1),
        $2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    RETURNING id, alert_id;`

	listRecentNotificationsSQL = `SELECT
        id,
        alert_id,
        asset_symbol,
        asset_name,
        currency,
        threshold_price::text,
        current_price::text,
        condition_type,
        status,
        transport,
        error,
        sent_at
    FROM notifications
    ORDER BY sent_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PriceHistoryStore defines price history persistence.
type PriceHistoryStore interface {
	InsertPrices(ctx context.Context, rows []PriceRow) error
	PrunePricesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListPricesBetween(ctx context.Context, symbol string, from, to time.Time, limit int) ([]PriceRow, error)
	ListRecentPrices(ctx context.Context, limit int) ([]PriceRow, error)
	LatestPrices(ctx context.Context) ([]PriceRow, error)
}

// AlertRuleStore defines alert rule access.
type AlertRuleStore interface {
	ListActiveAlerts(ctx context.Context) ([]AlertRule, error)
	DeactivateAlert(ctx context.Context, id int64, triggeredAt time.Time) (bool, error)
	CreateAlert(ctx context.Context, rule AlertRule) (AlertRule, error)
	ReactivateAlert(ctx context.Context, id int64) error
	ListAlerts(ctx context.Context, limit int) ([]AlertRule, error)
}

// NotificationStore defines the notification audit log.
type NotificationStore interface {
	InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error)
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to price history, alert rules, and notifications.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed unlock is released with the session anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertPrices appends rows in one batch. The batch runs in an implicit transaction.
func (s *Store) InsertPrices(ctx context.Context, rows []PriceRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertPriceSQL,
			r.Symbol,
			r.Name,
			r.Currency,
			r.Price.String(),
			r.Source,
			r.Origin,
			r.RecordedAt,
		)
	}

	br := pool.SendBatch(ctx, batch)
	var errs []error
	for _, r := range rows {
		if _, execErr := br.Exec(); execErr != nil {
			errs = append(errs, fmt.Errorf("insert price %s: %w", r.Symbol, execErr))
		}
	}
	if closeErr := br.Close(); closeErr != nil && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("close price batch: %w", closeErr))
	}
	return errors.Join(errs...)
}

// PrunePricesBefore deletes history rows older than cutoff.
func (s *Store) PrunePricesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, prunePricesSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("prune prices: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// ListPricesBetween returns up to limit of the newest rows in [from, to), oldest first.
// A zero limit returns every row in the window.
func (s *Store) ListPricesBetween(ctx context.Context, symbol string, from, to time.Time, limit int) ([]PriceRow, error) {
	rows, err := s.queryPrices(ctx, "list prices between", listPricesBetweenSQL, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// ListRecentPrices lists the newest rows across all assets.
func (s *Store) ListRecentPrices(ctx context.Context, limit int) ([]PriceRow, error) {
	return s.queryPrices(ctx, "list recent prices", listRecentPricesSQL, limit)
}

// LatestPrices returns the newest row per asset.
func (s *Store) LatestPrices(ctx context.Context) ([]PriceRow, error) {
	return s.queryPrices(ctx, "latest prices", latestPricesSQL)
}

func (s *Store) queryPrices(ctx context.Context, op, query string, args ...any) ([]PriceRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", op, queryErr)
	}
	defer rows.Close()

	out := make([]PriceRow, 0)
	for rows.Next() {
		var (
			r        PriceRow
			priceStr string
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Name, &r.Currency, &priceStr, &r.Source, &r.Origin, &r.RecordedAt); err != nil {
			return nil, err
		}
		if r.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListActiveAlerts returns every rule with is_active set.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]AlertRule, error) {
	return s.queryAlerts(ctx, "list active alerts", listActiveAlertsSQL)
}

// ListAlerts returns the newest rules regardless of state.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]AlertRule, error) {
	return s.queryAlerts(ctx, "list alerts", listAlertsSQL, limit)
}

func (s *Store) queryAlerts(ctx context.Context, op, query string, args ...any) ([]AlertRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", op, queryErr)
	}
	defer rows.Close()

	out := make([]AlertRule, 0)
	for rows.Next() {
		var (
			rule         AlertRule
			thresholdStr string
			condition    string
			lastTrigger  sql.NullTime
		)
		if err := rows.Scan(&rule.ID, &rule.Symbol, &thresholdStr, &condition, &rule.Active, &rule.Email, &rule.CreatedAt, &lastTrigger); err != nil {
			return nil, err
		}
		if rule.Threshold, err = decimal.NewFromString(thresholdStr); err != nil {
			return nil, fmt.Errorf("parse threshold: %w", err)
		}
		rule.Condition = Condition(condition)
		if lastTrigger.Valid {
			at := lastTrigger.Time
			rule.LastTriggeredAt = &at
		}
		out = append(out, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// DeactivateAlert flips an active rule to inactive. It reports false when the rule was already inactive or gone.
func (s *Store) DeactivateAlert(ctx context.Context, id int64, triggeredAt time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, deactivateAlertSQL, id, triggeredAt)
	if execErr != nil {
		return false, fmt.Errorf("deactivate alert %d: %w", id, execErr)
	}
	return tag.RowsAffected() == 1, nil
}

// ReactivateAlert sets is_active on a rule.
func (s *Store) ReactivateAlert(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, reactivateAlertSQL, id)
	if execErr != nil {
		return fmt.Errorf("reactivate alert %d: %w", id, execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// CreateAlert inserts an active rule.
func (s *Store) CreateAlert(ctx context.Context, rule AlertRule) (AlertRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRule{}, err
	}
	if !rule.Condition.Valid() {
		return AlertRule{}, fmt.Errorf("invalid condition %q", rule.Condition)
	}

	row := pool.QueryRow(ctx, createAlertSQL, rule.Symbol, rule.Threshold.String(), string(rule.Condition), rule.Email)
	if scanErr := row.Scan(&rule.ID, &rule.CreatedAt); scanErr != nil {
		return AlertRule{}, fmt.Errorf("create alert: %w", scanErr)
	}
	rule.Active = true
	return rule, nil
}

// InsertNotification appends one dispatch record.
func (s *Store) InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return NotificationRecord{}, err
	}

	var alertID interface{}
	if rec.AlertID != nil {
		alertID = *rec.AlertID
	}
	var errMsg interface{}
	if rec.Error != nil {
		errMsg = *rec.Error
	}

	var storedAlert sql.NullInt64
	row := pool.QueryRow(ctx, insertNotificationSQL,
		alertID,
		rec.Symbol,
		rec.AssetName,
		rec.Currency,
		rec.Threshold.String(),
		rec.Price.String(),
		string(rec.Condition),
		string(rec.Status),
		rec.Transport,
		errMsg,
		rec.SentAt,
	)
	if scanErr := row.Scan(&rec.ID, &storedAlert); scanErr != nil {
		return NotificationRecord{}, fmt.Errorf("insert notification: %w", scanErr)
	}
	if storedAlert.Valid {
		id := storedAlert.Int64
		rec.AlertID = &id
	} else {
		rec.AlertID = nil
	}
	return rec, nil
}

// ListRecentNotifications lists the newest dispatch records.
func (s *Store) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentNotificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent notifications: %w", queryErr)
	}
	defer rows.Close()

	out := make([]NotificationRecord, 0, limit)
	for rows.Next() {
		var (
			rec                    NotificationRecord
			alertID                sql.NullInt64
			thresholdStr, priceStr string
			condition, status      string
			errMsg                 sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&alertID,
			&rec.Symbol,
			&rec.AssetName,
			&rec.Currency,
			&thresholdStr,
			&priceStr,
			&condition,
			&status,
			&rec.Transport,
			&errMsg,
			&rec.SentAt,
		); err != nil {
			return nil, err
		}
		if rec.Threshold, err = decimal.NewFromString(thresholdStr); err != nil {
			return nil, fmt.Errorf("parse threshold: %w", err)
		}
		if rec.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		rec.Condition = Condition(condition)
		rec.Status = NotificationStatus(status)
		if alertID.Valid {
			id := alertID.Int64
			rec.AlertID = &id
		}
		if errMsg.Valid {
			msg := errMsg.String
			rec.Error = &msg
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

var (
	_ PriceHistoryStore = (*Store)(nil)
	_ AlertRuleStore    = (*Store)(nil)
	_ NotificationStore = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
)
