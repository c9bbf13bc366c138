package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nchandak/fanout/internal/invocation"
)

// InvocationRepository provides queue operations for invocations.
type InvocationRepository struct {
	db *sql.DB
}

// Invocations returns the invocation repository for this store.
func (s *Store) Invocations() *InvocationRepository {
	return &InvocationRepository{db: s.db}
}

// Enqueue inserts a new pending invocation into the queue.
func (r *InvocationRepository) Enqueue(inv *invocation.Invocation) error {
	now := time.Now().UTC()
	inv.Status = invocation.StatusPending
	inv.Attempt = 0
	inv.CreatedAt = now
	inv.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO invocations (id, plugin_name, action, payload, config, status, attempt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.PluginName, inv.Action, rawOrEmpty(inv.Payload), rawOrEmpty(inv.Config),
		string(inv.Status), inv.Attempt, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue invocation: %w", err)
	}
	return nil
}

// Claim atomically moves up to limit due pending invocations to running and
// returns them, oldest first. Invocations scheduled for a later retry (their
// not_before is in the future) are not claimed.
func (r *InvocationRepository) Claim(limit int) ([]*invocation.Invocation, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	rows, err := tx.Query(
		`SELECT id, plugin_name, action, payload, config, status, attempt, not_before, last_error, created_at, updated_at
		 FROM invocations
		 WHERE status = ? AND (not_before IS NULL OR not_before <= ?)
		 ORDER BY created_at
		 LIMIT ?`,
		string(invocation.StatusPending), now, limit,
	)
	if err != nil {
		return nil, err
	}

	invs, err := scanInvocations(rows)
	if err != nil {
		return nil, err
	}

	for _, inv := range invs {
		if _, err := tx.Exec(
			`UPDATE invocations SET status = ?, updated_at = ? WHERE id = ?`,
			string(invocation.StatusRunning), now, inv.ID,
		); err != nil {
			return nil, err
		}
		inv.Status = invocation.StatusRunning
		inv.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return invs, nil
}

// Complete records a result and marks its invocation completed.
func (r *InvocationRepository) Complete(res *invocation.Result) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO results (invocation_id, success, error, data, duration_ms, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		res.InvocationID, boolToInt(res.Success), res.Error, nullableRaw(res.Data), res.DurationMs, res.FinishedAt,
	); err != nil {
		return fmt.Errorf("record result: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE invocations SET status = ?, updated_at = ? WHERE id = ?`,
		string(invocation.StatusCompleted), time.Now().UTC(), res.InvocationID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Fail records a failed execution attempt. With attempts remaining the
// invocation goes back to pending with a not-before time of
// retryDelay doubled per prior attempt; otherwise it is marked failed.
func (r *InvocationRepository) Fail(id, errMsg string, maxAttempts int, retryDelay time.Duration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempt int
	err = tx.QueryRow(`SELECT attempt FROM invocations WHERE id = ?`, id).Scan(&attempt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	attempt++
	now := time.Now().UTC()

	if attempt >= maxAttempts {
		if _, err := tx.Exec(
			`UPDATE invocations SET status = ?, attempt = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			string(invocation.StatusFailed), attempt, errMsg, now, id,
		); err != nil {
			return err
		}
		return tx.Commit()
	}

	delay := retryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if _, err := tx.Exec(
		`UPDATE invocations SET status = ?, attempt = ?, last_error = ?, not_before = ?, updated_at = ? WHERE id = ?`,
		string(invocation.StatusPending), attempt, errMsg, now.Add(delay), now, id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Recover returns running invocations older than staleAfter to pending.
// Items stuck in running are left over from a crash or a hung batch; because
// their plugin may already have run, redelivered items are subject to the
// consumer's duplicate suppression.
func (r *InvocationRepository) Recover(staleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	res, err := r.db.Exec(
		`UPDATE invocations SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		string(invocation.StatusPending), time.Now().UTC(), string(invocation.StatusRunning), cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Get retrieves an invocation by ID.
func (r *InvocationRepository) Get(id string) (*invocation.Invocation, error) {
	row := r.db.QueryRow(
		`SELECT id, plugin_name, action, payload, config, status, attempt, not_before, last_error, created_at, updated_at
		 FROM invocations WHERE id = ?`,
		id,
	)

	inv, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// GetResult retrieves the result for an invocation by its ID.
func (r *InvocationRepository) GetResult(id string) (*invocation.Result, error) {
	res := &invocation.Result{InvocationID: id}
	var success int
	var data sql.NullString

	err := r.db.QueryRow(
		`SELECT success, error, data, duration_ms, finished_at FROM results WHERE invocation_id = ?`,
		id,
	).Scan(&success, &res.Error, &data, &res.DurationMs, &res.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	res.Success = success != 0
	if data.Valid {
		res.Data = json.RawMessage(data.String)
	}
	return res, nil
}

// List returns up to limit invocations, newest first, optionally filtered by
// status. An empty status returns all.
func (r *InvocationRepository) List(status invocation.Status, limit int) ([]*invocation.Invocation, error) {
	query := `SELECT id, plugin_name, action, payload, config, status, attempt, not_before, last_error, created_at, updated_at
		 FROM invocations`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return scanInvocations(rows)
}

// Counts returns the number of invocations per status.
func (r *InvocationRepository) Counts() (map[invocation.Status]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM invocations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[invocation.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[invocation.Status(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvocation(row rowScanner) (*invocation.Invocation, error) {
	inv := &invocation.Invocation{}
	var payload, config, status string
	var notBefore sql.NullTime

	err := row.Scan(&inv.ID, &inv.PluginName, &inv.Action, &payload, &config,
		&status, &inv.Attempt, &notBefore, &inv.LastError, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	inv.Payload = json.RawMessage(payload)
	inv.Config = json.RawMessage(config)
	inv.Status = invocation.Status(status)
	if notBefore.Valid {
		inv.NotBefore = notBefore.Time
	}
	return inv, nil
}

func scanInvocations(rows *sql.Rows) ([]*invocation.Invocation, error) {
	defer rows.Close()

	var invs []*invocation.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

func rawOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func nullableRaw(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
