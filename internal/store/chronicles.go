package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"freightflow/internal/types"
)

const chronicleCols = `id, message_id, thread_id, subject, sender_address, direction,
	thread_position, occurred_at, analysis, confidence, confidence_source,
	escalation_reason, reanalysis_flags, shipment_id, linked_by, created_at`

// GetChronicleByMessageID returns the chronicle for a message, or nil when
// the message has never been processed.
func (s *Store) GetChronicleByMessageID(ctx context.Context, messageID string) (*types.Chronicle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chronicleCols+` FROM chronicle WHERE message_id = ?`, messageID)
	c, err := scanChronicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: chronicle by message %s: %w", messageID, err)
	}
	return c, nil
}

// SaveChronicle inserts a new chronicle row.
func (s *Store) SaveChronicle(ctx context.Context, c *types.Chronicle) error {
	analysis, err := json.Marshal(&c.Analysis)
	if err != nil {
		return fmt.Errorf("store: marshal analysis: %w", err)
	}
	flags, err := marshalJSON(c.ReanalysisFlags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO chronicle (`+chronicleCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?)`,
		c.ID, c.MessageID, c.ThreadID, c.Subject, c.SenderAddress,
		string(c.Direction), c.ThreadPosition, fmtTime(c.OccurredAt),
		string(analysis), c.Confidence, string(c.ConfidenceSource),
		c.EscalationReason, flags, c.ShipmentID, fmtTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: save chronicle %s: %w", c.ID, err)
	}
	return nil
}

// UpdateChronicle rewrites the mutable fields of an existing chronicle.
// Used by reanalysis; identity and message metadata never change.
func (s *Store) UpdateChronicle(ctx context.Context, c *types.Chronicle) error {
	analysis, err := json.Marshal(&c.Analysis)
	if err != nil {
		return fmt.Errorf("store: marshal analysis: %w", err)
	}
	flags, err := marshalJSON(c.ReanalysisFlags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE chronicle SET
		analysis = ?, confidence = ?, confidence_source = ?,
		escalation_reason = ?, reanalysis_flags = ?, shipment_id = ?
		WHERE id = ?`,
		string(analysis), c.Confidence, string(c.ConfidenceSource),
		c.EscalationReason, flags, c.ShipmentID, c.ID)
	if err != nil {
		return fmt.Errorf("store: update chronicle %s: %w", c.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store: update chronicle %s: not found", c.ID)
	}
	return nil
}

// ThreadChronicles returns the most recent chronicles of a thread in
// chronological order, capped at limit.
func (s *Store) ThreadChronicles(ctx context.Context, threadID string, limit int) ([]types.Chronicle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chronicleCols+` FROM chronicle
		WHERE thread_id = ?
		ORDER BY occurred_at DESC LIMIT ?`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: thread chronicles %s: %w", threadID, err)
	}
	defer rows.Close()

	var out []types.Chronicle
	for rows.Next() {
		c, err := scanChronicle(rows)
		if err != nil {
			return nil, fmt.Errorf("store: thread chronicles %s: %w", threadID, err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: thread chronicles %s: %w", threadID, err)
	}
	// Query is newest-first to honor the cap; callers want oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ThreadPosition computes the 1-based position of a message within its
// thread: one plus the number of already-chronicled messages that occurred
// strictly earlier.
func (s *Store) ThreadPosition(ctx context.Context, threadID string, occurredAt time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chronicle WHERE thread_id = ? AND occurred_at < ?`,
		threadID, fmtTime(occurredAt)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: thread position %s: %w", threadID, err)
	}
	return n + 1, nil
}

// SetChronicleShipment records the chronicle -> shipment link.
func (s *Store) SetChronicleShipment(ctx context.Context, chronicleID, shipmentID string, linkedBy types.LinkedBy) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chronicle SET shipment_id = ?, linked_by = ? WHERE id = ?`,
		shipmentID, string(linkedBy), chronicleID)
	if err != nil {
		return fmt.Errorf("store: link chronicle %s: %w", chronicleID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store: link chronicle %s: not found", chronicleID)
	}
	return nil
}

// ListChronicles returns chronicles in [after, before) ordered by
// occurred_at ascending, capped at max.
func (s *Store) ListChronicles(ctx context.Context, after, before time.Time, max int) ([]types.Chronicle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chronicleCols+` FROM chronicle
		WHERE occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at ASC LIMIT ?`,
		fmtTime(after), fmtTime(before), max)
	if err != nil {
		return nil, fmt.Errorf("store: list chronicles: %w", err)
	}
	defer rows.Close()

	var out []types.Chronicle
	for rows.Next() {
		c, err := scanChronicle(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list chronicles: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountErrors returns how many processing failures are on record for a
// message. The processor skips a message once this hits the retry cap.
func (s *Store) CountErrors(ctx context.Context, messageID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chronicle_errors WHERE message_id = ?`, messageID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count errors %s: %w", messageID, err)
	}
	return n, nil
}

// RecordError appends one processing failure.
func (s *Store) RecordError(ctx context.Context, e *types.ChronicleError) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chronicle_errors (message_id, stage, error, occurred_at)
		VALUES (?, ?, ?, ?)`,
		e.MessageID, e.Stage, e.Error, fmtTime(e.OccurredAt))
	if err != nil {
		return fmt.Errorf("store: record error %s: %w", e.MessageID, err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// RecordSyncState appends batch-run bookkeeping.
func (s *Store) RecordSyncState(ctx context.Context, st *types.SyncState) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chronicle_sync_state (last_run_at, window_start, window_end, processed, succeeded, failed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fmtTime(st.LastRunAt), fmtTime(st.WindowStart), fmtTime(st.WindowEnd),
		st.Processed, st.Succeeded, st.Failed)
	if err != nil {
		return fmt.Errorf("store: record sync state: %w", err)
	}
	st.ID, _ = res.LastInsertId()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChronicle(row rowScanner) (*types.Chronicle, error) {
	var (
		c                     types.Chronicle
		direction, source     string
		occurredAt, createdAt string
		analysis              string
		flags                 sql.NullString
		linkedBy              string
	)
	err := row.Scan(&c.ID, &c.MessageID, &c.ThreadID, &c.Subject, &c.SenderAddress,
		&direction, &c.ThreadPosition, &occurredAt, &analysis, &c.Confidence,
		&source, &c.EscalationReason, &flags, &c.ShipmentID, &linkedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(analysis), &c.Analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	c.Direction = types.Direction(direction)
	c.ConfidenceSource = types.ConfidenceSource(source)
	c.OccurredAt = parseTime(occurredAt)
	c.CreatedAt = parseTime(createdAt)
	c.ReanalysisFlags = unmarshalStrings(flags)
	return &c, nil
}
