package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"freightflow/internal/logging"
	"freightflow/internal/types"
)

const shipmentCols = `id, booking_number, mbl_number, work_order_number, container_numbers,
	stage, stage_updated_at, etd, eta, si_cutoff, vgm_cutoff, cargo_cutoff, doc_cutoff,
	vessel_name, voyage_number, carrier_name, pol_location, pod_location,
	shipper_name, consignee_name, created_at, last_activity_at`

// FindShipmentByBooking returns the shipment with this booking number, or nil.
func (s *Store) FindShipmentByBooking(ctx context.Context, bookingNumber string) (*types.Shipment, error) {
	return s.findShipmentBy(ctx, "booking_number", bookingNumber)
}

// FindShipmentByMBL returns the shipment with this MBL number, or nil.
func (s *Store) FindShipmentByMBL(ctx context.Context, mblNumber string) (*types.Shipment, error) {
	return s.findShipmentBy(ctx, "mbl_number", mblNumber)
}

// FindShipmentByWorkOrder returns the shipment with this work order, or nil.
func (s *Store) FindShipmentByWorkOrder(ctx context.Context, workOrderNumber string) (*types.Shipment, error) {
	return s.findShipmentBy(ctx, "work_order_number", workOrderNumber)
}

func (s *Store) findShipmentBy(ctx context.Context, column, value string) (*types.Shipment, error) {
	if value == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shipmentCols+` FROM shipments WHERE `+column+` = ? LIMIT 1`, value)
	sh, err := scanShipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: shipment by %s: %w", column, err)
	}
	return sh, nil
}

// FindShipmentByContainers returns the first shipment whose container set
// overlaps the given numbers, or nil. Container numbers are stored as a
// JSON array; the probe matches the quoted literal.
func (s *Store) FindShipmentByContainers(ctx context.Context, containerNumbers []string) (*types.Shipment, error) {
	for _, cn := range containerNumbers {
		if cn == "" {
			continue
		}
		row := s.db.QueryRowContext(ctx,
			`SELECT `+shipmentCols+` FROM shipments
			WHERE container_numbers LIKE ? LIMIT 1`, `%"`+cn+`"%`)
		sh, err := scanShipment(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: shipment by container %s: %w", cn, err)
		}
		return sh, nil
	}
	return nil, nil
}

// CreateShipment inserts a new shipment aggregate.
func (s *Store) CreateShipment(ctx context.Context, sh *types.Shipment) error {
	containers, err := marshalJSON(sh.ContainerNumbers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO shipments (`+shipmentCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.BookingNumber, sh.MBLNumber, sh.WorkOrderNumber, containers,
		sh.Stage.String(), fmtTime(sh.StageUpdatedAt),
		sh.ETD, sh.ETA, sh.SICutoff, sh.VGMCutoff, sh.CargoCutoff, sh.DocCutoff,
		sh.VesselName, sh.VoyageNumber, sh.CarrierName, sh.POLLocation, sh.PODLocation,
		sh.ShipperName, sh.ConsigneeName,
		fmtTime(sh.CreatedAt), fmtTime(sh.LastActivityAt))
	if err != nil {
		return fmt.Errorf("store: create shipment %s: %w", sh.ID, err)
	}
	return nil
}

// UpdateShipment rewrites the merged known values. The stage column is not
// touched here; AdvanceStage owns stage changes.
func (s *Store) UpdateShipment(ctx context.Context, sh *types.Shipment) error {
	containers, err := marshalJSON(sh.ContainerNumbers)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE shipments SET
		booking_number = ?, mbl_number = ?, work_order_number = ?, container_numbers = ?,
		etd = ?, eta = ?, si_cutoff = ?, vgm_cutoff = ?, cargo_cutoff = ?, doc_cutoff = ?,
		vessel_name = ?, voyage_number = ?, carrier_name = ?, pol_location = ?, pod_location = ?,
		shipper_name = ?, consignee_name = ?, last_activity_at = ?
		WHERE id = ?`,
		sh.BookingNumber, sh.MBLNumber, sh.WorkOrderNumber, containers,
		sh.ETD, sh.ETA, sh.SICutoff, sh.VGMCutoff, sh.CargoCutoff, sh.DocCutoff,
		sh.VesselName, sh.VoyageNumber, sh.CarrierName, sh.POLLocation, sh.PODLocation,
		sh.ShipperName, sh.ConsigneeName, fmtTime(sh.LastActivityAt), sh.ID)
	if err != nil {
		return fmt.Errorf("store: update shipment %s: %w", sh.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store: update shipment %s: not found", sh.ID)
	}
	return nil
}

// AdvanceStage moves the shipment to `to` iff that is strictly ahead of the
// current stage, recording the transition. Returns whether the stage moved.
func (s *Store) AdvanceStage(ctx context.Context, shipmentID string, to types.Stage, docType string, at time.Time) (bool, error) {
	advanced := false
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT stage FROM shipments WHERE id = ?`, shipmentID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: advance stage: shipment %s not found", shipmentID)
		}
		if err != nil {
			return fmt.Errorf("store: advance stage %s: %w", shipmentID, err)
		}

		from := types.ParseStage(current)
		if to <= from {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE shipments SET stage = ?, stage_updated_at = ? WHERE id = ?`,
			to.String(), fmtTime(at), shipmentID); err != nil {
			return fmt.Errorf("store: advance stage %s: %w", shipmentID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stage_transitions (shipment_id, from_stage, to_stage, document_type, occurred_at)
			VALUES (?, ?, ?, ?, ?)`,
			shipmentID, from.String(), to.String(), docType, fmtTime(at)); err != nil {
			return fmt.Errorf("store: record transition %s: %w", shipmentID, err)
		}
		advanced = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if advanced {
		logging.L(logging.CategoryStore).Debugw("stage advanced",
			"shipment_id", shipmentID, "to", to.String(), "document_type", docType)
	}
	return advanced, nil
}

// ListShipmentWork loads every shipment with its open actions and active
// issues, for attention scoring.
func (s *Store) ListShipmentWork(ctx context.Context) ([]types.ShipmentWork, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shipmentCols+` FROM shipments ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list shipments: %w", err)
	}
	defer rows.Close()

	var work []types.ShipmentWork
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list shipments: %w", err)
		}
		work = append(work, types.ShipmentWork{Shipment: *sh})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list shipments: %w", err)
	}

	for i := range work {
		id := work[i].Shipment.ID
		actions, err := s.OpenActions(ctx, id)
		if err != nil {
			return nil, err
		}
		issues, err := s.ActiveIssues(ctx, id)
		if err != nil {
			return nil, err
		}
		work[i].Actions = actions
		work[i].Issues = issues
	}
	return work, nil
}

// OpenAction inserts a new open work item.
func (s *Store) OpenAction(ctx context.Context, a *types.ShipmentAction) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO shipment_actions
		(shipment_id, chronicle_id, verb, description, owner, priority, deadline, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ShipmentID, a.ChronicleID, a.Verb, a.Description, a.Owner, a.Priority,
		fmtTimePtr(a.Deadline), string(types.ActionOpen), fmtTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: open action: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	a.Status = types.ActionOpen
	return nil
}

// OpenActions returns the open actions of a shipment, oldest first.
func (s *Store) OpenActions(ctx context.Context, shipmentID string) ([]types.ShipmentAction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, shipment_id, chronicle_id, verb, description, owner, priority, deadline, status, created_at, completed_at
		FROM shipment_actions WHERE shipment_id = ? AND status = ?
		ORDER BY created_at ASC`, shipmentID, string(types.ActionOpen))
	if err != nil {
		return nil, fmt.Errorf("store: open actions %s: %w", shipmentID, err)
	}
	defer rows.Close()

	var out []types.ShipmentAction
	for rows.Next() {
		var (
			a                     types.ShipmentAction
			status, createdAt     string
			deadline, completedAt sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ShipmentID, &a.ChronicleID, &a.Verb, &a.Description,
			&a.Owner, &a.Priority, &deadline, &status, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("store: open actions %s: %w", shipmentID, err)
		}
		a.Status = types.ActionStatus(status)
		a.CreatedAt = parseTime(createdAt)
		a.Deadline = parseTimePtr(deadline)
		a.CompletedAt = parseTimePtr(completedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CompleteAction closes an open action at the given time.
func (s *Store) CompleteAction(ctx context.Context, actionID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shipment_actions SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(types.ActionCompleted), fmtTime(at), actionID, string(types.ActionOpen))
	if err != nil {
		return fmt.Errorf("store: complete action %d: %w", actionID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store: complete action %d: not open", actionID)
	}
	return nil
}

// OpenIssue inserts a new active issue.
func (s *Store) OpenIssue(ctx context.Context, i *types.ShipmentIssue) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO shipment_issues
		(shipment_id, chronicle_id, issue_type, description, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.ShipmentID, i.ChronicleID, i.IssueType, i.Description,
		string(types.IssueActive), fmtTime(i.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: open issue: %w", err)
	}
	i.ID, _ = res.LastInsertId()
	i.Status = types.IssueActive
	return nil
}

// ActiveIssues returns the active issues of a shipment, oldest first.
func (s *Store) ActiveIssues(ctx context.Context, shipmentID string) ([]types.ShipmentIssue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, shipment_id, chronicle_id, issue_type, description, status, created_at, resolved_at
		FROM shipment_issues WHERE shipment_id = ? AND status = ?
		ORDER BY created_at ASC`, shipmentID, string(types.IssueActive))
	if err != nil {
		return nil, fmt.Errorf("store: active issues %s: %w", shipmentID, err)
	}
	defer rows.Close()

	var out []types.ShipmentIssue
	for rows.Next() {
		var (
			i                 types.ShipmentIssue
			status, createdAt string
			resolvedAt        sql.NullString
		)
		if err := rows.Scan(&i.ID, &i.ShipmentID, &i.ChronicleID, &i.IssueType,
			&i.Description, &status, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("store: active issues %s: %w", shipmentID, err)
		}
		i.Status = types.IssueStatus(status)
		i.CreatedAt = parseTime(createdAt)
		i.ResolvedAt = parseTimePtr(resolvedAt)
		out = append(out, i)
	}
	return out, rows.Err()
}

// ResolveIssue settles an active issue at the given time.
func (s *Store) ResolveIssue(ctx context.Context, issueID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shipment_issues SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		string(types.IssueResolved), fmtTime(at), issueID, string(types.IssueActive))
	if err != nil {
		return fmt.Errorf("store: resolve issue %d: %w", issueID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store: resolve issue %d: not active", issueID)
	}
	return nil
}

func scanShipment(row rowScanner) (*types.Shipment, error) {
	var (
		sh                                        types.Shipment
		containers                                sql.NullString
		stage, stageUpdatedAt, createdAt, lastAct string
	)
	err := row.Scan(&sh.ID, &sh.BookingNumber, &sh.MBLNumber, &sh.WorkOrderNumber,
		&containers, &stage, &stageUpdatedAt,
		&sh.ETD, &sh.ETA, &sh.SICutoff, &sh.VGMCutoff, &sh.CargoCutoff, &sh.DocCutoff,
		&sh.VesselName, &sh.VoyageNumber, &sh.CarrierName, &sh.POLLocation, &sh.PODLocation,
		&sh.ShipperName, &sh.ConsigneeName, &createdAt, &lastAct)
	if err != nil {
		return nil, err
	}
	sh.ContainerNumbers = unmarshalStrings(containers)
	sh.Stage = types.ParseStage(stage)
	sh.StageUpdatedAt = parseTime(stageUpdatedAt)
	sh.CreatedAt = parseTime(createdAt)
	sh.LastActivityAt = parseTime(lastAct)
	return &sh, nil
}
