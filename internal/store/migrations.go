package store

import (
	"context"
	"database/sql"
	"fmt"

	"freightflow/internal/logging"
)

// migrations are applied in order; schema_version records the last one
// applied. Never edit a shipped migration, append a new one.
var migrations = []string{
	// 1: core pipeline tables
	`CREATE TABLE IF NOT EXISTS chronicle (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL UNIQUE,
		thread_id TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		sender_address TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL DEFAULT '',
		thread_position INTEGER NOT NULL DEFAULT 1,
		occurred_at TEXT NOT NULL,
		analysis TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		confidence_source TEXT NOT NULL DEFAULT '',
		escalation_reason TEXT NOT NULL DEFAULT '',
		reanalysis_flags TEXT,
		shipment_id TEXT NOT NULL DEFAULT '',
		linked_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chronicle_thread ON chronicle(thread_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_chronicle_occurred ON chronicle(occurred_at);
	CREATE INDEX IF NOT EXISTS idx_chronicle_shipment ON chronicle(shipment_id);

	CREATE TABLE IF NOT EXISTS chronicle_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		occurred_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_errors_message ON chronicle_errors(message_id);

	CREATE TABLE IF NOT EXISTS chronicle_sync_state (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		last_run_at TEXT NOT NULL,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0
	);`,

	// 2: shipment aggregate and work items
	`CREATE TABLE IF NOT EXISTS shipments (
		id TEXT PRIMARY KEY,
		booking_number TEXT NOT NULL DEFAULT '',
		mbl_number TEXT NOT NULL DEFAULT '',
		work_order_number TEXT NOT NULL DEFAULT '',
		container_numbers TEXT,
		stage TEXT NOT NULL DEFAULT 'PENDING',
		stage_updated_at TEXT NOT NULL,
		etd TEXT NOT NULL DEFAULT '',
		eta TEXT NOT NULL DEFAULT '',
		si_cutoff TEXT NOT NULL DEFAULT '',
		vgm_cutoff TEXT NOT NULL DEFAULT '',
		cargo_cutoff TEXT NOT NULL DEFAULT '',
		doc_cutoff TEXT NOT NULL DEFAULT '',
		vessel_name TEXT NOT NULL DEFAULT '',
		voyage_number TEXT NOT NULL DEFAULT '',
		carrier_name TEXT NOT NULL DEFAULT '',
		pol_location TEXT NOT NULL DEFAULT '',
		pod_location TEXT NOT NULL DEFAULT '',
		shipper_name TEXT NOT NULL DEFAULT '',
		consignee_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		last_activity_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_shipments_booking ON shipments(booking_number);
	CREATE INDEX IF NOT EXISTS idx_shipments_mbl ON shipments(mbl_number);
	CREATE INDEX IF NOT EXISTS idx_shipments_wo ON shipments(work_order_number);

	CREATE TABLE IF NOT EXISTS stage_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shipment_id TEXT NOT NULL,
		from_stage TEXT NOT NULL,
		to_stage TEXT NOT NULL,
		document_type TEXT NOT NULL DEFAULT '',
		occurred_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shipment_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shipment_id TEXT NOT NULL,
		chronicle_id TEXT NOT NULL DEFAULT '',
		verb TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		deadline TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		created_at TEXT NOT NULL,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_actions_shipment ON shipment_actions(shipment_id, status);

	CREATE TABLE IF NOT EXISTS shipment_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		shipment_id TEXT NOT NULL,
		chronicle_id TEXT NOT NULL DEFAULT '',
		issue_type TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		resolved_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_issues_shipment ON shipment_issues(shipment_id, status);`,

	// 3: rule tables, seeded from YAML
	`CREATE TABLE IF NOT EXISTS detection_patterns (
		id INTEGER PRIMARY KEY,
		pattern_type TEXT NOT NULL,
		regex TEXT NOT NULL,
		flags TEXT NOT NULL DEFAULT '',
		document_type TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		confidence_base REAL NOT NULL DEFAULT 0,
		requires_attachment INTEGER NOT NULL DEFAULT 0,
		min_thread_position INTEGER NOT NULL DEFAULT 0,
		max_thread_position INTEGER NOT NULL DEFAULT 0,
		hit_count INTEGER NOT NULL DEFAULT 0,
		false_positive_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS action_rules (
		document_type TEXT NOT NULL,
		from_party TEXT NOT NULL,
		is_reply INTEGER NOT NULL,
		has_action INTEGER NOT NULL DEFAULT 0,
		verb TEXT NOT NULL DEFAULT '',
		description_template TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL DEFAULT '',
		priority_base TEXT NOT NULL DEFAULT '',
		priority_boost_keywords TEXT,
		deadline_type TEXT NOT NULL DEFAULT 'none',
		deadline_days INTEGER NOT NULL DEFAULT 0,
		cutoff_field TEXT NOT NULL DEFAULT '',
		flip_to_action_keywords TEXT,
		flip_to_no_action_keywords TEXT,
		auto_resolve_on TEXT,
		PRIMARY KEY (document_type, from_party, is_reply)
	);

	CREATE TABLE IF NOT EXISTS flow_validation_rules (
		stage TEXT NOT NULL,
		document_type TEXT NOT NULL,
		verdict TEXT NOT NULL,
		PRIMARY KEY (stage, document_type)
	);

	CREATE TABLE IF NOT EXISTS action_completion_keywords (
		document_type TEXT PRIMARY KEY,
		keywords TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS enum_mappings (
		field TEXT NOT NULL,
		variant TEXT NOT NULL,
		canonical TEXT NOT NULL,
		PRIMARY KEY (field, variant)
	);`,

	// 4: learning and memory
	`CREATE TABLE IF NOT EXISTS learning_episodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chronicle_id TEXT NOT NULL,
		predicted_type TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 0,
		method TEXT NOT NULL DEFAULT '',
		sender_domain TEXT NOT NULL DEFAULT '',
		thread_position INTEGER NOT NULL DEFAULT 1,
		flow_validation_passed INTEGER NOT NULL DEFAULT 1,
		review_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_episodes_domain ON learning_episodes(sender_domain);

	CREATE TABLE IF NOT EXISTS chronicle_embeddings (
		chronicle_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL
	);`,
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("store: init schema_version: %w", err)
	}

	var version int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&version); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	log := logging.L(logging.CategoryStore)
	for i := version; i < len(migrations); i++ {
		err := s.tx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
				return fmt.Errorf("store: migration %d: %w", i+1, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, i+1)
			return err
		})
		if err != nil {
			return err
		}
		log.Infow("migration applied", "version", i+1)
	}
	return nil
}
