package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"freightflow/internal/types"
)

// ListPatterns returns every detection pattern, priority descending.
func (s *Store) ListPatterns(ctx context.Context) ([]types.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, pattern_type, regex, flags, document_type, priority, confidence_base,
		requires_attachment, min_thread_position, max_thread_position,
		hit_count, false_positive_count
		FROM detection_patterns ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list patterns: %w", err)
	}
	defer rows.Close()

	var out []types.Pattern
	for rows.Next() {
		var (
			p           types.Pattern
			patternType string
		)
		if err := rows.Scan(&p.ID, &patternType, &p.Regex, &p.Flags, &p.DocumentType,
			&p.Priority, &p.ConfidenceBase, &p.RequiresAttachment,
			&p.MinThreadPosition, &p.MaxThreadPosition,
			&p.HitCount, &p.FalsePositiveCount); err != nil {
			return nil, fmt.Errorf("store: list patterns: %w", err)
		}
		p.PatternType = types.PatternType(patternType)
		out = append(out, p)
	}
	return out, rows.Err()
}

// IncrementPatternHit bumps a pattern's hit counter, and its false-positive
// counter when the match was later overturned.
func (s *Store) IncrementPatternHit(ctx context.Context, patternID int64, falsePositive bool) error {
	fp := 0
	if falsePositive {
		fp = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE detection_patterns
		SET hit_count = hit_count + 1, false_positive_count = false_positive_count + ?
		WHERE id = ?`, fp, patternID)
	if err != nil {
		return fmt.Errorf("store: increment pattern %d: %w", patternID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store: increment pattern %d: not found", patternID)
	}
	return nil
}

// ListActionRules returns every action rule.
func (s *Store) ListActionRules(ctx context.Context) ([]types.ActionRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		document_type, from_party, is_reply, has_action, verb, description_template,
		owner, priority_base, priority_boost_keywords, deadline_type, deadline_days,
		cutoff_field, flip_to_action_keywords, flip_to_no_action_keywords, auto_resolve_on
		FROM action_rules`)
	if err != nil {
		return nil, fmt.Errorf("store: list action rules: %w", err)
	}
	defer rows.Close()

	var out []types.ActionRule
	for rows.Next() {
		var (
			r                    types.ActionRule
			deadlineType         string
			boost, toAct, toNone sql.NullString
			autoResolve          sql.NullString
		)
		if err := rows.Scan(&r.DocumentType, &r.FromParty, &r.IsReply, &r.HasAction,
			&r.Verb, &r.DescriptionTemplate, &r.Owner, &r.PriorityBase, &boost,
			&deadlineType, &r.DeadlineDays, &r.CutoffField, &toAct, &toNone, &autoResolve); err != nil {
			return nil, fmt.Errorf("store: list action rules: %w", err)
		}
		r.DeadlineType = types.DeadlineType(deadlineType)
		r.PriorityBoostWords = unmarshalStrings(boost)
		r.FlipToActionWords = unmarshalStrings(toAct)
		r.FlipToNoActionWords = unmarshalStrings(toNone)
		r.AutoResolveOn = unmarshalStrings(autoResolve)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListFlowRules returns every (stage, document type) verdict.
func (s *Store) ListFlowRules(ctx context.Context) ([]types.FlowRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, document_type, verdict FROM flow_validation_rules`)
	if err != nil {
		return nil, fmt.Errorf("store: list flow rules: %w", err)
	}
	defer rows.Close()

	var out []types.FlowRule
	for rows.Next() {
		var stage, verdict string
		var r types.FlowRule
		if err := rows.Scan(&stage, &r.DocumentType, &verdict); err != nil {
			return nil, fmt.Errorf("store: list flow rules: %w", err)
		}
		r.Stage = types.ParseStage(stage)
		r.Verdict = types.FlowVerdict(verdict)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListCompletionKeywords returns the confirmation-type keyword lists.
func (s *Store) ListCompletionKeywords(ctx context.Context) ([]types.CompletionKeywords, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_type, keywords FROM action_completion_keywords`)
	if err != nil {
		return nil, fmt.Errorf("store: list completion keywords: %w", err)
	}
	defer rows.Close()

	var out []types.CompletionKeywords
	for rows.Next() {
		var ck types.CompletionKeywords
		var kw sql.NullString
		if err := rows.Scan(&ck.DocumentType, &kw); err != nil {
			return nil, fmt.Errorf("store: list completion keywords: %w", err)
		}
		ck.Keywords = unmarshalStrings(kw)
		out = append(out, ck)
	}
	return out, rows.Err()
}

// ListEnumMappings returns the stored enum remaps.
func (s *Store) ListEnumMappings(ctx context.Context) ([]types.EnumMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, variant, canonical FROM enum_mappings`)
	if err != nil {
		return nil, fmt.Errorf("store: list enum mappings: %w", err)
	}
	defer rows.Close()

	var out []types.EnumMapping
	for rows.Next() {
		var m types.EnumMapping
		if err := rows.Scan(&m.Field, &m.Variant, &m.Canonical); err != nil {
			return nil, fmt.Errorf("store: list enum mappings: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordLearningEpisode appends one classification episode.
func (s *Store) RecordLearningEpisode(ctx context.Context, ep *types.LearningEpisode) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO learning_episodes
		(chronicle_id, predicted_type, confidence, method, sender_domain,
		thread_position, flow_validation_passed, review_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ChronicleID, ep.PredictedType, ep.Confidence, ep.Method, ep.SenderDomain,
		ep.ThreadPosition, ep.FlowValidationPassed, ep.ReviewReason, fmtTime(ep.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: record episode: %w", err)
	}
	ep.ID, _ = res.LastInsertId()
	return nil
}

// SenderProfile aggregates the learning episodes of a sender domain at query
// time. A domain with no episodes yields nil.
func (s *Store) SenderProfile(ctx context.Context, domain string) (*types.SenderProfile, error) {
	p := &types.SenderProfile{Domain: domain}
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*), COALESCE(AVG(flow_validation_passed), 0)
		FROM learning_episodes WHERE sender_domain = ?`, domain).
		Scan(&p.Episodes, &p.FlowPassRate)
	if err != nil {
		return nil, fmt.Errorf("store: sender profile %s: %w", domain, err)
	}
	if p.Episodes == 0 {
		return nil, nil
	}

	var topCount int
	err = s.db.QueryRowContext(ctx, `SELECT predicted_type, COUNT(*) AS n
		FROM learning_episodes WHERE sender_domain = ?
		GROUP BY predicted_type ORDER BY n DESC LIMIT 1`, domain).
		Scan(&p.TopDocType, &topCount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: sender profile %s: %w", domain, err)
	}
	if topCount > 0 {
		p.TopDocTypePct = float64(topCount) / float64(p.Episodes)
	}
	return p, nil
}
