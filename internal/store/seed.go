package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"freightflow/internal/logging"
	"freightflow/internal/types"
)

// Seed file names recognized in the seed directory.
const (
	seedPatterns           = "patterns.yaml"
	seedActionRules        = "action_rules.yaml"
	seedFlowRules          = "flow_rules.yaml"
	seedCompletionKeywords = "completion_keywords.yaml"
	seedEnumMappings       = "enum_mappings.yaml"
)

// flowRuleSeed carries the stage by name so seed files stay readable.
type flowRuleSeed struct {
	Stage        string            `yaml:"stage"`
	DocumentType string            `yaml:"document_type"`
	Verdict      types.FlowVerdict `yaml:"verdict"`
}

// SeedRules loads every recognized seed file from dir into the rule tables.
// Loading is idempotent: rows are keyed by their natural key and replaced.
// Missing files are skipped, not errors.
func (s *Store) SeedRules(ctx context.Context, dir string) error {
	log := logging.L(logging.CategoryStore)

	if err := seedFile(ctx, s, dir, seedPatterns, s.seedPatterns); err != nil {
		return err
	}
	if err := seedFile(ctx, s, dir, seedActionRules, s.seedActionRules); err != nil {
		return err
	}
	if err := seedFile(ctx, s, dir, seedFlowRules, s.seedFlowRules); err != nil {
		return err
	}
	if err := seedFile(ctx, s, dir, seedCompletionKeywords, s.seedCompletionKeywords); err != nil {
		return err
	}
	if err := seedFile(ctx, s, dir, seedEnumMappings, s.seedEnumMappings); err != nil {
		return err
	}
	log.Infow("rule seeds loaded", "dir", dir)
	return nil
}

func seedFile(ctx context.Context, s *Store, dir, name string, apply func(context.Context, []byte) error) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read seed %s: %w", name, err)
	}
	if err := apply(ctx, data); err != nil {
		return fmt.Errorf("store: seed %s: %w", name, err)
	}
	return nil
}

func (s *Store) seedPatterns(ctx context.Context, data []byte) error {
	var patterns []types.Pattern
	if err := yaml.Unmarshal(data, &patterns); err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, p := range patterns {
			// Replace keeps seeded fields fresh but loses counters on a
			// re-seed of the same id; counters live with the rule row.
			if _, err := tx.ExecContext(ctx, `INSERT INTO detection_patterns
				(id, pattern_type, regex, flags, document_type, priority, confidence_base,
				requires_attachment, min_thread_position, max_thread_position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					pattern_type = excluded.pattern_type,
					regex = excluded.regex,
					flags = excluded.flags,
					document_type = excluded.document_type,
					priority = excluded.priority,
					confidence_base = excluded.confidence_base,
					requires_attachment = excluded.requires_attachment,
					min_thread_position = excluded.min_thread_position,
					max_thread_position = excluded.max_thread_position`,
				p.ID, string(p.PatternType), p.Regex, p.Flags, p.DocumentType,
				p.Priority, p.ConfidenceBase, p.RequiresAttachment,
				p.MinThreadPosition, p.MaxThreadPosition); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) seedActionRules(ctx context.Context, data []byte) error {
	var rules []types.ActionRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, r := range rules {
			boost, err := marshalJSON(r.PriorityBoostWords)
			if err != nil {
				return err
			}
			toAct, err := marshalJSON(r.FlipToActionWords)
			if err != nil {
				return err
			}
			toNone, err := marshalJSON(r.FlipToNoActionWords)
			if err != nil {
				return err
			}
			autoResolve, err := marshalJSON(r.AutoResolveOn)
			if err != nil {
				return err
			}
			deadlineType := r.DeadlineType
			if deadlineType == "" {
				deadlineType = types.DeadlineNone
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO action_rules
				(document_type, from_party, is_reply, has_action, verb, description_template,
				owner, priority_base, priority_boost_keywords, deadline_type, deadline_days,
				cutoff_field, flip_to_action_keywords, flip_to_no_action_keywords, auto_resolve_on)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.DocumentType, r.FromParty, r.IsReply, r.HasAction, r.Verb,
				r.DescriptionTemplate, r.Owner, r.PriorityBase, boost,
				string(deadlineType), r.DeadlineDays, r.CutoffField,
				toAct, toNone, autoResolve); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) seedFlowRules(ctx context.Context, data []byte) error {
	var rules []flowRuleSeed
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, r := range rules {
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO flow_validation_rules
				(stage, document_type, verdict) VALUES (?, ?, ?)`,
				types.ParseStage(r.Stage).String(), r.DocumentType, string(r.Verdict)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) seedCompletionKeywords(ctx context.Context, data []byte) error {
	var entries []types.CompletionKeywords
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, ck := range entries {
			kw, err := marshalJSON(ck.Keywords)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO action_completion_keywords
				(document_type, keywords) VALUES (?, ?)`, ck.DocumentType, kw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) seedEnumMappings(ctx context.Context, data []byte) error {
	var mappings []types.EnumMapping
	if err := yaml.Unmarshal(data, &mappings); err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, m := range mappings {
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO enum_mappings
				(field, variant, canonical) VALUES (?, ?, ?)`,
				m.Field, m.Variant, m.Canonical); err != nil {
				return err
			}
		}
		return nil
	})
}

// WatchSeeds watches the seed directory and, on any change, re-seeds and
// invokes onReload (cache invalidation). Events are debounced; editors fire
// several per save. Blocks until ctx is done.
func (s *Store) WatchSeeds(ctx context.Context, dir string, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("store: seed watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("store: watch %s: %w", dir, err)
	}

	log := logging.L(logging.CategoryStore)
	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("seed watch error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			if err := s.SeedRules(ctx, dir); err != nil {
				log.Errorw("seed reload failed", "error", err)
				continue
			}
			log.Infow("seeds reloaded", "dir", dir)
			if onReload != nil {
				onReload()
			}
		}
	}
}
