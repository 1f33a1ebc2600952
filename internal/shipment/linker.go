// Package shipment links chronicles to shipment aggregates: find-or-create
// by identifier, monotone stage progression, flow validation, work-item
// emission and confirmation-driven auto-resolution.
package shipment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"freightflow/internal/logging"
	"freightflow/internal/rules"
	"freightflow/internal/types"
)

// Store is the slice of persistence the linker needs.
type Store interface {
	FindShipmentByBooking(ctx context.Context, bookingNumber string) (*types.Shipment, error)
	FindShipmentByMBL(ctx context.Context, mblNumber string) (*types.Shipment, error)
	FindShipmentByWorkOrder(ctx context.Context, workOrderNumber string) (*types.Shipment, error)
	FindShipmentByContainers(ctx context.Context, containerNumbers []string) (*types.Shipment, error)
	CreateShipment(ctx context.Context, s *types.Shipment) error
	UpdateShipment(ctx context.Context, s *types.Shipment) error
	AdvanceStage(ctx context.Context, shipmentID string, to types.Stage, docType string, at time.Time) (bool, error)
	OpenAction(ctx context.Context, a *types.ShipmentAction) error
	OpenActions(ctx context.Context, shipmentID string) ([]types.ShipmentAction, error)
	CompleteAction(ctx context.Context, actionID int64, at time.Time) error
	OpenIssue(ctx context.Context, i *types.ShipmentIssue) error
	ActiveIssues(ctx context.Context, shipmentID string) ([]types.ShipmentIssue, error)
	ResolveIssue(ctx context.Context, issueID int64, at time.Time) error
}

// Result is the outcome of linking one chronicle.
type Result struct {
	ShipmentID    string
	LinkedBy      types.LinkedBy
	StageAdvanced bool
	// Flags to append to the chronicle's review flags (flow validation).
	Flags []string
}

// ActionSpec is the action the processor resolved from the rule tables,
// ready to be opened against the linked shipment.
type ActionSpec struct {
	Verb        string
	Description string
	Owner       string
	Priority    string
	Deadline    *time.Time
}

// Linker resolves chronicles to shipments.
type Linker struct {
	store Store
	rules *rules.Provider
}

// New builds a linker.
func New(store Store, rules *rules.Provider) *Linker {
	return &Linker{store: store, rules: rules}
}

// Link resolves the chronicle to a shipment by identifier priority, merges
// known values, advances the stage, validates the document flow and emits
// work items. A chronicle with no strong identifier and no match stays
// unlinked; that is not an error.
func (l *Linker) Link(ctx context.Context, c *types.Chronicle, action *ActionSpec) (*Result, error) {
	log := logging.L(logging.CategoryShipment)
	a := &c.Analysis

	s, linkedBy, err := l.find(ctx, a)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	created := false
	if s == nil {
		if !a.HasIdentifiers() {
			return res, nil
		}
		s = newShipment(a, c.OccurredAt)
		if err := l.store.CreateShipment(ctx, s); err != nil {
			return nil, fmt.Errorf("shipment: create: %w", err)
		}
		linkedBy = types.LinkedByCreated
		created = true
		log.Infow("shipment created", "shipment_id", s.ID, "stage", s.Stage.String(), "document_type", a.DocumentType)
	}
	res.ShipmentID = s.ID
	res.LinkedBy = linkedBy

	// Flow validation runs against the stage as it was when the message
	// arrived, before this document advances it.
	if !created {
		verdict, err := l.rules.FlowVerdict(ctx, s.Stage, a.DocumentType)
		if err != nil {
			return nil, fmt.Errorf("shipment: flow rules: %w", err)
		}
		switch verdict {
		case types.FlowImpossible:
			res.Flags = append(res.Flags, types.FlagImpossibleFlow)
			log.Warnw("impossible document flow", "shipment_id", s.ID, "stage", s.Stage.String(), "document_type", a.DocumentType)
		case types.FlowUnexpected:
			res.Flags = append(res.Flags, types.FlagUnexpectedFlow)
		}

		mergeKnownValues(s, a, c.OccurredAt)
		if err := l.store.UpdateShipment(ctx, s); err != nil {
			return nil, fmt.Errorf("shipment: update: %w", err)
		}

		if to, ok := types.StageForDocType(a.DocumentType); ok {
			advanced, err := l.store.AdvanceStage(ctx, s.ID, to, a.DocumentType, c.OccurredAt)
			if err != nil {
				return nil, fmt.Errorf("shipment: advance stage: %w", err)
			}
			res.StageAdvanced = advanced
		}
	}

	if err := l.emitWorkItems(ctx, s.ID, c, action); err != nil {
		return nil, err
	}
	if err := l.autoResolve(ctx, s.ID, c); err != nil {
		return nil, err
	}
	return res, nil
}

// find resolves by identifier priority: booking, MBL, work order, then
// container overlap.
func (l *Linker) find(ctx context.Context, a *types.ExtractedAnalysis) (*types.Shipment, types.LinkedBy, error) {
	if a.BookingNumber != "" {
		s, err := l.store.FindShipmentByBooking(ctx, a.BookingNumber)
		if err != nil {
			return nil, "", fmt.Errorf("shipment: find by booking: %w", err)
		}
		if s != nil {
			return s, types.LinkedByBooking, nil
		}
	}
	if a.MBLNumber != "" {
		s, err := l.store.FindShipmentByMBL(ctx, a.MBLNumber)
		if err != nil {
			return nil, "", fmt.Errorf("shipment: find by mbl: %w", err)
		}
		if s != nil {
			return s, types.LinkedByMBL, nil
		}
	}
	if a.WorkOrderNumber != "" {
		s, err := l.store.FindShipmentByWorkOrder(ctx, a.WorkOrderNumber)
		if err != nil {
			return nil, "", fmt.Errorf("shipment: find by work order: %w", err)
		}
		if s != nil {
			return s, types.LinkedByWorkOrder, nil
		}
	}
	if len(a.ContainerNumbers) > 0 {
		s, err := l.store.FindShipmentByContainers(ctx, a.ContainerNumbers)
		if err != nil {
			return nil, "", fmt.Errorf("shipment: find by containers: %w", err)
		}
		if s != nil {
			return s, types.LinkedByContainer, nil
		}
	}
	return nil, "", nil
}

func newShipment(a *types.ExtractedAnalysis, at time.Time) *types.Shipment {
	stage := types.StagePending
	if st, ok := types.StageForDocType(a.DocumentType); ok {
		stage = st
	}
	s := &types.Shipment{
		ID:             uuid.NewString(),
		Stage:          stage,
		StageUpdatedAt: at,
		CreatedAt:      at,
		LastActivityAt: at,
	}
	mergeKnownValues(s, a, at)
	return s
}

// mergeKnownValues copies non-null analysis facts onto the shipment; later
// messages override earlier values, containers accumulate.
func mergeKnownValues(s *types.Shipment, a *types.ExtractedAnalysis, at time.Time) {
	setIfPresent(&s.BookingNumber, a.BookingNumber)
	setIfPresent(&s.MBLNumber, a.MBLNumber)
	setIfPresent(&s.WorkOrderNumber, a.WorkOrderNumber)
	if len(a.ContainerNumbers) > 0 {
		s.ContainerNumbers = lo.Uniq(append(s.ContainerNumbers, a.ContainerNumbers...))
	}
	setIfPresent(&s.ETD, a.ETD)
	setIfPresent(&s.ETA, a.ETA)
	setIfPresent(&s.SICutoff, a.SICutoff)
	setIfPresent(&s.VGMCutoff, a.VGMCutoff)
	setIfPresent(&s.CargoCutoff, a.CargoCutoff)
	setIfPresent(&s.DocCutoff, a.DocCutoff)
	setIfPresent(&s.VesselName, a.VesselName)
	setIfPresent(&s.VoyageNumber, a.VoyageNumber)
	setIfPresent(&s.CarrierName, a.CarrierName)
	setIfPresent(&s.POLLocation, a.POLLocation)
	setIfPresent(&s.PODLocation, a.PODLocation)
	setIfPresent(&s.ShipperName, a.ShipperName)
	setIfPresent(&s.ConsigneeName, a.ConsigneeName)
	if at.After(s.LastActivityAt) {
		s.LastActivityAt = at
	}
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// emitWorkItems opens the resolved action and any reported issue.
func (l *Linker) emitWorkItems(ctx context.Context, shipmentID string, c *types.Chronicle, action *ActionSpec) error {
	if action != nil {
		deadline := action.Deadline
		if err := l.store.OpenAction(ctx, &types.ShipmentAction{
			ShipmentID:  shipmentID,
			ChronicleID: c.ID,
			Verb:        action.Verb,
			Description: action.Description,
			Owner:       action.Owner,
			Priority:    action.Priority,
			Deadline:    deadline,
			Status:      types.ActionOpen,
			CreatedAt:   c.OccurredAt,
		}); err != nil {
			return fmt.Errorf("shipment: open action: %w", err)
		}
	}
	if c.Analysis.HasIssue && c.Analysis.IssueType != "" {
		if err := l.store.OpenIssue(ctx, &types.ShipmentIssue{
			ShipmentID:  shipmentID,
			ChronicleID: c.ID,
			IssueType:   c.Analysis.IssueType,
			Description: c.Analysis.IssueDescription,
			Status:      types.IssueActive,
			CreatedAt:   c.OccurredAt,
		}); err != nil {
			return fmt.Errorf("shipment: open issue: %w", err)
		}
	}
	return nil
}

// issueResolvers maps a document type to the issue types it settles.
var issueResolvers = map[string][]string{
	types.DocCustomsClearance:   {"customs", "hold"},
	types.DocContainerRelease:   {"customs", "hold"},
	types.DocArrivalNotice:      {"delay", "rollover"},
	types.DocPODProofOfDelivery: {"delay"},
}

// autoResolve closes open actions matched by the confirmation type's
// keyword list and settles issues the document type resolves. Completion
// timestamps use the message's occurredAt, not wall clock.
func (l *Linker) autoResolve(ctx context.Context, shipmentID string, c *types.Chronicle) error {
	docType := c.Analysis.DocumentType
	log := logging.L(logging.CategoryShipment)

	if types.ConfirmationClassDocTypes[docType] {
		keywords, err := l.rules.CompletionKeywords(ctx, docType)
		if err != nil {
			return fmt.Errorf("shipment: completion keywords: %w", err)
		}
		if len(keywords) > 0 {
			actions, err := l.store.OpenActions(ctx, shipmentID)
			if err != nil {
				return fmt.Errorf("shipment: open actions: %w", err)
			}
			for _, act := range actions {
				desc := strings.ToLower(act.Description)
				hit := lo.SomeBy(keywords, func(kw string) bool {
					return strings.Contains(desc, strings.ToLower(kw))
				})
				if !hit {
					continue
				}
				if err := l.store.CompleteAction(ctx, act.ID, c.OccurredAt); err != nil {
					return fmt.Errorf("shipment: complete action: %w", err)
				}
				log.Debugw("action auto-resolved", "shipment_id", shipmentID, "action_id", act.ID, "document_type", docType)
			}
		}
	}

	if resolved, ok := issueResolvers[docType]; ok {
		issues, err := l.store.ActiveIssues(ctx, shipmentID)
		if err != nil {
			return fmt.Errorf("shipment: active issues: %w", err)
		}
		for _, issue := range issues {
			if !lo.Contains(resolved, issue.IssueType) {
				continue
			}
			if err := l.store.ResolveIssue(ctx, issue.ID, c.OccurredAt); err != nil {
				return fmt.Errorf("shipment: resolve issue: %w", err)
			}
			log.Debugw("issue auto-resolved", "shipment_id", shipmentID, "issue_id", issue.ID, "document_type", docType)
		}
	}
	return nil
}
