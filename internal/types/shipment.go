package types

import (
	"fmt"
	"time"
)

// Stage is the shipment lifecycle stage. The numeric values define a total
// order; a shipment's stage is monotone non-decreasing over time.
type Stage int

const (
	StagePending Stage = iota
	StageBooked
	StageSIStage
	StageDraftBL
	StageBLIssued
	StageDeparted
	StageInTransit
	StageArrived
	StageCustoms
	StageCleared
	StageDelivered
)

var stageNames = map[Stage]string{
	StagePending:   "PENDING",
	StageBooked:    "BOOKED",
	StageSIStage:   "SI_STAGE",
	StageDraftBL:   "DRAFT_BL",
	StageBLIssued:  "BL_ISSUED",
	StageDeparted:  "DEPARTED",
	StageInTransit: "IN_TRANSIT",
	StageArrived:   "ARRIVED",
	StageCustoms:   "CUSTOMS",
	StageCleared:   "CLEARED",
	StageDelivered: "DELIVERED",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "PENDING"
}

// ParseStage maps a stored stage name back to a Stage. Unknown names map to
// PENDING rather than erroring: old rows must stay readable.
func ParseStage(name string) Stage {
	for s, n := range stageNames {
		if n == name {
			return s
		}
	}
	return StagePending
}

// stageForDocType maps document types to the stage they evidence. Types not
// listed carry no stage signal and never advance a shipment.
var stageForDocType = map[string]Stage{
	DocBookingConfirmation: StageBooked,
	DocBookingAmendment:    StageBooked,
	DocSISubmission:        StageSIStage,
	DocSIConfirmation:      StageSIStage,
	DocVGMSubmission:       StageSIStage,
	DocVGMConfirmation:     StageSIStage,
	DocDraftBL:             StageDraftBL,
	DocFinalBL:             StageBLIssued,
	DocTelexRelease:        StageBLIssued,
	DocSeaWaybill:          StageBLIssued,
	DocLEOCopy:             StageBLIssued,
	DocSOBConfirmation:     StageDeparted,
	DocArrivalNotice:       StageArrived,
	DocCustomsClearance:    StageCustoms,
	DocCustomsHold:         StageCustoms,
	DocContainerRelease:    StageCleared,
	DocDeliveryOrder:       StageCleared,
	DocPODProofOfDelivery:  StageDelivered,
	DocEmptyReturn:         StageDelivered,
}

// StageForDocType returns the stage evidenced by a document type and whether
// the type carries any stage signal at all.
func StageForDocType(docType string) (Stage, bool) {
	s, ok := stageForDocType[docType]
	return s, ok
}

// Shipment is the aggregate entity: many chronicles map to one shipment,
// joined by identifier. Ownership is total and exclusive — a chronicle links
// to at most one shipment.
type Shipment struct {
	ID               string    `json:"id"`
	BookingNumber    string    `json:"booking_number,omitempty"`
	MBLNumber        string    `json:"mbl_number,omitempty"`
	WorkOrderNumber  string    `json:"work_order_number,omitempty"`
	ContainerNumbers []string  `json:"container_numbers,omitempty"`
	Stage            Stage     `json:"stage"`
	StageUpdatedAt   time.Time `json:"stage_updated_at"`

	ETD         string `json:"etd,omitempty"`
	ETA         string `json:"eta,omitempty"`
	SICutoff    string `json:"si_cutoff,omitempty"`
	VGMCutoff   string `json:"vgm_cutoff,omitempty"`
	CargoCutoff string `json:"cargo_cutoff,omitempty"`
	DocCutoff   string `json:"doc_cutoff,omitempty"`

	VesselName    string `json:"vessel_name,omitempty"`
	VoyageNumber  string `json:"voyage_number,omitempty"`
	CarrierName   string `json:"carrier_name,omitempty"`
	POLLocation   string `json:"pol_location,omitempty"`
	PODLocation   string `json:"pod_location,omitempty"`
	ShipperName   string `json:"shipper_name,omitempty"`
	ConsigneeName string `json:"consignee_name,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// StageTransition records one stage advancement with its triggering
// document type.
type StageTransition struct {
	ShipmentID   string    `json:"shipment_id"`
	FromStage    Stage     `json:"from_stage"`
	ToStage      Stage     `json:"to_stage"`
	DocumentType string    `json:"document_type"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ActionStatus is the lifecycle of a shipment action record.
type ActionStatus string

const (
	ActionOpen      ActionStatus = "open"
	ActionCompleted ActionStatus = "completed"
)

// ShipmentAction is a work item opened when a chronicle asserts has_action
// and auto-closed when a matching confirmation-class chronicle arrives.
type ShipmentAction struct {
	ID          int64        `json:"id"`
	ShipmentID  string       `json:"shipment_id"`
	ChronicleID string       `json:"chronicle_id"`
	Verb        string       `json:"verb,omitempty"`
	Description string       `json:"description"`
	Owner       string       `json:"owner"`
	Priority    string       `json:"priority"`
	Deadline    *time.Time   `json:"deadline,omitempty"`
	Status      ActionStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// IsOverdue reports whether an open action's deadline has passed.
func (a *ShipmentAction) IsOverdue(now time.Time) bool {
	return a.Status == ActionOpen && a.Deadline != nil && a.Deadline.Before(now)
}

// IssueStatus is the lifecycle of a shipment issue record.
type IssueStatus string

const (
	IssueActive   IssueStatus = "active"
	IssueResolved IssueStatus = "resolved"
)

// ShipmentIssue is a problem reported by a chronicle (has_issue).
type ShipmentIssue struct {
	ID          int64       `json:"id"`
	ShipmentID  string      `json:"shipment_id"`
	ChronicleID string      `json:"chronicle_id"`
	IssueType   string      `json:"issue_type"`
	Description string      `json:"description,omitempty"`
	Status      IssueStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}

// LinkedBy names the identifier that resolved a chronicle to a shipment.
type LinkedBy string

const (
	LinkedByBooking   LinkedBy = "booking_number"
	LinkedByMBL       LinkedBy = "mbl_number"
	LinkedByWorkOrder LinkedBy = "work_order_number"
	LinkedByContainer LinkedBy = "container_number"
	LinkedByCreated   LinkedBy = "created"
)

func (l LinkedBy) Validate() error {
	switch l {
	case LinkedByBooking, LinkedByMBL, LinkedByWorkOrder, LinkedByContainer, LinkedByCreated:
		return nil
	}
	return fmt.Errorf("unknown link source %q", string(l))
}
