package types

// ExtractedAnalysis is the structured result of analyzing one freight
// communication. String fields use "" for null; every date field is either
// "" or calendar-valid ISO YYYY-MM-DD. Enum fields are closed sets — the
// Valid* maps below are the source of truth.
type ExtractedAnalysis struct {
	TransportMode string `json:"transport_mode"`

	// Identifiers
	BookingNumber    string   `json:"booking_number,omitempty"`
	MBLNumber        string   `json:"mbl_number,omitempty"`
	HBLNumber        string   `json:"hbl_number,omitempty"`
	ContainerNumbers []string `json:"container_numbers,omitempty"`
	MAWBNumber       string   `json:"mawb_number,omitempty"`
	HAWBNumber       string   `json:"hawb_number,omitempty"`
	WorkOrderNumber  string   `json:"work_order_number,omitempty"`
	ProNumber        string   `json:"pro_number,omitempty"`
	ReferenceNumbers []string `json:"reference_numbers,omitempty"`
	IdentifierSource string   `json:"identifier_source"`

	DocumentType string `json:"document_type"`
	FromParty    string `json:"from_party"`

	// Four-point routing
	PORLocation  string `json:"por_location,omitempty"`
	PORType      string `json:"por_type,omitempty"`
	POLLocation  string `json:"pol_location,omitempty"`
	POLType      string `json:"pol_type,omitempty"`
	PODLocation  string `json:"pod_location,omitempty"`
	PODType      string `json:"pod_type,omitempty"`
	POFDLocation string `json:"pofd_location,omitempty"`
	POFDType     string `json:"pofd_type,omitempty"`

	// Vessel / carrier
	VesselName   string `json:"vessel_name,omitempty"`
	VoyageNumber string `json:"voyage_number,omitempty"`
	FlightNumber string `json:"flight_number,omitempty"`
	CarrierName  string `json:"carrier_name,omitempty"`

	// Dates (YYYY-MM-DD)
	ETD             string `json:"etd,omitempty"`
	ATD             string `json:"atd,omitempty"`
	ETA             string `json:"eta,omitempty"`
	ATA             string `json:"ata,omitempty"`
	PickupDate      string `json:"pickup_date,omitempty"`
	DeliveryDate    string `json:"delivery_date,omitempty"`
	SICutoff        string `json:"si_cutoff,omitempty"`
	VGMCutoff       string `json:"vgm_cutoff,omitempty"`
	CargoCutoff     string `json:"cargo_cutoff,omitempty"`
	DocCutoff       string `json:"doc_cutoff,omitempty"`
	LastFreeDay     string `json:"last_free_day,omitempty"`
	EmptyReturnDate string `json:"empty_return_date,omitempty"`
	PODDeliveryDate string `json:"pod_delivery_date,omitempty"`
	ActionDeadline  string `json:"action_deadline,omitempty"`

	// Cargo
	ContainerType string `json:"container_type,omitempty"`
	Weight        string `json:"weight,omitempty"`
	Pieces        *int   `json:"pieces,omitempty"`
	Commodity     string `json:"commodity,omitempty"`

	// Parties
	ShipperName      string `json:"shipper_name,omitempty"`
	ShipperAddress   string `json:"shipper_address,omitempty"`
	ShipperContact   string `json:"shipper_contact,omitempty"`
	ConsigneeName    string `json:"consignee_name,omitempty"`
	ConsigneeAddress string `json:"consignee_address,omitempty"`
	ConsigneeContact string `json:"consignee_contact,omitempty"`
	NotifyName       string `json:"notify_name,omitempty"`
	NotifyAddress    string `json:"notify_address,omitempty"`
	NotifyContact    string `json:"notify_contact,omitempty"`

	// Financial
	InvoiceNumber string   `json:"invoice_number,omitempty"`
	Amount        *float64 `json:"amount,omitempty"`
	Currency      string   `json:"currency,omitempty"`

	// Intelligence
	MessageType       string `json:"message_type"`
	Sentiment         string `json:"sentiment"`
	Summary           string `json:"summary"`
	HasAction         bool   `json:"has_action"`
	ActionDescription string `json:"action_description,omitempty"`
	ActionOwner       string `json:"action_owner,omitempty"`
	ActionPriority    string `json:"action_priority,omitempty"`
	HasIssue          bool   `json:"has_issue"`
	IssueType         string `json:"issue_type,omitempty"`
	IssueDescription  string `json:"issue_description,omitempty"`
}

// MaxSummaryChars is the cap applied to Summary (with an ellipsis).
const MaxSummaryChars = 150

// HasIdentifiers reports whether the analysis carries at least one strong
// identifier (booking, MBL, or work order). Container numbers alone are not
// sufficient to create a shipment.
func (a *ExtractedAnalysis) HasIdentifiers() bool {
	return a.BookingNumber != "" || a.MBLNumber != "" || a.WorkOrderNumber != ""
}

// Document types, grouped the way the ops team talks about them.
const (
	// Booking
	DocBookingRequest      = "booking_request"
	DocBookingConfirmation = "booking_confirmation"
	DocBookingAmendment    = "booking_amendment"
	DocBookingCancellation = "booking_cancellation"

	// Documentation
	DocSISubmission    = "si_submission"
	DocSIConfirmation  = "si_confirmation"
	DocVGMSubmission   = "vgm_submission"
	DocVGMConfirmation = "vgm_confirmation"
	DocDraftBL         = "draft_bl"
	DocFinalBL         = "final_bl"
	DocTelexRelease    = "telex_release"
	DocSeaWaybill      = "sea_waybill"
	DocLEOCopy         = "leo_copy"
	DocSOBConfirmation = "sob_confirmation"

	// Arrival / customs
	DocArrivalNotice    = "arrival_notice"
	DocCustomsClearance = "customs_clearance"
	DocCustomsHold      = "customs_hold"
	DocContainerRelease = "container_release"
	DocDeliveryOrder    = "delivery_order"

	// Delivery / trucking
	DocPODProofOfDelivery = "pod_proof_of_delivery"
	DocEmptyReturn        = "empty_return"
	DocTruckingUpdate     = "trucking_update"
	DocPickupConfirmation = "pickup_confirmation"

	// Financial
	DocInvoice             = "invoice"
	DocPaymentConfirmation = "payment_confirmation"
	DocCreditNote          = "credit_note"

	// Updates
	DocScheduleUpdate    = "schedule_update"
	DocDelayNotification = "delay_notification"
	DocRolloverNotice    = "rollover_notice"
	DocRateUpdate        = "rate_update"

	// Generic communication
	DocGeneralCorrespondence = "general_correspondence"
	DocNotification          = "notification"
	DocApproval              = "approval"
	DocRequest               = "request"
	DocEscalation            = "escalation"
	DocInternalNotification  = "internal_notification"
	DocUnknown               = "unknown"
)

// ValidDocumentTypes is the closed document_type enumeration.
var ValidDocumentTypes = map[string]bool{
	DocBookingRequest: true, DocBookingConfirmation: true,
	DocBookingAmendment: true, DocBookingCancellation: true,
	DocSISubmission: true, DocSIConfirmation: true,
	DocVGMSubmission: true, DocVGMConfirmation: true,
	DocDraftBL: true, DocFinalBL: true, DocTelexRelease: true,
	DocSeaWaybill: true, DocLEOCopy: true, DocSOBConfirmation: true,
	DocArrivalNotice: true, DocCustomsClearance: true, DocCustomsHold: true,
	DocContainerRelease: true, DocDeliveryOrder: true,
	DocPODProofOfDelivery: true, DocEmptyReturn: true,
	DocTruckingUpdate: true, DocPickupConfirmation: true,
	DocInvoice: true, DocPaymentConfirmation: true, DocCreditNote: true,
	DocScheduleUpdate: true, DocDelayNotification: true,
	DocRolloverNotice: true, DocRateUpdate: true,
	DocGeneralCorrespondence: true, DocNotification: true, DocApproval: true,
	DocRequest: true, DocEscalation: true, DocInternalNotification: true,
	DocUnknown: true,
}

// NonShippingDocTypes never escalate to a stronger model: there is nothing
// further to extract from them.
var NonShippingDocTypes = map[string]bool{
	DocGeneralCorrespondence: true,
	DocNotification:          true,
	DocApproval:              true,
	DocRequest:               true,
	DocEscalation:            true,
	DocUnknown:               true,
	DocInternalNotification:  true,
}

// ConfirmationClassDocTypes trigger auto-resolution of open actions on the
// linked shipment.
var ConfirmationClassDocTypes = map[string]bool{
	DocVGMConfirmation: true, DocSIConfirmation: true,
	DocSOBConfirmation: true, DocBookingConfirmation: true,
	DocLEOCopy: true, DocDraftBL: true, DocFinalBL: true,
	DocTelexRelease: true, DocSeaWaybill: true, DocArrivalNotice: true,
	DocContainerRelease: true, DocDeliveryOrder: true,
	DocPODProofOfDelivery: true,
}

// ArrivalClassDocTypes are the only types on which a last_free_day is kept.
var ArrivalClassDocTypes = map[string]bool{
	DocArrivalNotice: true, DocCustomsClearance: true, DocCustomsHold: true,
	DocContainerRelease: true, DocDeliveryOrder: true,
	DocPODProofOfDelivery: true, DocEmptyReturn: true,
}

// ValidTransportModes is the closed transport_mode enumeration.
var ValidTransportModes = map[string]bool{
	"ocean": true, "air": true, "road": true, "rail": true,
	"multimodal": true, "unknown": true,
}

// ValidIdentifierSources is the closed identifier_source enumeration.
var ValidIdentifierSources = map[string]bool{
	"subject": true, "body": true, "attachment": true,
}

// ValidFromParties is the closed from_party enumeration.
var ValidFromParties = map[string]bool{
	"ocean_carrier": true, "airline": true, "nvocc": true, "trucker": true,
	"warehouse": true, "terminal": true, "customs_broker": true,
	"freight_broker": true, "shipper": true, "consignee": true,
	"customer": true, "notify_party": true, "intoglo": true, "system": true,
	"unknown": true,
}

// ValidPointTypes is the closed enumeration for por/pol/pod/pofd types.
var ValidPointTypes = map[string]bool{
	"port": true, "rail_ramp": true, "cfs": true, "door": true,
	"airport": true, "terminal": true, "warehouse": true, "unknown": true,
}

// ValidMessageTypes is the closed message_type enumeration.
var ValidMessageTypes = map[string]bool{
	"new_information": true, "status_update": true, "confirmation": true,
	"request": true, "response": true, "escalation": true, "notification": true,
	"unknown": true,
}

// ValidSentiments is the closed sentiment enumeration.
var ValidSentiments = map[string]bool{
	"positive": true, "neutral": true, "negative": true, "urgent": true,
}

// ValidActionOwners is the closed action_owner enumeration.
var ValidActionOwners = map[string]bool{
	"intoglo": true, "customer": true, "shipper": true, "consignee": true,
	"carrier": true, "trucker": true, "customs_broker": true, "warehouse": true,
	"unknown": true,
}

// ValidActionPriorities is the closed action_priority enumeration.
var ValidActionPriorities = map[string]bool{
	"critical": true, "high": true, "medium": true, "low": true,
}

// ValidIssueTypes is the closed issue_type enumeration.
var ValidIssueTypes = map[string]bool{
	"delay": true, "rollover": true, "hold": true, "documentation": true,
	"customs": true, "damage": true, "other": true,
}
