package normalize

import (
	"freightflow/internal/logging"
	"freightflow/internal/types"
)

// Normalizer applies the full canonicalization pass to an analysis. It is
// stateless apart from the enum table and safe for concurrent use.
type Normalizer struct {
	enums *EnumNormalizer
}

// New builds a Normalizer over the stored enum mappings.
func New(stored []types.EnumMapping) *Normalizer {
	return &Normalizer{enums: NewEnumNormalizer(stored)}
}

// Apply canonicalizes the analysis in place and returns the number of
// repairs made (used as a confidence penalty). The subject line drives
// date-swap detection. Apply is idempotent: a second pass makes zero
// further repairs.
func (n *Normalizer) Apply(a *types.ExtractedAnalysis, subject string) int {
	repairs := 0
	log := logging.L(logging.CategoryNormalize)

	// Enums.
	repairs += n.applyEnum(&a.DocumentType, "document_type")
	repairs += n.applyEnum(&a.FromParty, "from_party")
	repairs += n.applyEnum(&a.TransportMode, "transport_mode")
	repairs += n.applyEnum(&a.MessageType, "message_type")
	repairs += n.applyEnum(&a.Sentiment, "sentiment")
	repairs += n.applyEnum(&a.ActionOwner, "action_owner")
	repairs += n.applyEnum(&a.PORType, "por_type")
	repairs += n.applyEnum(&a.POLType, "pol_type")
	repairs += n.applyEnum(&a.PODType, "pod_type")
	repairs += n.applyEnum(&a.POFDType, "pofd_type")

	// Ports.
	repairs += applyFn(&a.PORLocation, Port)
	repairs += applyFn(&a.POLLocation, Port)
	repairs += applyFn(&a.PODLocation, Port)
	repairs += applyFn(&a.POFDLocation, Port)

	// Carrier and container type.
	repairs += applyFn(&a.CarrierName, Carrier)
	repairs += applyFn(&a.ContainerType, ContainerType)

	// Identifiers.
	if filtered := FilterContainerNumbers(a.ContainerNumbers); !equalStrings(filtered, a.ContainerNumbers) {
		a.ContainerNumbers = filtered
		repairs++
	}
	a.ReferenceNumbers = CleanList(a.ReferenceNumbers)

	// MBL repair, then the SE-prefix relocation.
	if IsSEWorkOrder(a.MBLNumber) {
		if a.WorkOrderNumber == "" {
			a.WorkOrderNumber = CleanString(a.MBLNumber)
		}
		a.MBLNumber = ""
		repairs++
	} else {
		repairs += applyFn(&a.MBLNumber, RepairMBL)
	}

	// Scalar cleanups.
	for _, p := range []*string{
		&a.BookingNumber, &a.HBLNumber, &a.MAWBNumber, &a.HAWBNumber,
		&a.WorkOrderNumber, &a.ProNumber, &a.VesselName, &a.VoyageNumber,
		&a.FlightNumber, &a.Commodity, &a.InvoiceNumber, &a.Currency,
		&a.ShipperName, &a.ShipperAddress, &a.ShipperContact,
		&a.ConsigneeName, &a.ConsigneeAddress, &a.ConsigneeContact,
		&a.NotifyName, &a.NotifyAddress, &a.NotifyContact,
		&a.ActionDescription, &a.IssueType, &a.IssueDescription,
		&a.ActionPriority, &a.IdentifierSource,
	} {
		repairs += applyFn(p, CleanString)
	}
	repairs += applyFn(&a.Weight, Weight)

	if truncated := TruncateSummary(a.Summary, types.MaxSummaryChars); truncated != a.Summary {
		a.Summary = truncated
		repairs++
	}

	// Dates: swap repair against the subject, then calendar validity.
	for _, p := range dateFields(a) {
		if *p == "" {
			continue
		}
		if repaired, swapped := RepairDateSwap(*p, subject); swapped {
			log.Debugw("date swap repaired", "from", *p, "to", repaired)
			*p = repaired
			repairs++
		}
		if cleaned := Date(*p); cleaned != *p {
			log.Debugw("invalid date nulled", "value", *p)
			*p = cleaned
			repairs++
		}
	}

	return repairs
}

// dateFields returns pointers to every date field on the analysis.
func dateFields(a *types.ExtractedAnalysis) []*string {
	return []*string{
		&a.ETD, &a.ATD, &a.ETA, &a.ATA, &a.PickupDate, &a.DeliveryDate,
		&a.SICutoff, &a.VGMCutoff, &a.CargoCutoff, &a.DocCutoff,
		&a.LastFreeDay, &a.EmptyReturnDate, &a.PODDeliveryDate,
		&a.ActionDeadline,
	}
}

func (n *Normalizer) applyEnum(p *string, field string) int {
	if *p == "" {
		return 0
	}
	if v := n.enums.Normalize(field, *p); v != *p {
		*p = v
		return 1
	}
	return 0
}

func applyFn(p *string, fn func(string) string) int {
	if v := fn(*p); v != *p {
		*p = v
		return 1
	}
	return 0
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
