// Package normalize canonicalizes raw extraction output before schema
// validation: enum remapping, port/carrier/container canonicalization,
// field sanitizers, and date repair. Normalization never fails; values that
// cannot be repaired are nulled.
package normalize

import (
	"strings"

	"freightflow/internal/types"
)

// EnumFields lists the analysis fields subject to enum normalization.
var EnumFields = []string{
	"document_type", "pol_type", "por_type", "pod_type", "pofd_type",
	"message_type", "action_owner", "from_party", "sentiment",
	"transport_mode",
}

// builtinEnumMappings covers the variants the models emit most often.
// Store-loaded mappings are layered on top and win on conflict.
var builtinEnumMappings = map[string]map[string]string{
	"document_type": {
		"booking confirmation":   types.DocBookingConfirmation,
		"booking_confirmed":      types.DocBookingConfirmation,
		"bkg_confirmation":       types.DocBookingConfirmation,
		"booking request":        types.DocBookingRequest,
		"arrival notice":         types.DocArrivalNotice,
		"an":                     types.DocArrivalNotice,
		"vgm confirmation":       types.DocVGMConfirmation,
		"si confirmation":        types.DocSIConfirmation,
		"shipping instructions":  types.DocSISubmission,
		"si":                     types.DocSISubmission,
		"draft bl":               types.DocDraftBL,
		"draft b/l":              types.DocDraftBL,
		"final bl":               types.DocFinalBL,
		"final b/l":              types.DocFinalBL,
		"obl":                    types.DocFinalBL,
		"telex release":          types.DocTelexRelease,
		"seaway bill":            types.DocSeaWaybill,
		"sea waybill":            types.DocSeaWaybill,
		"shipped on board":       types.DocSOBConfirmation,
		"sob":                    types.DocSOBConfirmation,
		"delivery order":         types.DocDeliveryOrder,
		"do":                     types.DocDeliveryOrder,
		"proof of delivery":      types.DocPODProofOfDelivery,
		"pod":                    types.DocPODProofOfDelivery,
		"empty return":           types.DocEmptyReturn,
		"delay notice":           types.DocDelayNotification,
		"rollover":               types.DocRolloverNotice,
		"roll-over notice":       types.DocRolloverNotice,
		"schedule change":        types.DocScheduleUpdate,
		"vessel schedule":        types.DocScheduleUpdate,
		"customs hold":           types.DocCustomsHold,
		"customs clearance":      types.DocCustomsClearance,
		"general correspondence": types.DocGeneralCorrespondence,
		"correspondence":         types.DocGeneralCorrespondence,
	},
	"from_party": {
		"carrier":         "ocean_carrier",
		"shipping line":   "ocean_carrier",
		"line":            "ocean_carrier",
		"forwarder":       "freight_broker",
		"freight forwarder": "freight_broker",
		"broker":          "customs_broker",
		"cha":             "customs_broker",
		"transporter":     "trucker",
		"trucking company": "trucker",
		"client":          "customer",
		"cnee":            "consignee",
		"shpr":            "shipper",
		"internal":        "intoglo",
		"glo":             "intoglo",
		"automated":       "system",
	},
	"transport_mode": {
		"sea":        "ocean",
		"maritime":   "ocean",
		"fcl":        "ocean",
		"lcl":        "ocean",
		"truck":      "road",
		"trucking":   "road",
		"drayage":    "road",
		"train":      "rail",
		"intermodal": "multimodal",
		"air freight": "air",
	},
	"message_type": {
		"update":       "status_update",
		"status":       "status_update",
		"info":         "new_information",
		"information":  "new_information",
		"confirm":      "confirmation",
		"confirmed":    "confirmation",
		"reply":        "response",
		"answer":       "response",
		"alert":        "notification",
		"notice":       "notification",
	},
	"sentiment": {
		"ok":       "neutral",
		"normal":   "neutral",
		"good":     "positive",
		"bad":      "negative",
		"angry":    "negative",
		"critical": "urgent",
		"urgent!":  "urgent",
	},
	"action_owner": {
		"us":        "intoglo",
		"ops":       "intoglo",
		"ops team":  "intoglo",
		"client":    "customer",
		"line":      "carrier",
		"transporter": "trucker",
	},
	"pol_type":  pointTypeVariants,
	"por_type":  pointTypeVariants,
	"pod_type":  pointTypeVariants,
	"pofd_type": pointTypeVariants,
}

var pointTypeVariants = map[string]string{
	"seaport":    "port",
	"sea port":   "port",
	"ocean port": "port",
	"ramp":       "rail_ramp",
	"rail ramp":  "rail_ramp",
	"icd":        "rail_ramp",
	"container freight station": "cfs",
	"customer door":             "door",
	"factory":                   "door",
	"dc":                        "warehouse",
	"distribution center":       "warehouse",
}

// EnumNormalizer maps case-insensitive variants to canonical enum values.
// Unknown inputs pass through unchanged; downstream schema validation
// rejects them.
type EnumNormalizer struct {
	mappings map[string]map[string]string
}

// NewEnumNormalizer builds a normalizer from the built-in table plus any
// store-loaded mappings (which override built-ins).
func NewEnumNormalizer(stored []types.EnumMapping) *EnumNormalizer {
	m := make(map[string]map[string]string, len(builtinEnumMappings))
	for field, variants := range builtinEnumMappings {
		fm := make(map[string]string, len(variants))
		for v, canon := range variants {
			fm[v] = canon
		}
		m[field] = fm
	}
	for _, em := range stored {
		fm := m[em.Field]
		if fm == nil {
			fm = make(map[string]string)
			m[em.Field] = fm
		}
		fm[strings.ToLower(strings.TrimSpace(em.Variant))] = em.Canonical
	}
	return &EnumNormalizer{mappings: m}
}

// Normalize canonicalizes one enum value for a field. Matching is
// case-insensitive; canonical values are returned lowercased since every
// closed enumeration is lowercase.
func (n *EnumNormalizer) Normalize(field, value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	if fm, ok := n.mappings[field]; ok {
		if canon, ok := fm[lower]; ok {
			return canon
		}
	}
	// Already-canonical values arrive in mixed case from some models.
	if isKnownCanonical(field, lower) {
		return lower
	}
	return v
}

func isKnownCanonical(field, lower string) bool {
	switch field {
	case "document_type":
		return types.ValidDocumentTypes[lower]
	case "from_party":
		return types.ValidFromParties[lower]
	case "transport_mode":
		return types.ValidTransportModes[lower]
	case "message_type":
		return types.ValidMessageTypes[lower]
	case "sentiment":
		return types.ValidSentiments[lower]
	case "action_owner":
		return types.ValidActionOwners[lower]
	case "pol_type", "por_type", "pod_type", "pofd_type":
		return types.ValidPointTypes[lower]
	}
	return false
}
