package extract

import (
	"sort"

	"freightflow/internal/types"
)

// ToolName is the structured tool every extraction call offers.
const ToolName = "analyze_freight_communication"

const systemPrompt = `You are an expert freight-forwarding operations analyst. You read emails
between shippers, carriers, customs brokers, truckers and forwarding staff
and extract structured shipping data.

Rules:
- Report only facts present in the message or its attachments. Never guess
  identifiers or dates.
- All dates must be ISO format (YYYY-MM-DD). When a date is ambiguous,
  prefer the reading consistent with the subject line.
- Container numbers follow the 4-letter + 7-digit ISO shape.
- An MBL number is alphanumeric with a carrier SCAC prefix; a pure number
  is a booking number, not an MBL.
- summary is one factual sentence, at most 150 characters.
- Use "unknown" only when the message truly does not say.

Always respond by calling the ` + ToolName + ` tool.`

// Definition builds the tool schema from the closed enumerations. Required
// fields mirror the extraction contract; everything else is nullable.
func Definition() types.ToolDefinition {
	stringProp := func(desc string) map[string]any {
		return map[string]any{"type": []string{"string", "null"}, "description": desc}
	}
	enumProp := func(values map[string]bool, desc string) map[string]any {
		return map[string]any{"type": "string", "enum": sortedKeys(values), "description": desc}
	}
	dateProp := func(desc string) map[string]any {
		return map[string]any{
			"type": []string{"string", "null"}, "description": desc + " (YYYY-MM-DD)",
		}
	}

	props := map[string]any{
		"transport_mode":    enumProp(types.ValidTransportModes, "primary mode of transport"),
		"booking_number":    stringProp("carrier booking number"),
		"mbl_number":        stringProp("master bill of lading number"),
		"hbl_number":        stringProp("house bill of lading number"),
		"container_numbers": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"mawb_number":       stringProp("master air waybill number"),
		"hawb_number":       stringProp("house air waybill number"),
		"work_order_number": stringProp("internal work order number (SE prefix)"),
		"pro_number":        stringProp("trucking PRO number"),
		"reference_numbers": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"identifier_source": enumProp(types.ValidIdentifierSources, "where the primary identifier was found"),
		"document_type":     enumProp(types.ValidDocumentTypes, "classification of this communication"),
		"from_party":        enumProp(types.ValidFromParties, "role of the sender"),

		"por_location": stringProp("place of receipt"),
		"por_type":     enumProp(types.ValidPointTypes, "place of receipt kind"),
		"pol_location": stringProp("port of loading"),
		"pol_type":     enumProp(types.ValidPointTypes, "port of loading kind"),
		"pod_location": stringProp("port of discharge"),
		"pod_type":     enumProp(types.ValidPointTypes, "port of discharge kind"),
		"pofd_location": stringProp("place of final delivery"),
		"pofd_type":     enumProp(types.ValidPointTypes, "place of final delivery kind"),

		"vessel_name":   stringProp("vessel name"),
		"voyage_number": stringProp("voyage number"),
		"flight_number": stringProp("flight number"),
		"carrier_name":  stringProp("carrier name"),

		"etd":               dateProp("estimated departure"),
		"atd":               dateProp("actual departure"),
		"eta":               dateProp("estimated arrival"),
		"ata":               dateProp("actual arrival"),
		"pickup_date":       dateProp("cargo pickup"),
		"delivery_date":     dateProp("delivery"),
		"si_cutoff":         dateProp("shipping instruction cutoff"),
		"vgm_cutoff":        dateProp("VGM cutoff"),
		"cargo_cutoff":      dateProp("cargo gate-in cutoff"),
		"doc_cutoff":        dateProp("documentation cutoff"),
		"last_free_day":     dateProp("last free day at destination"),
		"empty_return_date": dateProp("empty container return"),
		"pod_delivery_date": dateProp("proof-of-delivery date"),

		"container_type": stringProp("container type, e.g. 40HC"),
		"weight":         stringProp("cargo weight"),
		"pieces":         map[string]any{"type": []string{"integer", "null"}},
		"commodity":      stringProp("commodity description"),

		"shipper_name":      stringProp("shipper name"),
		"shipper_address":   stringProp("shipper address"),
		"shipper_contact":   stringProp("shipper contact"),
		"consignee_name":    stringProp("consignee name"),
		"consignee_address": stringProp("consignee address"),
		"consignee_contact": stringProp("consignee contact"),
		"notify_name":       stringProp("notify party name"),
		"notify_address":    stringProp("notify party address"),
		"notify_contact":    stringProp("notify party contact"),

		"invoice_number": stringProp("invoice number"),
		"amount":         map[string]any{"type": []string{"number", "null"}},
		"currency":       stringProp("ISO currency code"),

		"message_type": enumProp(types.ValidMessageTypes, "communication intent"),
		"sentiment":    enumProp(types.ValidSentiments, "tone of the message"),
		"summary":      map[string]any{"type": "string", "description": "one factual sentence, max 150 chars"},

		"has_action":         map[string]any{"type": "boolean"},
		"action_description": stringProp("what must be done"),
		"action_owner":       enumProp(types.ValidActionOwners, "who must act"),
		"action_priority":    enumProp(types.ValidActionPriorities, "urgency of the action"),
		"action_deadline":    dateProp("action deadline"),

		"has_issue":         map[string]any{"type": "boolean"},
		"issue_type":        stringProp("issue category: delay, rollover, hold, documentation, customs, damage"),
		"issue_description": stringProp("what went wrong"),
	}

	return types.ToolDefinition{
		Name:        ToolName,
		Description: "Extract structured shipping data from a freight-forwarding communication.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": props,
			"required": []string{
				"transport_mode", "identifier_source", "document_type",
				"from_party", "message_type", "sentiment", "summary",
				"has_action", "has_issue",
			},
		},
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
