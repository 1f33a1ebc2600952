package normalize

import (
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightflow/internal/types"
)

func TestEnumNormalizer_Variants(t *testing.T) {
	n := NewEnumNormalizer(nil)

	tests := []struct {
		field string
		in    string
		want  string
	}{
		{"document_type", "Booking Confirmation", "booking_confirmation"},
		{"document_type", "ARRIVAL NOTICE", "arrival_notice"},
		{"document_type", "booking_confirmation", "booking_confirmation"},
		{"from_party", "Shipping Line", "ocean_carrier"},
		{"from_party", "CNEE", "consignee"},
		{"transport_mode", "Sea", "ocean"},
		{"transport_mode", "FCL", "ocean"},
		{"sentiment", "Critical", "urgent"},
		{"pol_type", "Seaport", "port"},
		{"pod_type", "ICD", "rail_ramp"},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.field, tt.in))
		})
	}
}

func TestEnumNormalizer_UnknownPassesThrough(t *testing.T) {
	n := NewEnumNormalizer(nil)
	assert.Equal(t, "frobnicated", n.Normalize("document_type", "frobnicated"))
}

func TestEnumNormalizer_StoredOverridesBuiltin(t *testing.T) {
	n := NewEnumNormalizer([]types.EnumMapping{
		{Field: "document_type", Variant: "an", Canonical: "delivery_order"},
	})
	assert.Equal(t, "delivery_order", n.Normalize("document_type", "AN"))
}

func TestPort(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Nhava Sheva", "INNSA"},
		{"nhava sheva, india", "INNSA"},
		{"Rotterdam", "NLRTM"},
		{"Rotterdam Port", "NLRTM"},
		{"USNYC", "USNYC"},
		{"<UNKNOWN>", ""},
		{"N/A", ""},
		{"", ""},
		{"Porto Fictional", "Porto Fictional"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Port(tt.in), "Port(%q)", tt.in)
	}
}

func TestPort_Idempotent(t *testing.T) {
	for _, in := range []string{"Nhava Sheva", "Singapore", "USLAX", "Someplace"} {
		once := Port(in)
		assert.Equal(t, once, Port(once))
	}
}

func TestCarrier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MAERSK LINE", "Maersk"},
		{"maersk", "Maersk"},
		{"Mediterranean Shipping Company", "MSC"},
		{"Hapag Lloyd AG", "Hapag-Lloyd"},
		{"ONE", "ONE"},
		{"Some Random Carrier", "Some Random Carrier"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Carrier(tt.in), "Carrier(%q)", tt.in)
	}
}

func TestContainerType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"40ft high cube", "40HC"},
		{"40' HC", "40HC"},
		{"40 HQ", "40HC"},
		{"20ft standard", "20GP"},
		{"40 reefer", "40RF"},
		{"20ft open top", "20OT"},
		{"45HC", "45HC"},
		{"40hc", "40HC"},
		{"LCL", "LCL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainerType(tt.in), "ContainerType(%q)", tt.in)
	}
}

func TestFilterContainerNumbers(t *testing.T) {
	in := []string{"MSKU1234567", "msku 1234567", "BADNUM", "TCLU7654321", "MSKU1234567", "1234567"}
	got := FilterContainerNumbers(in)
	assert.Equal(t, []string{"MSKU1234567", "TCLU7654321"}, got)
}

func TestRepairMBL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MAERSK 263216729", ""},     // carrier word stripped, pure numeric -> nulled
		{"MAEU263216729", "MAEU263216729"},
		{"MSC:MEDU12345678", "MEDU12345678"},
		{"263216729", ""},
		{"HLCUBO12345", "HLCUBO12345"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RepairMBL(tt.in), "RepairMBL(%q)", tt.in)
	}
}

func TestSEPrefixMovesToWorkOrder(t *testing.T) {
	n := New(nil)
	a := &types.ExtractedAnalysis{MBLNumber: "SEIN12345"}
	n.Apply(a, "")
	assert.Empty(t, a.MBLNumber)
	assert.Equal(t, "SEIN12345", a.WorkOrderNumber)
}

func TestSEPrefixDoesNotOverwriteWorkOrder(t *testing.T) {
	n := New(nil)
	a := &types.ExtractedAnalysis{MBLNumber: "SEIN12345", WorkOrderNumber: "SEUS9"}
	n.Apply(a, "")
	assert.Empty(t, a.MBLNumber)
	assert.Equal(t, "SEUS9", a.WorkOrderNumber)
}

func TestValidDate(t *testing.T) {
	assert.True(t, ValidDate("2026-01-15"))
	assert.True(t, ValidDate("2024-02-29")) // leap year
	assert.False(t, ValidDate("2026-02-30"))
	assert.False(t, ValidDate("2025-02-29"))
	assert.False(t, ValidDate("2026-13-01"))
	assert.False(t, ValidDate("15-01-2026"))
	assert.False(t, ValidDate("2026-1-5"))
}

func TestRepairDateSwap(t *testing.T) {
	// Subject says 3rd FEB; the model returned 2026-03-02 (Mar 2), a
	// day/month transposition of Feb 3.
	got, swapped := RepairDateSwap("2026-03-02", "RE: 3rd FEB'26 ETA update")
	assert.True(t, swapped)
	assert.Equal(t, "2026-02-03", got)
}

func TestRepairDateSwap_NotATransposition(t *testing.T) {
	// Jan 2 is not a transposition of the subject's Feb 2, so the guard
	// must leave it alone.
	_, swapped := RepairDateSwap("2026-01-02", "RE: FW: 2nd FEB'26 ETA update")
	assert.False(t, swapped)

	// An already-correct date is a no-op even when day == month ambiguity
	// technically exists.
	got, swapped := RepairDateSwap("2026-02-02", "RE: FW: 2nd FEB'26 ETA update")
	assert.False(t, swapped)
	assert.Equal(t, "2026-02-02", got)
}

func TestRepairDateSwap_NoAmbiguityPastTwelve(t *testing.T) {
	// Subject day 15 cannot be a month; no swap.
	_, swapped := RepairDateSwap("2026-15-04", "15th APR'26 sailing")
	assert.False(t, swapped)
}

func TestTruncateSummary(t *testing.T) {
	// Multibyte runes must not be split mid-sequence.
	long := make([]rune, 200)
	for i := range long {
		long[i] = '荷'
	}
	got := TruncateSummary(string(long), types.MaxSummaryChars)
	assert.Equal(t, types.MaxSummaryChars, len([]rune(got)))
	assert.True(t, utf8.ValidString(got))
	// Idempotent.
	assert.Equal(t, got, TruncateSummary(got, types.MaxSummaryChars))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"REF1", "REF2", "REF3"}, SplitList("REF1, REF2 REF3"))
	assert.Nil(t, SplitList("  "))
}

func TestApply_Idempotent(t *testing.T) {
	n := New(nil)
	a := &types.ExtractedAnalysis{
		DocumentType:     "Booking Confirmation",
		FromParty:        "Shipping Line",
		TransportMode:    "Sea",
		MessageType:      "Confirm",
		Sentiment:        "OK",
		POLLocation:      "Nhava Sheva",
		PODLocation:      "New York",
		CarrierName:      "MAERSK LINE",
		ContainerType:    "40ft high cube",
		ContainerNumbers: []string{"MSKU1234567", "garbage"},
		MBLNumber:        "MAEU 263216729X",
		ETA:              "2026-02-30",
		ETD:              "2026-01-10",
		Summary:          "Booking confirmed",
	}
	subject := "BKG 2038256270 confirmed"

	repairs := n.Apply(a, subject)
	require.Greater(t, repairs, 0)

	before := *a
	again := n.Apply(a, subject)
	assert.Equal(t, 0, again, "second pass must make no repairs")
	if diff := cmp.Diff(before, *a); diff != "" {
		t.Fatalf("analysis changed on second pass (-want +got):\n%s", diff)
	}
	assert.Empty(t, a.ETA, "impossible date must be nulled")
	assert.Equal(t, "2026-01-10", a.ETD)
}
