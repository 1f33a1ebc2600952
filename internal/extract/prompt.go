package extract

import (
	"fmt"
	"strings"

	"freightflow/internal/types"
)

// maxThreadContext bounds how many prior chronicles the prompt carries.
const maxThreadContext = 10

// buildPrompt assembles the user message. Thread openers carry the subject
// verbatim; replies drop it (inherited RE:/FW: subjects describe the
// opener) and instead summarize the prior thread chronicles.
func buildPrompt(in *Input) string {
	var b strings.Builder

	if in.ThreadPosition <= 1 {
		fmt.Fprintf(&b, "Subject: %s\n", in.Message.Subject)
	} else {
		fmt.Fprintf(&b, "This is message %d in an email thread. The subject line is inherited and untrusted; classify from the content below.\n", in.ThreadPosition)
		if summary := threadSummary(in.ThreadContext); summary != "" {
			b.WriteString("\nPrior messages in this thread:\n")
			b.WriteString(summary)
		}
	}

	fmt.Fprintf(&b, "From: %s\n", in.Message.SenderAddress)
	fmt.Fprintf(&b, "Direction: %s\n", in.Message.Direction)
	fmt.Fprintf(&b, "Received: %s\n", in.Message.ReceivedAt.Format("2006-01-02"))

	if in.AuxContext != "" {
		b.WriteString("\nContext from prior operations:\n")
		b.WriteString(in.AuxContext)
		b.WriteString("\n")
	}

	body := in.Message.Body
	if len(body) > types.MaxBodyChars {
		body = body[:types.MaxBodyChars]
	}
	b.WriteString("\nBody:\n")
	b.WriteString(body)
	b.WriteString("\n")

	for i, text := range in.AttachmentTexts {
		if text == "" {
			continue
		}
		if len(text) > types.MaxAttachmentChars {
			text = text[:types.MaxAttachmentChars]
		}
		name := fmt.Sprintf("attachment %d", i+1)
		if i < len(in.Message.Attachments) {
			name = in.Message.Attachments[i].Filename
		}
		fmt.Fprintf(&b, "\nAttachment (%s):\n%s\n", name, text)
	}

	return b.String()
}

// threadSummary renders up to the last 10 in-thread chronicles, oldest
// first: document type, sender role, summary, key identifiers.
func threadSummary(chronicles []types.Chronicle) string {
	if len(chronicles) == 0 {
		return ""
	}
	if len(chronicles) > maxThreadContext {
		chronicles = chronicles[len(chronicles)-maxThreadContext:]
	}
	var b strings.Builder
	for _, c := range chronicles {
		fmt.Fprintf(&b, "- [%s] %s from %s: %s",
			c.OccurredAt.Format("2006-01-02"), c.Analysis.DocumentType,
			c.Analysis.FromParty, c.Analysis.Summary)
		if ids := keyIdentifiers(&c.Analysis); ids != "" {
			fmt.Fprintf(&b, " (%s)", ids)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func keyIdentifiers(a *types.ExtractedAnalysis) string {
	var parts []string
	if a.BookingNumber != "" {
		parts = append(parts, "booking "+a.BookingNumber)
	}
	if a.MBLNumber != "" {
		parts = append(parts, "MBL "+a.MBLNumber)
	}
	if a.WorkOrderNumber != "" {
		parts = append(parts, "WO "+a.WorkOrderNumber)
	}
	if len(a.ContainerNumbers) > 0 {
		parts = append(parts, "containers "+strings.Join(a.ContainerNumbers, ","))
	}
	return strings.Join(parts, ", ")
}
