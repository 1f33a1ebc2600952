package types

import (
	"strings"
	"time"
)

// Direction indicates whether a message was received or sent.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is the immutable ingest record for one email.
// MessageID is globally unique and serves as the idempotency key.
type Message struct {
	MessageID     string       `json:"message_id"`
	ThreadID      string       `json:"thread_id"`
	Subject       string       `json:"subject"`
	Body          string       `json:"body"`
	SenderAddress string       `json:"sender_address"`
	ReceivedAt    time.Time    `json:"received_at"`
	Direction     Direction    `json:"direction"`
	Attachments   []Attachment `json:"attachments,omitempty"`
}

// Attachment is a file attached to a message. ExtractedText is populated
// by the PdfExtractor and bounded to MaxAttachmentChars.
type Attachment struct {
	Filename      string `json:"filename"`
	MimeType      string `json:"mime_type"`
	SizeBytes     int64  `json:"size_bytes"`
	ExtractedText string `json:"extracted_text,omitempty"`
}

// MaxAttachmentChars bounds extracted attachment text per attachment.
const MaxAttachmentChars = 8000

// MaxBodyChars bounds the message body passed to the LLM.
const MaxBodyChars = 4000

// IsReply reports whether a thread position marks a reply or forward.
// Subjects are unreliable at position >= 2.
func (m *Message) IsReply(threadPosition int) bool {
	return threadPosition >= 2
}

// SenderDomain extracts the lowercase domain of an email address, "" when
// the address has no @.
func SenderDomain(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
