package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"freightflow/internal/types"
)

// fileMailSource reads messages from a JSON mailbox export: a single file
// holding an array of messages, with attachment bytes stored alongside it
// under <mailbox>.attachments/<message_id>/<filename>. It stands in for a
// live mail provider during development and backfills.
type fileMailSource struct {
	path string
}

func newFileMailSource(path string) *fileMailSource {
	return &fileMailSource{path: path}
}

// Fetch returns the messages received in [after, before), oldest first,
// capped at max (0 means unlimited).
func (f *fileMailSource) Fetch(ctx context.Context, after, before time.Time, max int) ([]types.Message, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("mailbox %s: %w", f.path, err)
	}
	var all []types.Message
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("mailbox %s: %w", f.path, err)
	}

	var out []types.Message
	for _, m := range all {
		if m.ReceivedAt.Before(after) || !m.ReceivedAt.Before(before) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// FetchAttachment reads the attachment bytes from the sidecar directory.
func (f *fileMailSource) FetchAttachment(ctx context.Context, messageID, filename string) ([]byte, error) {
	// Refuse path escapes from hostile filenames.
	if filepath.Base(filename) != filename || filepath.Base(messageID) != messageID {
		return nil, fmt.Errorf("invalid attachment path %q/%q", messageID, filename)
	}
	dir := strings.TrimSuffix(f.path, filepath.Ext(f.path)) + ".attachments"
	return os.ReadFile(filepath.Join(dir, messageID, filename))
}

// textExtractor is the development PdfExtractor: it passes text-like
// attachments through unchanged and declines binary formats.
type textExtractor struct{}

func (textExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "text/"), mt == "application/json", mt == "":
		return string(data), nil
	}
	return "", fmt.Errorf("unsupported attachment type %q", mimeType)
}
