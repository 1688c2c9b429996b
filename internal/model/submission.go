package model

import "time"

// ReceivedAtLayout is the fixed-width UTC layout used for SubmissionRecord.ReceivedAt.
// Every value has the same width, so string order equals chronological order.
const ReceivedAtLayout = "2006-01-02T15:04:05.000Z"

// SubmissionRecord is one accepted contact request.
// Records are written once and never mutated; store-enforced expiry is the only deletion path.
type SubmissionRecord struct {
	ID         string          `json:"id"`
	ReceivedAt string          `json:"receivedAt"`
	IP         string          `json:"ip"`
	UserAgent  string          `json:"userAgent"`
	Lang       string          `json:"lang"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Details    string          `json:"details"`
	Photos     []AttachmentRef `json:"photos"`
}

// AttachmentRef describes one uploaded photo stored in the blob store.
// Name and Type are client supplied and only meant for display.
type AttachmentRef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// FormatReceivedAt renders t in ReceivedAtLayout.
func FormatReceivedAt(t time.Time) string {
	return t.UTC().Format(ReceivedAtLayout)
}
