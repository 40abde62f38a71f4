package admin

import (
	"time"

	"github.com/tendant/simple-attachment/pkg/simpleattachment"
)

// AttachmentStatistics contains aggregated statistics about attachment records
type AttachmentStatistics struct {
	TotalCount       int64            `json:"total_count"`
	TotalBytes       int64            `json:"total_bytes"`
	UnownedCount     int64            `json:"unowned_count"`
	ByCategory       map[string]int64 `json:"by_category"`
	ByAttachmentType map[string]int64 `json:"by_attachment_type"`
	ByOwnerType      map[string]int64 `json:"by_owner_type"`
	OldestAttachment *time.Time       `json:"oldest_attachment,omitempty"`
	NewestAttachment *time.Time       `json:"newest_attachment,omitempty"`
}

// StatisticsRequest contains parameters for retrieving statistics
type StatisticsRequest struct {
	// OwnerType restricts the statistics to one owner kind when set
	OwnerType simpleattachment.OwnerType `json:"owner_type,omitempty"`

	// BatchSize controls how many records are read at once (default: 100)
	BatchSize int `json:"-"`
}

// StatisticsResponse contains the statistics result
type StatisticsResponse struct {
	Statistics AttachmentStatistics `json:"statistics"`
	ComputedAt time.Time            `json:"computed_at"`
}

// DanglingRequest contains parameters for the dangling-owner report
type DanglingRequest struct {
	BatchSize int `json:"-"`
}

// DanglingAttachment is a record whose owner no longer exists
type DanglingAttachment struct {
	Attachment *simpleattachment.Attachment `json:"attachment"`
	Owner      simpleattachment.OwnerRef    `json:"owner"`
}

// DanglingResponse lists records pointing at missing owners. Owner kinds
// without a registered lookup are counted in Unchecked, never reported.
type DanglingResponse struct {
	Dangling   []DanglingAttachment `json:"dangling"`
	Checked    int64                `json:"checked"`
	Unchecked  map[string]int64     `json:"unchecked,omitempty"`
	ComputedAt time.Time            `json:"computed_at"`
}
