package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-attachment/pkg/simpleattachment"
)

const defaultBatchSize = 100

// adminService implements the AdminService interface
type adminService struct {
	repo   simpleattachment.Repository
	owners *simpleattachment.OwnerRegistry
}

var _ AdminService = (*adminService)(nil)

// forEach pages through every record in creation order
func (s *adminService) forEach(ctx context.Context, batchSize int, fn func(*simpleattachment.Attachment) error) error {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	offset := 0
	for {
		batch, err := s.repo.ListAttachments(ctx, simpleattachment.ListAttachmentsParams{Limit: batchSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("failed to list attachments: %w", err)
		}
		for _, a := range batch {
			if err := fn(a); err != nil {
				return err
			}
		}
		if len(batch) < batchSize {
			return nil
		}
		offset += batchSize
	}
}

// GetStatistics returns aggregated statistics about attachments
func (s *adminService) GetStatistics(ctx context.Context, req StatisticsRequest) (*StatisticsResponse, error) {
	if req.OwnerType != "" && !req.OwnerType.IsValid() {
		return nil, simpleattachment.ErrUnknownOwnerType
	}

	stats := AttachmentStatistics{
		ByCategory:       make(map[string]int64),
		ByAttachmentType: make(map[string]int64),
		ByOwnerType:      make(map[string]int64),
	}

	err := s.forEach(ctx, req.BatchSize, func(a *simpleattachment.Attachment) error {
		if req.OwnerType != "" && (a.Owner == nil || a.Owner.Type != req.OwnerType) {
			return nil
		}
		stats.TotalCount++
		stats.TotalBytes += a.SizeBytes
		stats.ByCategory[string(a.Category())]++
		stats.ByAttachmentType[a.AttachmentType]++
		if a.Owner == nil {
			stats.UnownedCount++
		} else {
			stats.ByOwnerType[string(a.Owner.Type)]++
		}

		created := a.CreatedAt
		if stats.OldestAttachment == nil || created.Before(*stats.OldestAttachment) {
			stats.OldestAttachment = &created
		}
		if stats.NewestAttachment == nil || created.After(*stats.NewestAttachment) {
			stats.NewestAttachment = &created
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &StatisticsResponse{Statistics: stats, ComputedAt: time.Now().UTC()}, nil
}

// FindDangling resolves each owner through the registry
func (s *adminService) FindDangling(ctx context.Context, req DanglingRequest) (*DanglingResponse, error) {
	resp := &DanglingResponse{
		Dangling:  []DanglingAttachment{},
		Unchecked: make(map[string]int64),
	}

	err := s.forEach(ctx, req.BatchSize, func(a *simpleattachment.Attachment) error {
		if a.Owner == nil {
			return nil
		}
		exists, err := s.owners.Exists(ctx, *a.Owner)
		if errors.Is(err, simpleattachment.ErrUnknownOwnerType) {
			resp.Unchecked[string(a.Owner.Type)]++
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to resolve owner %s: %w", a.Owner, err)
		}
		resp.Checked++
		if !exists {
			resp.Dangling = append(resp.Dangling, DanglingAttachment{Attachment: a, Owner: *a.Owner})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp.ComputedAt = time.Now().UTC()
	return resp, nil
}
