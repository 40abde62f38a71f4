package admin

import (
	"context"

	"github.com/tendant/simple-attachment/pkg/simpleattachment"
)

// AdminService defines read-only operational reports over attachment records.
// Endpoints using this service should be protected by authentication middleware.
type AdminService interface {
	// GetStatistics returns counts and bytes broken down by category,
	// attachment type and owner type.
	GetStatistics(ctx context.Context, req StatisticsRequest) (*StatisticsResponse, error)

	// FindDangling lists records whose owner can no longer be resolved. It
	// only reports; nothing is deleted.
	FindDangling(ctx context.Context, req DanglingRequest) (*DanglingResponse, error)
}

// New creates a new AdminService. owners may be nil, in which case every
// owned record is reported as unchecked.
func New(repo simpleattachment.Repository, owners *simpleattachment.OwnerRegistry) AdminService {
	if owners == nil {
		owners = simpleattachment.NewOwnerRegistry()
	}
	return &adminService{repo: repo, owners: owners}
}
