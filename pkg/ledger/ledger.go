// Package ledger owns campaign and donor-record storage. It stores and
// looks up; every mutation decision belongs to the lifecycle engine,
// which holds the per-campaign lock while it reads, rewrites and, on
// transfer failure, restores records through this interface.
package ledger

import (
	"context"
	"errors"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

// ErrNotFound is returned for campaign ids that were never allocated.
var ErrNotFound = errors.New("ledger: campaign not found")

// Store is the persistence contract for the custody core. Ids are
// allocated from a monotonically increasing counter starting at 1;
// 0 is reserved as invalid. Implementations return value copies and
// never retain references handed to them.
type Store interface {
	// CreateCampaign assigns the next id, persists the record and
	// returns the id.
	CreateCampaign(ctx context.Context, c campaign.Campaign) (uint64, error)

	// Campaign returns the record for id, or ErrNotFound.
	Campaign(ctx context.Context, id uint64) (campaign.Campaign, error)

	// PutCampaign replaces the record for c.ID, or returns ErrNotFound
	// when the id was never allocated.
	PutCampaign(ctx context.Context, c campaign.Campaign) error

	// DonorRecord returns the donor's position in a campaign. A donor
	// that never contributed yields the zero record, not an error.
	DonorRecord(ctx context.Context, id uint64, donor campaign.Principal) (campaign.DonorRecord, error)

	// PutDonorRecord upserts the donor's position in a campaign.
	PutDonorRecord(ctx context.Context, id uint64, donor campaign.Principal, rec campaign.DonorRecord) error

	// Close releases backing resources.
	Close() error
}
