package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

// PostgresStore persists the ledger in PostgreSQL. The caller opens
// the connection (and imports the driver); BIGSERIAL keeps the id
// counter monotonic across restarts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an opened database handle. Call Init before
// first use.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the ledger tables if they do not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS campaigns (
	id BIGSERIAL PRIMARY KEY,
	creator TEXT NOT NULL,
	campaign_type TEXT NOT NULL,
	asset TEXT NOT NULL,
	target_amount BIGINT NOT NULL,
	raised_amount BIGINT NOT NULL,
	total_ever_raised BIGINT NOT NULL,
	metadata_ref TEXT NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	creation_time TIMESTAMPTZ NOT NULL,
	reclaim_deadline TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS donor_records (
	campaign_id BIGINT NOT NULL,
	donor TEXT NOT NULL,
	net_contributed BIGINT NOT NULL,
	has_reclaimed BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (campaign_id, donor)
);`)
	if err != nil {
		return fmt.Errorf("init postgres ledger: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, c campaign.Campaign) (uint64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO campaigns (creator, campaign_type, asset, target_amount, raised_amount,
	total_ever_raised, metadata_ref, end_time, status, creation_time, reclaim_deadline)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`,
		string(c.Creator), string(c.Type), c.Asset, c.TargetAmount, c.RaisedAmount,
		c.TotalEverRaised, c.MetadataRef, c.EndTime, string(c.Status),
		c.CreationTime, nullTime(c.ReclaimDeadline)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert campaign: %w", err)
	}
	return uint64(id), nil
}

func (s *PostgresStore) Campaign(ctx context.Context, id uint64) (campaign.Campaign, error) {
	var (
		c       campaign.Campaign
		rowID   int64
		creator string
		ctype   string
		status  string
		reclaim sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, creator, campaign_type, asset, target_amount, raised_amount,
	total_ever_raised, metadata_ref, end_time, status, creation_time, reclaim_deadline
FROM campaigns WHERE id = $1`, int64(id)).
		Scan(&rowID, &creator, &ctype, &c.Asset, &c.TargetAmount, &c.RaisedAmount,
			&c.TotalEverRaised, &c.MetadataRef, &c.EndTime, &status, &c.CreationTime, &reclaim)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Campaign{}, ErrNotFound
	}
	if err != nil {
		return campaign.Campaign{}, fmt.Errorf("query campaign: %w", err)
	}
	c.ID = uint64(rowID)
	c.Creator = campaign.Principal(creator)
	c.Type = campaign.Type(ctype)
	c.Status = campaign.Status(status)
	c.EndTime = c.EndTime.UTC()
	c.CreationTime = c.CreationTime.UTC()
	if reclaim.Valid {
		c.ReclaimDeadline = reclaim.Time.UTC()
	}
	return c, nil
}

func (s *PostgresStore) PutCampaign(ctx context.Context, c campaign.Campaign) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE campaigns SET creator = $1, campaign_type = $2, asset = $3, target_amount = $4,
	raised_amount = $5, total_ever_raised = $6, metadata_ref = $7, end_time = $8,
	status = $9, creation_time = $10, reclaim_deadline = $11
WHERE id = $12`,
		string(c.Creator), string(c.Type), c.Asset, c.TargetAmount, c.RaisedAmount,
		c.TotalEverRaised, c.MetadataRef, c.EndTime, string(c.Status),
		c.CreationTime, nullTime(c.ReclaimDeadline), int64(c.ID))
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DonorRecord(ctx context.Context, id uint64, donor campaign.Principal) (campaign.DonorRecord, error) {
	var rec campaign.DonorRecord
	err := s.db.QueryRowContext(ctx, `
SELECT net_contributed, has_reclaimed FROM donor_records
WHERE campaign_id = $1 AND donor = $2`, int64(id), string(donor)).
		Scan(&rec.NetContributed, &rec.HasReclaimed)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.DonorRecord{}, nil
	}
	if err != nil {
		return campaign.DonorRecord{}, fmt.Errorf("query donor record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) PutDonorRecord(ctx context.Context, id uint64, donor campaign.Principal, rec campaign.DonorRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO donor_records (campaign_id, donor, net_contributed, has_reclaimed)
VALUES ($1, $2, $3, $4)
ON CONFLICT (campaign_id, donor) DO UPDATE SET
	net_contributed = EXCLUDED.net_contributed,
	has_reclaimed = EXCLUDED.has_reclaimed`,
		int64(id), string(donor), rec.NetContributed, rec.HasReclaimed)
	if err != nil {
		return fmt.Errorf("upsert donor record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
