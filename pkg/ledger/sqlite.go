package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Tessera-Labs/coffer/pkg/campaign"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the ledger in an embedded SQLite database.
// AUTOINCREMENT keeps the campaign id counter monotonic across
// restarts and deletions.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// runs migrations. Use ":memory:" for throwaway stores.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite ledger: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS campaigns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	creator TEXT NOT NULL,
	campaign_type TEXT NOT NULL,
	asset TEXT NOT NULL,
	target_amount INTEGER NOT NULL,
	raised_amount INTEGER NOT NULL,
	total_ever_raised INTEGER NOT NULL,
	metadata_ref TEXT NOT NULL,
	end_time TEXT NOT NULL,
	status TEXT NOT NULL,
	creation_time TEXT NOT NULL,
	reclaim_deadline TEXT
);
CREATE TABLE IF NOT EXISTS donor_records (
	campaign_id INTEGER NOT NULL,
	donor TEXT NOT NULL,
	net_contributed INTEGER NOT NULL,
	has_reclaimed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (campaign_id, donor)
);`)
	return err
}

func (s *SQLiteStore) CreateCampaign(ctx context.Context, c campaign.Campaign) (uint64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO campaigns (creator, campaign_type, asset, target_amount, raised_amount,
	total_ever_raised, metadata_ref, end_time, status, creation_time, reclaim_deadline)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.Creator), string(c.Type), c.Asset, c.TargetAmount, c.RaisedAmount,
		c.TotalEverRaised, c.MetadataRef, formatTime(c.EndTime), string(c.Status),
		formatTime(c.CreationTime), nullableTime(c.ReclaimDeadline))
	if err != nil {
		return 0, fmt.Errorf("insert campaign: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("campaign id: %w", err)
	}
	return uint64(id), nil
}

func (s *SQLiteStore) Campaign(ctx context.Context, id uint64) (campaign.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, creator, campaign_type, asset, target_amount, raised_amount,
	total_ever_raised, metadata_ref, end_time, status, creation_time, reclaim_deadline
FROM campaigns WHERE id = ?`, int64(id))
	return scanCampaign(row)
}

func (s *SQLiteStore) PutCampaign(ctx context.Context, c campaign.Campaign) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE campaigns SET creator = ?, campaign_type = ?, asset = ?, target_amount = ?,
	raised_amount = ?, total_ever_raised = ?, metadata_ref = ?, end_time = ?,
	status = ?, creation_time = ?, reclaim_deadline = ?
WHERE id = ?`,
		string(c.Creator), string(c.Type), c.Asset, c.TargetAmount, c.RaisedAmount,
		c.TotalEverRaised, c.MetadataRef, formatTime(c.EndTime), string(c.Status),
		formatTime(c.CreationTime), nullableTime(c.ReclaimDeadline), int64(c.ID))
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

func (s *SQLiteStore) DonorRecord(ctx context.Context, id uint64, donor campaign.Principal) (campaign.DonorRecord, error) {
	var rec campaign.DonorRecord
	err := s.db.QueryRowContext(ctx, `
SELECT net_contributed, has_reclaimed FROM donor_records
WHERE campaign_id = ? AND donor = ?`, int64(id), string(donor)).
		Scan(&rec.NetContributed, &rec.HasReclaimed)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.DonorRecord{}, nil
	}
	if err != nil {
		return campaign.DonorRecord{}, fmt.Errorf("query donor record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) PutDonorRecord(ctx context.Context, id uint64, donor campaign.Principal, rec campaign.DonorRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO donor_records (campaign_id, donor, net_contributed, has_reclaimed)
VALUES (?, ?, ?, ?)
ON CONFLICT (campaign_id, donor) DO UPDATE SET
	net_contributed = excluded.net_contributed,
	has_reclaimed = excluded.has_reclaimed`,
		int64(id), string(donor), rec.NetContributed, rec.HasReclaimed)
	if err != nil {
		return fmt.Errorf("upsert donor record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row scanner) (campaign.Campaign, error) {
	var (
		c       campaign.Campaign
		id      int64
		creator string
		ctype   string
		status  string
		endTime string
		created string
		reclaim sql.NullString
	)
	err := row.Scan(&id, &creator, &ctype, &c.Asset, &c.TargetAmount, &c.RaisedAmount,
		&c.TotalEverRaised, &c.MetadataRef, &endTime, &status, &created, &reclaim)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Campaign{}, ErrNotFound
	}
	if err != nil {
		return campaign.Campaign{}, fmt.Errorf("scan campaign: %w", err)
	}
	c.ID = uint64(id)
	c.Creator = campaign.Principal(creator)
	c.Type = campaign.Type(ctype)
	c.Status = campaign.Status(status)
	c.EndTime = parseTime(endTime)
	c.CreationTime = parseTime(created)
	if reclaim.Valid {
		c.ReclaimDeadline = parseTime(reclaim.String)
	}
	return c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
