package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/acumba/internal/core/domain"
	"github.com/vietddude/acumba/internal/infra/storage"
)

// SnapshotRepo implements storage.SnapshotRepository using PostgreSQL.
type SnapshotRepo struct {
	db *DB
}

var _ storage.SnapshotRepository = (*SnapshotRepo)(nil)

// NewSnapshotRepo creates a new PostgreSQL snapshot repository.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

type snapshotRow struct {
	ID string `db:"id"`
	domain.CampaignStats
	OpenRate        float64   `db:"open_rate"`
	ClickRate       float64   `db:"click_rate"`
	BounceRate      float64   `db:"bounce_rate"`
	UnsubscribeRate float64   `db:"unsubscribe_rate"`
	TakenAt         time.Time `db:"taken_at"`
}

// Save stores a snapshot.
func (r *SnapshotRepo) Save(ctx context.Context, snap *domain.CampaignSnapshot) error {
	row := snapshotRow{
		ID:              snap.ID,
		CampaignStats:   snap.Stats,
		OpenRate:        snap.OpenRate,
		ClickRate:       snap.ClickRate,
		BounceRate:      snap.BounceRate,
		UnsubscribeRate: snap.UnsubscribeRate,
		TakenAt:         snap.TakenAt,
	}
	row.CampaignID = snap.CampaignID
	if row.TakenAt.IsZero() {
		row.TakenAt = time.Now()
	}

	query := `
		INSERT INTO campaign_snapshots (
			id, campaign_id, total_delivered, opened, unique_clicks, total_clicks,
			hard_bounces, soft_bounces, unsubscribes, complaints,
			open_rate, click_rate, bounce_rate, unsubscribe_rate, taken_at
		) VALUES (
			:id, :campaign_id, :total_delivered, :opened, :unique_clicks, :total_clicks,
			:hard_bounces, :soft_bounces, :unsubscribes, :complaints,
			:open_rate, :click_rate, :bounce_rate, :unsubscribe_rate, :taken_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// ListByCampaign returns the latest snapshots of a campaign.
func (r *SnapshotRepo) ListByCampaign(ctx context.Context, campaignID int, limit int) ([]*domain.CampaignSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, campaign_id, total_delivered, opened, unique_clicks, total_clicks,
			hard_bounces, soft_bounces, unsubscribes, complaints,
			open_rate, click_rate, bounce_rate, unsubscribe_rate, taken_at
		FROM campaign_snapshots
		WHERE campaign_id = $1
		ORDER BY taken_at DESC
		LIMIT $2
	`
	var rows []snapshotRow
	if err := r.db.SelectContext(ctx, &rows, query, campaignID, limit); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	snaps := make([]*domain.CampaignSnapshot, 0, len(rows))
	for _, row := range rows {
		snaps = append(snaps, &domain.CampaignSnapshot{
			ID:              row.ID,
			CampaignID:      row.CampaignID,
			Stats:           row.CampaignStats,
			OpenRate:        row.OpenRate,
			ClickRate:       row.ClickRate,
			BounceRate:      row.BounceRate,
			UnsubscribeRate: row.UnsubscribeRate,
			TakenAt:         row.TakenAt,
		})
	}
	return snaps, nil
}
