package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/untoldecay/LoomLog/internal/types"
)

// SaveShareLink upserts a share link row. A zero AccessExpiresAt stores NULL,
// meaning the link never ages out.
func (s *SQLiteStorage) SaveShareLink(ctx context.Context, link *types.ShareLink) error {
	if link == nil {
		return fmt.Errorf("nil share link")
	}
	if link.Token == "" {
		return fmt.Errorf("share link requires a token")
	}
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	var expiresAt any
	if !link.AccessExpiresAt.IsZero() {
		expiresAt = types.FormatTimestamp(link.AccessExpiresAt)
	}

	return s.enqueue(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO share_links (id, resource_type, resource_id, token, created_at, access_expires_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				resource_type = excluded.resource_type,
				resource_id = excluded.resource_id,
				token = excluded.token,
				access_expires_at = excluded.access_expires_at
		`,
			link.ID, link.ResourceType, link.ResourceID, link.Token,
			types.FormatTimestamp(link.CreatedAt), expiresAt,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("share token already in use: %s", link.Token)
			}
			return fmt.Errorf("failed to save share link: %w", err)
		}
		return nil
	})
}

// PurgeExpiredShareLinks deletes links whose access window has closed and
// returns how many were removed.
func (s *SQLiteStorage) PurgeExpiredShareLinks(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := s.enqueue(ctx, func(db *sql.DB) error {
		res, err := db.Exec(`
			DELETE FROM share_links
			WHERE access_expires_at IS NOT NULL AND access_expires_at <= ?
		`, types.FormatTimestamp(now))
		if err != nil {
			return fmt.Errorf("failed to purge share links: %w", err)
		}
		purged, _ = res.RowsAffected()
		return nil
	})
	return purged, err
}
