package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"campuspush/internal/model"
)

// DeviceRepository is the user-directory view the pipeline queries: which
// users exist, whether they opted into push, and their registered tokens.
type DeviceRepository struct {
	db *pgxpool.Pool
}

func NewDeviceRepository(db *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Register upserts a device token for a user. A token moving to another user
// (reinstall, account switch) is reassigned rather than duplicated.
func (r *DeviceRepository) Register(ctx context.Context, userID, token string) error {
	query := `
		INSERT INTO devices (token, user_id)
		VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id
	`
	if _, err := r.db.Exec(ctx, query, token, userID); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (r *DeviceRepository) Unregister(ctx context.Context, userID, token string) error {
	query := `DELETE FROM devices WHERE token = $1 AND user_id = $2`
	tag, err := r.db.Exec(ctx, query, token, userID)
	if err != nil {
		return fmt.Errorf("failed to unregister device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindRecipients resolves explicit user ids. Users without tokens or with
// push disabled are still returned so the caller can report them as skipped.
// Unknown ids simply yield no row.
func (r *DeviceRepository) FindRecipients(ctx context.Context, userIDs []string) ([]model.PushRecipient, error) {
	query := `
		SELECT u.id, u.push_enabled,
		       COALESCE(array_agg(d.token) FILTER (WHERE d.token IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN devices d ON d.user_id = u.id
		WHERE u.id = ANY($1)
		GROUP BY u.id, u.push_enabled
	`
	return r.queryRecipients(ctx, query, userIDs)
}

// FindCampusRecipients resolves a campus domain to its push-eligible users:
// push enabled and at least one registered token.
func (r *DeviceRepository) FindCampusRecipients(ctx context.Context, domain string) ([]model.PushRecipient, error) {
	query := `
		SELECT u.id, u.push_enabled, array_agg(d.token)
		FROM users u
		JOIN devices d ON d.user_id = u.id
		WHERE u.campus_domain = $1 AND u.push_enabled
		GROUP BY u.id, u.push_enabled
	`
	return r.queryRecipients(ctx, query, domain)
}

// FindAllRecipients resolves the broadcast target to every push-eligible user.
func (r *DeviceRepository) FindAllRecipients(ctx context.Context) ([]model.PushRecipient, error) {
	query := `
		SELECT u.id, u.push_enabled, array_agg(d.token)
		FROM users u
		JOIN devices d ON d.user_id = u.id
		WHERE u.push_enabled
		GROUP BY u.id, u.push_enabled
	`
	return r.queryRecipients(ctx, query)
}

func (r *DeviceRepository) queryRecipients(ctx context.Context, query string, args ...any) ([]model.PushRecipient, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	var recipients []model.PushRecipient
	for rows.Next() {
		var rec model.PushRecipient
		if err := rows.Scan(&rec.UserID, &rec.PushEnabled, &rec.Tokens); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}
