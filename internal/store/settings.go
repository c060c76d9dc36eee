package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting reads a single key from the settings table. Returns an error
// if the key has never been set; the only recognized lifecycle key today
// is "active_profile" (spec §3).
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q is not set", key)
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %q: %w", key, err)
	}
	return value.String, nil
}

// SetSetting upserts a key/value pair.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// SetActiveProfile sets the process-wide active profile and emits a
// profile_activated audit event.
func (s *Store) SetActiveProfile(ctx context.Context, name string) error {
	p, err := s.GetProfileByName(ctx, name)
	if err != nil {
		return fmt.Errorf("profile %q not found: %w", name, err)
	}
	if err := s.SetSetting(ctx, "active_profile", p.ID); err != nil {
		return err
	}
	return s.recordAuditEventLocked(ctx, "profile_activated", map[string]any{"profile_id": p.ID, "name": name})
}

// ActiveProfile returns the currently active profile, or an error if none
// is set or the stored id no longer resolves to a profile.
func (s *Store) ActiveProfile(ctx context.Context) (Profile, error) {
	id, err := s.GetSetting(ctx, "active_profile")
	if err != nil || id == "" {
		return Profile{}, fmt.Errorf("no active profile is set")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, dialect, host, port, database, user, ssl, mode, allow_write, allow_dangerous, power_confirm_phrase, created_at
FROM profiles WHERE id = ?`, id)
	return scanProfile(row)
}
