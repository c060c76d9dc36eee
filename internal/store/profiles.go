package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Profile is the connection descriptor from spec §3.
type Profile struct {
	ID                 string
	Name               string
	Dialect            string
	Host               string
	Port               int
	Database           string
	User               string
	SSL                bool
	Mode               string
	AllowWrite         bool
	AllowDangerous     bool
	PowerConfirmPhrase string
	CreatedAt          string
}

// ProfileSpec is the input to CreateProfile.
type ProfileSpec struct {
	Name     string
	Dialect  string
	Host     string
	Port     int
	Database string
	User     string
	SSL      bool
	Mode     string
}

// CreateProfile inserts a new profile with POWER flags defaulted off, per
// spec §4.9's "new columns default to safe values".
func (s *Store) CreateProfile(ctx context.Context, spec ProfileSpec) (Profile, error) {
	dialect := spec.Dialect
	if dialect == "" {
		dialect = "postgres"
	}
	mode := spec.Mode
	if mode == "" {
		mode = "safe"
	}
	p := Profile{
		ID:        uuid.NewString(),
		Name:      spec.Name,
		Dialect:   dialect,
		Host:      spec.Host,
		Port:      spec.Port,
		Database:  spec.Database,
		User:      spec.User,
		SSL:       spec.SSL,
		Mode:      mode,
		CreatedAt: nowRFC3339(),
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO profiles (id, name, dialect, host, port, database, user, ssl, mode, allow_write, allow_dangerous, power_confirm_phrase, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, NULL, ?)`,
		p.ID, p.Name, p.Dialect, p.Host, p.Port, p.Database, p.User, boolToInt(p.SSL), p.Mode, p.CreatedAt)
	if err != nil {
		return Profile{}, fmt.Errorf("creating profile %q: %w", spec.Name, err)
	}

	if err := s.recordAuditEventLocked(ctx, "profile_created", map[string]any{"profile_id": p.ID, "name": p.Name}); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ListProfiles returns every profile, ordered by creation time.
func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, dialect, host, port, database, user, ssl, mode, allow_write, allow_dangerous, power_confirm_phrase, created_at
FROM profiles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProfileByName looks up a profile by its unique name.
func (s *Store) GetProfileByName(ctx context.Context, name string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, dialect, host, port, database, user, ssl, mode, allow_write, allow_dangerous, power_confirm_phrase, created_at
FROM profiles WHERE name = ?`, name)
	return scanProfile(row)
}

// DeleteProfile removes a profile by name and, if it was the active
// profile, clears that setting too (spec §3: "also clears the process-wide
// active profile key if it pointed here").
func (s *Store) DeleteProfile(ctx context.Context, name string) error {
	p, err := s.GetProfileByName(ctx, name)
	if err != nil {
		return fmt.Errorf("profile %q not found: %w", name, err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, p.ID); err != nil {
		return fmt.Errorf("deleting profile %q: %w", name, err)
	}

	active, err := s.GetSetting(ctx, "active_profile")
	if err == nil && active == p.ID {
		if err := s.SetSetting(ctx, "active_profile", ""); err != nil {
			return err
		}
	}

	return s.recordAuditEventLocked(ctx, "profile_removed", map[string]any{"profile_id": p.ID, "name": name})
}

// UpdatePower mutates a profile's POWER flags. Disabling allow_write forces
// allow_dangerous to false on the same update, per spec §3's invariant.
func (s *Store) UpdatePower(ctx context.Context, name string, allowWrite, allowDangerous *bool, confirmPhrase *string) error {
	p, err := s.GetProfileByName(ctx, name)
	if err != nil {
		return fmt.Errorf("profile %q not found: %w", name, err)
	}

	if allowWrite != nil {
		p.AllowWrite = *allowWrite
	}
	if allowDangerous != nil {
		p.AllowDangerous = *allowDangerous
	}
	if !p.AllowWrite {
		p.AllowDangerous = false
	}
	if confirmPhrase != nil {
		p.PowerConfirmPhrase = *confirmPhrase
	}

	_, err = s.db.ExecContext(ctx, `
UPDATE profiles SET allow_write = ?, allow_dangerous = ?, power_confirm_phrase = ? WHERE id = ?`,
		boolToInt(p.AllowWrite), boolToInt(p.AllowDangerous), nullableString(p.PowerConfirmPhrase), p.ID)
	if err != nil {
		return fmt.Errorf("updating POWER flags for %q: %w", name, err)
	}

	eventType := "power_enabled"
	if !p.AllowWrite {
		eventType = "power_disabled"
	}
	return s.recordAuditEventLocked(ctx, eventType, map[string]any{"profile_id": p.ID, "name": name})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	var ssl, allowWrite, allowDangerous int
	var confirmPhrase sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Dialect, &p.Host, &p.Port, &p.Database, &p.User,
		&ssl, &p.Mode, &allowWrite, &allowDangerous, &confirmPhrase, &p.CreatedAt)
	if err != nil {
		return Profile{}, fmt.Errorf("scanning profile: %w", err)
	}
	p.SSL = ssl != 0
	p.AllowWrite = allowWrite != 0
	p.AllowDangerous = allowDangerous != 0
	p.PowerConfirmPhrase = confirmPhrase.String
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
