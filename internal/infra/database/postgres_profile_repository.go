package database

import (
	"context"
	"database/sql"
	"fmt"

	"taharah_tracker/internal/domain/profile"
)

// ErrDuplicateChatID is returned when a Telegram chat is already linked to another user.
var ErrDuplicateChatID = fmt.Errorf("telegram chat is already linked to another user")

type PostgresProfileRepository struct {
	db *sql.DB
}

func NewPostgresProfileRepository(db *sql.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

const preferenceColumns = `user_id, timezone, minimum_niddah_days, ohr_zaruah, kreisi_upleisi, chasam_sofer,
               hefsek_reminders, mikvah_reminders, veset_reminders, reminder_time, lead_hours,
               telegram_chat_id, updated_at`

func scanPreferences(row rowScanner) (*profile.Preferences, error) {
	p := &profile.Preferences{}
	var chatID sql.NullInt64
	err := row.Scan(&p.UserID, &p.Timezone, &p.MinimumNiddahDays, &p.OhrZaruah, &p.KreisiUpleisi, &p.ChasamSofer,
		&p.HefsekReminders, &p.MikvahReminders, &p.VesetReminders, &p.ReminderTime, &p.LeadHours,
		&chatID, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.TelegramChatID = chatID.Int64
	return p, nil
}

func (r *PostgresProfileRepository) GetPreferences(ctx context.Context, userID string) (*profile.Preferences, error) {
	query := `SELECT ` + preferenceColumns + ` FROM user_preferences WHERE user_id = $1`
	p, err := scanPreferences(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, profile.ErrProfileNotFound
		}
		return nil, fmt.Errorf("error getting preferences: %w", err)
	}
	return p, nil
}

func (r *PostgresProfileRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*profile.Preferences, error) {
	query := `SELECT ` + preferenceColumns + ` FROM user_preferences WHERE telegram_chat_id = $1`
	p, err := scanPreferences(r.db.QueryRowContext(ctx, query, chatID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, profile.ErrProfileNotFound
		}
		return nil, fmt.Errorf("error getting preferences by chat ID: %w", err)
	}
	return p, nil
}

func (r *PostgresProfileRepository) SavePreferences(ctx context.Context, p *profile.Preferences) error {
	query := `INSERT INTO user_preferences (` + preferenceColumns + `)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
               ON CONFLICT (user_id) DO UPDATE SET
                   timezone = EXCLUDED.timezone,
                   minimum_niddah_days = EXCLUDED.minimum_niddah_days,
                   ohr_zaruah = EXCLUDED.ohr_zaruah,
                   kreisi_upleisi = EXCLUDED.kreisi_upleisi,
                   chasam_sofer = EXCLUDED.chasam_sofer,
                   hefsek_reminders = EXCLUDED.hefsek_reminders,
                   mikvah_reminders = EXCLUDED.mikvah_reminders,
                   veset_reminders = EXCLUDED.veset_reminders,
                   reminder_time = EXCLUDED.reminder_time,
                   lead_hours = EXCLUDED.lead_hours,
                   telegram_chat_id = EXCLUDED.telegram_chat_id,
                   updated_at = EXCLUDED.updated_at`
	var chatID sql.NullInt64
	if p.TelegramChatID != 0 {
		chatID = sql.NullInt64{Int64: p.TelegramChatID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, p.UserID, p.Timezone, p.MinimumNiddahDays, p.OhrZaruah, p.KreisiUpleisi, p.ChasamSofer,
		p.HefsekReminders, p.MikvahReminders, p.VesetReminders, p.ReminderTime, p.LeadHours, chatID, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "user_preferences_chat_key") {
			return ErrDuplicateChatID
		}
		return fmt.Errorf("error saving preferences: %w", err)
	}
	return nil
}
