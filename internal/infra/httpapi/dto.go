package httpapi

import (
	"time"

	"taharah_tracker/internal/domain/cycle"
	"taharah_tracker/internal/domain/notification"
	"taharah_tracker/internal/domain/profile"
	"taharah_tracker/internal/domain/veset"
)

type startCycleRequest struct {
	PeriodStart  time.Time `json:"period_start" validate:"required"`
	Notes        string    `json:"notes" validate:"max=2000"`
	PrivateNotes string    `json:"private_notes" validate:"max=2000"`
}

type applyEventRequest struct {
	Event     string    `json:"event" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

type cycleResponse struct {
	ID                string       `json:"id"`
	UserID            string       `json:"user_id"`
	PeriodStart       time.Time    `json:"period_start"`
	HefsekTahara      *time.Time   `json:"hefsek_tahara,omitempty"`
	ShivaNekiyimStart *time.Time   `json:"shiva_nekiyim_start,omitempty"`
	MikvahDate        *time.Time   `json:"mikvah_date,omitempty"`
	Status            cycle.Status `json:"status"`
	Notes             string       `json:"notes"`
	PrivateNotes      string       `json:"private_notes"`
	Version           int64        `json:"version"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func toCycleResponse(r *cycle.Record) cycleResponse {
	return cycleResponse{
		ID:                r.ID,
		UserID:            r.UserID,
		PeriodStart:       r.PeriodStart,
		HefsekTahara:      r.HefsekTahara,
		ShivaNekiyimStart: r.ShivaNekiyimStart,
		MikvahDate:        r.MikvahDate,
		Status:            r.Status(),
		Notes:             r.Notes,
		PrivateNotes:      r.PrivateNotes,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type predictionResponse struct {
	Rule  veset.Rule `json:"rule"`
	Date  string     `json:"date"` // YYYY-MM-DD halachic date
	Onah  string     `json:"onah"`
	Start time.Time  `json:"start"`
	Basis veset.Rule `json:"basis,omitempty"`
}

func toPredictionResponse(p veset.Prediction) predictionResponse {
	return predictionResponse{
		Rule:  p.Rule,
		Date:  p.Date.Format("2006-01-02"),
		Onah:  string(p.Onah),
		Start: p.Start,
		Basis: p.Basis,
	}
}

type notificationResponse struct {
	ID            string              `json:"id"`
	CycleID       string              `json:"cycle_id"`
	Type          notification.Type   `json:"type"`
	Title         string              `json:"title"`
	Message       string              `json:"message"`
	ScheduledFor  time.Time           `json:"scheduled_for"`
	Status        notification.Status `json:"status"`
	FailureReason string              `json:"failure_reason,omitempty"`
	SentAt        *time.Time          `json:"sent_at,omitempty"`
}

func toNotificationResponse(n *notification.Notification) notificationResponse {
	return notificationResponse{
		ID:            n.ID,
		CycleID:       n.CycleID,
		Type:          n.Type,
		Title:         n.Title,
		Message:       n.Message,
		ScheduledFor:  n.ScheduledFor,
		Status:        n.Status,
		FailureReason: n.FailureReason,
		SentAt:        n.SentAt,
	}
}

type activityResponse struct {
	CycleID   string    `json:"cycle_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// preferencesBody is used for both reads and writes. On PUT, omitted fields
// keep their current value.
type preferencesBody struct {
	Timezone          *string `json:"timezone,omitempty"`
	MinimumNiddahDays *int    `json:"minimum_niddah_days,omitempty"`
	OhrZaruah         *bool   `json:"ohr_zaruah,omitempty"`
	KreisiUpleisi     *bool   `json:"kreisi_upleisi,omitempty"`
	ChasamSofer       *bool   `json:"chasam_sofer,omitempty"`
	HefsekReminders   *bool   `json:"hefsek_reminders,omitempty"`
	MikvahReminders   *bool   `json:"mikvah_reminders,omitempty"`
	VesetReminders    *bool   `json:"veset_reminders,omitempty"`
	ReminderTime      *string `json:"reminder_time,omitempty"`
	LeadHours         *int    `json:"lead_hours,omitempty"`
	TelegramChatID    *int64  `json:"telegram_chat_id,omitempty"`
}

func toPreferencesBody(p *profile.Preferences) preferencesBody {
	return preferencesBody{
		Timezone:          &p.Timezone,
		MinimumNiddahDays: &p.MinimumNiddahDays,
		OhrZaruah:         &p.OhrZaruah,
		KreisiUpleisi:     &p.KreisiUpleisi,
		ChasamSofer:       &p.ChasamSofer,
		HefsekReminders:   &p.HefsekReminders,
		MikvahReminders:   &p.MikvahReminders,
		VesetReminders:    &p.VesetReminders,
		ReminderTime:      &p.ReminderTime,
		LeadHours:         &p.LeadHours,
		TelegramChatID:    &p.TelegramChatID,
	}
}

func (b preferencesBody) applyTo(p *profile.Preferences) {
	setIf(&p.Timezone, b.Timezone)
	setIf(&p.MinimumNiddahDays, b.MinimumNiddahDays)
	setIf(&p.OhrZaruah, b.OhrZaruah)
	setIf(&p.KreisiUpleisi, b.KreisiUpleisi)
	setIf(&p.ChasamSofer, b.ChasamSofer)
	setIf(&p.HefsekReminders, b.HefsekReminders)
	setIf(&p.MikvahReminders, b.MikvahReminders)
	setIf(&p.VesetReminders, b.VesetReminders)
	setIf(&p.ReminderTime, b.ReminderTime)
	setIf(&p.LeadHours, b.LeadHours)
	setIf(&p.TelegramChatID, b.TelegramChatID)
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
