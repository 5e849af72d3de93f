package profile

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrProfileNotFound = errors.New("profile not found")

// Preferences are the per-user settings the cycle core reads.
type Preferences struct {
	UserID            string `validate:"required"`
	Timezone          string `validate:"required,timezone"`
	MinimumNiddahDays int    `validate:"min=4,max=10"`

	// Halachic stringencies
	OhrZaruah     bool
	KreisiUpleisi bool
	ChasamSofer   bool

	// Reminder toggles
	HefsekReminders bool
	MikvahReminders bool
	VesetReminders  bool
	ReminderTime    string `validate:"required,datetime=15:04"` // Local wall clock, HH:MM
	LeadHours       int    `validate:"min=0,max=72"`

	TelegramChatID int64 // 0 when no chat is linked
	UpdatedAt      time.Time
}

// DefaultLeadHours is the veset reminder lead for users without saved
// preferences. Set once at startup.
var DefaultLeadHours = 12

// Defaults returns preferences for a user who never saved any.
func Defaults(userID string) *Preferences {
	return &Preferences{
		UserID:            userID,
		Timezone:          "UTC",
		MinimumNiddahDays: 5,
		HefsekReminders:   true,
		MikvahReminders:   true,
		VesetReminders:    true,
		ReminderTime:      "16:00",
		LeadHours:         DefaultLeadHours,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field ranges and formats.
func (p *Preferences) Validate() error {
	err := getValidator().Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid preferences: %s", strings.Join(msgs, "; "))
}

// Location loads the user's IANA timezone, falling back to UTC.
func (p *Preferences) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReminderClock returns the hour and minute of ReminderTime.
func (p *Preferences) ReminderClock() (int, int) {
	t, err := time.Parse("15:04", p.ReminderTime)
	if err != nil {
		return 16, 0
	}
	return t.Hour(), t.Minute()
}
