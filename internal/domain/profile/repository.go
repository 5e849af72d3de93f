package profile

import (
	"context"
)

// Repository reads and writes user preferences. The core only reads them;
// writes come from the profile API.
type Repository interface {
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*Preferences, error)
	SavePreferences(ctx context.Context, p *Preferences) error
}
