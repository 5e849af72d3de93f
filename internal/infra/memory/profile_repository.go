package memory

import (
	"context"
	"sync"

	"taharah_tracker/internal/domain/profile"
)

type ProfileRepository struct {
	mu    sync.Mutex
	prefs map[string]profile.Preferences
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{prefs: make(map[string]profile.Preferences)}
}

func (r *ProfileRepository) GetPreferences(_ context.Context, userID string) (*profile.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prefs[userID]
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	return &p, nil
}

func (r *ProfileRepository) GetByTelegramChatID(_ context.Context, chatID int64) (*profile.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.prefs {
		if chatID != 0 && p.TelegramChatID == chatID {
			cp := p
			return &cp, nil
		}
	}
	return nil, profile.ErrProfileNotFound
}

func (r *ProfileRepository) SavePreferences(_ context.Context, p *profile.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[p.UserID] = *p
	return nil
}
