package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"taharah_tracker/internal/app"
	"taharah_tracker/internal/domain/cycle"
	"taharah_tracker/internal/domain/notification"
	"taharah_tracker/internal/domain/profile"
	"taharah_tracker/internal/infra/memory"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return testNow }

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeClient struct {
	sent []sentMessage
	err  error
}

func (c *fakeClient) SendMessage(chatID int64, text string, _ *telebot.SendOptions) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, sentMessage{chatID, text})
	return nil
}

func linkedProfile(t *testing.T, repo *memory.ProfileRepository, userID string, chatID int64) {
	t.Helper()
	p := profile.Defaults(userID)
	p.TelegramChatID = chatID
	if err := repo.SavePreferences(context.Background(), p); err != nil {
		t.Fatalf("SavePreferences() error: %v", err)
	}
}

func TestNotificationSender(t *testing.T) {
	ctx := context.Background()
	profiles := memory.NewProfileRepository()
	linkedProfile(t, profiles, "linked", 555)
	if err := profiles.SavePreferences(ctx, profile.Defaults("unlinked")); err != nil {
		t.Fatal(err)
	}
	client := &fakeClient{}
	sender := NewNotificationSender(client, profiles)

	n := notification.New("linked", "c1", notification.TypeHefsekReminder, "Hefsek tahara", "Today is the day.", testNow, testNow)
	if err := sender.Send(ctx, n); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(client.sent) != 1 || client.sent[0].chatID != 555 || !strings.Contains(client.sent[0].text, "Hefsek tahara") {
		t.Errorf("sent = %+v", client.sent)
	}

	for _, userID := range []string{"unlinked", "unknown"} {
		n := notification.New(userID, "c1", notification.TypeHefsekReminder, "t", "m", testNow, testNow)
		if err := sender.Send(ctx, n); !errors.Is(err, notification.ErrNoRecipient) {
			t.Errorf("Send() for %s error = %v, want ErrNoRecipient", userID, err)
		}
	}
}

func newBotCommands(t *testing.T) (*BotCommands, *memory.ProfileRepository, *app.CycleService) {
	t.Helper()
	profiles := memory.NewProfileRepository()
	cycles := app.NewCycleService(memory.NewCycleRepository(), profiles, nil, fixedClock{}, quietLogger())
	return NewBotCommands(cycles, profiles, fixedClock{}, 99, quietLogger()), profiles, cycles
}

func TestBotCommands_StartAndStatus(t *testing.T) {
	ctx := context.Background()
	h, profiles, cycles := newBotCommands(t)

	if got := h.startReply(ctx, 777); !strings.Contains(got, "777") {
		t.Errorf("startReply() for unlinked chat = %q, want chat ID", got)
	}
	if got := h.statusReply(ctx, 777); !strings.Contains(got, "not linked") {
		t.Errorf("statusReply() for unlinked chat = %q", got)
	}

	linkedProfile(t, profiles, "user-1", 777)
	if got := h.statusReply(ctx, 777); got != "No cycles recorded yet." {
		t.Errorf("statusReply() with no cycles = %q", got)
	}

	for _, start := range []time.Time{testNow.Add(-28 * 24 * time.Hour), testNow.Add(-2 * time.Hour)} {
		if _, err := cycles.StartCycle(ctx, "user-1", start, "", ""); err != nil {
			t.Fatalf("StartCycle(%s) error: %v", start, err)
		}
	}
	got := h.statusReply(ctx, 777)
	for _, want := range []string{"Status: " + strings.ReplaceAll(string(cycle.StatusNiddah), "_", " "), "Upcoming onot", "veset chodesh", "onah beinonit"} {
		if !strings.Contains(got, want) {
			t.Errorf("statusReply() missing %q:\n%s", want, got)
		}
	}
}

func TestBotCommands_HelpShowsAdminCommandsToAdminOnly(t *testing.T) {
	h, _, _ := newBotCommands(t)
	if strings.Contains(h.helpReply(1), "/reschedule") {
		t.Error("non-admin help lists admin commands")
	}
	if !strings.Contains(h.helpReply(99), "/reschedule") {
		t.Error("admin help is missing admin commands")
	}
}

func TestAdminCommands(t *testing.T) {
	ctx := context.Background()
	nr := memory.NewNotificationRepository()
	h := NewAdminCommands(app.NewAdminService(nr, fixedClock{}, 99), 99, quietLogger())

	n := notification.New("user-1", "c1", notification.TypeMikvahReminder, "t", "m", testNow.Add(-time.Hour), testNow)
	if _, _, err := nr.CreatePending(ctx, n); err != nil {
		t.Fatal(err)
	}
	if err := nr.MarkFailed(ctx, n.ID, "delivery failed: blocked by user", testNow); err != nil {
		t.Fatal(err)
	}

	if got := h.failedReply(ctx, 1, nil); got != msgUnauthorized {
		t.Errorf("failedReply() for non-admin = %q", got)
	}
	if got := h.failedReply(ctx, 99, []string{"x"}); !strings.HasPrefix(got, "Invalid format") {
		t.Errorf("failedReply() with bad limit = %q", got)
	}
	if got := h.failedReply(ctx, 99, nil); !strings.Contains(got, n.ID) || !strings.Contains(got, "blocked by user") {
		t.Errorf("failedReply() = %q, want the failed notification", got)
	}

	got := h.rescheduleReply(ctx, 99, []string{n.ID, "nope"})
	if !strings.Contains(got, "Rescheduled 1") || !strings.Contains(got, "nope") {
		t.Errorf("rescheduleReply() = %q", got)
	}
	due, _ := nr.ListDuePending(ctx, testNow, 0)
	if len(due) != 1 {
		t.Errorf("%d pending after reschedule, want 1", len(due))
	}
}
