// Package testutil holds fixtures and spies shared by the test suites.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/timer"
	"github.com/trezcool/soma/core/user"
)

// NewValidator returns a validator with every custom tag registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	plan.InitValidators(validate, translator)
	timer.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:               uuid.New().String(),
		Name:             name,
		Username:         uname,
		Email:            email,
		Roles:            roles,
		IsActive:         isActive,
		Timezone:         user.DefaultTimezone,
		DailyGoalMinutes: user.DefaultDailyGoalMinutes,
		Pomodoro:         user.DefaultPomodoro,
		WeeklyDigest:     true,
		CreatedAt:        tstamp,
		UpdatedAt:        tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// FreezeTime pins core.NowFunc to `now` for the duration of the test.
func FreezeTime(t *testing.T, now time.Time) *Clock {
	t.Helper()
	c := &Clock{now: now}
	orig := core.NowFunc
	core.NowFunc = c.Now
	t.Cleanup(func() { core.NowFunc = orig })
	return c
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// MailSpy records the messages it is asked to send.
type MailSpy struct {
	mu       sync.Mutex
	Messages []*core.EmailMessage
}

var _ core.EmailService = (*MailSpy)(nil)

func (m *MailSpy) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, messages...)
}

func (m *MailSpy) Sent() []*core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*core.EmailMessage(nil), m.Messages...)
}

// PublisherSpy records published events per user.
type PublisherSpy struct {
	mu     sync.Mutex
	events map[string][]core.Event
}

var _ core.Publisher = (*PublisherSpy)(nil)

func (p *PublisherSpy) Publish(userID string, ev core.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[string][]core.Event)
	}
	p.events[userID] = append(p.events[userID], ev)
}

func (p *PublisherSpy) Events(userID string) []core.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Event(nil), p.events[userID]...)
}

// Types lists the event types pushed to userID, in order.
func (p *PublisherSpy) Types(userID string) []string {
	var types []string
	for _, ev := range p.Events(userID) {
		types = append(types, ev.Type)
	}
	return types
}

// Logger discards everything but remembers the error messages.
type Logger struct {
	mu     sync.Mutex
	Errors []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) Debug(string, ...interface{}) {}
func (l *Logger) Info(string, ...interface{})  {}
func (l *Logger) Warn(string, ...interface{})  {}
func (l *Logger) Fatal(string, ...interface{}) {}

func (l *Logger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}
