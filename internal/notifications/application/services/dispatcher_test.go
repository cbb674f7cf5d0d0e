package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	householdDomain "github.com/choreminder/choreminder/internal/household/domain"
	"github.com/choreminder/choreminder/internal/notifications/domain"
)

// mockMessenger replays scripted outcomes, recording every request.
type mockMessenger struct {
	mu       sync.Mutex
	requests []domain.SendRequest
	results  []sendOutcome
	fallback sendOutcome
}

type sendOutcome struct {
	result domain.SendResult
	err    error
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{fallback: sendOutcome{result: domain.SendResult{Success: true, Channel: domain.ChannelWhatsApp}}}
}

func (m *mockMessenger) failWith(err error, times int) *mockMessenger {
	for i := 0; i < times; i++ {
		m.results = append(m.results, sendOutcome{err: err})
	}
	return m
}

func (m *mockMessenger) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.results) > 0 {
		out := m.results[0]
		m.results = m.results[1:]
		return out.result, out.err
	}
	return m.fallback.result, m.fallback.err
}

type capturePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type dispatcherFixture struct {
	rules     *mockRuleRepo
	schedules *mockScheduleRepo
	members   *mockMemberRepo
	throttle  *mockThrottle
	messenger *mockMessenger
	publisher *capturePublisher

	dispatcher  *Dispatcher
	householdID uuid.UUID
	recipient   *householdDomain.Member
	now         time.Time
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		rules:       newMockRuleRepo(),
		schedules:   newMockScheduleRepo(),
		members:     newMockMemberRepo(),
		throttle:    newMockThrottle(),
		messenger:   newMockMessenger(),
		publisher:   &capturePublisher{},
		householdID: uuid.New(),
		now:         time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC),
	}

	recipient, err := householdDomain.NewMember(f.householdID, "Kid", householdDomain.RoleMember)
	require.NoError(t, err)
	require.NoError(t, f.members.Create(context.Background(), recipient))
	f.recipient = recipient

	f.dispatcher = NewDispatcher(
		f.schedules, f.rules, f.members, f.throttle,
		f.messenger, NewTemplateComposer(), f.publisher, 100, testLogger(),
	).WithClock(func() time.Time { return f.now })
	return f
}

func (f *dispatcherFixture) addRule(t *testing.T, escalation domain.EscalationPolicy, constraints domain.Constraints) *domain.Rule {
	t.Helper()
	rule, err := domain.NewRule(f.householdID, "Overdue alert",
		domain.Trigger{Event: domain.EventOverdue},
		domain.Actions{
			Channels:   []domain.Channel{domain.ChannelWhatsApp, domain.ChannelSMS},
			Priority:   domain.PriorityHigh,
			Escalation: escalation,
		},
	)
	require.NoError(t, err)
	rule.SetConstraints(constraints)
	require.NoError(t, f.rules.Create(context.Background(), rule))
	return rule
}

func (f *dispatcherFixture) addSchedule(t *testing.T, rule *domain.Rule, maxAttempts int) *domain.Schedule {
	t.Helper()
	schedule := domain.NewSchedule(rule, f.recipient.ID, f.now.Add(-time.Minute), maxAttempts, map[string]any{
		"event_type": "overdue",
		"task_title": "Take out trash",
	})
	require.NoError(t, f.schedules.Create(context.Background(), schedule))
	return schedule
}

func (f *dispatcherFixture) addAdmin(t *testing.T, name string) *householdDomain.Member {
	t.Helper()
	admin, err := householdDomain.NewMember(f.householdID, name, householdDomain.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, f.members.Create(context.Background(), admin))
	return admin
}

func TestDispatcher_RunSweep_Sends(t *testing.T) {
	f := newDispatcherFixture(t)
	rule := f.addRule(t, domain.EscalationPolicy{}, domain.Constraints{})
	schedule := f.addSchedule(t, rule, 3)

	stats, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Claimed)
	assert.Equal(t, 1, stats.Sent)
	assert.Zero(t, stats.Failed)

	assert.Equal(t, domain.ScheduleSent, schedule.Status)
	require.Len(t, f.messenger.requests, 1)
	req := f.messenger.requests[0]
	assert.Equal(t, f.recipient.ID, req.RecipientID)
	assert.Equal(t, "chore_overdue", req.MessageType)
	assert.Equal(t, domain.ChannelWhatsApp, req.PreferredChannel, "first channel in the preference order")

	// A successful send stamps the cooldown.
	_, ok, err := f.throttle.LastFire(context.Background(), rule.ID, f.recipient.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDispatcher_RunSweep_RetriesThenFails(t *testing.T) {
	f := newDispatcherFixture(t)
	rule := f.addRule(t, domain.EscalationPolicy{DelayMinutes: 30}, domain.Constraints{})
	schedule := f.addSchedule(t, rule, 3)
	f.messenger.failWith(errors.New("smtp timeout"), 3)

	// First two sweeps consume attempts and push the schedule out.
	for i := 0; i < 2; i++ {
		stats, err := f.dispatcher.RunSweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Retried, "sweep %d", i+1)
		assert.Equal(t, domain.SchedulePending, schedule.Status)
		assert.Equal(t, f.now.Add(30*time.Minute), schedule.ScheduledAt)

		f.now = schedule.ScheduledAt.Add(time.Minute)
	}

	// Third failure exhausts the budget.
	stats, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, domain.ScheduleFailed, schedule.Status)
	assert.Equal(t, 3, schedule.Attempts)
	assert.Equal(t, "smtp timeout", schedule.LastError)
	assert.Contains(t, f.publisher.keys, domain.RoutingScheduleFailed)
}

func TestDispatcher_Escalation(t *testing.T) {
	f := newDispatcherFixture(t)
	admin := f.addAdmin(t, "Parent")
	rule := f.addRule(t, domain.EscalationPolicy{
		Enabled:          true,
		DelayMinutes:     30,
		EscalateToAdmins: true,
		MaxAttempts:      1,
	}, domain.Constraints{})
	schedule := f.addSchedule(t, rule, rule.MaxAttempts(3))
	f.messenger.failWith(errors.New("unreachable"), 1)

	stats, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Escalated)
	assert.True(t, schedule.Escalated)
	assert.Equal(t, 1, schedule.EscalationLevel)

	// The failed delivery plus one urgent admin alert.
	require.Len(t, f.messenger.requests, 2)
	alert := f.messenger.requests[1]
	assert.Equal(t, admin.ID, alert.RecipientID)
	assert.Equal(t, "delivery_escalation", alert.MessageType)
	assert.Equal(t, domain.PriorityUrgent, alert.Priority)
	assert.True(t, alert.BypassQuietHours)
	assert.Contains(t, f.publisher.keys, domain.RoutingEscalated)
}

func TestDispatcher_EscalationSkipsRecipientAdmin(t *testing.T) {
	f := newDispatcherFixture(t)
	other := f.addAdmin(t, "Other parent")
	rule := f.addRule(t, domain.EscalationPolicy{
		Enabled:          true,
		EscalateToAdmins: true,
		MaxAttempts:      1,
	}, domain.Constraints{})

	// The failing recipient is themselves an admin.
	adminRecipient := f.addAdmin(t, "Recipient parent")
	schedule := domain.NewSchedule(rule, adminRecipient.ID, f.now.Add(-time.Minute), 1, nil)
	require.NoError(t, f.schedules.Create(context.Background(), schedule))
	f.messenger.failWith(errors.New("unreachable"), 1)

	_, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)

	require.Len(t, f.messenger.requests, 2)
	assert.Equal(t, other.ID, f.messenger.requests[1].RecipientID, "the failing admin is not alerted about themselves")
}

func TestDispatcher_EscalatesOnlyOnce(t *testing.T) {
	f := newDispatcherFixture(t)
	f.addAdmin(t, "Parent")
	rule := f.addRule(t, domain.EscalationPolicy{
		Enabled:          true,
		EscalateToAdmins: true,
		MaxAttempts:      1,
	}, domain.Constraints{})
	schedule := f.addSchedule(t, rule, 1)
	schedule.Escalated = true
	f.messenger.failWith(errors.New("unreachable"), 1)

	stats, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Escalated, "fan-out already fired in an earlier sweep")
	require.Len(t, f.messenger.requests, 1)
}

func TestDispatcher_LiveCooldownDefers(t *testing.T) {
	f := newDispatcherFixture(t)
	rule := f.addRule(t, domain.EscalationPolicy{}, domain.Constraints{CooldownMinutes: 30})
	schedule := f.addSchedule(t, rule, 3)

	lastFire := f.now.Add(-10 * time.Minute)
	require.NoError(t, f.throttle.RecordFire(context.Background(), rule.ID, f.recipient.ID, lastFire))

	stats, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deferred)
	assert.Zero(t, stats.Sent)
	assert.Empty(t, f.messenger.requests)
	assert.Equal(t, lastFire.Add(30*time.Minute), schedule.ScheduledAt)
	assert.Zero(t, schedule.Attempts, "deferral consumes no attempt")
}

func TestDispatcher_RateLimitDefers(t *testing.T) {
	f := newDispatcherFixture(t)
	rule := f.addRule(t, domain.EscalationPolicy{}, domain.Constraints{MaxPerHour: 1})
	schedule := f.addSchedule(t, rule, 3)

	ok, err := f.throttle.Reserve(context.Background(), f.recipient.ID, f.now, 1)
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deferred)
	assert.Equal(t, f.now.Truncate(time.Hour).Add(time.Hour), schedule.ScheduledAt)
}

func TestDispatcher_FailedSendReleasesRateSlot(t *testing.T) {
	f := newDispatcherFixture(t)
	rule := f.addRule(t, domain.EscalationPolicy{}, domain.Constraints{MaxPerHour: 5})
	f.addSchedule(t, rule, 3)
	f.messenger.failWith(errors.New("unreachable"), 1)

	_, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)

	count, err := f.throttle.CountHour(context.Background(), f.recipient.ID, f.now)
	require.NoError(t, err)
	assert.Zero(t, count, "the reservation is returned after a failed send")
}

func TestDispatcher_OrphanedScheduleIsCancelled(t *testing.T) {
	f := newDispatcherFixture(t)
	rule := f.addRule(t, domain.EscalationPolicy{}, domain.Constraints{})
	schedule := f.addSchedule(t, rule, 3)
	delete(f.rules.rules, rule.ID)

	stats, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Sent)
	assert.Equal(t, domain.ScheduleCancelled, schedule.Status)
	assert.Empty(t, f.messenger.requests)
}

func TestDispatcher_LostClaimSendsNothing(t *testing.T) {
	f := newDispatcherFixture(t)
	rule := f.addRule(t, domain.EscalationPolicy{}, domain.Constraints{})
	schedule := f.addSchedule(t, rule, 3)

	// A concurrent pass already finished this row in storage.
	f.schedules.terminal[schedule.ID] = true

	stats, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Sent, "a lost claim is not counted as sent")
	assert.Empty(t, f.messenger.requests, "no delivery leaves the process without the claim")
}

func TestDispatcher_StaleAttemptCountLosesClaim(t *testing.T) {
	f := newDispatcherFixture(t)
	rule := f.addRule(t, domain.EscalationPolicy{}, domain.Constraints{})
	schedule := f.addSchedule(t, rule, 3)

	// Another worker already opened an attempt on this row.
	f.schedules.loseNextClaim = true

	stats, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Sent)
	assert.Empty(t, f.messenger.requests)
	assert.Equal(t, domain.SchedulePending, schedule.Status, "the loser leaves the row alone")
}

func TestDispatcher_OneScheduleDoesNotBlockTheSweep(t *testing.T) {
	f := newDispatcherFixture(t)
	rule := f.addRule(t, domain.EscalationPolicy{}, domain.Constraints{})
	orphan := f.addSchedule(t, rule, 3)
	orphan.RuleID = uuid.New()
	healthy := f.addSchedule(t, rule, 3)

	stats, err := f.dispatcher.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Claimed)
	assert.Equal(t, domain.ScheduleCancelled, orphan.Status)
	assert.Equal(t, domain.ScheduleSent, healthy.Status, "the healthy schedule still went out")
}
