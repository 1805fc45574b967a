package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/repository"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/routepath"
)

// phaseLog records every phase a flow passes through
type phaseLog struct {
	mu     sync.Mutex
	phases []InvitationPhase
}

func (p *phaseLog) record(s InvitationState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.phases); n == 0 || p.phases[n-1] != s.Phase {
		p.phases = append(p.phases, s.Phase)
	}
}

func (p *phaseLog) all() []InvitationPhase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]InvitationPhase(nil), p.phases...)
}

func fastFlowConfig() *InvitationFlowConfig {
	return &InvitationFlowConfig{TickInterval: time.Millisecond, SwitchDelay: time.Millisecond}
}

func newMockFlow(t *testing.T, api *MockInvitationAPI, session SessionManager, cfg *InvitationFlowConfig) (*InvitationFlow, *routepath.Recorder) {
	t.Helper()
	if session == nil {
		session = newTestSessionManager(repository.NewMemorySessionRepository())
		session.Restore(context.Background())
	}
	nav := &routepath.Recorder{}
	flow := NewInvitationFlow(api, session, nav, nil, cfg)
	t.Cleanup(flow.Close)
	return flow, nav
}

func TestReduce_IgnoresEventsOutsideTheirPhase(t *testing.T) {
	ic := &domain.InvitationContext{EventID: "e1", InviteeEmail: "bob@x.com"}

	tests := []struct {
		name  string
		state InvitationState
		event flowEvent
	}{
		{name: "verified while registering", state: InvitationState{Phase: PhaseRegistering, Context: ic}, event: flowEvent{kind: evVerified, context: ic}},
		{name: "matched without reconciling", state: InvitationState{Phase: PhaseLoginRequired, Context: ic}, event: flowEvent{kind: evIdentityMatched}},
		{name: "identity during success", state: InvitationState{Phase: PhaseSucceeded, Context: ic}, event: flowEvent{kind: evIdentityAvailable}},
		{name: "identity while switching", state: InvitationState{Phase: PhaseSwitchingIdentity, Context: ic}, event: flowEvent{kind: evIdentityAvailable}},
		{name: "identity while registering", state: InvitationState{Phase: PhaseRegistering, Context: ic}, event: flowEvent{kind: evIdentityAvailable}},
		{name: "accepted twice", state: InvitationState{Phase: PhaseAlreadyRegistered, Context: ic}, event: flowEvent{kind: evAccepted, ticks: 3}},
		{name: "form switch in error", state: InvitationState{Phase: PhaseError}, event: flowEvent{kind: evShowLogin}},
		{name: "tick before success", state: InvitationState{Phase: PhaseRegistering, Context: ic}, event: flowEvent{kind: evTick}},
		{name: "accept failure on a form", state: InvitationState{Phase: PhaseRegisterRequired, Context: ic}, event: flowEvent{kind: evAcceptFailed, message: "boom"}},
		{name: "navigate twice", state: InvitationState{Phase: PhaseSucceeded, Context: ic, Navigated: true}, event: flowEvent{kind: evNavigated}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.state, reduce(tt.state, tt.event))
		})
	}
}

func TestReduce_Countdown(t *testing.T) {
	s := InvitationState{Phase: PhaseRegistering, Context: &domain.InvitationContext{EventID: "e1", EventTitle: "Meetup"}}

	s = reduce(s, flowEvent{kind: evAccepted, response: &dto.AcceptRegisterResponse{EventID: "e1", Registered: true}, ticks: 3})
	require.Equal(t, PhaseSucceeded, s.Phase)
	assert.Equal(t, "/events/e1", s.Destination)

	for want := 2; want >= 0; want-- {
		s = reduce(s, flowEvent{kind: evTick})
		assert.Equal(t, want, s.Countdown)
	}
	s = reduce(s, flowEvent{kind: evTick})
	assert.Equal(t, 0, s.Countdown)
}

func TestInvitationFlow_MissingTokenFailsFast(t *testing.T) {
	api := new(MockInvitationAPI)
	flow, _ := newMockFlow(t, api, nil, nil)

	flow.Start(context.Background(), "https://eventflow.local/invite/accept")

	s := flow.State()
	assert.Equal(t, PhaseError, s.Phase)
	assert.ErrorIs(t, s.Reason, domain.ErrInvitationInvalid)
	api.AssertNotCalled(t, "VerifyInvitation", mock.Anything, mock.Anything)
}

func TestInvitationFlow_UserExistsNeverShowsRegistration(t *testing.T) {
	for _, email := range []string{"bob@x.com", "BOB@X.COM", "someone.else@example.org"} {
		api := new(MockInvitationAPI)
		api.On("VerifyInvitation", mock.Anything, "t1").Return(&domain.InvitationContext{
			Token: "t1", EventID: "e1", InviteeEmail: email, UserExists: true,
			EventStatus: domain.EventStatusPlanned, AvailableSpots: spots(3),
		}, nil)
		flow, _ := newMockFlow(t, api, nil, nil)

		var log phaseLog
		flow.Subscribe(log.record)
		flow.Start(context.Background(), "t1")

		assert.Equal(t, PhaseLoginRequired, flow.State().Phase)
		assert.NotContains(t, log.all(), PhaseRegisterRequired)
	}
}

func TestInvitationFlow_SwitchFormsWithoutReverifying(t *testing.T) {
	api := new(MockInvitationAPI)
	api.On("VerifyInvitation", mock.Anything, "t1").Return(&domain.InvitationContext{
		Token: "t1", EventID: "e1", InviteeEmail: "bob@x.com",
		EventStatus: domain.EventStatusPlanned, AvailableSpots: spots(3),
	}, nil).Once()
	flow, _ := newMockFlow(t, api, nil, nil)

	flow.Start(context.Background(), routepath.AcceptLink("t1"))
	assert.Equal(t, PhaseRegisterRequired, flow.State().Phase)

	flow.ShowLogin()
	assert.Equal(t, PhaseLoginRequired, flow.State().Phase)
	flow.ShowRegister()
	assert.Equal(t, PhaseRegisterRequired, flow.State().Phase)

	api.AssertNumberOfCalls(t, "VerifyInvitation", 1)
}

func TestInvitationFlow_VerifyFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{name: "expired", err: &domain.RequestError{Status: 400, Message: "Invitation has expired", Kind: domain.ErrInvitationExpired}, message: msgVerifyExpired},
		{name: "invalid", err: &domain.RequestError{Status: 400, Message: "Invalid invitation token", Kind: domain.ErrInvitationInvalid}, message: msgVerifyInvalid},
		{name: "not pending", err: &domain.RequestError{Status: 400, Message: "Invitation is not in pending state", Kind: domain.ErrInvitationInvalid}, message: msgVerifyInvalid},
		{name: "transport", err: &domain.RequestError{Kind: domain.ErrTransport}, message: msgVerifyGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockInvitationAPI)
			api.On("VerifyInvitation", mock.Anything, "t1").Return(nil, tt.err)
			flow, _ := newMockFlow(t, api, nil, nil)

			flow.Start(context.Background(), "t1")

			s := flow.State()
			assert.Equal(t, PhaseError, s.Phase)
			assert.Equal(t, tt.message, s.Message)
			assert.ErrorIs(t, s.Reason, tt.err)

			key := flow.IdempotencyKey()
			flow.Retry(context.Background())
			api.AssertNumberOfCalls(t, "VerifyInvitation", 2)
			assert.NotEqual(t, key, flow.IdempotencyKey(), "a retry is a new submission")
		})
	}
}

func TestInvitationFlow_LocalRejectionSendsNoRequest(t *testing.T) {
	tests := []struct {
		name    string
		ic      *domain.InvitationContext
		reason  error
		message string
	}{
		{
			name:    "no spots left",
			ic:      &domain.InvitationContext{EventStatus: domain.EventStatusPlanned, AvailableSpots: spots(0)},
			reason:  domain.ErrCapacityExceeded,
			message: msgCapacity,
		},
		{
			name:    "cancelled event",
			ic:      &domain.InvitationContext{EventStatus: domain.EventStatusCancelled, AvailableSpots: spots(4)},
			reason:  domain.ErrEventUnavailable,
			message: msgUnavailable,
		},
		{
			name:    "finished event",
			ic:      &domain.InvitationContext{EventStatus: domain.EventStatusFinished, AvailableSpots: spots(4)},
			reason:  domain.ErrEventUnavailable,
			message: msgUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			session := newTestSessionManager(repository.NewMemorySessionRepository())
			session.Restore(ctx)
			_, err := session.Login(ctx, &dto.AuthResponse{
				Token: mintToken(t, "bob", "u2", time.Now().Add(time.Hour)), Username: "bob", Email: "bob@x.com", Role: "USER",
			})
			require.NoError(t, err)

			ic := *tt.ic
			ic.Token, ic.EventID, ic.InviteeEmail, ic.UserExists = "t1", "e1", "bob@x.com", true
			api := new(MockInvitationAPI)
			api.On("VerifyInvitation", mock.Anything, "t1").Return(&ic, nil)
			flow, _ := newMockFlow(t, api, session, nil)

			flow.Start(ctx, "t1")

			s := flow.State()
			assert.Equal(t, PhaseFailed, s.Phase)
			assert.ErrorIs(t, s.Reason, tt.reason)
			assert.Equal(t, tt.message, s.Message)
			assert.Equal(t, domain.OutcomeFailed, s.Outcome.Kind)
			api.AssertNotCalled(t, "AcceptAndRegister", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestInvitationFlow_FormsRejectUnavailableEventBeforeAnyRequest(t *testing.T) {
	tests := []struct {
		name       string
		userExists bool
		status     domain.EventStatus
		spots      int
		reason     error
		submit     func(ctx context.Context, flow *InvitationFlow) error
	}{
		{
			name:   "registration form on a full event",
			status: domain.EventStatusPlanned,
			spots:  0,
			reason: domain.ErrCapacityExceeded,
			submit: func(ctx context.Context, flow *InvitationFlow) error {
				return flow.SubmitRegistration(ctx, &dto.RegisterRequest{Username: "bob", Email: "bob@x.com", Password: "secret1"})
			},
		},
		{
			name:   "registration form on a cancelled event",
			status: domain.EventStatusCancelled,
			spots:  4,
			reason: domain.ErrEventUnavailable,
			submit: func(ctx context.Context, flow *InvitationFlow) error {
				return flow.SubmitRegistration(ctx, &dto.RegisterRequest{Username: "bob", Email: "bob@x.com", Password: "secret1"})
			},
		},
		{
			name:       "login form on a full event",
			userExists: true,
			status:     domain.EventStatusPlanned,
			spots:      0,
			reason:     domain.ErrCapacityExceeded,
			submit: func(ctx context.Context, flow *InvitationFlow) error {
				return flow.SubmitLogin(ctx, "bob", "secret1")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			api := new(MockInvitationAPI)
			api.On("VerifyInvitation", mock.Anything, "t1").Return(&domain.InvitationContext{
				Token: "t1", EventID: "e1", InviteeEmail: "bob@x.com", UserExists: tt.userExists,
				EventStatus: tt.status, AvailableSpots: spots(tt.spots),
			}, nil)
			flow, _ := newMockFlow(t, api, nil, nil)

			flow.Start(ctx, "t1")
			require.True(t, flow.State().Phase.ShowsForm())

			require.NoError(t, tt.submit(ctx, flow))

			s := flow.State()
			assert.Equal(t, PhaseFailed, s.Phase)
			assert.ErrorIs(t, s.Reason, tt.reason)
			api.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
			api.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
			api.AssertNotCalled(t, "AcceptAndRegister", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestInvitationFlow_EnrichesMissingCapacity(t *testing.T) {
	ctx := context.Background()
	session := newTestSessionManager(repository.NewMemorySessionRepository())
	session.Restore(ctx)
	_, err := session.Login(ctx, &dto.AuthResponse{
		Token: mintToken(t, "bob", "u2", time.Now().Add(time.Hour)), Username: "bob", Email: "bob@x.com", Role: "USER",
	})
	require.NoError(t, err)

	api := new(MockInvitationAPI)
	api.On("VerifyInvitation", mock.Anything, "t1").Return(&domain.InvitationContext{
		Token: "t1", EventID: "e1", InviteeEmail: "bob@x.com", UserExists: true,
	}, nil)
	api.On("GetEvent", mock.Anything, "e1").Return(&domain.Event{ID: "e1", Status: domain.EventStatusPlanned, AvailableSpots: 0}, nil)
	flow, _ := newMockFlow(t, api, session, nil)

	flow.Start(ctx, "t1")

	assert.Equal(t, PhaseFailed, flow.State().Phase)
	assert.ErrorIs(t, flow.State().Reason, domain.ErrCapacityExceeded)
	api.AssertNotCalled(t, "AcceptAndRegister", mock.Anything, mock.Anything, mock.Anything)
}

func TestInvitationFlow_AcceptOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		resp    *dto.AcceptRegisterResponse
		err     error
		phase   InvitationPhase
		message string
	}{
		{
			name:  "registered",
			resp:  &dto.AcceptRegisterResponse{Message: "Successfully registered for the event!", EventID: "e1", EventTitle: "Meetup", Registered: true},
			phase: PhaseSucceeded,
		},
		{
			name:  "success payload says already registered",
			resp:  &dto.AcceptRegisterResponse{Message: "You were already registered for this event!", EventID: "e1", Registered: true},
			phase: PhaseAlreadyRegistered,
		},
		{
			name:  "conflict already registered",
			err:   &domain.RequestError{Status: 409, Message: "Already registered to this event", Kind: domain.ErrAlreadyRegistered},
			phase: PhaseAlreadyRegistered,
		},
		{
			name:    "event full",
			err:     &domain.RequestError{Status: 409, Message: "Event is full", Kind: domain.ErrCapacityExceeded},
			phase:   PhaseFailed,
			message: msgCapacity,
		},
		{
			name:    "expired",
			err:     &domain.RequestError{Status: 400, Message: "Invitation has expired", Kind: domain.ErrInvitationExpired},
			phase:   PhaseFailed,
			message: msgExpired,
		},
		{
			name:    "cancelled",
			err:     &domain.RequestError{Status: 409, Message: "Cannot register to cancelled or finished event", Kind: domain.ErrEventUnavailable},
			phase:   PhaseFailed,
			message: msgUnavailable,
		},
		{
			name:    "server message",
			err:     &domain.RequestError{Status: 409, Message: "Organizer cannot register as attendee to their own event", Kind: domain.ErrConflict},
			phase:   PhaseFailed,
			message: "Organizer cannot register as attendee to their own event",
		},
		{
			name:    "no message",
			err:     errors.New("boom"),
			phase:   PhaseFailed,
			message: msgRegisterGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			session := newTestSessionManager(repository.NewMemorySessionRepository())
			session.Restore(ctx)
			_, err := session.Login(ctx, &dto.AuthResponse{
				Token: mintToken(t, "bob", "u2", time.Now().Add(time.Hour)), Username: "bob", Email: "Bob@X.com", Role: "USER",
			})
			require.NoError(t, err)

			api := new(MockInvitationAPI)
			api.On("VerifyInvitation", mock.Anything, "t1").Return(&domain.InvitationContext{
				Token: "t1", EventID: "e1", EventTitle: "Meetup", InviteeEmail: "bob@x.com", UserExists: true,
				EventStatus: domain.EventStatusPlanned, AvailableSpots: spots(5),
			}, nil)
			if tt.resp != nil {
				api.On("AcceptAndRegister", mock.Anything, "t1", mock.Anything).Return(tt.resp, nil).Once()
			} else {
				api.On("AcceptAndRegister", mock.Anything, "t1", mock.Anything).Return(nil, tt.err).Once()
			}
			flow, _ := newMockFlow(t, api, session, &InvitationFlowConfig{After: newManualTicker().After})

			flow.Start(ctx, "t1")

			s := flow.State()
			assert.Equal(t, tt.phase, s.Phase)
			if tt.message != "" {
				assert.Equal(t, tt.message, s.Message)
			}
			if s.Phase.Redirecting() {
				assert.Equal(t, 3, s.Countdown)
				assert.Equal(t, "/events/e1", s.Destination)
			}
			assert.True(t, session.IsAuthenticated())
			api.AssertExpectations(t)
		})
	}
}

func TestInvitationFlow_ServerMismatchForcesLogout(t *testing.T) {
	ctx := context.Background()
	session := newTestSessionManager(repository.NewMemorySessionRepository())
	session.Restore(ctx)
	_, err := session.Login(ctx, &dto.AuthResponse{
		Token: mintToken(t, "bob", "u2", time.Now().Add(time.Hour)), Username: "bob", Email: "bob@x.com", Role: "USER",
	})
	require.NoError(t, err)

	api := new(MockInvitationAPI)
	api.On("VerifyInvitation", mock.Anything, "t1").Return(&domain.InvitationContext{
		Token: "t1", EventID: "e1", InviteeEmail: "bob@x.com", UserExists: true,
		EventStatus: domain.EventStatusPlanned, AvailableSpots: spots(5),
	}, nil)
	mismatch := "This invitation was sent to bob@x.com. Please log in with that email address."
	api.On("AcceptAndRegister", mock.Anything, "t1", mock.Anything).
		Return(nil, &domain.RequestError{Status: 400, Message: mismatch, Kind: domain.ErrIdentityMismatch})
	flow, _ := newMockFlow(t, api, session, nil)

	flow.Start(ctx, "t1")

	s := flow.State()
	assert.Equal(t, PhaseLoginRequired, s.Phase)
	assert.Equal(t, mismatch, s.Message)
	assert.False(t, session.IsAuthenticated())
}

func TestInvitationFlow_RegistersOnlyOnce(t *testing.T) {
	ctx := context.Background()
	session := newTestSessionManager(repository.NewMemorySessionRepository())
	session.Restore(ctx)
	_, err := session.Login(ctx, &dto.AuthResponse{
		Token: mintToken(t, "bob", "u2", time.Now().Add(time.Hour)), Username: "bob", Email: "bob@x.com", Role: "USER",
	})
	require.NoError(t, err)

	api := new(MockInvitationAPI)
	api.On("VerifyInvitation", mock.Anything, "t1").Return(&domain.InvitationContext{
		Token: "t1", EventID: "e1", InviteeEmail: "bob@x.com", UserExists: true,
		EventStatus: domain.EventStatusPlanned, AvailableSpots: spots(5),
	}, nil)
	api.On("AcceptAndRegister", mock.Anything, "t1", mock.Anything).
		Return(&dto.AcceptRegisterResponse{EventID: "e1", Registered: true}, nil).Once()
	flow, _ := newMockFlow(t, api, session, &InvitationFlowConfig{After: newManualTicker().After})

	flow.Start(ctx, "t1")
	require.Equal(t, PhaseSucceeded, flow.State().Phase)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			flow.reconcile(ctx)
		}()
	}
	wg.Wait()

	api.AssertNumberOfCalls(t, "AcceptAndRegister", 1)
	assert.Equal(t, PhaseSucceeded, flow.State().Phase)
	assert.Equal(t, flow.IdempotencyKey(), api.Calls[len(api.Calls)-1].Arguments.String(2))
}

func TestInvitationFlow_GoNowNavigatesOnce(t *testing.T) {
	ctx := context.Background()
	session := newTestSessionManager(repository.NewMemorySessionRepository())
	session.Restore(ctx)
	_, err := session.Login(ctx, &dto.AuthResponse{
		Token: mintToken(t, "bob", "u2", time.Now().Add(time.Hour)), Username: "bob", Email: "bob@x.com", Role: "USER",
	})
	require.NoError(t, err)

	api := new(MockInvitationAPI)
	api.On("VerifyInvitation", mock.Anything, "t1").Return(&domain.InvitationContext{
		Token: "t1", EventID: "e1", InviteeEmail: "bob@x.com", UserExists: true,
		EventStatus: domain.EventStatusPlanned, AvailableSpots: spots(5),
	}, nil)
	api.On("AcceptAndRegister", mock.Anything, "t1", mock.Anything).
		Return(&dto.AcceptRegisterResponse{EventID: "e1", Registered: true}, nil)
	ticker := newManualTicker()
	flow, nav := newMockFlow(t, api, session, &InvitationFlowConfig{After: ticker.After})

	flow.Start(ctx, "t1")
	flow.GoNow()
	flow.GoNow()
	ticker.Tick()

	assert.Equal(t, []string{"/events/e1"}, nav.All())
	assert.True(t, flow.State().Navigated)
}

func TestInvitationFlow_CloseStopsCountdown(t *testing.T) {
	ctx := context.Background()
	session := newTestSessionManager(repository.NewMemorySessionRepository())
	session.Restore(ctx)
	_, err := session.Login(ctx, &dto.AuthResponse{
		Token: mintToken(t, "bob", "u2", time.Now().Add(time.Hour)), Username: "bob", Email: "bob@x.com", Role: "USER",
	})
	require.NoError(t, err)

	api := new(MockInvitationAPI)
	api.On("VerifyInvitation", mock.Anything, "t1").Return(&domain.InvitationContext{
		Token: "t1", EventID: "e1", InviteeEmail: "bob@x.com", UserExists: true,
		EventStatus: domain.EventStatusPlanned, AvailableSpots: spots(5),
	}, nil)
	api.On("AcceptAndRegister", mock.Anything, "t1", mock.Anything).
		Return(&dto.AcceptRegisterResponse{EventID: "e1", Registered: true}, nil)
	flow, nav := newMockFlow(t, api, session, &InvitationFlowConfig{RedirectTicks: 1, TickInterval: 50 * time.Millisecond})

	flow.Start(ctx, "t1")
	flow.Close()
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, nav.All())
	flow.GoNow()
	assert.Empty(t, nav.All())
}

func TestInvitationFlow_RegisterAndAcceptScenario(t *testing.T) {
	f := newBackendFixture(t)
	eventID := f.backend.AddEvent(dto.EventResponse{Title: "Launch party", Capacity: 5})
	token := f.backend.AddInvitation(eventID, "bob@x.com", 0)
	ticker := newManualTicker()
	flow := NewInvitationFlow(f.client, f.session, f.navigator, nil, &InvitationFlowConfig{After: ticker.After})
	t.Cleanup(flow.Close)

	flow.Start(context.Background(), token)
	s := flow.State()
	require.Equal(t, PhaseRegisterRequired, s.Phase)
	require.NotNil(t, s.Context.AvailableSpots)
	assert.Equal(t, 5, *s.Context.AvailableSpots)

	err := flow.SubmitRegistration(context.Background(), &dto.RegisterRequest{Username: "bob", Email: "bob@x.com", Password: "secret1"})
	require.NoError(t, err)

	s = flow.State()
	require.Equal(t, PhaseSucceeded, s.Phase)
	assert.Equal(t, 3, s.Countdown)
	assert.Equal(t, "ACCEPTED", f.backend.InvitationStatus(token))
	assert.Equal(t, 1, f.backend.Count(http.MethodPost, "/invitations/accept-register"))

	req, _ := f.backend.LastRequest(http.MethodPost, "/invitations/accept-register")
	assert.Equal(t, flow.IdempotencyKey(), req.Header.Get("X-Idempotency-Key"))

	for remaining := 2; remaining >= 1; remaining-- {
		ticker.Tick()
		require.Eventually(t, func() bool { return flow.State().Countdown == remaining }, time.Second, time.Millisecond)
		assert.Empty(t, f.navigator.All())
	}
	ticker.Tick()
	require.Eventually(t, func() bool { return len(f.navigator.All()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, routepath.Event(eventID), f.navigator.Last())
}

func TestInvitationFlow_LoginMatchRegisters(t *testing.T) {
	f := newBackendFixture(t)
	f.backend.AddUser("bob", "bob@x.com", "secret1", "USER")
	eventID := f.backend.AddEvent(dto.EventResponse{Title: "Launch party"})
	token := f.backend.AddInvitation(eventID, "bob@x.com", 0)
	flow := NewInvitationFlow(f.client, f.session, f.navigator, nil, &InvitationFlowConfig{After: newManualTicker().After})
	t.Cleanup(flow.Close)

	flow.Start(context.Background(), routepath.AcceptLink(token))
	require.Equal(t, PhaseLoginRequired, flow.State().Phase)

	err := flow.SubmitLogin(context.Background(), "bob", "wrong-password")
	require.Error(t, err)
	assert.Equal(t, PhaseLoginRequired, flow.State().Phase)
	assert.Equal(t, "Invalid username or password", flow.State().Message)

	require.NoError(t, flow.SubmitLogin(context.Background(), "bob", "secret1"))
	assert.Equal(t, PhaseSucceeded, flow.State().Phase)
	assert.Len(t, f.backend.Attendees(eventID), 1)
}

func TestInvitationFlow_AlreadyRegisteredOnServer(t *testing.T) {
	f := newBackendFixture(t)
	bobID := f.signIn(t, "bob", "bob@x.com")
	eventID := f.backend.AddEvent(dto.EventResponse{Title: "Launch party"})
	f.backend.RegisterAttendee(eventID, bobID)
	token := f.backend.AddInvitation(eventID, "bob@x.com", 0)
	flow := NewInvitationFlow(f.client, f.session, f.navigator, nil, &InvitationFlowConfig{After: newManualTicker().After})
	t.Cleanup(flow.Close)

	flow.Start(context.Background(), token)

	s := flow.State()
	assert.Equal(t, PhaseAlreadyRegistered, s.Phase)
	assert.Equal(t, domain.OutcomeAlreadyRegistered, s.Outcome.Kind)
}

func TestInvitationFlow_FullEventBlockedBeforeRequest(t *testing.T) {
	f := newBackendFixture(t)
	f.signIn(t, "bob", "bob@x.com")
	eventID := f.backend.AddEvent(dto.EventResponse{Title: "Tiny", Capacity: 1})
	f.backend.RegisterAttendee(eventID, "someone-else")
	token := f.backend.AddInvitation(eventID, "bob@x.com", 0)
	flow := NewInvitationFlow(f.client, f.session, f.navigator, nil, nil)
	t.Cleanup(flow.Close)

	flow.Start(context.Background(), token)

	assert.Equal(t, PhaseFailed, flow.State().Phase)
	assert.Zero(t, f.backend.Count(http.MethodPost, "/invitations/accept-register"))
}

func TestInvitationFlow_MismatchScenario(t *testing.T) {
	f := newBackendFixture(t)
	f.signIn(t, "alice", "alice@x.com")
	f.backend.AddUser("bob", "bob@x.com", "secret1", "USER")
	eventID := f.backend.AddEvent(dto.EventResponse{Title: "Launch party"})
	token := f.backend.AddInvitation(eventID, "bob@x.com", 0)

	flow := NewInvitationFlow(f.client, f.session, f.navigator, nil, fastFlowConfig())
	t.Cleanup(flow.Close)
	var log phaseLog
	var loggedOutBeforeSwitch bool
	flow.Subscribe(func(s InvitationState) {
		log.record(s)
		if s.Phase == PhaseVerifying && len(log.all()) > 1 {
			loggedOutBeforeSwitch = !f.session.IsAuthenticated()
		}
	})

	flow.Start(context.Background(), token)

	s := flow.State()
	assert.Equal(t, PhaseLoginRequired, s.Phase)
	assert.Equal(t, "bob@x.com", s.Context.InviteeEmail)
	assert.Contains(t, s.Message, "alice@x.com")
	assert.False(t, f.session.IsAuthenticated())
	assert.True(t, loggedOutBeforeSwitch)
	assert.Equal(t, []InvitationPhase{
		PhaseVerifying, PhaseLoginRequired, PhaseReconciling, PhaseSwitchingIdentity, PhaseVerifying, PhaseLoginRequired,
	}, log.all())
	assert.NotContains(t, log.all(), PhaseRegistering)
	assert.Zero(t, f.backend.Count(http.MethodPost, "/invitations/accept-register"))
	assert.Equal(t, 2, f.backend.Count(http.MethodGet, "/invitations/verify"))
}
