package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/routepath"
	"github.com/Z4phxr/eventflow-client/pkg/logger"
)

// InvitationAPI is the part of the API client the invitation flow uses
type InvitationAPI interface {
	VerifyInvitation(ctx context.Context, token string) (*domain.InvitationContext, error)
	AcceptAndRegister(ctx context.Context, token, idempotencyKey string) (*dto.AcceptRegisterResponse, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error)
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error)
}

// InvitationPhase is the phase of an invitation acceptance
type InvitationPhase string

const (
	PhaseVerifying         InvitationPhase = "verifying"
	PhaseLoginRequired     InvitationPhase = "login_required"
	PhaseRegisterRequired  InvitationPhase = "register_required"
	PhaseReconciling       InvitationPhase = "reconciling"
	PhaseSwitchingIdentity InvitationPhase = "switching_identity"
	PhaseRegistering       InvitationPhase = "registering"
	PhaseSucceeded         InvitationPhase = "succeeded"
	PhaseAlreadyRegistered InvitationPhase = "already_registered"
	PhaseFailed            InvitationPhase = "failed"
	PhaseError             InvitationPhase = "error"
)

// Redirecting reports whether the phase counts down to the event page
func (p InvitationPhase) Redirecting() bool {
	return p == PhaseSucceeded || p == PhaseAlreadyRegistered
}

// ShowsForm reports whether the phase waits for credentials
func (p InvitationPhase) ShowsForm() bool {
	return p == PhaseLoginRequired || p == PhaseRegisterRequired
}

// User-facing copy
const (
	msgMissingToken    = "Invalid invitation link: no token was provided."
	msgVerifyExpired   = "This invitation has expired. Please contact the organizer for a new one."
	msgVerifyInvalid   = "This invitation link is invalid or has already been used."
	msgVerifyGeneric   = "We could not load this invitation. Please try again."
	msgCapacity        = "Sorry, this event is full. No spots are left."
	msgExpired         = "This invitation has expired. Please contact the organizer for a new one."
	msgUnavailable     = "This event has been cancelled or has already finished."
	msgRegisterGeneric = "Registration failed. Please try again."
)

// InvitationState is everything the invitation view renders
type InvitationState struct {
	Phase   InvitationPhase
	Context *domain.InvitationContext
	// Message is the copy for the current phase, or a form error
	Message string
	// Reason is the classified error behind error and failed phases
	Reason  error
	Outcome *domain.InvitationOutcome
	// Countdown is the number of ticks left before the redirect
	Countdown   int
	Destination string
	Navigated   bool
}

type flowEventKind int

const (
	evMissingToken flowEventKind = iota
	evVerifyStarted
	evVerified
	evVerifyFailed
	evShowLogin
	evShowRegister
	evFormFailed
	evIdentityAvailable
	evIdentityMatched
	evIdentityMismatched
	evChainRegistration
	evRejected
	evAccepted
	evAcceptFailed
	evServerMismatch
	evTick
	evNavigated
)

type flowEvent struct {
	kind     flowEventKind
	context  *domain.InvitationContext
	response *dto.AcceptRegisterResponse
	err      error
	message  string
	ticks    int
}

// reduce is the only place the flow state changes. Events that make no sense
// in the current phase leave the state untouched.
func reduce(s InvitationState, ev flowEvent) InvitationState {
	switch ev.kind {
	case evMissingToken:
		return InvitationState{Phase: PhaseError, Message: msgMissingToken, Reason: domain.ErrInvitationInvalid}

	case evVerifyStarted:
		return InvitationState{Phase: PhaseVerifying, Message: ev.message}

	case evVerified:
		if s.Phase != PhaseVerifying {
			return s
		}
		next := InvitationState{Phase: PhaseRegisterRequired, Context: ev.context, Message: s.Message}
		if ev.context.UserExists {
			next.Phase = PhaseLoginRequired
		}
		return next

	case evVerifyFailed:
		if s.Phase != PhaseVerifying {
			return s
		}
		next := InvitationState{Phase: PhaseError, Reason: ev.err, Message: msgVerifyGeneric}
		switch {
		case errors.Is(ev.err, domain.ErrInvitationExpired):
			next.Message = msgVerifyExpired
		case errors.Is(ev.err, domain.ErrInvitationInvalid), errors.Is(ev.err, domain.ErrNotFound):
			next.Message = msgVerifyInvalid
		}
		return next

	case evShowLogin, evShowRegister:
		if !s.Phase.ShowsForm() {
			return s
		}
		s.Phase = PhaseLoginRequired
		if ev.kind == evShowRegister {
			s.Phase = PhaseRegisterRequired
		}
		s.Message = ""
		return s

	case evFormFailed:
		if !s.Phase.ShowsForm() {
			return s
		}
		s.Message = ev.message
		return s

	case evIdentityAvailable:
		if !s.Phase.ShowsForm() || s.Context == nil {
			return s
		}
		s.Phase = PhaseReconciling
		s.Message = ""
		return s

	case evIdentityMatched:
		if s.Phase != PhaseReconciling {
			return s
		}
		s.Phase = PhaseRegistering
		return s

	case evIdentityMismatched:
		if s.Phase != PhaseReconciling {
			return s
		}
		s.Phase = PhaseSwitchingIdentity
		s.Message = ev.message
		return s

	case evChainRegistration:
		if !s.Phase.ShowsForm() || s.Context == nil {
			return s
		}
		s.Phase = PhaseRegistering
		s.Message = ""
		return s

	case evRejected, evAcceptFailed:
		if s.Phase != PhaseRegistering && (ev.kind == evAcceptFailed || !s.Phase.ShowsForm()) {
			return s
		}
		s.Phase = PhaseFailed
		s.Reason = ev.err
		s.Message = ev.message
		s.Outcome = &domain.InvitationOutcome{Kind: domain.OutcomeFailed, EventID: s.Context.EventID, Reason: ev.message}
		return s

	case evServerMismatch:
		if s.Phase != PhaseRegistering {
			return s
		}
		s.Phase = PhaseLoginRequired
		s.Reason = domain.ErrIdentityMismatch
		s.Message = ev.message
		return s

	case evAccepted:
		if s.Phase != PhaseRegistering {
			return s
		}
		eventID := s.Context.EventID
		if ev.response != nil && ev.response.EventID != "" {
			eventID = ev.response.EventID
		}
		title := s.Context.EventTitle
		if ev.response != nil && ev.response.EventTitle != "" {
			title = ev.response.EventTitle
		}

		s.Phase = PhaseSucceeded
		s.Message = fmt.Sprintf("You're registered for %s!", title)
		s.Outcome = &domain.InvitationOutcome{Kind: domain.OutcomeRegistered, EventID: eventID}
		if ev.err != nil || (ev.response != nil && ev.response.AlreadyRegistered()) {
			s.Phase = PhaseAlreadyRegistered
			s.Message = fmt.Sprintf("You're already registered for %s.", title)
			s.Outcome.Kind = domain.OutcomeAlreadyRegistered
		}
		s.Reason = nil
		s.Countdown = ev.ticks
		s.Destination = routepath.Event(eventID)
		return s

	case evTick:
		if !s.Phase.Redirecting() || s.Navigated || s.Countdown == 0 {
			return s
		}
		s.Countdown--
		return s

	case evNavigated:
		if !s.Phase.Redirecting() || s.Navigated {
			return s
		}
		s.Navigated = true
		s.Countdown = 0
		return s
	}
	return s
}

// InvitationFlowConfig contains configuration for the invitation flow
type InvitationFlowConfig struct {
	// RedirectTicks is the countdown length after a successful acceptance
	RedirectTicks int
	// TickInterval is the length of one countdown tick
	TickInterval time.Duration
	// SwitchDelay is the settling delay between a forced logout and
	// re-verification. Logins that happen inside this window are not supported.
	SwitchDelay time.Duration
	// After overrides time.After for timers
	After func(time.Duration) <-chan time.Time
}

// InvitationFlow drives one invitation link from verification to registration.
// All methods are safe for concurrent use.
type InvitationFlow struct {
	api       InvitationAPI
	session   SessionManager
	navigator routepath.Navigator
	log       *logger.Logger

	ticks        int
	tickInterval time.Duration
	switchDelay  time.Duration
	after        func(time.Duration) <-chan time.Time

	token          string
	idempotencyKey string

	mu          sync.Mutex
	state       InvitationState
	chaining    bool
	closed      bool
	countdownOn bool
	done        chan struct{}
	unsubscribe func()

	subMu   sync.Mutex
	subs    map[int]func(InvitationState)
	nextSub int
}

// NewInvitationFlow creates a flow for one invitation link
func NewInvitationFlow(
	api InvitationAPI,
	session SessionManager,
	navigator routepath.Navigator,
	log *logger.Logger,
	cfg *InvitationFlowConfig,
) *InvitationFlow {
	if log == nil {
		log = logger.NewNop()
	}
	if navigator == nil {
		navigator = routepath.NavigatorFunc(func(string) {})
	}

	f := &InvitationFlow{
		api:            api,
		session:        session,
		navigator:      navigator,
		log:            log.Named("invitation"),
		ticks:          3,
		tickInterval:   time.Second,
		switchDelay:    500 * time.Millisecond,
		after:          time.After,
		idempotencyKey: uuid.New().String(),
		state:          InvitationState{Phase: PhaseVerifying},
		done:           make(chan struct{}),
		subs:           make(map[int]func(InvitationState)),
	}
	if cfg != nil {
		if cfg.RedirectTicks > 0 {
			f.ticks = cfg.RedirectTicks
		}
		if cfg.TickInterval > 0 {
			f.tickInterval = cfg.TickInterval
		}
		if cfg.SwitchDelay > 0 {
			f.switchDelay = cfg.SwitchDelay
		}
		if cfg.After != nil {
			f.after = cfg.After
		}
	}
	return f
}

// Start verifies the invitation behind a raw token or link and, when a
// matching identity is already signed in, registers right away.
// It returns once the flow has settled in its next waiting or terminal phase.
func (f *InvitationFlow) Start(ctx context.Context, tokenOrLink string) {
	f.token = routepath.InviteToken(tokenOrLink)

	f.mu.Lock()
	if f.unsubscribe == nil && !f.closed {
		f.unsubscribe = f.session.Subscribe(func(ev SessionEvent) {
			if ev.Session != nil {
				f.reconcile(context.Background())
			}
		})
	}
	f.mu.Unlock()

	if f.token == "" {
		f.apply(flowEvent{kind: evMissingToken})
		return
	}
	f.verify(ctx, "")
}

// State returns a snapshot of the current state
func (f *InvitationFlow) State() InvitationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// IdempotencyKey returns the key sent with accept-and-register
func (f *InvitationFlow) IdempotencyKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idempotencyKey
}

// Subscribe registers fn for state changes and returns its cancel func
func (f *InvitationFlow) Subscribe(fn func(InvitationState)) func() {
	f.subMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.subMu.Unlock()

	return func() {
		f.subMu.Lock()
		delete(f.subs, id)
		f.subMu.Unlock()
	}
}

// ShowLogin switches to the login form without re-verifying
func (f *InvitationFlow) ShowLogin() {
	f.apply(flowEvent{kind: evShowLogin})
}

// ShowRegister switches to the registration form without re-verifying
func (f *InvitationFlow) ShowRegister() {
	f.apply(flowEvent{kind: evShowRegister})
}

// SubmitLogin signs in from the login form. Reconciliation then runs through
// the session notification.
func (f *InvitationFlow) SubmitLogin(ctx context.Context, username, password string) error {
	if !f.State().Phase.ShowsForm() {
		return fmt.Errorf("%w: no credentials expected in this phase", domain.ErrValidation)
	}

	req := &dto.LoginRequest{Username: strings.TrimSpace(username), Password: password}
	if ok, msg := req.Validate(); !ok {
		f.apply(flowEvent{kind: evFormFailed, message: msg})
		return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
	}
	if f.rejectUnavailable() {
		return nil
	}

	resp, err := f.api.Login(ctx, req)
	if err == nil {
		_, err = f.session.Login(ctx, resp)
	}
	if err != nil {
		f.apply(flowEvent{kind: evFormFailed, message: formError(err)})
		return err
	}
	return nil
}

// SubmitRegistration creates an account from the registration form and chains
// straight into accept-and-register without another reconciliation.
func (f *InvitationFlow) SubmitRegistration(ctx context.Context, req *dto.RegisterRequest) error {
	if !f.State().Phase.ShowsForm() {
		return fmt.Errorf("%w: no credentials expected in this phase", domain.ErrValidation)
	}
	if req.Role == "" {
		req.Role = string(domain.RoleUser)
	}
	if ok, msg := req.Validate(); !ok {
		f.apply(flowEvent{kind: evFormFailed, message: msg})
		return fmt.Errorf("%w: %s", domain.ErrValidation, msg)
	}
	// no account is created for an event that cannot take the registration
	if f.rejectUnavailable() {
		return nil
	}

	f.mu.Lock()
	f.chaining = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.chaining = false
		f.mu.Unlock()
	}()

	resp, err := f.api.Register(ctx, req)
	if err == nil {
		_, err = f.session.Register(ctx, resp)
	}
	if err != nil {
		f.apply(flowEvent{kind: evFormFailed, message: formError(err)})
		return err
	}

	if next, moved := f.step(flowEvent{kind: evChainRegistration}); moved && next.Phase == PhaseRegistering {
		f.register(ctx)
	}
	return nil
}

// Retry re-verifies the invitation from the error or failed phase
func (f *InvitationFlow) Retry(ctx context.Context) {
	phase := f.State().Phase
	if phase != PhaseError && phase != PhaseFailed {
		return
	}
	if f.token == "" {
		f.apply(flowEvent{kind: evMissingToken})
		return
	}
	// a retry is a new submission; the server would replay the old outcome
	f.mu.Lock()
	f.idempotencyKey = uuid.New().String()
	f.mu.Unlock()
	f.verify(ctx, "")
}

// GoNow skips the rest of the countdown
func (f *InvitationFlow) GoNow() {
	f.navigate()
}

// Close stops timers and the session subscription. Results of requests still
// in flight are discarded.
func (f *InvitationFlow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.done)
	unsubscribe := f.unsubscribe
	f.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// apply runs reduce under the lock and notifies observers
func (f *InvitationFlow) apply(ev flowEvent) InvitationState {
	next, _ := f.step(ev)
	return next
}

// step is apply that also reports whether this call changed the phase, so
// concurrent triggers cannot both act on the same transition
func (f *InvitationFlow) step(ev flowEvent) (InvitationState, bool) {
	f.mu.Lock()
	if f.closed {
		s := f.state
		f.mu.Unlock()
		return s, false
	}
	prev := f.state
	f.state = reduce(f.state, ev)
	next := f.state
	f.mu.Unlock()

	moved := next.Phase != prev.Phase
	if moved {
		f.log.Debug("Invitation phase changed",
			zap.String("from", string(prev.Phase)),
			zap.String("to", string(next.Phase)),
		)
	}
	f.notify(next)
	return next, moved
}

func (f *InvitationFlow) notify(s InvitationState) {
	f.subMu.Lock()
	fns := make([]func(InvitationState), 0, len(f.subs))
	for i := 0; i < f.nextSub; i++ {
		if fn, ok := f.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	f.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (f *InvitationFlow) verify(ctx context.Context, notice string) {
	f.apply(flowEvent{kind: evVerifyStarted, message: notice})

	ic, err := f.api.VerifyInvitation(ctx, f.token)
	if err != nil {
		f.log.Info("Invitation could not be verified", zap.Error(err))
		f.apply(flowEvent{kind: evVerifyFailed, err: err})
		return
	}
	f.enrich(ctx, ic)

	if next, moved := f.step(flowEvent{kind: evVerified, context: ic}); moved && next.Phase.ShowsForm() {
		f.reconcile(ctx)
	}
}

// enrich fills event status and capacity from the event itself when the
// verification response leaves them out. Failures are ignored; the server
// still enforces both.
func (f *InvitationFlow) enrich(ctx context.Context, ic *domain.InvitationContext) {
	if ic.EventID == "" || (ic.EventStatus != "" && ic.AvailableSpots != nil) {
		return
	}
	ev, err := f.api.GetEvent(ctx, ic.EventID)
	if err != nil {
		f.log.Debug("Event details unavailable for invitation", zap.Error(err))
		return
	}
	if ic.EventStatus == "" {
		ic.EventStatus = ev.Status
	}
	if ic.AvailableSpots == nil {
		spots := ev.AvailableSpots
		ic.AvailableSpots = &spots
	}
}

// reconcile compares the signed-in identity with the invitee once both are known
func (f *InvitationFlow) reconcile(ctx context.Context) {
	current := f.session.Current()
	if current == nil {
		return
	}

	f.mu.Lock()
	if f.closed || f.chaining {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	s, moved := f.step(flowEvent{kind: evIdentityAvailable})
	if !moved || s.Phase != PhaseReconciling {
		return
	}

	if strings.EqualFold(strings.TrimSpace(current.Identity.Email), strings.TrimSpace(s.Context.InviteeEmail)) {
		if next, moved := f.step(flowEvent{kind: evIdentityMatched}); moved && next.Phase == PhaseRegistering {
			f.register(ctx)
		}
		return
	}

	notice := fmt.Sprintf("You were signed out of %s because this invitation was sent to %s.",
		current.Identity.Email, s.Context.InviteeEmail)
	if next, moved := f.step(flowEvent{kind: evIdentityMismatched, message: notice}); moved && next.Phase == PhaseSwitchingIdentity {
		f.switchIdentity(ctx, notice)
	}
}

// switchIdentity signs out, waits for the logout to settle and verifies again
func (f *InvitationFlow) switchIdentity(ctx context.Context, notice string) {
	f.log.Info("Signed-in identity does not match the invitation, signing out")
	if err := f.session.Logout(ctx); err != nil {
		f.log.Warn("Logout during identity switch failed", zap.Error(err))
	}

	select {
	case <-f.after(f.switchDelay):
	case <-f.done:
		return
	case <-ctx.Done():
		return
	}
	f.verify(ctx, notice)
}

// register accepts the invitation for the signed-in identity. The caller has
// already moved the flow to registering.
func (f *InvitationFlow) register(ctx context.Context) {
	if f.rejectUnavailable() {
		return
	}

	resp, err := f.api.AcceptAndRegister(ctx, f.token, f.IdempotencyKey())
	switch {
	case err == nil:
		f.apply(flowEvent{kind: evAccepted, response: resp, ticks: f.ticks})
	case errors.Is(err, domain.ErrAlreadyRegistered):
		f.apply(flowEvent{kind: evAccepted, err: err, ticks: f.ticks})
	case errors.Is(err, domain.ErrIdentityMismatch):
		if logoutErr := f.session.Logout(ctx); logoutErr != nil {
			f.log.Warn("Logout after identity mismatch failed", zap.Error(logoutErr))
		}
		msg := domain.ServerMessage(err)
		if msg == "" {
			msg = domain.ErrIdentityMismatch.Error()
		}
		f.apply(flowEvent{kind: evServerMismatch, message: msg})
		return
	default:
		f.apply(flowEvent{kind: evAcceptFailed, err: err, message: acceptFailure(err)})
		return
	}
	f.startCountdown()
}

// rejectUnavailable fails the flow without a network call when the event is
// closed or has no spots left
func (f *InvitationFlow) rejectUnavailable() bool {
	ic := f.State().Context
	switch {
	case ic.IsClosed():
		f.apply(flowEvent{kind: evRejected, err: domain.ErrEventUnavailable, message: msgUnavailable})
	case ic.IsFull():
		f.apply(flowEvent{kind: evRejected, err: domain.ErrCapacityExceeded, message: msgCapacity})
	default:
		return false
	}
	return true
}

func (f *InvitationFlow) startCountdown() {
	f.mu.Lock()
	if f.closed || f.countdownOn || !f.state.Phase.Redirecting() {
		f.mu.Unlock()
		return
	}
	f.countdownOn = true
	f.mu.Unlock()

	go func() {
		for {
			select {
			case <-f.done:
				return
			case <-f.after(f.tickInterval):
			}
			s := f.apply(flowEvent{kind: evTick})
			if s.Navigated || !s.Phase.Redirecting() {
				return
			}
			if s.Countdown == 0 {
				f.navigate()
				return
			}
		}
	}()
}

// navigate moves to the event page at most once
func (f *InvitationFlow) navigate() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	prev := f.state
	f.state = reduce(f.state, flowEvent{kind: evNavigated})
	next := f.state
	f.mu.Unlock()

	if prev.Navigated || !next.Navigated {
		return
	}
	f.notify(next)
	f.navigator.Navigate(next.Destination)
}

func acceptFailure(err error) string {
	switch {
	case errors.Is(err, domain.ErrCapacityExceeded):
		return msgCapacity
	case errors.Is(err, domain.ErrInvitationExpired):
		return msgExpired
	case errors.Is(err, domain.ErrEventUnavailable):
		return msgUnavailable
	}
	if msg := domain.ServerMessage(err); msg != "" {
		return msg
	}
	return msgRegisterGeneric
}

func formError(err error) string {
	if msg := domain.ServerMessage(err); msg != "" {
		return msg
	}
	return err.Error()
}
