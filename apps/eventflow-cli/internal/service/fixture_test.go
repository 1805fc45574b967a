package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/apiclient"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/repository"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/routepath"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/testutil/fakebackend"
	"github.com/Z4phxr/eventflow-client/pkg/retry"
)

// backendFixture wires a real session manager and API client to a fake backend
type backendFixture struct {
	backend   *fakebackend.Server
	client    *apiclient.Client
	session   SessionManager
	navigator *routepath.Recorder
}

func newBackendFixture(t *testing.T) *backendFixture {
	t.Helper()
	backend := fakebackend.New(t)
	session := newTestSessionManager(repository.NewMemorySessionRepository())
	session.Restore(context.Background())

	nav := &routepath.Recorder{}
	client, err := apiclient.New(&apiclient.Config{
		BaseURL: backend.URL(),
		Timeout: 5 * time.Second,
		Retry:   &retry.Config{MaxRetries: 1, InitialInterval: time.Millisecond},
	}, session, nav, nil)
	require.NoError(t, err)

	return &backendFixture{backend: backend, client: client, session: session, navigator: nav}
}

// signIn creates an account and logs it in
func (f *backendFixture) signIn(t *testing.T, username, email string) string {
	t.Helper()
	id := f.backend.AddUser(username, email, "secret1", "USER")
	resp, err := f.client.Login(context.Background(), &dto.LoginRequest{Username: username, Password: "secret1"})
	require.NoError(t, err)
	_, err = f.session.Login(context.Background(), resp)
	require.NoError(t, err)
	return id
}

// MockInvitationAPI is a mock implementation of InvitationAPI
type MockInvitationAPI struct {
	mock.Mock
}

func (m *MockInvitationAPI) VerifyInvitation(ctx context.Context, token string) (*domain.InvitationContext, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InvitationContext), args.Error(1)
}

func (m *MockInvitationAPI) AcceptAndRegister(ctx context.Context, token, idempotencyKey string) (*dto.AcceptRegisterResponse, error) {
	args := m.Called(ctx, token, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AcceptRegisterResponse), args.Error(1)
}

func (m *MockInvitationAPI) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockInvitationAPI) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AuthResponse), args.Error(1)
}

func (m *MockInvitationAPI) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AuthResponse), args.Error(1)
}

// manualTicker hands out one channel for every timer so tests step time
type manualTicker struct {
	ch chan time.Time
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) After(time.Duration) <-chan time.Time {
	return m.ch
}

func (m *manualTicker) Tick() {
	m.ch <- time.Now()
}

func spots(n int) *int {
	return &n
}

// fakebackendStub fails every matching request with status
func fakebackendStub(method, path string, status int) fakebackend.Stub {
	return fakebackend.Stub{Method: method, Path: path, Status: status, Body: map[string]string{"error": "unavailable"}}
}
