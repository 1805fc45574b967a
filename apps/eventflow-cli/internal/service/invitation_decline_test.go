package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/routepath"
)

type stubDeclineAPI struct {
	calls   int
	outcome *domain.DeclineOutcome
	err     error
}

func (s *stubDeclineAPI) DeclineInvitation(context.Context, string) (*domain.DeclineOutcome, error) {
	s.calls++
	return s.outcome, s.err
}

func TestInvitationDecline_MissingToken(t *testing.T) {
	api := &stubDeclineAPI{}
	svc := NewInvitationDeclineService(api, nil)

	for _, input := range []string{"", "  ", "https://eventflow.local/invite/decline"} {
		_, err := svc.Decline(context.Background(), input)
		assert.ErrorIs(t, err, domain.ErrInvitationInvalid)
	}
	assert.Zero(t, api.calls)
}

func TestInvitationDecline_PropagatesErrors(t *testing.T) {
	boom := &domain.RequestError{Kind: domain.ErrTransport}
	svc := NewInvitationDeclineService(&stubDeclineAPI{err: boom}, nil)

	_, err := svc.Decline(context.Background(), "t1")
	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestInvitationDecline_Outcomes(t *testing.T) {
	f := newBackendFixture(t)
	eventID := f.backend.AddEvent(dto.EventResponse{Title: "Launch party"})
	svc := NewInvitationDeclineService(f.client, nil)
	ctx := context.Background()

	pending := f.backend.AddInvitation(eventID, "bob@x.com", 0)
	outcome, err := svc.Decline(ctx, routepath.DeclineLink(pending))
	require.NoError(t, err)
	assert.Equal(t, domain.DeclineDeclined, outcome.Kind)
	assert.Equal(t, "DECLINED", f.backend.InvitationStatus(pending))

	outcome, err = svc.Decline(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, domain.DeclineAlreadyDeclined, outcome.Kind)

	expired := f.backend.AddInvitation(eventID, "carol@x.com", -time.Hour)
	_, err = f.client.VerifyInvitation(ctx, expired)
	require.ErrorIs(t, err, domain.ErrInvitationExpired)
	outcome, err = svc.Decline(ctx, expired)
	require.NoError(t, err)
	assert.Equal(t, domain.DeclineExpired, outcome.Kind)

	accepted := f.backend.AddInvitation(eventID, "dave@x.com", 0)
	f.signIn(t, "dave", "dave@x.com")
	_, err = f.client.AcceptAndRegister(ctx, accepted, "key-1")
	require.NoError(t, err)
	require.NoError(t, f.session.Logout(ctx))
	outcome, err = svc.Decline(ctx, accepted)
	require.NoError(t, err)
	assert.Equal(t, domain.DeclineAlreadyAccepted, outcome.Kind)
	assert.NotEmpty(t, outcome.Message)

	_, err = svc.Decline(ctx, "no-such-token")
	assert.ErrorIs(t, err, domain.ErrInvitationInvalid)

	// declining never needs a session
	for _, r := range f.backend.Requests() {
		if r.Method == http.MethodPost && r.Path == "/api/invitations/decline" {
			assert.Empty(t, r.Authorization)
		}
	}
}
