package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/routepath"
	"github.com/Z4phxr/eventflow-client/pkg/logger"
)

// DeclineAPI is the part of the API client used to decline invitations
type DeclineAPI interface {
	DeclineInvitation(ctx context.Context, token string) (*domain.DeclineOutcome, error)
}

// InvitationDeclineService declines invitations from a link
type InvitationDeclineService interface {
	// Decline declines the invitation behind a raw token or decline link.
	// It never needs a session.
	Decline(ctx context.Context, tokenOrLink string) (*domain.DeclineOutcome, error)
}

type invitationDeclineService struct {
	api DeclineAPI
	log *logger.Logger
}

// NewInvitationDeclineService creates a new InvitationDeclineService
func NewInvitationDeclineService(api DeclineAPI, log *logger.Logger) InvitationDeclineService {
	if log == nil {
		log = logger.NewNop()
	}
	return &invitationDeclineService{api: api, log: log.Named("decline")}
}

func (s *invitationDeclineService) Decline(ctx context.Context, tokenOrLink string) (*domain.DeclineOutcome, error) {
	token := routepath.InviteToken(tokenOrLink)
	if token == "" {
		return nil, fmt.Errorf("%w: no token was provided", domain.ErrInvitationInvalid)
	}

	outcome, err := s.api.DeclineInvitation(ctx, token)
	if err != nil {
		s.log.Info("Decline failed", zap.Error(err))
		return nil, err
	}

	s.log.Info("Invitation declined", zap.String("outcome", string(outcome.Kind)))
	return outcome, nil
}
