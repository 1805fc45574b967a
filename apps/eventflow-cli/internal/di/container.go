package di

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/apiclient"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/repository"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/routepath"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/service"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/tokencodec"
	"github.com/Z4phxr/eventflow-client/pkg/config"
	"github.com/Z4phxr/eventflow-client/pkg/logger"
	"github.com/Z4phxr/eventflow-client/pkg/redis"
	"github.com/Z4phxr/eventflow-client/pkg/retry"
	"github.com/Z4phxr/eventflow-client/pkg/telemetry"
)

// Container holds all dependencies for the client
type Container struct {
	Config *config.Config
	Log    *logger.Logger

	// Infrastructure
	Telemetry *telemetry.Telemetry
	Redis     *redis.Client

	// Repositories
	SessionRepo repository.SessionRepository

	// Services
	Session   service.SessionManager
	Navigator routepath.Navigator
	API       *apiclient.Client
	Decline   service.InvitationDeclineService
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Config *config.Config
	Log    *logger.Logger
	// Navigator receives route changes; nil records them in memory
	Navigator routepath.Navigator
	// SessionRepo overrides the backend selected by Config.Session
	SessionRepo repository.SessionRepository
	// Transport overrides the HTTP round tripper
	Transport http.RoundTripper
}

// NewContainer wires the client and restores the persisted session
func NewContainer(ctx context.Context, cfg *ContainerConfig) (*Container, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	appCfg := cfg.Config

	c := &Container{
		Config:    appCfg,
		Log:       cfg.Log,
		Navigator: cfg.Navigator,
	}
	if c.Log == nil {
		c.Log = logger.NewNop()
	}
	if c.Navigator == nil {
		c.Navigator = &routepath.Recorder{}
	}

	tel, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        appCfg.OTel.Enabled,
		ServiceName:    appCfg.OTel.ServiceName,
		ServiceVersion: appCfg.App.Version,
		Environment:    appCfg.App.Environment,
		CollectorAddr:  appCfg.OTel.CollectorAddr,
		SampleRatio:    appCfg.OTel.SampleRatio,
	})
	if err != nil {
		return nil, err
	}
	c.Telemetry = tel

	// Initialize repositories
	c.SessionRepo = cfg.SessionRepo
	if c.SessionRepo == nil {
		if c.SessionRepo, err = c.sessionRepository(ctx); err != nil {
			c.Close(ctx)
			return nil, err
		}
	}

	// Initialize services
	c.Session = service.NewSessionManager(c.SessionRepo, tokencodec.New(), c.Log, nil)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = appCfg.API.RetryMax
	if appCfg.API.RetryInitialInterval > 0 {
		retryCfg.InitialInterval = appCfg.API.RetryInitialInterval
	}
	c.API, err = apiclient.New(&apiclient.Config{
		BaseURL:   appCfg.API.BaseURL,
		Timeout:   appCfg.API.Timeout,
		Retry:     retryCfg,
		Transport: cfg.Transport,
		UserAgent: appCfg.App.Name + "/" + appCfg.App.Version,
	}, c.Session, c.Navigator, c.Log)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.Decline = service.NewInvitationDeclineService(c.API, c.Log)

	c.Session.Restore(ctx)
	return c, nil
}

func (c *Container) sessionRepository(ctx context.Context) (repository.SessionRepository, error) {
	switch c.Config.Session.Backend {
	case config.SessionBackendFile:
		return repository.NewFileSessionRepository(c.Config.Session.File), nil
	case config.SessionBackendMemory:
		return repository.NewMemorySessionRepository(), nil
	case config.SessionBackendRedis:
		rc := c.Config.Redis
		defaults := redis.DefaultConfig()
		client, err := redis.NewClient(ctx, &redis.Config{
			Host:            rc.Host,
			Port:            rc.Port,
			Password:        rc.Password,
			DB:              rc.DB,
			PoolSize:        rc.PoolSize,
			DialTimeout:     rc.DialTimeout,
			ReadTimeout:     rc.ReadTimeout,
			WriteTimeout:    rc.WriteTimeout,
			KeyPrefix:       rc.KeyPrefix,
			ConnectRetries:  defaults.ConnectRetries,
			ConnectInterval: defaults.ConnectInterval,
			OnRetry: func(attempt int, err error) {
				c.Log.Debug("Session store not ready", zap.Int("attempt", attempt), zap.Error(err))
			},
		})
		if err != nil {
			return nil, fmt.Errorf("session store unavailable: %w", err)
		}
		c.Redis = client
		c.Log.Debug("Session store connected", zap.String("addr", rc.Addr()))
		return repository.NewRedisSessionRepository(client.Client(), client.Key(c.Config.Session.RedisKey)), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %q", c.Config.Session.Backend)
	}
}

// NewInvitationFlow creates a flow for one invitation link
func (c *Container) NewInvitationFlow() *service.InvitationFlow {
	return service.NewInvitationFlow(c.API, c.Session, c.Navigator, c.Log, &service.InvitationFlowConfig{
		RedirectTicks: c.Config.Invite.RedirectTicks,
		TickInterval:  c.Config.Invite.TickInterval,
		SwitchDelay:   c.Config.Invite.SwitchDelay,
	})
}

// NewNotificationFeed creates a feed following the session
func (c *Container) NewNotificationFeed() *service.NotificationFeed {
	return service.NewNotificationFeed(c.API, c.Session, c.Log, &service.NotificationFeedConfig{
		PollInterval: c.Config.Notifications.PollInterval,
		PageSize:     c.Config.Notifications.PageSize,
	})
}

// Close releases the session store and flushes traces
func (c *Container) Close(ctx context.Context) {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Log.Warn("Failed to close redis", zap.Error(err))
		}
		c.Redis = nil
	}
	if err := telemetry.Shutdown(ctx); err != nil {
		c.Log.Warn("Failed to flush traces", zap.Error(err))
	}
}
