package di

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/repository"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/routepath"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/service"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/testutil/fakebackend"
	"github.com/Z4phxr/eventflow-client/pkg/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "eventflow", Environment: "development", Version: "test"},
		API: config.APIConfig{BaseURL: baseURL, Timeout: 5 * time.Second, RetryMax: 1, RetryInitialInterval: time.Millisecond},
		Session: config.SessionConfig{
			Backend:  config.SessionBackendMemory,
			RedisKey: "session:test",
		},
		Redis:         config.RedisConfig{Host: "localhost", Port: 6379, PoolSize: 2, DialTimeout: time.Second, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Notifications: config.NotificationsConfig{PollInterval: time.Second, PageSize: 20},
		Invite:        config.InviteConfig{RedirectTicks: 3, TickInterval: time.Second, SwitchDelay: 10 * time.Millisecond},
		OTel:          config.OTelConfig{ServiceName: "eventflow-test"},
	}
}

func TestNewContainer_RequiresConfig(t *testing.T) {
	_, err := NewContainer(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewContainer(context.Background(), &ContainerConfig{})
	assert.Error(t, err)
}

func TestNewContainer_MemoryBackend(t *testing.T) {
	backend := fakebackend.New(t)
	backend.AddUser("bob", "bob@x.com", "secret1", "USER")
	nav := &routepath.Recorder{}

	c, err := NewContainer(context.Background(), &ContainerConfig{Config: testConfig(backend.URL()), Navigator: nav})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(context.Background()) })

	assert.False(t, c.Session.Loading())
	assert.False(t, c.Session.IsAuthenticated())
	assert.Nil(t, c.Redis)

	resp, err := c.API.Login(context.Background(), &dto.LoginRequest{Username: "bob", Password: "secret1"})
	require.NoError(t, err)
	_, err = c.Session.Login(context.Background(), resp)
	require.NoError(t, err)
	assert.True(t, c.Session.IsAuthenticated())

	req, ok := backend.LastRequest("POST", "/auth/login")
	require.True(t, ok)
	assert.Equal(t, "eventflow/test", req.Header.Get("User-Agent"))

	flow := c.NewInvitationFlow()
	t.Cleanup(flow.Close)
	assert.Equal(t, service.PhaseVerifying, flow.State().Phase)

	feed := c.NewNotificationFeed()
	t.Cleanup(feed.Close)
	assert.Equal(t, domain.FeedModeOff, feed.State().Mode)
}

func TestNewContainer_FileBackendRestores(t *testing.T) {
	backend := fakebackend.New(t)
	backend.AddUser("bob", "bob@x.com", "secret1", "USER")
	cfg := testConfig(backend.URL())
	cfg.Session.Backend = config.SessionBackendFile
	cfg.Session.File = filepath.Join(t.TempDir(), "session.json")

	repo := repository.NewFileSessionRepository(cfg.Session.File)
	require.NoError(t, repo.Save(context.Background(), &domain.StoredSession{
		Token: backend.TokenFor("bob"), Username: "bob", Email: "bob@x.com", Role: domain.RoleUser,
	}))

	c, err := NewContainer(context.Background(), &ContainerConfig{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(context.Background()) })

	require.True(t, c.Session.IsAuthenticated())
	assert.Equal(t, "bob", c.Session.Current().Identity.Username)
}

func TestNewContainer_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	backend := fakebackend.New(t)
	backend.AddUser("bob", "bob@x.com", "secret1", "USER")
	cfg := testConfig(backend.URL())
	cfg.Session.Backend = config.SessionBackendRedis
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = port
	cfg.Redis.KeyPrefix = "eventflow"

	seed := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { seed.Close() })
	require.NoError(t, repository.NewRedisSessionRepository(seed, "eventflow:session:test").Save(context.Background(), &domain.StoredSession{
		Token: backend.TokenFor("bob"), Username: "bob", Email: "bob@x.com", Role: domain.RoleUser,
	}))

	c, err := NewContainer(context.Background(), &ContainerConfig{Config: cfg})
	require.NoError(t, err)

	require.NotNil(t, c.Redis)
	assert.True(t, c.Session.IsAuthenticated())

	require.NoError(t, c.Session.Logout(context.Background()))
	assert.False(t, mr.Exists("eventflow:session:test"))

	c.Close(context.Background())
	assert.Nil(t, c.Redis)
}

func TestNewContainer_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	cfg := testConfig("http://localhost:8080/api")
	cfg.Session.Backend = config.SessionBackendRedis
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = port
	cfg.Redis.DialTimeout = 50 * time.Millisecond

	_, err = NewContainer(context.Background(), &ContainerConfig{Config: cfg})
	assert.ErrorContains(t, err, "session store unavailable")
}

func TestNewContainer_UnknownBackend(t *testing.T) {
	cfg := testConfig("http://localhost:8080/api")
	cfg.Session.Backend = "etcd"

	_, err := NewContainer(context.Background(), &ContainerConfig{Config: cfg})
	assert.ErrorContains(t, err, "unknown session backend")
}

func TestNewContainer_SessionRepoOverride(t *testing.T) {
	cfg := testConfig("http://localhost:8080/api")
	cfg.Session.Backend = "ignored"
	repo := repository.NewMemorySessionRepository()

	c, err := NewContainer(context.Background(), &ContainerConfig{Config: cfg, SessionRepo: repo})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(context.Background()) })

	assert.Same(t, repo, c.SessionRepo)
}
