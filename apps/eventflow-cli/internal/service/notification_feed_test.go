package service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
)

func newTestFeed(t *testing.T, f *backendFixture, interval time.Duration) *NotificationFeed {
	t.Helper()
	feed := NewNotificationFeed(f.client, f.session, nil, &NotificationFeedConfig{PollInterval: interval, PageSize: 20})
	t.Cleanup(feed.Close)
	return feed
}

func feedHas(feed *NotificationFeed, id string) bool {
	for _, n := range feed.State().Items {
		if n.ID == id {
			return true
		}
	}
	return false
}

func TestNotificationFeed_RefreshMergesNewestFirst(t *testing.T) {
	f := newBackendFixture(t)
	userID := f.signIn(t, "bob", "bob@x.com")
	now := time.Now().UTC()
	older := f.backend.AddNotification(userID, dto.NotificationResponse{Message: "older", CreatedAt: dto.NewTimestamp(now.Add(-time.Hour))})
	newer := f.backend.AddNotification(userID, dto.NotificationResponse{Message: "newer", CreatedAt: dto.NewTimestamp(now)})
	f.backend.AddNotification(userID, dto.NotificationResponse{Message: "seen", Read: true, CreatedAt: dto.NewTimestamp(now.Add(-2 * time.Hour))})
	feed := newTestFeed(t, f, time.Hour)

	require.NoError(t, feed.Refresh(context.Background()))

	s := feed.State()
	require.Len(t, s.Items, 3)
	assert.Equal(t, newer.ID, s.Items[0].ID)
	assert.Equal(t, older.ID, s.Items[1].ID)
	assert.Equal(t, 2, s.Unread)
	assert.Equal(t, domain.FeedModeOff, s.Mode)

	// a second refresh does not duplicate anything
	require.NoError(t, feed.Refresh(context.Background()))
	assert.Len(t, feed.State().Items, 3)
}

func TestNotificationFeed_UnreadCountFallsBackToLocal(t *testing.T) {
	f := newBackendFixture(t)
	userID := f.signIn(t, "bob", "bob@x.com")
	f.backend.AddNotification(userID, dto.NotificationResponse{Message: "one"})
	f.backend.AddNotification(userID, dto.NotificationResponse{Message: "two"})
	f.backend.AddNotification(userID, dto.NotificationResponse{Message: "three", Read: true})
	f.backend.AddStub(fakebackendStub(http.MethodGet, "/notifications/unread-count", http.StatusInternalServerError))
	feed := newTestFeed(t, f, time.Hour)

	require.NoError(t, feed.Refresh(context.Background()))

	assert.Equal(t, 2, feed.State().Unread)
	assert.NoError(t, feed.State().Err)
}

func TestNotificationFeed_RefreshFailureIsSurfaced(t *testing.T) {
	f := newBackendFixture(t)
	f.signIn(t, "bob", "bob@x.com")
	f.backend.AddStub(fakebackendStub(http.MethodGet, "/notifications", http.StatusInternalServerError))
	feed := newTestFeed(t, f, time.Hour)

	err := feed.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, feed.State().Err, domain.ErrServer)
}

func TestNotificationFeed_PollingRefreshesRepeatedly(t *testing.T) {
	f := newBackendFixture(t)
	userID := f.signIn(t, "bob", "bob@x.com")
	feed := newTestFeed(t, f, 10*time.Millisecond)

	feed.EnablePolling()
	assert.Equal(t, domain.FeedModePolling, feed.State().Mode)

	require.Eventually(t, func() bool {
		return f.backend.Count(http.MethodGet, "/notifications") >= 3
	}, 2*time.Second, 5*time.Millisecond)

	n := f.backend.AddNotification(userID, dto.NotificationResponse{Message: "polled"})
	require.Eventually(t, func() bool { return feedHas(feed, n.ID) }, 2*time.Second, 5*time.Millisecond)

	feed.DisablePolling()
	assert.Equal(t, domain.FeedModeOff, feed.State().Mode)
	time.Sleep(20 * time.Millisecond)
	before := f.backend.Count(http.MethodGet, "/notifications")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, f.backend.Count(http.MethodGet, "/notifications"))
}

func TestNotificationFeed_PushDeliversAndDeduplicates(t *testing.T) {
	f := newBackendFixture(t)
	userID := f.signIn(t, "bob", "bob@x.com")
	feed := newTestFeed(t, f, time.Hour)

	require.NoError(t, feed.EnablePush(context.Background()))
	assert.Equal(t, domain.FeedModePushing, feed.State().Mode)
	assert.Equal(t, 1, f.backend.StreamCount(userID))

	sent := f.backend.Publish(userID, dto.NotificationResponse{Type: "EVENT_UPDATED", Message: "Venue changed"})
	require.Eventually(t, func() bool { return feedHas(feed, sent.ID) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, feed.State().Unread)

	f.backend.Publish(userID, sent)
	second := f.backend.Publish(userID, dto.NotificationResponse{Message: "Another"})
	require.Eventually(t, func() bool { return feedHas(feed, second.ID) }, 2*time.Second, 5*time.Millisecond)

	s := feed.State()
	assert.Len(t, s.Items, 2)
	assert.Equal(t, 2, s.Unread)
}

func TestNotificationFeed_PushRequiresSession(t *testing.T) {
	f := newBackendFixture(t)
	feed := newTestFeed(t, f, time.Hour)

	err := feed.EnablePush(context.Background())

	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Zero(t, f.backend.Count(http.MethodGet, "/notifications/stream"))
}

func TestNotificationFeed_PushOpenFailureFallsBack(t *testing.T) {
	f := newBackendFixture(t)
	f.signIn(t, "bob", "bob@x.com")
	f.backend.AddStub(fakebackendStub(http.MethodGet, "/notifications/stream", http.StatusInternalServerError))
	feed := newTestFeed(t, f, time.Hour)

	err := feed.EnablePush(context.Background())

	require.Error(t, err)
	s := feed.State()
	assert.Equal(t, domain.FeedModeOff, s.Mode)
	assert.Equal(t, PushUnavailableNotice, s.Notice)
	assert.Error(t, s.Err)
}

func TestNotificationFeed_DroppedStreamFallsBack(t *testing.T) {
	f := newBackendFixture(t)
	f.signIn(t, "bob", "bob@x.com")
	feed := newTestFeed(t, f, time.Hour)
	require.NoError(t, feed.EnablePush(context.Background()))

	f.backend.DropStreams()

	require.Eventually(t, func() bool { return feed.State().Mode == domain.FeedModeOff }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, PushUnavailableNotice, feed.State().Notice)
}

func TestNotificationFeed_ModesAreExclusive(t *testing.T) {
	f := newBackendFixture(t)
	userID := f.signIn(t, "bob", "bob@x.com")
	feed := newTestFeed(t, f, 10*time.Millisecond)

	feed.EnablePolling()
	require.Eventually(t, func() bool {
		return f.backend.Count(http.MethodGet, "/notifications") >= 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, feed.EnablePush(context.Background()))
	assert.Equal(t, domain.FeedModePushing, feed.State().Mode)
	time.Sleep(20 * time.Millisecond)
	polls := f.backend.Count(http.MethodGet, "/notifications")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, polls, f.backend.Count(http.MethodGet, "/notifications"))

	feed.EnablePolling()
	assert.Equal(t, domain.FeedModePolling, feed.State().Mode)
	require.Eventually(t, func() bool { return f.backend.StreamCount(userID) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestNotificationFeed_MarkReadKeepsLocalChangeOnFailure(t *testing.T) {
	f := newBackendFixture(t)
	userID := f.signIn(t, "bob", "bob@x.com")
	n := f.backend.AddNotification(userID, dto.NotificationResponse{Message: "one"})
	f.backend.AddNotification(userID, dto.NotificationResponse{Message: "two"})
	feed := newTestFeed(t, f, time.Hour)
	require.NoError(t, feed.Refresh(context.Background()))
	require.Equal(t, 2, feed.State().Unread)

	f.backend.AddStub(fakebackendStub(http.MethodPut, "/notifications/"+n.ID+"/read", http.StatusInternalServerError))
	err := feed.MarkRead(context.Background(), n.ID)

	require.Error(t, err)
	s := feed.State()
	assert.Equal(t, 1, s.Unread)
	assert.ErrorIs(t, s.Err, domain.ErrServer)
	for _, item := range s.Items {
		if item.ID == n.ID {
			assert.True(t, item.Read)
		}
	}
}

func TestNotificationFeed_MarkAllRead(t *testing.T) {
	f := newBackendFixture(t)
	userID := f.signIn(t, "bob", "bob@x.com")
	f.backend.AddNotification(userID, dto.NotificationResponse{Message: "one"})
	f.backend.AddNotification(userID, dto.NotificationResponse{Message: "two"})
	feed := newTestFeed(t, f, time.Hour)
	require.NoError(t, feed.Refresh(context.Background()))

	require.NoError(t, feed.MarkAllRead(context.Background()))
	assert.Zero(t, feed.State().Unread)

	require.NoError(t, feed.Refresh(context.Background()))
	assert.Zero(t, feed.State().Unread)
	for _, item := range feed.State().Items {
		assert.True(t, item.Read)
	}
}

func TestNotificationFeed_LogoutClearsAndClosesStream(t *testing.T) {
	f := newBackendFixture(t)
	userID := f.signIn(t, "bob", "bob@x.com")
	f.backend.AddNotification(userID, dto.NotificationResponse{Message: "one"})
	feed := newTestFeed(t, f, time.Hour)
	require.NoError(t, feed.Refresh(context.Background()))
	require.NoError(t, feed.EnablePush(context.Background()))

	require.NoError(t, f.session.Logout(context.Background()))

	s := feed.State()
	assert.Equal(t, domain.FeedModeOff, s.Mode)
	assert.Empty(t, s.Items)
	assert.Zero(t, s.Unread)
	assert.Empty(t, s.Notice)
	require.Eventually(t, func() bool { return f.backend.StreamCount(userID) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestNotificationFeed_CloseTearsDown(t *testing.T) {
	f := newBackendFixture(t)
	userID := f.signIn(t, "bob", "bob@x.com")
	feed := NewNotificationFeed(f.client, f.session, nil, &NotificationFeedConfig{PollInterval: time.Hour})
	require.NoError(t, feed.EnablePush(context.Background()))

	feed.Close()
	feed.Close()

	assert.Equal(t, domain.FeedModeOff, feed.State().Mode)
	require.Eventually(t, func() bool { return f.backend.StreamCount(userID) == 0 }, 2*time.Second, 5*time.Millisecond)

	feed.EnablePolling()
	assert.Equal(t, domain.FeedModeOff, feed.State().Mode)
}

func TestNotificationFeed_CloseRacingModeSwitches(t *testing.T) {
	f := newBackendFixture(t)
	userID := f.signIn(t, "bob", "bob@x.com")
	feed := NewNotificationFeed(f.client, f.session, nil, &NotificationFeedConfig{PollInterval: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			feed.EnablePolling()
		}()
		go func() {
			defer wg.Done()
			_ = feed.EnablePush(context.Background())
		}()
	}
	feed.Close()
	wg.Wait()

	// nothing started around Close may keep running after it
	feed.Close()
	// let requests already on the wire reach the server
	time.Sleep(20 * time.Millisecond)
	polled := f.backend.Count(http.MethodGet, "/notifications")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polled, f.backend.Count(http.MethodGet, "/notifications"))
	assert.Equal(t, domain.FeedModeOff, feed.State().Mode)
	require.Eventually(t, func() bool { return f.backend.StreamCount(userID) == 0 }, 2*time.Second, 5*time.Millisecond)
}
