package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/sse"
	"github.com/Z4phxr/eventflow-client/pkg/logger"
)

// NotificationAPI is the part of the API client the feed uses
type NotificationAPI interface {
	ListNotifications(ctx context.Context, page, size int) (*dto.NotificationPage, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) (int, error)
	OpenNotificationStream(ctx context.Context, userID string) (io.ReadCloser, error)
}

// NotificationStreamEvent is the event name notifications are pushed under
const NotificationStreamEvent = "notification"

// PushUnavailableNotice is shown when server push stops working
const PushUnavailableNotice = "Live updates are unavailable. Enable polling or refresh manually."

// FeedState is a snapshot of the notification feed
type FeedState struct {
	Mode   domain.FeedMode
	Items  []domain.NotificationEvent
	Unread int
	// Notice explains why push was switched off
	Notice string
	// Err is the last error surfaced by a feed operation
	Err error
}

// NotificationFeedConfig contains configuration for the notification feed
type NotificationFeedConfig struct {
	PollInterval time.Duration
	PageSize     int
}

// NotificationFeed keeps the signed-in user's notifications up to date by
// either polling or server push, never both.
type NotificationFeed struct {
	api          NotificationAPI
	session      SessionManager
	log          *logger.Logger
	pollInterval time.Duration
	pageSize     int

	mu      sync.Mutex
	mode    domain.FeedMode
	items   []domain.NotificationEvent
	unread  int
	notice  string
	lastErr error
	userID  string
	gen     int
	cancel  context.CancelFunc
	closed  bool

	unsubscribe func()
	wg          sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]func(FeedState)
	nextSub int
}

// NewNotificationFeed creates a feed in mode off. It follows the session and
// clears itself when the user signs out.
func NewNotificationFeed(api NotificationAPI, session SessionManager, log *logger.Logger, cfg *NotificationFeedConfig) *NotificationFeed {
	if log == nil {
		log = logger.NewNop()
	}
	f := &NotificationFeed{
		api:          api,
		session:      session,
		log:          log.Named("feed"),
		pollInterval: 4 * time.Second,
		pageSize:     20,
		mode:         domain.FeedModeOff,
		subs:         make(map[int]func(FeedState)),
	}
	if cfg != nil {
		if cfg.PollInterval > 0 {
			f.pollInterval = cfg.PollInterval
		}
		if cfg.PageSize > 0 {
			f.pageSize = cfg.PageSize
		}
	}
	if current := session.Current(); current != nil {
		f.userID = current.Identity.ID
	}
	f.unsubscribe = session.Subscribe(f.onSession)
	return f
}

// State returns a snapshot of the feed
func (f *NotificationFeed) State() FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *NotificationFeed) snapshotLocked() FeedState {
	return FeedState{
		Mode:   f.mode,
		Items:  append([]domain.NotificationEvent(nil), f.items...),
		Unread: f.unread,
		Notice: f.notice,
		Err:    f.lastErr,
	}
}

// Subscribe registers fn for feed changes and returns its cancel func.
// fn must not call Close.
func (f *NotificationFeed) Subscribe(fn func(FeedState)) func() {
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

func (f *NotificationFeed) notify() {
	s := f.State()

	f.subMu.Lock()
	fns := make([]func(FeedState), 0, len(f.subs))
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

// teardownLocked stops the active subscription and invalidates its results
func (f *NotificationFeed) teardownLocked() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.gen++
	f.mode = domain.FeedModeOff
}

// EnablePolling cancels push and refreshes on a fixed interval
func (f *NotificationFeed) EnablePolling() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.teardownLocked()
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.mode = domain.FeedModePolling
	f.notice = ""
	gen := f.gen
	// counted under the lock so Close cannot miss the goroutine
	f.wg.Add(1)
	f.mu.Unlock()

	f.log.Debug("Polling enabled", zap.Duration("interval", f.pollInterval))
	f.notify()

	go func() {
		defer f.wg.Done()
		defer f.recoverPanic()

		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()
		for {
			_ = f.refresh(ctx, gen)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// DisablePolling switches polling off
func (f *NotificationFeed) DisablePolling() {
	f.switchOff(domain.FeedModePolling)
}

// EnablePush cancels polling and subscribes to server push for the signed-in
// user. When the connection cannot be opened the feed falls back to mode off
// with a notice and the error is returned.
func (f *NotificationFeed) EnablePush(ctx context.Context) error {
	current := f.session.Current()
	if current == nil || current.Identity.ID == "" {
		return domain.ErrNotAuthenticated
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.teardownLocked()
	streamCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.mode = domain.FeedModePushing
	f.notice = ""
	gen := f.gen
	f.mu.Unlock()
	f.notify()

	stop := context.AfterFunc(ctx, cancel)
	body, err := f.api.OpenNotificationStream(streamCtx, current.Identity.ID)
	stop()
	if err != nil {
		f.pushFailed(gen, err)
		return err
	}

	f.mu.Lock()
	if f.closed || gen != f.gen {
		// closed or switched while the connection was opening
		f.mu.Unlock()
		body.Close()
		return nil
	}
	f.wg.Add(1)
	f.mu.Unlock()

	f.log.Info("Push subscription opened")
	go func() {
		defer f.wg.Done()
		defer f.recoverPanic()
		defer body.Close()
		f.consume(streamCtx, gen, sse.NewReader(body))
	}()
	return nil
}

// DisablePush closes the push connection; the feed falls back to manual refresh
func (f *NotificationFeed) DisablePush() {
	f.switchOff(domain.FeedModePushing)
}

func (f *NotificationFeed) switchOff(mode domain.FeedMode) {
	f.mu.Lock()
	if f.mode != mode {
		f.mu.Unlock()
		return
	}
	f.teardownLocked()
	f.mu.Unlock()
	f.notify()
}

func (f *NotificationFeed) consume(ctx context.Context, gen int, reader *sse.Reader) {
	for {
		ev, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = errors.New("stream closed by server")
			}
			f.pushFailed(gen, err)
			return
		}
		if ev.Name() != NotificationStreamEvent {
			continue
		}

		var resp dto.NotificationResponse
		if err := json.Unmarshal(ev.Data, &resp); err != nil || resp.ID == "" {
			f.log.Debug("Skipping undecodable notification", zap.Error(err))
			continue
		}
		f.pushed(gen, resp.ToDomain())
	}
}

func (f *NotificationFeed) pushed(gen int, n domain.NotificationEvent) {
	f.mu.Lock()
	if f.closed || gen != f.gen {
		f.mu.Unlock()
		return
	}
	if f.upsertLocked(n) && !n.Read {
		f.unread++
	}
	f.mu.Unlock()
	f.notify()
}

func (f *NotificationFeed) pushFailed(gen int, err error) {
	f.mu.Lock()
	if f.closed || gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.teardownLocked()
	f.notice = PushUnavailableNotice
	f.lastErr = err
	f.mu.Unlock()

	f.log.Warn("Push subscription failed, falling back", zap.Error(err))
	f.notify()
}

// Refresh loads the first page and the unread count
func (f *NotificationFeed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	gen := f.gen
	f.mu.Unlock()
	return f.refresh(ctx, gen)
}

func (f *NotificationFeed) refresh(ctx context.Context, gen int) error {
	page, err := f.api.ListNotifications(ctx, 0, f.pageSize)
	if err != nil {
		if ctx.Err() == nil {
			f.surface(gen, fmt.Errorf("failed to load notifications: %w", err))
		}
		return err
	}

	count, countErr := f.api.UnreadCount(ctx)

	f.mu.Lock()
	if f.closed || gen != f.gen {
		f.mu.Unlock()
		return nil
	}
	for _, n := range page.Items() {
		f.upsertLocked(n)
	}
	if countErr != nil {
		f.log.Debug("Unread count unavailable, counting locally", zap.Error(countErr))
		count = f.localUnreadLocked()
	}
	f.unread = count
	f.lastErr = nil
	f.mu.Unlock()

	f.notify()
	return nil
}

// MarkRead marks one notification read locally, then on the server.
// A remote failure is returned but the local change stays.
func (f *NotificationFeed) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	for i := range f.items {
		if f.items[i].ID == id && !f.items[i].Read {
			f.items[i].Read = true
			if f.unread > 0 {
				f.unread--
			}
			break
		}
	}
	gen := f.gen
	f.mu.Unlock()
	f.notify()

	if err := f.api.MarkNotificationRead(ctx, id); err != nil {
		err = fmt.Errorf("failed to mark notification read: %w", err)
		f.surface(gen, err)
		return err
	}
	return nil
}

// MarkAllRead marks every notification read locally, then on the server
func (f *NotificationFeed) MarkAllRead(ctx context.Context) error {
	f.mu.Lock()
	for i := range f.items {
		f.items[i].Read = true
	}
	f.unread = 0
	gen := f.gen
	f.mu.Unlock()
	f.notify()

	if _, err := f.api.MarkAllNotificationsRead(ctx); err != nil {
		err = fmt.Errorf("failed to mark notifications read: %w", err)
		f.surface(gen, err)
		return err
	}
	return nil
}

// Close stops polling and push and detaches from the session. Nothing the
// feed started outlives Close.
func (f *NotificationFeed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.teardownLocked()
	f.closed = true
	f.mu.Unlock()

	if f.unsubscribe != nil {
		f.unsubscribe()
	}
	f.wg.Wait()
}

func (f *NotificationFeed) onSession(ev SessionEvent) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	userID := ""
	if ev.Session != nil {
		userID = ev.Session.Identity.ID
	}
	if userID == f.userID {
		f.mu.Unlock()
		return
	}

	f.userID = userID
	f.teardownLocked()
	f.items = nil
	f.unread = 0
	f.notice = ""
	f.lastErr = nil
	f.mu.Unlock()

	f.log.Debug("Session changed, feed cleared", zap.String("reason", string(ev.Kind)))
	f.notify()
}

func (f *NotificationFeed) surface(gen int, err error) {
	f.mu.Lock()
	if f.closed || gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.lastErr = err
	f.mu.Unlock()
	f.notify()
}

// upsertLocked merges n by id, keeping the list newest first.
// It reports whether n was new.
func (f *NotificationFeed) upsertLocked(n domain.NotificationEvent) bool {
	for i := range f.items {
		if f.items[i].ID == n.ID {
			f.items[i] = n
			return false
		}
	}
	f.items = append(f.items, n)
	sort.SliceStable(f.items, func(i, j int) bool {
		return f.items[i].CreatedAt.After(f.items[j].CreatedAt)
	})
	return true
}

func (f *NotificationFeed) localUnreadLocked() int {
	n := 0
	for _, item := range f.items {
		if !item.Read {
			n++
		}
	}
	return n
}

func (f *NotificationFeed) recoverPanic() {
	if r := recover(); r != nil {
		f.log.Error("Notification feed goroutine panicked", zap.Any("panic", r))
	}
}
