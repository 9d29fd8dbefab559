package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	config "postflow/configs"
	"postflow/internal/models"
	"postflow/internal/queue"
	"postflow/internal/repository"
	"postflow/internal/service"
)

type fakePostStore struct {
	mu sync.Mutex

	due        []*models.Post
	dueErr     error
	claimable  map[int64]bool
	markPosted map[int64]string
	postedErr  error

	listDueCalls int
	claimed      []int64
	failed       []failedMark
}

type failedMark struct {
	id          int64
	lastError   string
	retryCount  int
	nextRetryAt *time.Time
}

func newFakePostStore(due ...*models.Post) *fakePostStore {
	claimable := make(map[int64]bool)
	for _, p := range due {
		claimable[p.ID] = true
	}
	return &fakePostStore{due: due, claimable: claimable, markPosted: make(map[int64]string)}
}

func (f *fakePostStore) GetByID(_ context.Context, id int64) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.due {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePostStore) ListDue(_ context.Context, _ time.Time) ([]*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listDueCalls++
	return f.due, f.dueErr
}

func (f *fakePostStore) CountDue(_ context.Context, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.due), f.dueErr
}

func (f *fakePostStore) ClaimForProcessing(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = append(f.claimed, id)
	return f.claimable[id], nil
}

func (f *fakePostStore) MarkPosted(_ context.Context, id int64, tweetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postedErr != nil {
		return f.postedErr
	}
	f.markPosted[id] = tweetID
	return nil
}

func (f *fakePostStore) MarkFailed(_ context.Context, id int64, lastError string, retryCount int, nextRetryAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, failedMark{id: id, lastError: lastError, retryCount: retryCount, nextRetryAt: nextRetryAt})
	return nil
}

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[int64]*models.SocialAccount
	errFor   map[int64]error
	loads    []int64
}

func (f *fakeAccountStore) GetByID(_ context.Context, id int64) (*models.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, id)
	if err := f.errFor[id]; err != nil {
		return nil, err
	}
	return f.accounts[id], nil
}

func (f *fakeAccountStore) SetToken(_ context.Context, _ int64, _ string, _ *models.SocialAccount) error {
	return nil
}

func (f *fakeAccountStore) CountWithSigningKeys(_ context.Context) (int, error) {
	return 0, nil
}

type fakeMediaStore struct {
	counts map[int64]int
}

func (f *fakeMediaStore) ListByPostID(_ context.Context, _ int64) ([]*models.PostMedia, error) {
	return nil, nil
}

func (f *fakeMediaStore) CountByPostID(_ context.Context, postID int64) (int, error) {
	return f.counts[postID], nil
}

type fakeHistoryStore struct {
	mu      sync.Mutex
	entries []*models.PostingHistory
}

func (f *fakeHistoryStore) Create(_ context.Context, ph *models.PostingHistory) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, ph)
	return int64(len(f.entries)), nil
}

func (f *fakeHistoryStore) GetByUserID(_ context.Context, _ int64) ([]*models.PostingHistory, error) {
	return nil, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	tweetID map[int64]string
	errFor  map[int64]error
	handled []int64
}

func (f *fakePublisher) HandlePost(_ context.Context, post *models.Post, _ *models.SocialAccount) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, post.ID)
	if err := f.errFor[post.ID]; err != nil {
		return "", err
	}
	return f.tweetID[post.ID], nil
}

type fakeSettingsStore struct {
	settings map[int64]*models.NotificationSettings
}

func (f *fakeSettingsStore) GetByUserID(_ context.Context, userID int64) (*models.NotificationSettings, bool, error) {
	s, ok := f.settings[userID]
	return s, ok, nil
}

type captureEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.NotificationPayload
}

func (c *captureEnqueuer) EnqueueNotification(payload queue.NotificationPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func allSettings(userID int64, email string) *fakeSettingsStore {
	return &fakeSettingsStore{settings: map[int64]*models.NotificationSettings{
		userID: {UserID: userID, Enabled: true, Email: email, NotifyOnSuccess: true, NotifyOnFailure: true},
	}}
}

type testHarness struct {
	posts     *fakePostStore
	accounts  *fakeAccountStore
	history   *fakeHistoryStore
	publisher *fakePublisher
	enqueued  *captureEnqueuer
	sched     *Scheduler
}

func newTestHarness(posts *fakePostStore, accounts *fakeAccountStore, publisher *fakePublisher, settings repository.SettingsRepository) *testHarness {
	cfg := config.Config{RetryBaseDelay: time.Minute, MaxRetries: 3}
	history := &fakeHistoryStore{}
	enqueued := &captureEnqueuer{}
	dispatcher := queue.NewDispatcher(settings, enqueued)
	retries := service.NewRetryService(cfg, posts)

	sched := NewScheduler(cfg, posts, accounts, &fakeMediaStore{counts: map[int64]int{}},
		history, publisher, retries, dispatcher)
	sched.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	return &testHarness{
		posts: posts, accounts: accounts, history: history,
		publisher: publisher, enqueued: enqueued, sched: sched,
	}
}

func TestRunPublishesDuePost(t *testing.T) {
	t.Parallel()

	post := &models.Post{ID: 1, UserID: 100, AccountID: 10, Caption: "ship it", Status: models.PostStatusScheduled}
	posts := newFakePostStore(post)
	accounts := &fakeAccountStore{accounts: map[int64]*models.SocialAccount{
		10: {ID: 10, AccountUsername: "acme", AccountName: "Acme Inc"},
	}}
	publisher := &fakePublisher{tweetID: map[int64]string{1: "tw-123"}}

	h := newTestHarness(posts, accounts, publisher, allSettings(100, "ops@acme.test"))
	h.sched.Run()

	if got := posts.markPosted[1]; got != "tw-123" {
		t.Fatalf("MarkPosted tweet id = %q, want tw-123", got)
	}
	if len(posts.claimed) != 1 || posts.claimed[0] != 1 {
		t.Fatalf("claimed = %v, want [1]", posts.claimed)
	}
	if len(posts.failed) != 0 {
		t.Fatalf("no failure bookkeeping expected, got %v", posts.failed)
	}

	if len(h.history.entries) != 1 || h.history.entries[0].TweetID != "tw-123" {
		t.Fatalf("history = %+v, want one entry with the tweet id", h.history.entries)
	}

	if len(h.enqueued.payloads) != 1 {
		t.Fatalf("notifications = %d, want 1", len(h.enqueued.payloads))
	}
	payload := h.enqueued.payloads[0]
	if payload.Kind != queue.NotificationKindSuccess || payload.Success == nil {
		t.Fatalf("payload = %+v, want a success notification", payload)
	}
	if payload.Success.PostURL != "https://twitter.com/acme/status/tw-123" {
		t.Fatalf("PostURL = %q", payload.Success.PostURL)
	}
}

func TestRunFailureSchedulesRetryAndNotifies(t *testing.T) {
	t.Parallel()

	post := &models.Post{ID: 2, UserID: 100, AccountID: 10, Caption: "again", MaxRetries: 3}
	posts := newFakePostStore(post)
	accounts := &fakeAccountStore{accounts: map[int64]*models.SocialAccount{10: {ID: 10, AccountUsername: "acme"}}}
	publisher := &fakePublisher{errFor: map[int64]error{
		2: &service.PublishError{Category: service.CategoryDuplicateContent, Message: "Status is a duplicate.", StatusCode: 403},
	}}

	h := newTestHarness(posts, accounts, publisher, allSettings(100, "ops@acme.test"))
	h.sched.Run()

	if len(posts.markPosted) != 0 {
		t.Fatal("a failed post must not be marked posted")
	}
	if len(posts.failed) != 1 {
		t.Fatalf("MarkFailed calls = %d, want 1", len(posts.failed))
	}
	mark := posts.failed[0]
	if mark.retryCount != 1 {
		t.Fatalf("retryCount = %d, want 1", mark.retryCount)
	}
	want := time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)
	if mark.nextRetryAt == nil || !mark.nextRetryAt.Equal(want) {
		t.Fatalf("nextRetryAt = %v, want %v", mark.nextRetryAt, want)
	}
	if mark.lastError != "Status is a duplicate." {
		t.Fatalf("lastError = %q, want the classified message", mark.lastError)
	}

	if len(h.history.entries) != 1 || h.history.entries[0].ErrorMessage != "Status is a duplicate." {
		t.Fatalf("history = %+v, want one failed entry", h.history.entries)
	}

	if len(h.enqueued.payloads) != 1 {
		t.Fatalf("notifications = %d, want 1", len(h.enqueued.payloads))
	}
	payload := h.enqueued.payloads[0]
	if payload.Kind != queue.NotificationKindFailure || payload.Failure == nil {
		t.Fatalf("payload = %+v, want a failure notification", payload)
	}
	if payload.Failure.ErrorMessage != "Status is a duplicate." {
		t.Fatalf("ErrorMessage = %q", payload.Failure.ErrorMessage)
	}
}

func TestRunIsolatesAccountFailures(t *testing.T) {
	t.Parallel()

	posts := newFakePostStore(
		&models.Post{ID: 3, UserID: 100, AccountID: 10, Caption: "a"},
		&models.Post{ID: 4, UserID: 100, AccountID: 20, Caption: "b"},
	)
	accounts := &fakeAccountStore{
		accounts: map[int64]*models.SocialAccount{20: {ID: 20, AccountUsername: "other"}},
		errFor:   map[int64]error{10: errors.New("connection reset")},
	}
	publisher := &fakePublisher{tweetID: map[int64]string{4: "tw-4"}}

	h := newTestHarness(posts, accounts, publisher, &fakeSettingsStore{})
	h.sched.Run()

	if got := posts.markPosted[4]; got != "tw-4" {
		t.Fatalf("account 20's post should publish despite account 10 failing, got %q", got)
	}
	if _, ok := posts.markPosted[3]; ok {
		t.Fatal("account 10's post must not publish when its account cannot load")
	}
	if len(publisher.handled) != 1 || publisher.handled[0] != 4 {
		t.Fatalf("handled = %v, want only post 4", publisher.handled)
	}
}

func TestRunSkipsUnclaimablePosts(t *testing.T) {
	t.Parallel()

	post := &models.Post{ID: 5, UserID: 100, AccountID: 10}
	posts := newFakePostStore(post)
	posts.claimable[5] = false
	accounts := &fakeAccountStore{accounts: map[int64]*models.SocialAccount{10: {ID: 10}}}
	publisher := &fakePublisher{}

	h := newTestHarness(posts, accounts, publisher, &fakeSettingsStore{})
	h.sched.Run()

	if len(publisher.handled) != 0 {
		t.Fatalf("handled = %v, want none for an unclaimable post", publisher.handled)
	}
	if len(posts.markPosted) != 0 || len(posts.failed) != 0 {
		t.Fatal("no bookkeeping expected for an unclaimable post")
	}
}

func TestRunSkipsWhileTickInFlight(t *testing.T) {
	t.Parallel()

	posts := newFakePostStore(&models.Post{ID: 6, UserID: 100, AccountID: 10})
	accounts := &fakeAccountStore{accounts: map[int64]*models.SocialAccount{10: {ID: 10}}}
	h := newTestHarness(posts, accounts, &fakePublisher{}, &fakeSettingsStore{})

	h.sched.running.Store(true)
	h.sched.Run()

	if posts.listDueCalls != 0 {
		t.Fatalf("ListDue calls = %d, want 0 while a tick is in flight", posts.listDueCalls)
	}
	if !h.sched.running.Load() {
		t.Fatal("the skipped tick must not clear the in-flight flag")
	}
}

func TestRunToleratesSelectionFailure(t *testing.T) {
	t.Parallel()

	posts := newFakePostStore(&models.Post{ID: 7, UserID: 100, AccountID: 10})
	posts.dueErr = errors.New("connection refused")
	accounts := &fakeAccountStore{accounts: map[int64]*models.SocialAccount{10: {ID: 10}}}
	publisher := &fakePublisher{}

	h := newTestHarness(posts, accounts, publisher, &fakeSettingsStore{})
	h.sched.Run()

	if len(publisher.handled) != 0 {
		t.Fatal("nothing should publish when selection fails")
	}
	if h.sched.running.Load() {
		t.Fatal("the in-flight flag must clear after an abandoned tick")
	}

	// The next tick recovers.
	posts.dueErr = nil
	publisher.tweetID = map[int64]string{7: "tw-recovered"}
	h.sched.Run()
	if len(publisher.handled) != 1 {
		t.Fatalf("handled = %v, want the post on the recovered tick", publisher.handled)
	}
}
