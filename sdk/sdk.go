// Package sdk is the host-facing entry point. It ties the transport client,
// the per-filter feedback cache, the identity store and a comment page cache
// together and implements the submit, vote and comment flows.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/c360studio/feddy/api"
	"github.com/c360studio/feddy/config"
	"github.com/c360studio/feddy/enrich"
	"github.com/c360studio/feddy/feedcache"
	"github.com/c360studio/feddy/identity"
)

const (
	// DefaultCommentLimit is the page size used when none is given.
	DefaultCommentLimit = 50

	// MaxCommentLength is the longest accepted comment, in characters.
	MaxCommentLength = 1000

	// DefaultFeedbackType is used for submissions without a type.
	DefaultFeedbackType = "BUG"
)

// SDK is safe for concurrent use.
type SDK struct {
	identity *identity.Store
	board    *feedcache.Coordinator
	comments *cache.Cache
	logger   *slog.Logger

	httpClient *http.Client
	metrics    *api.Metrics
	changeHook func(feedcache.View)

	mu         sync.RWMutex
	client     *api.Client
	cfg        config.Config
	commentTTL time.Duration
}

// Option configures an SDK.
type Option func(*SDK)

// WithLogger sets the logger used by the SDK and everything it builds.
func WithLogger(l *slog.Logger) Option {
	return func(s *SDK) {
		s.logger = l
	}
}

// WithHTTPClient sets the HTTP client passed to the transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *SDK) {
		s.httpClient = c
	}
}

// WithMetrics records request metrics on every transport client the SDK builds.
func WithMetrics(m *api.Metrics) Option {
	return func(s *SDK) {
		s.metrics = m
	}
}

// WithChangeHook forwards feedback cache snapshots to fn.
func WithChangeHook(fn func(feedcache.View)) Option {
	return func(s *SDK) {
		s.changeHook = fn
	}
}

// New creates an unconfigured SDK over an identity store.
func New(store *identity.Store, opts ...Option) *SDK {
	s := &SDK{
		identity:   store,
		logger:     slog.Default(),
		commentTTL: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.comments = cache.New(s.commentTTL, 5*time.Minute)

	boardOpts := []feedcache.Option{feedcache.WithLogger(s.logger)}
	if s.changeHook != nil {
		boardOpts = append(boardOpts, feedcache.WithChangeHook(s.changeHook))
	}
	s.board = feedcache.New(s, boardOpts...)

	return s
}

// Configure validates cfg, persists the API key and debug flag, and builds a
// new transport client. Calling it again swaps the client; cached feedback
// and comments are kept.
func (s *SDK) Configure(ctx context.Context, cfg config.Config) (identity.State, error) {
	full := config.DefaultConfig()
	full.Merge(&cfg)
	full.Debug = cfg.Debug
	full.APIKey = strings.TrimSpace(full.APIKey)

	if full.APIKey == "" {
		return identity.State{}, identity.ErrEmptyAPIKey
	}
	if err := full.Validate(); err != nil {
		return identity.State{}, fmt.Errorf("invalid configuration: %w", err)
	}

	state, err := s.identity.Configure(ctx, full.APIKey, full.Debug)
	if err != nil {
		return identity.State{}, err
	}

	opts := []api.ClientOption{
		api.WithLogger(s.logger),
		api.WithTimeout(full.Timeout),
	}
	if s.httpClient != nil {
		opts = append(opts, api.WithHTTPClient(s.httpClient))
	}
	if s.metrics != nil {
		opts = append(opts, api.WithMetrics(s.metrics))
	}
	client := api.NewClient(api.ClientConfig{APIKey: full.APIKey, BaseURL: full.BaseURL}, opts...)

	s.mu.Lock()
	reconfigured := s.client != nil
	s.client = client
	s.cfg = *full
	s.commentTTL = full.CommentCacheTTL
	s.mu.Unlock()

	s.logger.Debug("SDK configured",
		"base_url", client.BaseURL(),
		"reconfigured", reconfigured)

	state.BaseURL = client.BaseURL()
	return state, nil
}

// Configured reports whether Configure has succeeded.
func (s *SDK) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Config returns the active configuration.
func (s *SDK) Config() (config.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return config.Config{}, ErrNotConfigured
	}
	return s.cfg, nil
}

func (s *SDK) apiClient() (*api.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	return s.client, nil
}

// Board exposes the feedback cache for presentation code.
func (s *SDK) Board() *feedcache.Coordinator {
	return s.board
}

// Feedbacks lists feedback. UserID defaults to the current user so the
// server can report userVoted for this viewer.
func (s *SDK) Feedbacks(ctx context.Context, opts api.ListOptions) (*api.FeedbackList, error) {
	client, err := s.apiClient()
	if err != nil {
		return nil, err
	}
	if opts.UserID == "" {
		user, err := s.identity.User(ctx)
		if err != nil {
			return nil, err
		}
		opts.UserID = user.ID
	}
	return client.ListFeedbacks(ctx, opts)
}

// FetchFeedbacks implements feedcache.Fetcher.
func (s *SDK) FetchFeedbacks(ctx context.Context, status api.FeedbackStatus) ([]api.FeedbackItem, error) {
	list, err := s.Feedbacks(ctx, api.ListOptions{Status: status})
	if err != nil {
		return nil, err
	}
	return list.Feedbacks, nil
}

// Submit sends new feedback. On success the IN_REVIEW filter and the
// selected filter are invalidated, since new items start in review.
func (s *SDK) Submit(ctx context.Context, p api.FeedbackSubmission) (*api.SubmissionResult, error) {
	client, err := s.apiClient()
	if err != nil {
		return nil, err
	}

	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	if p.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidSubmission)
	}
	if p.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidSubmission)
	}
	if p.Type == "" {
		p.Type = DefaultFeedbackType
	}
	if p.Metadata.Platform == "" {
		p.Metadata.Platform = platform()
	}

	user, err := s.identity.User(ctx)
	if err != nil {
		return nil, err
	}
	p = enrich.Submission(p, user, identity.SDKVersion)

	result, err := client.SubmitFeedback(ctx, p)
	if err != nil {
		return nil, err
	}

	s.board.Invalidate(api.StatusInReview, s.board.Selected())
	s.logger.Debug("Feedback submitted", "feedback_id", result.ID)
	return result, nil
}

// Vote votes for feedbackID as the current user.
//
// The selected filter is patched optimistically before the request and
// refreshed afterwards whether or not the vote succeeded, so a failed vote
// is rolled back by authoritative data. A refresh failure is logged; the
// vote error is returned.
func (s *SDK) Vote(ctx context.Context, feedbackID string) (*api.VoteResult, error) {
	client, err := s.apiClient()
	if err != nil {
		return nil, err
	}
	if feedbackID == "" {
		return nil, ErrMissingFeedbackID
	}

	user, err := s.identity.User(ctx)
	if err != nil {
		return nil, err
	}
	req := enrich.Vote(api.VoteRequest{FeedbackID: feedbackID}, user)
	if req.UserID == "" {
		return nil, ErrMissingUserID
	}

	s.board.ApplyOptimisticVote(feedbackID)

	result, voteErr := client.Vote(ctx, req)

	selected := s.board.Selected()
	if err := s.board.Refresh(ctx, selected); err != nil {
		s.logger.Warn("Refresh after vote failed", "filter", selected, "error", err)
	}

	if voteErr != nil {
		return nil, voteErr
	}
	return result, nil
}

// Comments returns a page of comments for feedbackID. Pages are cached for
// the configured comment TTL.
func (s *SDK) Comments(ctx context.Context, feedbackID string, page api.CommentPage) (*api.CommentList, error) {
	client, err := s.apiClient()
	if err != nil {
		return nil, err
	}
	if feedbackID == "" {
		return nil, ErrMissingFeedbackID
	}

	if page.Limit == nil {
		page.Limit = api.Int(DefaultCommentLimit)
	}
	if page.Offset == nil {
		page.Offset = api.Int(0)
	}

	key := commentKey(feedbackID, *page.Limit, *page.Offset)
	if cached, ok := s.comments.Get(key); ok {
		list := cloneCommentList(cached.(api.CommentList))
		return &list, nil
	}

	list, err := client.ListComments(ctx, feedbackID, page)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	ttl := s.commentTTL
	s.mu.RUnlock()
	s.comments.Set(key, cloneCommentList(*list), ttl)

	return list, nil
}

// AddComment posts a comment (or a reply when parentID is set) as the
// current user and drops the cached pages of that feedback item.
func (s *SDK) AddComment(ctx context.Context, feedbackID, content, parentID string) (*api.CommentResult, error) {
	client, err := s.apiClient()
	if err != nil {
		return nil, err
	}
	if feedbackID == "" {
		return nil, ErrMissingFeedbackID
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyComment
	}
	if n := len([]rune(content)); n > MaxCommentLength {
		return nil, fmt.Errorf("%w: %d characters over the limit", ErrCommentTooLong, n-MaxCommentLength)
	}

	user, err := s.identity.User(ctx)
	if err != nil {
		return nil, err
	}
	req := enrich.Comment(api.CommentRequest{
		FeedbackID: feedbackID,
		Content:    content,
		ParentID:   api.String(strings.TrimSpace(parentID)),
	}, user)
	if req.UserID == "" {
		return nil, ErrMissingUserID
	}

	result, err := client.AddComment(ctx, req)
	if err != nil {
		return nil, err
	}

	s.flushComments(feedbackID)
	return result, nil
}

// User returns the current user.
func (s *SDK) User(ctx context.Context) (identity.User, error) {
	return s.identity.User(ctx)
}

// State returns the identity state, with the base URL of the active client.
func (s *SDK) State(ctx context.Context) (identity.State, error) {
	state, err := s.identity.State(ctx)
	if err != nil {
		return identity.State{}, err
	}
	if client, err := s.apiClient(); err == nil {
		state.BaseURL = client.BaseURL()
	}
	return state, nil
}

// HasPersistentUserData reports whether a user id or profile is stored.
func (s *SDK) HasPersistentUserData(ctx context.Context) (bool, error) {
	return s.identity.HasPersistentUserData(ctx)
}

// UpdateUser changes the user profile. Changing the user id invalidates every
// filter because userVoted is per viewer.
func (s *SDK) UpdateUser(ctx context.Context, update identity.UserUpdate) (identity.User, error) {
	user, err := s.identity.UpdateUser(ctx, update)
	if err != nil {
		return identity.User{}, err
	}
	if update.ID != nil {
		s.board.InvalidateAll()
	}
	return user, nil
}

// ResetUser clears the profile, assigns a new user id and drops every cache
// entry that depended on the previous viewer.
func (s *SDK) ResetUser(ctx context.Context) (identity.User, error) {
	user, err := s.identity.Reset(ctx)
	if err != nil {
		return identity.User{}, err
	}
	s.board.InvalidateAll()
	s.comments.Flush()
	return user, nil
}

// WatchConfig reconfigures the SDK whenever the YAML file at path changes.
// It blocks until ctx is done. Invalid edits are logged and ignored.
func (s *SDK) WatchConfig(ctx context.Context, path string) error {
	w, err := config.NewWatcher(config.WatcherConfig{Path: path, Logger: s.logger})
	if err != nil {
		return err
	}
	defer w.Stop()

	if err := w.Start(ctx); err != nil {
		return err
	}

	for change := range w.Changes() {
		if change.Err != nil {
			s.logger.Warn("Ignoring invalid config change", "path", path, "error", change.Err)
			continue
		}
		if _, err := s.Configure(ctx, *change.Config); err != nil {
			s.logger.Warn("Reconfigure failed", "path", path, "error", err)
			continue
		}
		s.logger.Info("Configuration reloaded", "path", path)
	}

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *SDK) flushComments(feedbackID string) {
	prefix := feedbackID + ":"
	for key := range s.comments.Items() {
		if strings.HasPrefix(key, prefix) {
			s.comments.Delete(key)
		}
	}
}

// cloneCommentList copies list down to the replies so callers cannot reach
// the cached page.
func cloneCommentList(list api.CommentList) api.CommentList {
	list.Comments = cloneComments(list.Comments)
	return list
}

func cloneComments(comments []api.CommentItem) []api.CommentItem {
	if comments == nil {
		return nil
	}
	out := make([]api.CommentItem, len(comments))
	for i, c := range comments {
		if c.Author.UserName != nil {
			name := *c.Author.UserName
			c.Author.UserName = &name
		}
		if c.ParentID != nil {
			parent := *c.ParentID
			c.ParentID = &parent
		}
		c.Replies = cloneComments(c.Replies)
		out[i] = c
	}
	return out
}

func commentKey(feedbackID string, limit, offset int) string {
	return fmt.Sprintf("%s:%d:%d", feedbackID, limit, offset)
}

// platform describes the host as "<OS> <arch>".
func platform() string {
	return strings.ToUpper(runtime.GOOS) + " " + runtime.GOARCH
}
