package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FeedbackStatus is the workflow state of a feedback item and the cache partition key.
type FeedbackStatus string

const (
	StatusInReview   FeedbackStatus = "IN_REVIEW"
	StatusPlanned    FeedbackStatus = "PLANNED"
	StatusInProgress FeedbackStatus = "IN_PROGRESS"
	StatusCompleted  FeedbackStatus = "COMPLETED"
)

// Statuses lists every status in display order.
var Statuses = []FeedbackStatus{StatusInReview, StatusPlanned, StatusInProgress, StatusCompleted}

// ParseStatus canonicalises s ("in_review", "IN_REVIEW", "in-review") to a FeedbackStatus.
func ParseStatus(s string) (FeedbackStatus, error) {
	candidate := FeedbackStatus(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	for _, st := range Statuses {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown feedback status %q", s)
}

// Valid reports whether s is one of the four workflow states.
func (s FeedbackStatus) Valid() bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// UnmarshalJSON rejects statuses outside the workflow domain.
func (s *FeedbackStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// FeedbackType classifies a feedback item. Listed items carry it lower-case;
// submissions send a free-form upper-case type such as "BUG".
type FeedbackType string

const (
	TypeBug         FeedbackType = "bug"
	TypeFeature     FeedbackType = "feature"
	TypeImprovement FeedbackType = "improvement"
	TypeQuestion    FeedbackType = "question"
)

// Valid reports whether t is one of the four item types.
func (t FeedbackType) Valid() bool {
	switch t {
	case TypeBug, TypeFeature, TypeImprovement, TypeQuestion:
		return true
	}
	return false
}

// UnmarshalJSON lower-cases the wire value and rejects unknown types.
func (t *FeedbackType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := FeedbackType(strings.ToLower(strings.TrimSpace(raw)))
	if !parsed.Valid() {
		return fmt.Errorf("unknown feedback type %q", raw)
	}
	*t = parsed
	return nil
}

// FeedbackPriority ranks a feedback item.
type FeedbackPriority string

const (
	PriorityLow      FeedbackPriority = "low"
	PriorityMedium   FeedbackPriority = "medium"
	PriorityHigh     FeedbackPriority = "high"
	PriorityCritical FeedbackPriority = "critical"
)

// Valid reports whether p is one of the four priorities.
func (p FeedbackPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// UnmarshalJSON lower-cases the wire value and rejects unknown priorities.
func (p *FeedbackPriority) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := FeedbackPriority(strings.ToLower(strings.TrimSpace(raw)))
	if !parsed.Valid() {
		return fmt.Errorf("unknown feedback priority %q", raw)
	}
	*p = parsed
	return nil
}

// FeedbackItem is one entry of a feedback list.
type FeedbackItem struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Type        FeedbackType     `json:"type"`
	Priority    FeedbackPriority `json:"priority"`
	Status      FeedbackStatus   `json:"status"`
	VoteCount   int              `json:"voteCount"`
	UserVoted   bool             `json:"userVoted"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// UnmarshalJSON enforces the item invariants at the decode boundary.
func (f *FeedbackItem) UnmarshalJSON(data []byte) error {
	type plain FeedbackItem
	var item plain
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	if item.ID == "" {
		return fmt.Errorf("feedback item: missing id")
	}
	if item.Status == "" {
		return fmt.Errorf("feedback item %s: missing status", item.ID)
	}
	if item.Type == "" {
		return fmt.Errorf("feedback item %s: missing type", item.ID)
	}
	if item.Priority == "" {
		return fmt.Errorf("feedback item %s: missing priority", item.ID)
	}
	if item.VoteCount < 0 {
		return fmt.Errorf("feedback item %s: negative vote count %d", item.ID, item.VoteCount)
	}
	*f = FeedbackItem(item)
	return nil
}

// ProjectInfo identifies the project an API key belongs to.
type ProjectInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FeedbackList is the payload of GET /api/feedback.
type FeedbackList struct {
	Feedbacks []FeedbackItem `json:"feedbacks"`
	Total     int            `json:"total"`
	Project   ProjectInfo    `json:"project"`
}

// ListOptions filters GET /api/feedback. Empty fields are not sent.
type ListOptions struct {
	Status FeedbackStatus
	UserID string
}

// FeedbackMetadata describes the submitting client.
type FeedbackMetadata struct {
	UserID     string  `json:"userId"`
	Platform   string  `json:"platform"`
	AppVersion *string `json:"appVersion"`
	SDKVersion *string `json:"sdkVersion"`
}

// FeedbackSubmission is the body of POST /api/feedback/submit.
// Optional fields are pointers so an unset field is sent as null.
type FeedbackSubmission struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Type        string           `json:"type"`
	Priority    *string          `json:"priority"`
	UserEmail   *string          `json:"userEmail"`
	UserName    *string          `json:"userName"`
	UserAgent   *string          `json:"userAgent"`
	DeviceInfo  *string          `json:"deviceInfo"`
	Screenshot  *string          `json:"screenshot"`
	Logs        *string          `json:"logs"`
	Metadata    FeedbackMetadata `json:"metadata"`
}

// SubmissionResult is returned by a successful submission.
type SubmissionResult struct {
	ID      string      `json:"id"`
	Status  string      `json:"status"`
	Project ProjectInfo `json:"project"`
}

// VoteRequest is the body of POST /api/feedback/vote.
type VoteRequest struct {
	FeedbackID string  `json:"feedbackId"`
	UserID     string  `json:"userId"`
	UserName   *string `json:"userName"`
	UserEmail  *string `json:"userEmail"`
}

// VoteResult carries the authoritative vote count after a vote.
type VoteResult struct {
	FeedbackID string `json:"feedbackId"`
	VoteCount  int    `json:"voteCount"`
}

// CommentType identifies who wrote a comment.
type CommentType string

const (
	CommentTypeAdmin  CommentType = "ADMIN"
	CommentTypeAuthor CommentType = "AUTHOR"
	CommentTypeUser   CommentType = "USER"
)

// CommentAuthor is the author reference embedded in a comment.
type CommentAuthor struct {
	UserID   string  `json:"userId"`
	UserName *string `json:"userName"`
}

// CommentItem is a comment with at most one level of replies.
type CommentItem struct {
	ID          string        `json:"id"`
	Content     string        `json:"content"`
	CommentType CommentType   `json:"commentType"`
	Author      CommentAuthor `json:"author"`
	ParentID    *string       `json:"parentId"`
	Replies     []CommentItem `json:"replies"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// CommentPagination echoes the page that was served.
type CommentPagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// CommentList is the payload of GET /api/feedback/comment.
type CommentList struct {
	Comments   []CommentItem     `json:"comments"`
	FeedbackID string            `json:"feedbackId"`
	Pagination CommentPagination `json:"pagination"`
}

// CommentPage selects a page of comments. Nil fields are not sent.
type CommentPage struct {
	Limit  *int
	Offset *int
}

// CommentRequest is the body of POST /api/feedback/comment.
type CommentRequest struct {
	FeedbackID string  `json:"feedbackId"`
	UserID     string  `json:"userId"`
	UserName   *string `json:"userName"`
	UserEmail  *string `json:"userEmail"`
	Content    string  `json:"content"`
	ParentID   *string `json:"parentId"`
}

// CommentResult is returned by a successful comment post.
type CommentResult struct {
	CommentID   string      `json:"commentId"`
	FeedbackID  string      `json:"feedbackId"`
	CommentType CommentType `json:"commentType"`
}

// Meta is the envelope metadata every response carries.
type Meta struct {
	Timestamp string `json:"timestamp"`
}

// envelope is the raw response framing; Data stays undecoded until the
// status has been classified.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
	Meta    Meta            `json:"meta"`
}

// hasData reports whether the envelope carries a non-null payload.
func (e *envelope) hasData() bool {
	trimmed := strings.TrimSpace(string(e.Data))
	return trimmed != "" && trimmed != "null"
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int returns a pointer to n.
func Int(n int) *int {
	return &n
}
