package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/feddy/api"
	"github.com/c360studio/feddy/identity"
)

var ada = identity.User{ID: "user-1", Email: "ada@example.com", Name: "Ada"}

func TestSubmission_FillsUnsetFields(t *testing.T) {
	p := api.FeedbackSubmission{Title: "Crash on launch", Description: "App crashes immediately", Type: "bug"}

	got := Submission(p, ada, "1.0.0")

	assert.Equal(t, "user-1", got.Metadata.UserID)
	require.NotNil(t, got.UserName)
	assert.Equal(t, "Ada", *got.UserName)
	require.NotNil(t, got.UserEmail)
	assert.Equal(t, "ada@example.com", *got.UserEmail)
	require.NotNil(t, got.Metadata.SDKVersion)
	assert.Equal(t, "1.0.0", *got.Metadata.SDKVersion)

	// The input is not modified.
	assert.Empty(t, p.Metadata.UserID)
	assert.Nil(t, p.UserName)
}

func TestSubmission_KeepsExplicitValues(t *testing.T) {
	p := api.FeedbackSubmission{
		UserName:  api.String("Grace"),
		UserEmail: api.String("grace@example.com"),
		Metadata: api.FeedbackMetadata{
			UserID:     "explicit",
			SDKVersion: api.String("2.0.0"),
		},
	}

	got := Submission(p, ada, "1.0.0")

	assert.Equal(t, "explicit", got.Metadata.UserID)
	assert.Equal(t, "Grace", *got.UserName)
	assert.Equal(t, "grace@example.com", *got.UserEmail)
	assert.Equal(t, "2.0.0", *got.Metadata.SDKVersion)
}

func TestSubmission_EmptySDKVersionIsFilled(t *testing.T) {
	p := api.FeedbackSubmission{Metadata: api.FeedbackMetadata{SDKVersion: new(string)}}

	got := Submission(p, ada, "1.0.0")
	assert.Equal(t, "1.0.0", *got.Metadata.SDKVersion)
}

func TestSubmission_Anonymous(t *testing.T) {
	got := Submission(api.FeedbackSubmission{}, identity.User{}, "1.0.0")

	assert.Equal(t, AnonymousUserID, got.Metadata.UserID)
	assert.Nil(t, got.UserName, "absent profile fields stay null")
	assert.Nil(t, got.UserEmail)
}

func TestSubmission_Idempotent(t *testing.T) {
	inputs := []api.FeedbackSubmission{
		{},
		{UserName: api.String("Grace")},
		{Metadata: api.FeedbackMetadata{UserID: "x", SDKVersion: new(string)}},
	}
	users := []identity.User{ada, {}, {ID: "only-id"}}

	for _, p := range inputs {
		for _, u := range users {
			once := Submission(p, u, "1.0.0")
			twice := Submission(once, u, "1.0.0")
			assert.Equal(t, once, twice)
		}
	}
}

func TestVote(t *testing.T) {
	got := Vote(api.VoteRequest{FeedbackID: "fb-1"}, ada)
	assert.Equal(t, api.VoteRequest{
		FeedbackID: "fb-1",
		UserID:     "user-1",
		UserName:   api.String("Ada"),
		UserEmail:  api.String("ada@example.com"),
	}, got)

	// No anonymous fallback for votes.
	got = Vote(api.VoteRequest{FeedbackID: "fb-1"}, identity.User{})
	assert.Empty(t, got.UserID)

	explicit := api.VoteRequest{FeedbackID: "fb-1", UserID: "other", UserName: api.String("Bob")}
	got = Vote(explicit, ada)
	assert.Equal(t, "other", got.UserID)
	assert.Equal(t, "Bob", *got.UserName)
	assert.Equal(t, got, Vote(got, ada))
}

func TestComment(t *testing.T) {
	got := Comment(api.CommentRequest{FeedbackID: "fb-1", Content: "Same here"}, ada)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "Ada", *got.UserName)
	assert.Equal(t, "ada@example.com", *got.UserEmail)
	assert.Equal(t, "Same here", got.Content)
	assert.Equal(t, got, Comment(got, ada))

	got = Comment(api.CommentRequest{FeedbackID: "fb-1"}, identity.User{})
	assert.Empty(t, got.UserID)
}
