package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/c360studio/feddy/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
		"meta":    map[string]string{"timestamp": "2026-10-15T10:00:00Z"},
	}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *api.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return api.NewClient(api.ClientConfig{APIKey: "feddy_test_key", BaseURL: server.URL + "/"})
}

func TestClient_ListFeedbacks_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/feedback", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "feddy_test_key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "PLANNED", r.URL.Query().Get("status"))
		assert.Equal(t, "user-1", r.URL.Query().Get("userId"))

		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"feedbacks": []map[string]any{
				{
					"id": "fb-1", "title": "Dark mode", "description": "Please",
					"type": "feature", "priority": "medium", "status": "PLANNED",
					"voteCount": 3, "userVoted": false,
					"createdAt": "2026-10-01T12:00:00Z", "updatedAt": "2026-10-02T12:00:00Z",
				},
			},
			"total":   1,
			"project": map[string]string{"id": "p-1", "name": "Demo"},
		})
	})

	list, err := client.ListFeedbacks(context.Background(), api.ListOptions{
		Status: api.StatusPlanned,
		UserID: "user-1",
	})

	require.NoError(t, err)
	require.Len(t, list.Feedbacks, 1)
	assert.Equal(t, "fb-1", list.Feedbacks[0].ID)
	assert.Equal(t, api.StatusPlanned, list.Feedbacks[0].Status)
	assert.Equal(t, 3, list.Feedbacks[0].VoteCount)
	assert.Equal(t, api.TypeFeature, list.Feedbacks[0].Type)
	assert.Equal(t, "Demo", list.Project.Name)
}

func TestClient_OmitsEmptyQueryParameters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		writeEnvelope(t, w, http.StatusOK, map[string]any{"feedbacks": []any{}, "total": 0})
	})

	list, err := client.ListFeedbacks(context.Background(), api.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list.Feedbacks)
}

func TestClient_ListComments_Pagination(t *testing.T) {
	var gotQuery atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"feedbackId": "fb-1",
			"comments": []map[string]any{
				{
					"id": "c-1", "content": "Agreed", "commentType": "USER",
					"author":    map[string]any{"userId": "u-2", "userName": nil},
					"parentId":  nil,
					"createdAt": "2026-10-01T12:00:00Z",
					"replies": []map[string]any{
						{
							"id": "c-2", "content": "Thanks", "commentType": "ADMIN",
							"author":    map[string]any{"userId": "admin"},
							"parentId":  "c-1",
							"createdAt": "2026-10-01T13:00:00Z",
						},
					},
				},
			},
			"pagination": map[string]int{"limit": 50, "offset": 0, "count": 1},
		})
	})

	t.Run("limit and offset sent", func(t *testing.T) {
		list, err := client.ListComments(context.Background(), "fb-1", api.CommentPage{
			Limit:  api.Int(50),
			Offset: api.Int(0),
		})
		require.NoError(t, err)

		q := gotQuery.Load().(url.Values)
		assert.Equal(t, []string{"fb-1"}, q["feedbackId"])
		assert.Equal(t, []string{"50"}, q["limit"])
		assert.Equal(t, []string{"0"}, q["offset"])

		require.Len(t, list.Comments, 1)
		assert.Nil(t, list.Comments[0].ParentID)
		require.Len(t, list.Comments[0].Replies, 1)
		assert.Equal(t, api.CommentTypeAdmin, list.Comments[0].Replies[0].CommentType)
		require.NotNil(t, list.Comments[0].Replies[0].ParentID)
		assert.Equal(t, "c-1", *list.Comments[0].Replies[0].ParentID)
	})

	t.Run("nil page fields omitted", func(t *testing.T) {
		_, err := client.ListComments(context.Background(), "fb-1", api.CommentPage{})
		require.NoError(t, err)

		q := gotQuery.Load().(url.Values)
		assert.NotContains(t, q, "limit")
		assert.NotContains(t, q, "offset")
	})
}

func TestClient_SubmitFeedback_SendsNullForUnsetFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/feedback/submit", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Crash on launch", body["title"])
		assert.Contains(t, body, "userEmail")
		assert.Nil(t, body["userEmail"])

		writeEnvelope(t, w, http.StatusOK, map[string]any{
			"id": "fb-new", "status": "IN_REVIEW",
			"project": map[string]string{"id": "p-1", "name": "Demo"},
		})
	})

	result, err := client.SubmitFeedback(context.Background(), api.FeedbackSubmission{
		Title:       "Crash on launch",
		Description: "App crashes immediately",
		Type:        "BUG",
		Metadata:    api.FeedbackMetadata{UserID: "user-1", Platform: "LINUX"},
	})

	require.NoError(t, err)
	assert.Equal(t, "fb-new", result.ID)
}

func TestClient_VoteAndAddComment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/feedback/vote":
			var req api.VoteRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "fb-1", req.FeedbackID)
			writeEnvelope(t, w, http.StatusOK, map[string]any{"feedbackId": "fb-1", "voteCount": 4})
		case "/api/feedback/comment":
			assert.Equal(t, http.MethodPost, r.Method)
			writeEnvelope(t, w, http.StatusOK, map[string]any{
				"commentId": "c-9", "feedbackId": "fb-1", "commentType": "USER",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	vote, err := client.Vote(context.Background(), api.VoteRequest{FeedbackID: "fb-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 4, vote.VoteCount)

	comment, err := client.AddComment(context.Background(), api.CommentRequest{
		FeedbackID: "fb-1", UserID: "user-1", Content: "Me too",
	})
	require.NoError(t, err)
	assert.Equal(t, "c-9", comment.CommentID)
	assert.Equal(t, api.CommentTypeUser, comment.CommentType)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantType    api.ErrorType
		wantMessage string
	}{
		{
			name:     "401 is invalid api key",
			status:   http.StatusUnauthorized,
			body:     `{"success":false,"error":"bad key","meta":{"timestamp":"t"}}`,
			wantType: api.ErrInvalidAPIKey,
		},
		{
			name:     "401 with non-JSON body is a decoding failure",
			status:   http.StatusUnauthorized,
			body:     `<html>nope</html>`,
			wantType: api.ErrDecoding,
		},
		{
			name:     "429 is rate limited",
			status:   http.StatusTooManyRequests,
			body:     ``,
			wantType: api.ErrRateLimited,
		},
		{
			name:     "429 ignores envelope error",
			status:   http.StatusTooManyRequests,
			body:     `{"success":false,"error":"slow down","meta":{"timestamp":"t"}}`,
			wantType: api.ErrRateLimited,
		},
		{
			name:     "429 with non-JSON body is a decoding failure",
			status:   http.StatusTooManyRequests,
			body:     `<html>nope</html>`,
			wantType: api.ErrDecoding,
		},
		{
			name:        "500 carries envelope error",
			status:      http.StatusInternalServerError,
			body:        `{"success":false,"error":"database down","meta":{"timestamp":"t"}}`,
			wantType:    api.ErrServer,
			wantMessage: "database down",
		},
		{
			name:        "404 without body falls back to status",
			status:      http.StatusNotFound,
			body:        ``,
			wantType:    api.ErrServer,
			wantMessage: "HTTP 404",
		},
		{
			name:     "non-JSON error body is a decoding failure",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			wantType: api.ErrDecoding,
		},
		{
			name:     "200 with success false is no-data",
			status:   http.StatusOK,
			body:     `{"success":false,"error":"boom","meta":{"timestamp":"t"}}`,
			wantType: api.ErrNoData,
		},
		{
			name:     "200 with empty body is no-data",
			status:   http.StatusOK,
			body:     ``,
			wantType: api.ErrNoData,
		},
		{
			name:     "200 with null data is no-data",
			status:   http.StatusOK,
			body:     `{"success":true,"data":null,"meta":{"timestamp":"t"}}`,
			wantType: api.ErrNoData,
		},
		{
			name:     "200 with malformed JSON is decoding",
			status:   http.StatusOK,
			body:     `{"success":true,`,
			wantType: api.ErrDecoding,
		},
		{
			name:     "200 with invalid status in payload is decoding",
			status:   http.StatusOK,
			body:     `{"success":true,"data":{"feedbacks":[{"id":"x","status":"ARCHIVED","voteCount":1}]},"meta":{"timestamp":"t"}}`,
			wantType: api.ErrDecoding,
		},
		{
			name:     "200 with negative vote count is decoding",
			status:   http.StatusOK,
			body:     `{"success":true,"data":{"feedbacks":[{"id":"x","status":"PLANNED","voteCount":-1}]},"meta":{"timestamp":"t"}}`,
			wantType: api.ErrDecoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.ListFeedbacks(context.Background(), api.ListOptions{})
			require.Error(t, err)

			var apiErr *api.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantType, apiErr.Type)
			assert.Equal(t, tt.wantType, api.TypeOf(err))
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, apiErr.Message)
			}
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := api.NewClient(api.ClientConfig{APIKey: "k", BaseURL: baseURL})
	_, err := client.ListFeedbacks(context.Background(), api.ListOptions{})

	require.Error(t, err)
	assert.True(t, api.IsType(err, api.ErrNetwork))
	assert.True(t, api.IsTransient(err))
}

func TestClient_InvalidURL(t *testing.T) {
	var calls atomic.Int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, io.EOF
	})

	for _, baseURL := range []string{"not a url", "://missing-scheme", "/relative/only"} {
		client := api.NewClient(api.ClientConfig{APIKey: "k", BaseURL: baseURL},
			api.WithHTTPClient(&http.Client{Transport: transport}))

		_, err := client.ListFeedbacks(context.Background(), api.ListOptions{})
		assert.True(t, api.IsType(err, api.ErrInvalidURL), "base %q: got %v", baseURL, err)
	}
	assert.Equal(t, int32(0), calls.Load(), "no request should be sent for an invalid URL")
}

func TestClient_ResponseReadFailure(t *testing.T) {
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       io.NopCloser(failingReader{}),
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})

	client := api.NewClient(api.ClientConfig{APIKey: "k", BaseURL: "https://feddy.test"},
		api.WithHTTPClient(&http.Client{Transport: transport}))

	_, err := client.ListFeedbacks(context.Background(), api.ListOptions{})
	assert.True(t, api.IsType(err, api.ErrDecoding), "read failure outranks status: %v", err)
}

func TestClient_TrimsTrailingSlashOnce(t *testing.T) {
	client := api.NewClient(api.ClientConfig{APIKey: "k", BaseURL: "https://feddy.test/"})
	assert.Equal(t, "https://feddy.test", client.BaseURL())

	defaulted := api.NewClient(api.ClientConfig{APIKey: "k"})
	assert.Equal(t, api.DefaultBaseURL, defaulted.BaseURL())
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := api.NewMetrics(reg)
	require.NoError(t, err)

	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		writeEnvelope(t, w, http.StatusOK, map[string]any{"feedbackId": "fb-1", "voteCount": 1})
	}))
	defer server.Close()

	client := api.NewClient(api.ClientConfig{APIKey: "k", BaseURL: server.URL}, api.WithMetrics(metrics))

	_, err = client.Vote(context.Background(), api.VoteRequest{FeedbackID: "fb-1", UserID: "u"})
	require.NoError(t, err)

	status.Store(http.StatusTooManyRequests)
	_, err = client.Vote(context.Background(), api.VoteRequest{FeedbackID: "fb-1", UserID: "u"})
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "feddy_api_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome")

	count, err = testutil.GatherAndCount(reg, "feddy_api_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = api.NewMetrics(reg)
	assert.Error(t, err, "registering twice should fail")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
