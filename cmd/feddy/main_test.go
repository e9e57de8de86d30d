package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/feddy/config"
)

// fakeAPI serves canned envelopes for every endpoint the CLI calls.
type fakeAPI struct {
	mu          sync.Mutex
	submissions []map[string]any
	votes       []map[string]any
	comments    []map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reply := func(data any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    data,
			"meta":    map[string]any{"timestamp": "2026-01-02T03:04:05Z"},
		})
	}
	decode := func() map[string]any {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		return body
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/feedback":
		reply(map[string]any{
			"feedbacks": []map[string]any{{
				"id":          "fb-1",
				"title":       "Dark mode",
				"description": "Please add dark mode",
				"type":        "feature",
				"priority":    "high",
				"status":      r.URL.Query().Get("status"),
				"voteCount":   3,
				"userVoted":   false,
				"createdAt":   "2026-01-02T03:04:05Z",
				"updatedAt":   "2026-01-02T03:04:05Z",
			}},
			"total":   1,
			"project": map[string]any{"id": "proj-1", "name": "Demo"},
		})
	case r.Method == http.MethodPost && r.URL.Path == "/api/feedback/submit":
		body := decode()
		f.mu.Lock()
		f.submissions = append(f.submissions, body)
		f.mu.Unlock()
		reply(map[string]any{"id": "fb-new", "status": "IN_REVIEW", "project": map[string]any{"id": "proj-1", "name": "Demo"}})
	case r.Method == http.MethodPost && r.URL.Path == "/api/feedback/vote":
		body := decode()
		f.mu.Lock()
		f.votes = append(f.votes, body)
		f.mu.Unlock()
		reply(map[string]any{"feedbackId": body["feedbackId"], "voteCount": 4})
	case r.Method == http.MethodGet && r.URL.Path == "/api/feedback/comment":
		reply(map[string]any{
			"feedbackId": r.URL.Query().Get("feedbackId"),
			"comments": []map[string]any{{
				"id":          "c-1",
				"content":     "Same here",
				"commentType": "USER",
				"author":      map[string]any{"userId": "u-2", "userName": "Ana"},
				"parentId":    nil,
				"replies": []map[string]any{{
					"id":          "c-2",
					"content":     "Planned for next release",
					"commentType": "ADMIN",
					"author":      map[string]any{"userId": "admin", "userName": nil},
					"parentId":    "c-1",
					"replies":     []any{},
					"createdAt":   "2026-01-02T03:04:05Z",
				}},
				"createdAt": "2026-01-02T03:04:05Z",
			}},
			"pagination": map[string]any{"limit": 50, "offset": 0, "count": 1},
		})
	case r.Method == http.MethodPost && r.URL.Path == "/api/feedback/comment":
		body := decode()
		f.mu.Lock()
		f.comments = append(f.comments, body)
		f.mu.Unlock()
		reply(map[string]any{"commentId": "c-new", "feedbackId": body["feedbackId"], "commentType": "USER"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// setup isolates the environment and writes a config pointing at a fake API.
func setup(t *testing.T) (string, *fakeAPI) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvBaseURL, "")
	t.Setenv(config.EnvDebug, "")
	t.Chdir(dir)

	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.APIKey = "fk_cli_test"
	cfg.BaseURL = srv.URL
	cfg.Identity.Path = filepath.Join(dir, "identity.yaml")
	path := filepath.Join(dir, "feddy.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	return path, api
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "feddy version "+Version)
}

func TestList(t *testing.T) {
	path, _ := setup(t)

	out, err := run(t, "-c", path, "list", "--status", "planned")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "fb-1")
	assert.Contains(t, out, "Dark mode")
}

func TestList_JSON(t *testing.T) {
	path, _ := setup(t)

	out, err := run(t, "-c", path, "list", "--json")
	require.NoError(t, err)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "IN_REVIEW", items[0]["status"])
}

func TestList_BadStatus(t *testing.T) {
	path, _ := setup(t)

	_, err := run(t, "-c", path, "list", "--status", "archived")
	assert.Error(t, err)
}

func TestSubmit(t *testing.T) {
	path, api := setup(t)

	out, err := run(t, "-c", path, "submit", "--title", " Crash on launch ", "--description", "It crashes", "--type", "bug")
	require.NoError(t, err)
	assert.Contains(t, out, "Submitted fb-new")

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.submissions, 1)
	assert.Equal(t, "Crash on launch", api.submissions[0]["title"])
	assert.Equal(t, "BUG", api.submissions[0]["type"])
}

func TestSubmit_MissingTitle(t *testing.T) {
	path, api := setup(t)

	_, err := run(t, "-c", path, "submit", "--description", "no title")
	assert.Error(t, err)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Empty(t, api.submissions)
}

func TestVote(t *testing.T) {
	path, api := setup(t)

	out, err := run(t, "-c", path, "vote", "fb-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Voted for fb-1 (4 votes)")

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.votes, 1)
	assert.NotEmpty(t, api.votes[0]["userId"])
}

func TestComments(t *testing.T) {
	path, _ := setup(t)

	out, err := run(t, "-c", path, "comments", "fb-1")
	require.NoError(t, err)
	assert.Contains(t, out, "[c-1] Ana (user): Same here")
	assert.Contains(t, out, "    [c-2] admin (admin): Planned for next release")
}

func TestComment(t *testing.T) {
	path, api := setup(t)

	out, err := run(t, "-c", path, "comment", "fb-1", "me", "too", "--parent", "c-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Posted comment c-new on fb-1")

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.comments, 1)
	assert.Equal(t, "me too", api.comments[0]["content"])
	assert.Equal(t, "c-1", api.comments[0]["parentId"])
}

func TestUser_SetShowReset(t *testing.T) {
	path, _ := setup(t)

	out, err := run(t, "-c", path, "user", "set", "--id", "user-42", "--name", "Ana")
	require.NoError(t, err)
	assert.Contains(t, out, "user-42")

	out, err = run(t, "-c", path, "user", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "User id:  user-42")
	assert.Contains(t, out, "Name:     Ana")

	out, err = run(t, "-c", path, "user", "reset")
	require.NoError(t, err)
	assert.NotContains(t, out, "user-42")
	assert.NotContains(t, out, "Ana")
}

func TestUser_SetRequiresAField(t *testing.T) {
	path, _ := setup(t)

	_, err := run(t, "-c", path, "user", "set")
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	path, _ := setup(t)
	target := filepath.Join(filepath.Dir(path), "written.yaml")

	out, err := run(t, "-c", target, "init", "--api-key", "fk_new", "--identity-backend", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+target)
	assert.Contains(t, out, "User id: ")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var written config.Config
	require.NoError(t, yaml.Unmarshal(data, &written))
	assert.Equal(t, "fk_new", written.APIKey)
	assert.Equal(t, "memory", written.Identity.Backend)

	_, err = run(t, "-c", target, "init", "--api-key", "fk_other")
	assert.Error(t, err, "existing file needs --force")

	_, err = run(t, "-c", target, "init", "--api-key", "fk_other", "--force", "--identity-backend", "memory")
	require.NoError(t, err)
}

func TestInit_UserConfig(t *testing.T) {
	setup(t)

	_, err := run(t, "init", "--api-key", "fk_home", "--identity-backend", "memory")
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(home, config.UserConfigDir, config.UserConfigFile))
	assert.NoError(t, err)

	_, err = run(t, "init", "--api-key", "fk_home")
	assert.Error(t, err)
}
