package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planeview/internal/model"
)

func TestListIssues_SendsParamsAndKey(t *testing.T) {
	var gotPath, gotKey, gotPriority string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotPriority = r.URL.Query().Get("priority")
		_, _ = io.WriteString(w, `[{"id":"i1","name":"One"},{"id":"i2","name":"Two"}]`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "secret")
	issues, err := c.ListIssues(context.Background(), "acme", "proj", map[string]string{"priority": "high", "state": ""})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "i2", issues[1].ID)
	assert.Equal(t, "/api/v1/workspaces/acme/projects/proj/issues/", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "high", gotPriority)
}

func TestListIssues_AcceptsPaginatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":[{"id":"i9","name":"Nine"}],"next_cursor":""}`)
	}))
	defer srv.Close()

	issues, err := New(srv.URL, "").ListIssues(context.Background(), "acme", "proj", nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "i9", issues[0].ID)
}

func TestCreateIssue_SendsPatchBody(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"srv-1","name":"Hello","priority":"high"}`)
	}))
	defer srv.Close()

	name := "Hello"
	prio := model.PriorityHigh
	got, err := New(srv.URL, "").CreateIssue(context.Background(), "acme", "proj", model.IssuePatch{Name: &name, Priority: &prio})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ID)
	assert.Equal(t, map[string]any{"name": "Hello", "priority": "high"}, body)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		target error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusBadRequest, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"nope"}`, tt.status)
			}))
			defer srv.Close()

			err := New(srv.URL, "").DeleteIssue(context.Background(), "acme", "proj", "i1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "err=%v", err)

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Contains(t, apiErr.Error(), "nope")
		})
	}
}

func TestChangeIssueModules_SendsEmptyLists(t *testing.T) {
	var body map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workspaces/acme/projects/proj/issues/i1/modules/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := New(srv.URL, "").ChangeIssueModules(context.Background(), "acme", "proj", "i1", []string{"m1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"modules": {"m1"}, "removed_modules": {}}, body)
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	c := New(srv.URL, "", WithRateLimit(1))
	_, err := c.ListStates(context.Background(), "acme", "proj")
	require.NoError(t, err)

	// The single token is spent; a cancelled context must fail fast instead of waiting a minute.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ListStates(ctx, "acme", "proj")
	require.Error(t, err)
}
