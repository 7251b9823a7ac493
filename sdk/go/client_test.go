package spmssdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveSendsExpectations(t *testing.T) {
	var got ActionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/projects/p1/documents/d1/actions", r.URL.Path)
		assert.Equal(t, "k1", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true, "document_id": "d1", "action": "approve",
			"previous_stage": 1, "new_stage": 2, "new_approval_status": "granted", "version": 4,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "p1")
	c.APIKey = "k1"
	res, err := c.Approve(context.Background(), Document{ID: "d1", Stage: 1, Version: 3})
	require.NoError(t, err)
	assert.Equal(t, "approve", got.Action)
	assert.Equal(t, 1, got.Stage)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 2, res.NewStage)
	assert.Equal(t, int64(4), res.Version)
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"missing_recipient","message":"no business area lead","details":{"error_kind":"missing_recipient"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "p1")
	c.BearerToken = "tok"
	_, err := c.SendBack(context.Background(), Document{ID: "d1", Stage: 2, Version: 1}, "<p>fix</p>")
	require.Error(t, err)
	assert.True(t, IsKind(err, "missing_recipient"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "no business area lead", apiErr.Message)
}

func TestEventsPageEncodesCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "42", r.URL.Query().Get("cursor"))
		_, _ = w.Write([]byte(`{"items":[{"id":41,"type":"document.approved"}],"next_cursor":"41"}`))
	}))
	defer srv.Close()

	page, err := New(srv.URL, "p1").EventsPage(context.Background(), 5, "42")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "document.approved", page.Items[0].Type)
	assert.Equal(t, "41", page.NextCursor)
}
