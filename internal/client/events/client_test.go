package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/calendar", r.URL.Path)
		w.Write([]byte(`{"data":[
			{"_id":"E1","name":"standup","eventDate":"2026-03-10","startTime":"10:00","created_by":"EMP1"},
			{"id":"E2","title":"retro","date":"2026-03-10","start_time":"16:00","creator_id":"EMP2","attendees":["EMP1"]}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/api/")

	got, err := c.GetEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "E1", got[0].ID)
	assert.Equal(t, "standup", got[0].Title)
	assert.Equal(t, "10:00", got[0].StartTime)
	assert.Equal(t, []string{"EMP1"}, got[1].Attendees)
}

func TestGetEvents_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	_, err := c.GetEvents(context.Background())
	assert.Error(t, err)
}

func TestGetEvents_UnknownEnvelopeIsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"message":"nothing here"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	got, err := c.GetEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
