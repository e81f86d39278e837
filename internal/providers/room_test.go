package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
)

func TestCreateRoomSendsAuthAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/rooms", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "session-abc", body["name"])

		json.NewEncoder(w).Encode(map[string]string{
			"room_id":   "rm-1",
			"room_name": "session-abc",
		})
	}))
	defer srv.Close()

	client, err := NewRoomClient(srv.URL, "api-key", 5*time.Second)
	require.NoError(t, err)

	room, err := client.CreateRoom(context.Background(), "session-abc")
	require.NoError(t, err)
	assert.Equal(t, "rm-1", room.RoomID)
	assert.Equal(t, "session-abc", room.RoomName)
}

func TestCreateRoomMapsFailureToProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewRoomClient(srv.URL, "api-key", 5*time.Second)
	require.NoError(t, err)

	_, err = client.CreateRoom(context.Background(), "session-abc")
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.Status)
	assert.Contains(t, pe.Error(), "quota exceeded")
}

func TestGetDownloadLinkTreats404AsNoLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewRoomClient(srv.URL, "api-key", 5*time.Second)
	require.NoError(t, err)

	url, err := client.GetDownloadLink(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestListRecordingsPassesSinceWindow(t *testing.T) {
	since := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, since.Format(time.RFC3339), r.URL.Query().Get("since"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"recordings": []map[string]string{
				{"id": "rec-1", "room_name": "session-abc", "status": "finished"},
			},
		})
	}))
	defer srv.Close()

	client, err := NewRoomClient(srv.URL, "api-key", 5*time.Second)
	require.NoError(t, err)

	recs, err := client.ListRecordings(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "rec-1", recs[0].ID)
}

func TestNewRoomClientRequiresCredentials(t *testing.T) {
	_, err := NewRoomClient("http://example.test", "", time.Second)
	require.ErrorIs(t, err, apperrors.ErrConfig)
}
