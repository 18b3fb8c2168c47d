package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodwatch/internal/config"
)

func TestFCMSendMulticast(t *testing.T) {
	var gotAuth string
	var gotBody fcmRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": 1,
			"failure": 2,
			"results": []map[string]string{
				{"message_id": "m1"},
				{"error": "NotRegistered"},
				{"error": "Unavailable"},
			},
		})
	}))
	defer srv.Close()

	p := NewFCMProvider(config.FCMConfig{
		Endpoint:  srv.URL,
		ServerKey: "test-key",
		Timeout:   5 * time.Second,
	}, zerolog.Nop())

	results, err := p.SendMulticast(context.Background(), []string{"t1", "t2", "t3"}, Notification{
		Title: "flood warning",
		Body:  "level above threshold",
		Data:  map[string]string{"deviceId": "dev-1"},
		URL:   "/dashboard?deviceId=dev-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "key=test-key", gotAuth)
	assert.Equal(t, []string{"t1", "t2", "t3"}, gotBody.RegistrationIDs)
	assert.Equal(t, "flood warning", gotBody.Notification.Title)
	assert.Equal(t, "dev-1", gotBody.Data["deviceId"])
	assert.Equal(t, "/dashboard?deviceId=dev-1", gotBody.Data["url"])

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.False(t, results[0].Gone)
	assert.Error(t, results[1].Err)
	assert.True(t, results[1].Gone)
	assert.Error(t, results[2].Err)
	assert.False(t, results[2].Gone)
}

func TestFCMSendMulticastHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewFCMProvider(config.FCMConfig{
		Endpoint: srv.URL,
		Timeout:  5 * time.Second,
	}, zerolog.Nop())

	results, err := p.SendMulticast(context.Background(), []string{"t1"}, Notification{Title: "x"})

	assert.Error(t, err)
	assert.Nil(t, results)
}

func TestFCMSendMulticastNoTokens(t *testing.T) {
	p := NewFCMProvider(config.FCMConfig{Endpoint: "http://unused", Timeout: time.Second}, zerolog.Nop())

	results, err := p.SendMulticast(context.Background(), nil, Notification{Title: "x"})

	require.NoError(t, err)
	assert.Nil(t, results)
}
