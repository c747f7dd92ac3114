package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineHub/internal/ingest"
	"github.com/JustinTDCT/CineHub/internal/models"
)

func capture(t *testing.T, status int) (*httptest.Server, *[]map[string]interface{}) {
	t.Helper()
	var got []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestReport_OnlyTerminalStates(t *testing.T) {
	srv, got := capture(t, http.StatusNoContent)
	w, err := NewWebhookSender(srv.URL, "")
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	w.Report(context.Background(), ingest.Progress{Kind: models.MediaTypeShow, State: ingest.StateRunning, Page: 1, Pages: 3})
	assert.Empty(t, *got)

	w.Report(context.Background(), ingest.Progress{
		Kind: models.MediaTypeShow, State: ingest.StateFailed, Page: 2, Pages: 3,
		Reconciled: 30, Failed: 10, Error: "circuit open",
	})
	require.Len(t, *got, 1)
	assert.Equal(t, "CineHub Show ingestion failed", (*got)[0]["title"])
	assert.Equal(t, "30 reconciled, 0 skipped, 10 failed over 2/3 pages: circuit open", (*got)[0]["message"])
	assert.Equal(t, "2024-05-01T12:00:00Z", (*got)[0]["timestamp"])
}

func TestSend_ChannelPayloads(t *testing.T) {
	srv, got := capture(t, http.StatusOK)

	d, err := NewWebhookSender(srv.URL, ChannelDiscord)
	require.NoError(t, err)
	require.NoError(t, d.Send(context.Background(), "t", "m"))

	s, err := NewWebhookSender(srv.URL, ChannelSlack)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "t", "m"))

	require.Len(t, *got, 2)
	assert.Contains(t, (*got)[0], "embeds")
	assert.Contains(t, (*got)[1], "blocks")
}

func TestSend_ErrorStatus(t *testing.T) {
	srv, _ := capture(t, http.StatusBadGateway)
	w, err := NewWebhookSender(srv.URL, ChannelGeneric)
	require.NoError(t, err)
	assert.Error(t, w.Send(context.Background(), "t", "m"))
}

func TestNewWebhookSender_UnknownChannel(t *testing.T) {
	_, err := NewWebhookSender("http://example.invalid", "pager")
	assert.Error(t, err)
}
