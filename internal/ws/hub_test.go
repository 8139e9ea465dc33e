package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/config"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/events"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
)

func TestHub_RelaysBusEventsToAttemptRoom(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		attemptID := uint(7)
		if r.URL.Query().Get("attempt") == "8" {
			attemptID = 8
		}
		hub.AddConnection(attemptID, conn)
		defer hub.RemoveConnection(attemptID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	watcher, _, err := websocket.DefaultDialer.Dial(wsURL+"?attempt=7", nil)
	require.NoError(t, err)
	defer watcher.Close()
	other, _, err := websocket.DefaultDialer.Dial(wsURL+"?attempt=8", nil)
	require.NoError(t, err)
	defer other.Close()

	require.Eventually(t, func() bool {
		return hub.Connections(7) == 1 && hub.Connections(8) == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus, err := events.NewBus(config.KafkaConfig{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	go hub.Run(ctx, messages)

	attempt := &models.QuizAttempt{ID: 7, QuizID: 1, StudentID: "student-1", Status: models.AttemptInProgress, Version: 2}
	require.NoError(t, bus.Publish(ctx, events.NewAttemptEvent(events.TypeAttemptAutosaved, attempt)))

	watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := watcher.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type string              `json:"type"`
		Data events.AttemptEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, events.TypeAttemptAutosaved, got.Type)
	assert.Equal(t, 2, got.Data.Version)

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "attempt 8 must not receive attempt 7 events")
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.CloseAll()
	assert.Equal(t, 0, hub.Connections(1))
}
