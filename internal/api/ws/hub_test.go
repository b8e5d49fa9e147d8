package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/your-org/classcam/internal/models"
	"github.com/your-org/classcam/internal/observability"
	"github.com/your-org/classcam/pkg/dto"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev dto.WSEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestHub_SessionFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	before := testutil.ToFloat64(observability.WSConnections)
	all := dial(t, base)
	filtered := dial(t, base+"?session_id=cam-2")

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(observability.WSConnections) < before+2 {
		if time.Now().After(deadline) {
			t.Fatal("clients never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = hub.NotifyRecognition(ctx, []models.RecognitionEvent{
		{SessionID: "cam-1", ExternalID: "S-001", Name: "Ada", Timestamp: time.Now()},
		{SessionID: "cam-2", ExternalID: "S-002", Name: "Bob", Timestamp: time.Now()},
	})

	first := readEvent(t, all)
	second := readEvent(t, all)
	if first.SessionID != "cam-1" || second.SessionID != "cam-2" {
		t.Errorf("unfiltered client got %q then %q", first.SessionID, second.SessionID)
	}
	if first.Type != "face_recognized" || first.Data.ExternalID != "S-001" {
		t.Errorf("unexpected event %+v", first)
	}

	got := readEvent(t, filtered)
	if got.SessionID != "cam-2" || got.Data.Name != "Bob" {
		t.Errorf("filtered client got %+v", got)
	}
}
