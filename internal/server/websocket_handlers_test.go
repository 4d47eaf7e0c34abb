package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingConn captures messages written by the handlers.
type recordingConn struct {
	messages []WebSocketEstimateResponse
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	var resp WebSocketEstimateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}
	c.messages = append(c.messages, resp)
	return nil
}

func TestHandleWebSocketMessage_Success(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	conn := &recordingConn{}

	data, err := json.Marshal(WebSocketEstimateRequest{RequestID: "req-1", EstimateRequest: sampleRequest()})
	require.NoError(t, err)
	srv.handleWebSocketMessage(conn, data)

	require.Len(t, conn.messages, 2)
	assert.Equal(t, "processing", conn.messages[0].Status)
	assert.Equal(t, "completed", conn.messages[1].Status)
	assert.Equal(t, "req-1", conn.messages[1].RequestID)

	result, ok := conn.messages[1].Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sample", result["dataset"])
}

func TestHandleWebSocketMessage_Errors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	t.Run("invalid JSON", func(t *testing.T) {
		conn := &recordingConn{}
		srv.handleWebSocketMessage(conn, []byte("{"))
		require.Len(t, conn.messages, 1)
		assert.Equal(t, "error", conn.messages[0].Status)
		assert.Equal(t, "invalid_request", conn.messages[0].ErrorType)
	})

	t.Run("degenerate input", func(t *testing.T) {
		conn := &recordingConn{}
		req := WebSocketEstimateRequest{EstimateRequest: EstimateRequest{
			Source:      [][]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}},
			Destination: [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		}}
		data, err := json.Marshal(req)
		require.NoError(t, err)
		srv.handleWebSocketMessage(conn, data)

		require.Len(t, conn.messages, 2)
		assert.Equal(t, "error", conn.messages[1].Status)
		assert.Equal(t, "degenerate_input", conn.messages[1].ErrorType)
		assert.NotEmpty(t, conn.messages[1].RequestID)
	})
}

func TestEstimateWebSocketHandler_RoundTrip(t *testing.T) {
	_, mux := newTestServer(t, nil)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/estimate"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteJSON(WebSocketEstimateRequest{RequestID: "ws-1", EstimateRequest: scaledRequest()}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first, second WebSocketEstimateResponse
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, "processing", first.Status)
	assert.Equal(t, "completed", second.Status)
	assert.Equal(t, "ws-1", second.RequestID)

	result, ok := second.Result.(map[string]any)
	require.True(t, ok)
	h, ok := result["h"].([]any)
	require.True(t, ok)
	assert.InDelta(t, 5.0, h[0].([]any)[0].(float64), 1e-9)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
}
