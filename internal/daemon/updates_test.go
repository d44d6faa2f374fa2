package daemon_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocalsplit/internal/api"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/testsupport"
)

func dialUpdates(t *testing.T, h *harness, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) api.UpdateMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg api.UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebsocketSnapshotThenUpdates(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	h := newHarness(t, cfg)
	_, err := h.registry.Create("existing", "song.mp3", jobs.MediaAudio, testsupport.WriteUpload(t, cfg.Paths.UploadDir, "existing", "song.mp3"))
	require.NoError(t, err)

	conn := dialUpdates(t, h, "")
	snapshot := readUpdate(t, conn)
	assert.Equal(t, "initial_jobs", snapshot.Type)
	require.Len(t, snapshot.Jobs, 1)
	assert.Equal(t, "existing", snapshot.Jobs[0].ID)
	assert.NotEmpty(t, snapshot.Timestamp)

	eventually(t, "registered client", func() bool {
		return h.daemon.Status(t.Context()).WSClients == 1
	})
	completeJob(t, h, "fresh")

	var statuses []string
	for i := 0; i < 4; i++ {
		msg := readUpdate(t, conn)
		assert.Equal(t, "job_update", msg.Type)
		require.NotNil(t, msg.Job)
		assert.Equal(t, "fresh", msg.Job.ID)
		statuses = append(statuses, msg.Job.Status)
	}
	assert.Equal(t, []string{"uploaded", "separating", "post_processing", "completed"}, statuses)
}

func TestWebsocketAcceptsQueryToken(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools(), testsupport.WithAPIToken("s3cret"))
	h := newHarness(t, cfg)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn := dialUpdates(t, h, "?token=s3cret")
	assert.Equal(t, "initial_jobs", readUpdate(t, conn).Type)
}

func TestWebsocketClosedOnStop(t *testing.T) {
	h := newHarness(t, testsupport.NewConfig(t, testsupport.WithStubbedTools()))
	h.start(t)
	conn := dialUpdates(t, h, "")
	readUpdate(t, conn)
	eventually(t, "registered client", func() bool {
		return h.daemon.Status(t.Context()).WSClients == 1
	})

	h.daemon.Stop()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)
}
