package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/fimsync/callback"
	"github.com/maxpert/fimsync/cfg"
	"github.com/maxpert/fimsync/fimdb"
	"github.com/maxpert/fimsync/notify"
)

type fakeSpool struct{ last, backlog uint64 }

func (f fakeSpool) LastSeq() uint64 { return f.last }
func (f fakeSpool) Backlog() uint64 { return f.backlog }

type env struct {
	db  *fimdb.DB
	hub *notify.Hub
	srv *httptest.Server
}

func newEnv(t *testing.T, fileLimit int) *env {
	t.Helper()
	hub := notify.NewHub()
	db, err := fimdb.Open(fimdb.Config{
		Path:      fimdb.MemoryPath,
		FileLimit: fileLimit,
		Notifiers: callback.Notifiers{Sync: hub},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewAdminHandlers(0xabc, db, fakeSpool{last: 9, backlog: 3}, hub))
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		db.Close()
	})
	return &env{db: db, hub: hub, srv: srv}
}

func (e *env) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func entryJSON(path string, size int) string {
	return fmt.Sprintf(`{"path":%q,"size":%d,"perm":"rw-r--r--","uid":"0","gid":"0","inode":1,"dev":1,"mtime":1700000000}`, path, size)
}

func TestPutAndGetFile(t *testing.T) {
	e := newEnv(t, 0)

	status, body := e.do(t, http.MethodPut, "/admin/files", entryJSON("/etc/hosts", 10))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "added", body["data"].(map[string]interface{})["change"])

	status, body = e.do(t, http.MethodPut, "/admin/files", entryJSON("/etc/hosts", 10))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "none", body["data"].(map[string]interface{})["change"])

	status, body = e.do(t, http.MethodPut, "/admin/files", entryJSON("/etc/hosts", 11))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "modified", body["data"].(map[string]interface{})["change"])

	status, body = e.do(t, http.MethodGet, "/admin/files/entry?path=/etc/hosts", "")
	require.Equal(t, http.StatusOK, status)
	entry := body["data"].(map[string]interface{})
	assert.Equal(t, "/etc/hosts", entry["path"])
	assert.EqualValues(t, 11, entry["size"])

	status, _ = e.do(t, http.MethodGet, "/admin/files/entry?path=/nope", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodGet, "/admin/files/entry", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPutRejectsBadBodies(t *testing.T) {
	e := newEnv(t, 0)

	status, _ := e.do(t, http.MethodPut, "/admin/files", `{"path":`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPut, "/admin/files", `{"path":"/a","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPut, "/admin/files", `{"path":""}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestFileLimitMapsToInsufficientStorage(t *testing.T) {
	e := newEnv(t, 1)

	status, _ := e.do(t, http.MethodPut, "/admin/files", entryJSON("/a", 1))
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(t, http.MethodPut, "/admin/files", entryJSON("/b", 1))
	assert.Equal(t, http.StatusInsufficientStorage, status)
}

func TestListCountDelete(t *testing.T) {
	e := newEnv(t, 0)
	for _, p := range []string{"/etc/a", "/etc/b", "/var/c"} {
		status, _ := e.do(t, http.MethodPut, "/admin/files", entryJSON(p, 1))
		require.Equal(t, http.StatusOK, status)
	}

	_, body := e.do(t, http.MethodGet, "/admin/files/count", "")
	assert.EqualValues(t, 3, body["data"].(map[string]interface{})["count"])

	_, body = e.do(t, http.MethodGet, "/admin/files?pattern=/etc/*", "")
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["files"], 2)
	assert.Equal(t, false, data["has_more"])

	_, body = e.do(t, http.MethodGet, "/admin/files?limit=1", "")
	data = body["data"].(map[string]interface{})
	assert.Len(t, data["files"], 1)
	assert.Equal(t, true, data["has_more"])

	status, _ := e.do(t, http.MethodGet, "/admin/files?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodDelete, "/admin/files?path=/var/c", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = e.do(t, http.MethodDelete, "/admin/files?path=/var/c", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestScanAndIntegrity(t *testing.T) {
	e := newEnv(t, 0)
	e.do(t, http.MethodPut, "/admin/files", entryJSON("/keep", 1))
	e.do(t, http.MethodPut, "/admin/files", entryJSON("/gone", 1))

	status, _ := e.do(t, http.MethodPost, "/admin/scan/begin", "")
	require.Equal(t, http.StatusOK, status)
	e.do(t, http.MethodPut, "/admin/files", entryJSON("/keep", 1))

	_, body := e.do(t, http.MethodPost, "/admin/scan/end", "")
	assert.EqualValues(t, 1, body["data"].(map[string]interface{})["removed"])

	_, body = e.do(t, http.MethodPost, "/admin/integrity", "")
	data := body["data"].(map[string]interface{})
	assert.Equal(t, fimdb.EventIntegrityCheckGlobal, data["event"])
	assert.EqualValues(t, 1, data["count"])
	assert.Equal(t, "/keep", data["begin"])
}

func TestStatus(t *testing.T) {
	e := newEnv(t, 0)
	e.do(t, http.MethodPut, "/admin/files", entryJSON("/x", 1))

	status, body := e.do(t, http.MethodGet, "/admin/status", "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "abc", data["agent_id"])
	assert.EqualValues(t, 1, data["files"])
	assert.EqualValues(t, 9, data["spool_last_seq"])
	assert.EqualValues(t, 3, data["spool_backlog"])
}

func TestEventStream(t *testing.T) {
	e := newEnv(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.srv.URL+"/admin/events?events=file_added", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return e.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = e.db.UpdateFile(ctx, fimdb.FileEntry{Path: "/streamed", Perm: "rw-------"})
	require.NoError(t, err)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: file_added\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var ev streamEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
	assert.Equal(t, fimdb.EventFileAdded, ev.Name)
	assert.NotEmpty(t, ev.Payload)
}

func TestAuthMiddleware(t *testing.T) {
	original := cfg.Config
	defer func() { cfg.Config = original }()
	cfg.Config = &cfg.Configuration{Admin: cfg.AdminConfiguration{Secret: "s3cret"}}

	e := newEnv(t, 0)

	status, _ := e.do(t, http.MethodGet, "/admin/status", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	for name, headers := range map[string]map[string]string{
		"psk header": {SecretHeader: "s3cret"},
		"bearer":     {"Authorization": "Bearer s3cret"},
	} {
		req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/admin/status", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, name)
	}

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/admin/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
