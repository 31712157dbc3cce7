package storage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// fakeIPFSNode answers the subset of the IPFS HTTP API used by IPFSPinner.
func fakeIPFSNode(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var added []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v0/id":
			_, _ = io.WriteString(w, `{"ID":"12D3KooWtest","Addresses":[],"AgentVersion":"kubo/0.29.0"}`)
		case "/api/v0/version":
			_, _ = io.WriteString(w, `{"Version":"0.29.0","Commit":"","Repo":"15"}`)
		case "/api/v0/add":
			assert.Equal(t, "true", r.URL.Query().Get("pin"))
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			added = append(added, string(body))
			_, _ = io.WriteString(w, `{"Name":"`+testCID+`","Hash":"`+testCID+`","Size":"12"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &added
}

func hostPort(t *testing.T, srv *httptest.Server) (string, string) {
	t.Helper()
	hp := strings.TrimPrefix(srv.URL, "http://")
	i := strings.LastIndex(hp, ":")
	require.Positive(t, i)
	return hp[:i], hp[i+1:]
}

func TestIPFSPinner_Pin(t *testing.T) {
	srv, added := fakeIPFSNode(t)
	host, port := hostPort(t, srv)

	pinner := NewIPFSPinner(host, port, 5*time.Second, slog.Default())
	assert.True(t, pinner.Available(context.Background()))
	assert.Equal(t, "ipfs-"+host+"-"+port, pinner.Name())

	cid, err := pinner.Pin(context.Background(), "diploma.pdf", strings.NewReader("test document"))
	require.NoError(t, err)
	assert.Equal(t, testCID, cid)
	require.Len(t, *added, 1)
	assert.Contains(t, (*added)[0], "test document")
}

func TestIPFSPinner_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host, port := hostPort(t, srv)
	srv.Close()

	pinner := NewIPFSPinner(host, port, time.Second, slog.Default())
	assert.False(t, pinner.Available(context.Background()))

	_, err := pinner.Pin(context.Background(), "diploma.pdf", strings.NewReader("test"))
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}
