package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/credential-registry-client/dapp"
	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/registry"
	"github.com/ruteri/credential-registry-client/wallet"
)

var (
	chainID      = big.NewInt(11155111)
	contractAddr = common.HexToAddress("0xA82b7F3fd0366b2B08c8d626dBdC3D2485b73abd")
	ownerAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	schoolAddr   = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

type testAPI struct {
	server   *httptest.Server
	provider *wallet.MockProvider
	session  *wallet.SessionManager
}

func setupAPI(t *testing.T, accounts ...common.Address) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deployment := interfaces.Deployment{Address: contractAddr, ChainID: chainID}
	provider := wallet.NewMockProvider(chainID, accounts...)
	factory := registry.NewMockClientFactory(contractAddr, ownerAddr)
	session := wallet.NewSessionManager(provider, deployment, factory, logger)
	t.Cleanup(session.Close)

	app := dapp.New(session, deployment, nil, dapp.Config{PollInterval: time.Millisecond, ConfirmTimeout: time.Second}, logger)

	router := chi.NewRouter()
	NewHandler(app, logger).Routes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testAPI{server: server, provider: provider, session: session}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (int, dapp.Result) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	return a.send(t, req)
}

func (a *testAPI) send(t *testing.T, req *http.Request) (int, dapp.Result) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var result dapp.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return resp.StatusCode, result
}

func TestHandler_Session(t *testing.T) {
	api := setupAPI(t, ownerAddr)

	resp, err := http.Get(api.server.URL + "/api/session")
	require.NoError(t, err)
	var view map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, "disconnected", view["status"])

	code, result := api.do(t, http.MethodPost, "/api/session/connect", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Wallet connected. You are the contract owner!", result.Message)

	session := result.Data.(map[string]interface{})
	assert.Equal(t, "connected", session["status"])
	assert.Equal(t, true, session["isOwner"])
}

func TestHandler_NotConnected(t *testing.T) {
	api := setupAPI(t, ownerAddr)

	code, result := api.do(t, http.MethodGet, "/api/credentials/101/1001", nil)
	assert.Equal(t, http.StatusPreconditionFailed, code)
	assert.Equal(t, "Please connect your wallet first.", result.Error)
}

func TestHandler_InstitutionFlow(t *testing.T) {
	api := setupAPI(t, ownerAddr)
	_, _ = api.do(t, http.MethodPost, "/api/session/connect", nil)

	form := dapp.RegisterInstitutionForm{Address: schoolAddr.Hex(), Name: "School A", Code: "123456789"}

	code, result := api.do(t, http.MethodPost, "/api/institutions", dapp.RegisterInstitutionForm{Address: schoolAddr.Hex(), Name: "School A", Code: "42"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Institution Code must be a 9-digit number.", result.Error)

	code, result = api.do(t, http.MethodPost, "/api/institutions", form)
	require.Equal(t, http.StatusOK, code, result.Error)
	assert.Equal(t, `Institution "School A" registered successfully!`, result.Message)

	code, result = api.do(t, http.MethodGet, "/api/institutions/"+schoolAddr.Hex()+"/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, result.Message, "is REGISTERED.")

	code, result = api.do(t, http.MethodGet, "/api/institutions/"+schoolAddr.Hex(), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, `Institution details fetched for "School A".`, result.Message)

	code, result = api.do(t, http.MethodGet, "/api/institutions", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, result.Data, 1)

	code, _ = api.do(t, http.MethodGet, "/api/institutions/not-an-address", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_CredentialFlow(t *testing.T) {
	api := setupAPI(t, ownerAddr)
	ctx := context.Background()
	_, _ = api.do(t, http.MethodPost, "/api/session/connect", nil)
	code, _ := api.do(t, http.MethodPost, "/api/institutions", dapp.RegisterInstitutionForm{Address: schoolAddr.Hex(), Name: "School A", Code: "123456789"})
	require.Equal(t, http.StatusOK, code)

	api.provider.SetAccounts(schoolAddr)
	api.session.OnAccountsChanged(ctx, []common.Address{schoolAddr})

	// Select the document through a multipart upload.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "diploma.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("diploma"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/documents", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	code, result := api.send(t, req)
	require.Equal(t, http.StatusOK, code, result.Error)
	hash := result.Data.(map[string]interface{})["hash"].(string)
	assert.Len(t, hash, 64)

	code, result = api.do(t, http.MethodPost, "/api/documents/pin", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "No pinning backend is configured.", result.Error)

	form := dapp.StoreCredentialForm{
		StudentID:        "101",
		SchoolID:         "1001",
		StudentName:      "Alice",
		DateOfBirth:      "2000-05-17",
		InstitutionName:  "School A",
		CertificateTitle: "BSc Computer Science",
		IssueDate:        "2023-01-01",
		IPFSCid:          "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
	}
	code, result = api.do(t, http.MethodPost, "/api/credentials", form)
	require.Equal(t, http.StatusOK, code, result.Error)

	code, result = api.do(t, http.MethodGet, "/api/credentials/101/1001", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, hash, result.Data.(map[string]interface{})["documentHash"])

	code, result = api.do(t, http.MethodGet, "/api/credentials/7/8", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, result = api.do(t, http.MethodPost, "/api/credentials/101/1001/verify", map[string]string{"documentHash": hash})
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, result.Error)
	assert.True(t, strings.HasPrefix(result.Message, "Credential verified successfully"))

	code, _ = api.do(t, http.MethodDelete, "/api/credentials/101/1001", nil)
	require.Equal(t, http.StatusOK, code)

	code, result = api.do(t, http.MethodPost, "/api/credentials/101/1001/verify", map[string]string{"documentHash": hash})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Credential verification failed: Credential is revoked. ", result.Error)

	code, result = api.do(t, http.MethodDelete, "/api/credentials/101/1001", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "Failed to revoke credential: Credential already revoked", result.Error)
}

func TestHandler_SelectRawDocument(t *testing.T) {
	api := setupAPI(t)

	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/documents?name=notes.txt", strings.NewReader("test"))
	require.NoError(t, err)
	code, result := api.send(t, req)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "File selected and hash calculated: 9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", result.Message)

	resp, err := http.Get(api.server.URL + "/api/documents/selected")
	require.NoError(t, err)
	defer resp.Body.Close()
	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "notes.txt", doc["name"])
}

func TestHandler_InvalidBody(t *testing.T) {
	api := setupAPI(t, ownerAddr)

	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/institutions", strings.NewReader(`{"address":`))
	require.NoError(t, err)
	code, result := api.send(t, req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body.", result.Error)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: http.StatusOK},
		{err: dapp.ErrVerificationFailed, want: http.StatusOK},
		{err: interfaces.NewValidationError("code", "bad"), want: http.StatusBadRequest},
		{err: dapp.ErrBusy, want: http.StatusConflict},
		{err: interfaces.ErrNotConnected, want: http.StatusPreconditionFailed},
		{err: &interfaces.WrongNetworkError{Got: big.NewInt(1), Want: chainID}, want: http.StatusPreconditionFailed},
		{err: interfaces.ErrUserRejected, want: http.StatusForbidden},
		{err: &interfaces.RevertError{Reason: "Credential already exists"}, want: http.StatusUnprocessableEntity},
		{err: interfaces.ErrNetwork, want: http.StatusBadGateway},
		{err: interfaces.ErrBackendUnavailable, want: http.StatusBadGateway},
		{err: interfaces.ErrProviderAbsent, want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.err), "%v", tt.err)
	}
}

func TestServer_Health(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := wallet.NewSessionManager(nil, interfaces.Deployment{Address: contractAddr, ChainID: chainID}, nil, logger)
	app := dapp.New(session, interfaces.Deployment{Address: contractAddr, ChainID: chainID}, nil, dapp.Config{}, logger)

	srv, err := New(&HTTPServerConfig{Log: logger}, NewHandler(app, logger))
	require.NoError(t, err)
	router := srv.getRouter()

	get := func(path string) (int, string) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		return rec.Code, body["status"]
	}

	code, status := get("/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", status)

	_, status = get("/drain")
	assert.Equal(t, "draining", status)
	code, status = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", status)

	_, status = get("/undrain")
	assert.Equal(t, "ready", status)
	code, _ = get("/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_CORS(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deployment := interfaces.Deployment{Address: contractAddr, ChainID: chainID}
	session := wallet.NewSessionManager(nil, deployment, nil, logger)
	app := dapp.New(session, deployment, nil, dapp.Config{}, logger)

	srv, err := New(&HTTPServerConfig{Log: logger, AllowedOrigins: []string{"http://localhost:3000"}}, NewHandler(app, logger))
	require.NoError(t, err)
	router := srv.getRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/credentials", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
