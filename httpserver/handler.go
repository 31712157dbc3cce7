package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/credential-registry-client/dapp"
	"github.com/ruteri/credential-registry-client/interfaces"
)

const (
	// maxBodySize is the maximum allowed size of a JSON request body (1MB).
	maxBodySize = 1024 * 1024

	// maxDocumentSize is the maximum allowed size of an uploaded document (32MB).
	maxDocumentSize = 32 * 1024 * 1024

	// documentField is the multipart form field carrying the document.
	documentField = "file"
)

// Handler exposes the client operations as a JSON API.
type Handler struct {
	app *dapp.App
	log *slog.Logger
}

func NewHandler(app *dapp.App, log *slog.Logger) *Handler {
	return &Handler{app: app, log: log}
}

// Routes registers the API routes on r.
//
//   - GET    /api/session
//   - POST   /api/session/connect
//   - GET    /api/institutions
//   - POST   /api/institutions
//   - GET    /api/institutions/{address}
//   - GET    /api/institutions/{address}/status
//   - GET    /api/documents/selected
//   - POST   /api/documents
//   - POST   /api/documents/pin
//   - POST   /api/credentials
//   - GET    /api/credentials/{studentId}/{schoolId}
//   - DELETE /api/credentials/{studentId}/{schoolId}
//   - POST   /api/credentials/{studentId}/{schoolId}/verify
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.HandleSession)
		r.Post("/session/connect", h.HandleConnect)

		r.Get("/institutions", h.HandleListInstitutions)
		r.Post("/institutions", h.HandleRegisterInstitution)
		r.Get("/institutions/{address}", h.HandleInstitutionDetails)
		r.Get("/institutions/{address}/status", h.HandleCheckInstitution)

		r.Get("/documents/selected", h.HandleSelectedDocument)
		r.Post("/documents", h.HandleSelectDocument)
		r.Post("/documents/pin", h.HandleUploadDocument)

		r.Post("/credentials", h.HandleStoreCredential)
		r.Get("/credentials/{studentId}/{schoolId}", h.HandleSearchCredential)
		r.Delete("/credentials/{studentId}/{schoolId}", h.HandleRevokeCredential)
		r.Post("/credentials/{studentId}/{schoolId}/verify", h.HandleVerifyCredential)
	})
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Session())
}

func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.app.Connect(r.Context()))
}

func (h *Handler) HandleListInstitutions(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.app.ListInstitutions(r.Context()))
}

func (h *Handler) HandleRegisterInstitution(w http.ResponseWriter, r *http.Request) {
	var form dapp.RegisterInstitutionForm
	if !h.decode(w, r, &form) {
		return
	}
	h.writeResult(w, h.app.RegisterInstitution(r.Context(), form))
}

func (h *Handler) HandleInstitutionDetails(w http.ResponseWriter, r *http.Request) {
	form := dapp.InstitutionForm{Address: chi.URLParam(r, "address")}
	h.writeResult(w, h.app.InstitutionDetails(r.Context(), form))
}

func (h *Handler) HandleCheckInstitution(w http.ResponseWriter, r *http.Request) {
	form := dapp.InstitutionForm{Address: chi.URLParam(r, "address")}
	h.writeResult(w, h.app.CheckInstitution(r.Context(), form))
}

func (h *Handler) HandleSelectedDocument(w http.ResponseWriter, r *http.Request) {
	doc := h.app.Document()
	if doc == nil {
		writeJSON(w, http.StatusNotFound, dapp.Result{Error: "No document selected."})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleSelectDocument accepts the document either as the "file" field of a multipart form
// or as the raw request body named by the "name" query parameter.
func (h *Handler) HandleSelectDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentSize)

	name := r.URL.Query().Get("name")
	var body io.Reader = r.Body

	if mr, err := r.MultipartReader(); err == nil {
		part, err := nextFilePart(mr)
		if err != nil {
			h.log.Warn("Invalid document upload", "err", err)
			writeJSON(w, http.StatusBadRequest, dapp.Result{Error: "Please select a file to upload."})
			return
		}
		defer part.Close()
		if name == "" {
			name = part.FileName()
		}
		body = part
	}

	if name == "" {
		name = "document"
	}
	h.writeResult(w, h.app.SelectDocument(r.Context(), name, body))
}

func (h *Handler) HandleUploadDocument(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.app.UploadDocument(r.Context()))
}

func (h *Handler) HandleStoreCredential(w http.ResponseWriter, r *http.Request) {
	var form dapp.StoreCredentialForm
	if !h.decode(w, r, &form) {
		return
	}
	h.writeResult(w, h.app.StoreCredential(r.Context(), form))
}

func (h *Handler) HandleSearchCredential(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.app.SearchCredential(r.Context(), credentialKey(r)))
}

func (h *Handler) HandleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.app.RevokeCredential(r.Context(), credentialKey(r)))
}

func (h *Handler) HandleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocumentHash string `json:"documentHash"`
	}
	if r.ContentLength != 0 && !h.decode(w, r, &body) {
		return
	}

	key := credentialKey(r)
	form := dapp.VerifyForm{StudentID: key.StudentID, SchoolID: key.SchoolID, DocumentHash: body.DocumentHash}
	h.writeResult(w, h.app.VerifyCredential(r.Context(), form))
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == documentField {
			return part, nil
		}
		part.Close()
	}
}

func credentialKey(r *http.Request) dapp.CredentialKeyForm {
	return dapp.CredentialKeyForm{
		StudentID: chi.URLParam(r, "studentId"),
		SchoolID:  chi.URLParam(r, "schoolId"),
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.log.Debug("Invalid request body", "err", err)
		writeJSON(w, http.StatusBadRequest, dapp.Result{Error: "Invalid request body."})
		return false
	}
	return true
}

func (h *Handler) writeResult(w http.ResponseWriter, result dapp.Result) {
	code := statusCode(result.Err)
	if code >= http.StatusInternalServerError {
		h.log.Error("Operation failed", "err", result.Err)
	}
	writeJSON(w, code, result)
}

// statusCode maps an operation error to the HTTP status returned for it.
func statusCode(err error) int {
	switch {
	case err == nil, errors.Is(err, dapp.ErrVerificationFailed):
		return http.StatusOK
	case errors.Is(err, interfaces.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, dapp.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrNotConnected), errors.Is(err, interfaces.ErrWrongNetwork):
		return http.StatusPreconditionFailed
	case errors.Is(err, interfaces.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrReverted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrNetwork), errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, interfaces.ErrProviderAbsent):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
