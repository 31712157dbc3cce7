package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/metrics"
)

// DefaultPinataEndpoint is the Pinata pinning API.
const DefaultPinataEndpoint = "https://api.pinata.cloud"

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 64 << 10

// PinataCredentials authenticate against the Pinata API, either with an API key pair or a JWT.
type PinataCredentials struct {
	APIKey    string
	APISecret string
	JWT       string
}

func (c PinataCredentials) empty() bool {
	return c.JWT == "" && (c.APIKey == "" || c.APISecret == "")
}

// UploadError is a non-2xx response of the pinning service.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("pinata upload failed: status %d: %s", e.StatusCode, e.Body)
}

// Unwrap reports server-side failures as ErrBackendUnavailable.
func (e *UploadError) Unwrap() error {
	if e.StatusCode >= http.StatusInternalServerError {
		return interfaces.ErrBackendUnavailable
	}
	return nil
}

type pinataMetadata struct {
	Name string `json:"name"`
}

type pinataOptions struct {
	CidVersion int `json:"cidVersion"`
}

type pinFileResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// PinataPinner uploads documents through the Pinata pinFileToIPFS API.
type PinataPinner struct {
	client   *http.Client
	endpoint string
	creds    PinataCredentials
	log      *slog.Logger
}

// NewPinataPinner creates a pinner for the Pinata API at endpoint.
func NewPinataPinner(endpoint string, creds PinataCredentials, log *slog.Logger) *PinataPinner {
	return &PinataPinner{
		client:   &http.Client{Timeout: 5 * time.Minute},
		endpoint: strings.TrimSuffix(endpoint, "/"),
		creds:    creds,
		log:      log,
	}
}

func (p *PinataPinner) authorize(req *http.Request) {
	if p.creds.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+p.creds.JWT)
		return
	}
	req.Header.Set("pinata_api_key", p.creds.APIKey)
	req.Header.Set("pinata_secret_api_key", p.creds.APISecret)
}

// Pin streams r as a multipart upload and returns the CIDv0 of the pinned file.
// Cancelling ctx aborts the client side of the upload only.
func (p *PinataPinner) Pin(ctx context.Context, name string, r io.Reader) (cid string, err error) {
	start := time.Now()
	defer func() { metrics.RecordPin(p.Name(), err) }()

	if p.creds.empty() {
		return "", errors.New("pinata credentials are not configured")
	}

	body, contentType := multipartUpload(name, r)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/pinning/pinFileToIPFS", body)
	if err != nil {
		return "", fmt.Errorf("could not create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error("Pinata upload failed", slog.String("name", name), "err", err)
		return "", fmt.Errorf("%w: %w", interfaces.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		uploadErr := &UploadError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
		p.log.Error("Pinata API error response",
			slog.String("name", name),
			slog.Int("status", resp.StatusCode),
			slog.String("body", uploadErr.Body))
		return "", uploadErr
	}

	var out pinFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("could not decode pinata response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", errors.New("pinata response carries no IpfsHash")
	}

	p.log.Info("Pinned document",
		slog.String("backend", p.Name()),
		slog.String("name", name),
		slog.String("cid", out.IpfsHash),
		slog.Int64("size", out.PinSize),
		slog.Duration("duration", time.Since(start)))

	return out.IpfsHash, nil
}

// multipartUpload encodes the file and its pinata metadata and options as a streamed
// multipart body.
func multipartUpload(name string, r io.Reader) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeParts(mw, name, r))
	}()

	return pr, mw.FormDataContentType()
}

func writeParts(mw *multipart.Writer, name string, r io.Reader) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}

	metadata, err := json.Marshal(pinataMetadata{Name: name})
	if err != nil {
		return err
	}
	if err := mw.WriteField("pinataMetadata", string(metadata)); err != nil {
		return err
	}

	options, err := json.Marshal(pinataOptions{CidVersion: 0})
	if err != nil {
		return err
	}
	if err := mw.WriteField("pinataOptions", string(options)); err != nil {
		return err
	}

	return mw.Close()
}

// Available checks the configured credentials against the Pinata authentication endpoint.
func (p *PinataPinner) Available(ctx context.Context) bool {
	if p.creds.empty() {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, p.endpoint+"/data/testAuthentication", nil)
	if err != nil {
		return false
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("Pinata availability check failed", "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *PinataPinner) Name() string {
	return "pinata"
}
