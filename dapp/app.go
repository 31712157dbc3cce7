// Package dapp implements the user operations of the credential registry client on top of
// the wallet session, the transaction orchestrator, the query layer and the document
// pipeline. Every operation resolves to a Result; failures never propagate to the caller.
package dapp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/atomic"

	"github.com/ruteri/credential-registry-client/document"
	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/query"
	"github.com/ruteri/credential-registry-client/txn"
	"github.com/ruteri/credential-registry-client/wallet"
)

// Result is the outcome of a user operation. Exactly one of Message and Error is set.
type Result struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`

	// Err is the underlying error, kept for callers that map failures to status codes.
	Err error `json:"-"`
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

func success(message string, data interface{}) Result {
	return Result{Message: message, Data: data}
}

func failure(action string, err error) Result {
	return Result{Error: Describe(action, err), Err: err}
}

// SessionView is the displayed session state.
type SessionView struct {
	Status     wallet.Status   `json:"status"`
	Account    *common.Address `json:"account,omitempty"`
	ChainID    string          `json:"chainId,omitempty"`
	Contract   common.Address  `json:"contract"`
	Owner      *common.Address `json:"owner,omitempty"`
	IsOwner    bool            `json:"isOwner"`
	BalanceWei string          `json:"balanceWei,omitempty"`
	Balance    string          `json:"balance,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// SelectedDocument is the document picked for hashing and upload.
type SelectedDocument struct {
	document.Digest
	CID string `json:"cid,omitempty"`

	data []byte
}

// TransactionView reports a confirmed transaction.
type TransactionView struct {
	ID          string `json:"id"`
	Operation   string `json:"operation"`
	Hash        string `json:"hash"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

// InstitutionListEntry is one row of ListInstitutions.
type InstitutionListEntry struct {
	Address     common.Address           `json:"address"`
	Institution *query.InstitutionRecord `json:"institution,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// Config configures transaction confirmation.
type Config struct {
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

// App runs the user operations. Operations are mutually exclusive: one started while
// another is running fails with ErrBusy.
type App struct {
	session    *wallet.SessionManager
	deployment interfaces.Deployment
	txns       *txn.Orchestrator
	reader     *query.Reader
	hasher     *document.Hasher
	pinner     interfaces.Pinner
	log        *slog.Logger

	busy atomic.Bool

	docMu    sync.Mutex
	selected *SelectedDocument
}

// New creates the app over session. pinner may be nil, uploads then fail.
func New(session *wallet.SessionManager, deployment interfaces.Deployment, pinner interfaces.Pinner, cfg Config, log *slog.Logger) *App {
	return &App{
		session:    session,
		deployment: deployment,
		txns:       txn.New(session, txn.Config{PollInterval: cfg.PollInterval, Timeout: cfg.ConfirmTimeout}, log),
		reader:     query.NewReader(session, log),
		hasher:     document.NewHasher(log),
		pinner:     pinner,
		log:        log,
	}
}

// begin claims the busy flag. The returned release must be called when the operation ends.
func (a *App) begin() (func(), error) {
	if !a.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { a.busy.Store(false) }, nil
}

// Busy reports whether an operation is running.
func (a *App) Busy() bool {
	return a.busy.Load()
}

// Session returns the current session view.
func (a *App) Session() SessionView {
	s := a.session.State()
	view := SessionView{
		Status:   s.Status,
		Account:  s.Account,
		Contract: a.deployment.Address,
		Owner:    s.Owner,
		IsOwner:  s.IsOwner(),
		Message:  s.Message,
	}
	if s.ChainID != nil {
		view.ChainID = s.ChainID.String()
	}
	if s.Balance != nil {
		view.BalanceWei = s.Balance.String()
		view.Balance = formatEther(s.Balance)
	}
	return view
}

func formatEther(wei *big.Int) string {
	eth := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return eth.Text('f', 6)
}

// Connect requests wallet access and binds the registry.
func (a *App) Connect(ctx context.Context) Result {
	release, err := a.begin()
	if err != nil {
		return failure("connect wallet", err)
	}
	defer release()

	if err := a.session.Connect(ctx); err != nil {
		a.log.Warn("Wallet connection failed", "err", err)
		result := failure("connect wallet", err)
		if msg := a.session.State().Message; msg != "" && !errors.Is(err, interfaces.ErrProviderAbsent) {
			result.Error = msg
		}
		result.Data = a.Session()
		return result
	}

	view := a.Session()
	message := view.Message
	if view.IsOwner {
		message += " You are the contract owner!"
	}
	return success(message, view)
}

// RegisterInstitution registers a new institution after checking that neither its address
// nor its code is taken.
func (a *App) RegisterInstitution(ctx context.Context, form RegisterInstitutionForm) Result {
	const action = "register institution"

	release, err := a.begin()
	if err != nil {
		return failure(action, err)
	}
	defer release()

	input, err := form.validate()
	if err != nil {
		return failure(action, err)
	}

	registered, err := a.reader.InstitutionRegistered(ctx, input.address)
	if err != nil {
		return failure(action, err)
	}
	if registered {
		return failure(action, interfaces.NewValidationError("address", "Institution with this address is already registered."))
	}

	codeExists, err := a.reader.InstitutionCodeExists(ctx, input.code)
	if err != nil {
		return failure(action, err)
	}
	if codeExists {
		return failure(action, interfaces.NewValidationError("code", "Institution with this code is already registered."))
	}

	return a.execute(ctx, action, txn.RegisterInstitution{
		Institution: input.address,
		Name:        input.name,
		Code:        new(big.Int).SetUint64(input.code),
	})
}

// CheckInstitution reports whether an address is a registered institution.
func (a *App) CheckInstitution(ctx context.Context, form InstitutionForm) Result {
	const action = "check institution status"

	release, err := a.begin()
	if err != nil {
		return failure(action, err)
	}
	defer release()

	address, err := form.validate()
	if err != nil {
		return failure(action, err)
	}

	registered, err := a.reader.InstitutionRegistered(ctx, address)
	if err != nil {
		return failure(action, err)
	}

	status := "NOT REGISTERED"
	if registered {
		status = "REGISTERED"
	}
	return success(fmt.Sprintf("Institution %q is %s.", address.Hex(), status), map[string]bool{"registered": registered})
}

// InstitutionDetails fetches a registered institution. An unknown institution is reported
// as a message, not as a failure.
func (a *App) InstitutionDetails(ctx context.Context, form InstitutionForm) Result {
	const action = "fetch institution details"

	release, err := a.begin()
	if err != nil {
		return failure(action, err)
	}
	defer release()

	address, err := form.validate()
	if err != nil {
		return failure(action, err)
	}

	record, err := a.reader.Institution(ctx, address)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return success(fmt.Sprintf("Institution %q not found or not registered.", address.Hex()), nil)
	case err != nil:
		return failure(action, err)
	}
	return success(fmt.Sprintf("Institution details fetched for %q.", record.Name), record)
}

// ListInstitutions lists every registered institution. Institutions that could not be
// read are listed with their error.
func (a *App) ListInstitutions(ctx context.Context) Result {
	const action = "list institutions"

	release, err := a.begin()
	if err != nil {
		return failure(action, err)
	}
	defer release()

	entries, err := a.reader.AllInstitutions(ctx)
	if err != nil {
		return failure(action, err)
	}

	rows := make([]InstitutionListEntry, 0, len(entries))
	failed := 0
	for _, entry := range entries {
		row := InstitutionListEntry{Address: entry.Key, Institution: entry.Value}
		if entry.Err != nil {
			failed++
			row.Error = Describe("fetch institution", entry.Err)
		}
		rows = append(rows, row)
	}

	message := fmt.Sprintf("Found %d registered institutions.", len(rows))
	if failed > 0 {
		message = fmt.Sprintf("Found %d registered institutions, %d could not be read.", len(rows), failed)
	}
	return success(message, rows)
}

// SelectDocument hashes the document read from r and keeps it for upload and verification.
// A previous selection and its CID are discarded.
func (a *App) SelectDocument(ctx context.Context, name string, r io.Reader) Result {
	const action = "read document"

	release, err := a.begin()
	if err != nil {
		return failure(action, err)
	}
	defer release()

	var buf bytes.Buffer
	digest, err := a.hasher.Hash(ctx, name, io.TeeReader(r, &buf))
	if err != nil {
		return failure(action, err)
	}

	doc := &SelectedDocument{Digest: *digest, data: buf.Bytes()}
	a.docMu.Lock()
	a.selected = doc
	a.docMu.Unlock()

	return success(fmt.Sprintf("File selected and hash calculated: %s", digest.Hash), doc)
}

// SelectDocumentFile selects the document stored at path.
func (a *App) SelectDocumentFile(ctx context.Context, path string) Result {
	f, err := os.Open(path)
	if err != nil {
		return failure("read document", err)
	}
	defer f.Close()
	return a.SelectDocument(ctx, filepath.Base(path), f)
}

// Document returns the selected document, if any.
func (a *App) Document() *SelectedDocument {
	a.docMu.Lock()
	defer a.docMu.Unlock()
	if a.selected == nil {
		return nil
	}
	cp := *a.selected
	return &cp
}

// UploadDocument pins the selected document and remembers its CID.
func (a *App) UploadDocument(ctx context.Context) Result {
	const action = "upload to IPFS"

	release, err := a.begin()
	if err != nil {
		return failure(action, err)
	}
	defer release()

	doc := a.Document()
	if doc == nil {
		return Result{Error: msgNoDocument, Err: interfaces.NewValidationError("file", msgNoDocument)}
	}
	if a.pinner == nil {
		return Result{Error: msgNoPinner, Err: interfaces.ErrBackendUnavailable}
	}

	cid, err := a.pinner.Pin(ctx, doc.Name, bytes.NewReader(doc.data))
	if err != nil {
		a.log.Error("Document upload failed", "name", doc.Name, "backend", a.pinner.Name(), "err", err)
		return failure(action, err)
	}

	a.docMu.Lock()
	if a.selected != nil && a.selected.Hash == doc.Hash {
		a.selected.CID = cid
	}
	a.docMu.Unlock()

	doc.CID = cid
	return success(fmt.Sprintf("File uploaded to IPFS! CID: %s", cid), doc)
}

// StoreCredential stores a credential issued by the connected institution. Empty hash and
// CID fields are filled from the selected document.
func (a *App) StoreCredential(ctx context.Context, form StoreCredentialForm) Result {
	const action = "store credential"

	release, err := a.begin()
	if err != nil {
		return failure(action, err)
	}
	defer release()

	doc := a.Document()
	if doc != nil {
		if form.DocumentHash == "" {
			form.DocumentHash = doc.Hash
		}
		if form.IPFSCid == "" {
			form.IPFSCid = doc.CID
		}
	}

	credential, err := form.validate()
	if err != nil {
		return failure(action, err)
	}

	result := a.execute(ctx, action, txn.StoreCredential{Credential: credential})
	if result.OK() {
		a.docMu.Lock()
		a.selected = nil
		a.docMu.Unlock()
	}
	return result
}

// SearchCredential fetches the credential stored for a student and school.
func (a *App) SearchCredential(ctx context.Context, form CredentialKeyForm) Result {
	const action = "search credential"

	release, err := a.begin()
	if err != nil {
		return failure(action, err)
	}
	defer release()

	studentID, schoolID, err := form.validate()
	if err != nil {
		return failure(action, err)
	}

	record, err := a.reader.Credential(ctx, studentID, schoolID)
	if err != nil {
		return failure(action, err)
	}
	return success(fmt.Sprintf("Credential found for Student ID: %d, School ID: %d", studentID, schoolID), record)
}

// RevokeCredential revokes the credential stored for a student and school.
func (a *App) RevokeCredential(ctx context.Context, form CredentialKeyForm) Result {
	const action = "revoke credential"

	release, err := a.begin()
	if err != nil {
		return failure(action, err)
	}
	defer release()

	studentID, schoolID, err := form.validate()
	if err != nil {
		return failure(action, err)
	}

	return a.execute(ctx, action, txn.RevokeCredential{
		StudentID: new(big.Int).SetUint64(studentID),
		SchoolID:  new(big.Int).SetUint64(schoolID),
	})
}

// VerifyCredential checks a document hash against a stored credential. An empty hash is
// taken from the selected document.
func (a *App) VerifyCredential(ctx context.Context, form VerifyForm) Result {
	const action = "verify credential"

	release, err := a.begin()
	if err != nil {
		return failure(action, err)
	}
	defer release()

	if form.DocumentHash == "" {
		if doc := a.Document(); doc != nil {
			form.DocumentHash = doc.Hash
		}
	}

	input, err := form.validate()
	if err != nil {
		return failure(action, err)
	}

	result, err := a.reader.Verify(ctx, input.studentID, input.schoolID, input.hash)
	if err != nil {
		return failure(action, err)
	}

	if result.IsValid {
		return success("Credential verified successfully: The document hash matches the stored record, and it's not revoked or expired.", result)
	}
	return Result{Error: verificationFailure(result), Data: result, Err: ErrVerificationFailed}
}

// ErrVerificationFailed is the Result error of a verification that did not pass.
var ErrVerificationFailed = errors.New("credential verification failed")

func verificationFailure(result *query.VerificationResult) string {
	msg := "Credential verification failed: "
	if result.IsRevoked {
		msg += "Credential is revoked. "
	}
	if result.IsExpired {
		msg += "Credential is expired. "
	}
	if !result.IsRevoked && !result.IsExpired {
		msg += "Document hash does NOT match or credential not found."
	}
	return msg
}

func (a *App) execute(ctx context.Context, action string, call txn.Call) Result {
	pending, err := a.txns.Execute(ctx, call)
	if err != nil {
		result := failure(action, err)
		if pending != nil {
			result.Data = transactionView(pending)
		}
		return result
	}
	return success(pending.Message(), transactionView(pending))
}

func transactionView(p *txn.PendingTx) TransactionView {
	view := TransactionView{
		ID:        p.ID.String(),
		Operation: string(p.Operation),
		Hash:      p.Hash.Hex(),
		Status:    string(p.Status),
	}
	if p.Receipt != nil && p.Receipt.BlockNumber != nil {
		view.BlockNumber = p.Receipt.BlockNumber.Uint64()
	}
	return view
}
