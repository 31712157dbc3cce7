package registry

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// Revert reasons produced by the in-memory registry.
const (
	ReasonOnlyOwner             = "Only owner can perform this action"
	ReasonInvalidInstitution    = "Invalid institution address"
	ReasonInstitutionRegistered = "Institution already registered"
	ReasonCodeExists            = "Institution code already exists"
	ReasonOnlyInstitution       = "Only registered institutions can perform this action"
	ReasonInvalidIDs            = "Invalid student or school ID"
	ReasonCredentialExists      = "Credential already exists"
	ReasonInvalidExpiry         = "Expiry date must be after issue date"
	ReasonCredentialNotFound    = "Credential not found"
	ReasonOnlyIssuer            = "Only the issuing institution or owner can revoke"
	ReasonCredentialRevoked     = "Credential already revoked"
)

type credentialKey struct {
	studentID string
	schoolID  string
}

func keyOf(studentID, schoolID *big.Int) credentialKey {
	return credentialKey{studentID: studentID.String(), schoolID: schoolID.String()}
}

type storedCredential struct {
	credential interfaces.Credential
	issuer     common.Address
}

// mockLedger is the contract state shared by every MockRegistryClient view.
type mockLedger struct {
	mutex sync.RWMutex

	owner            common.Address
	institutions     map[common.Address]*interfaces.Institution
	institutionOrder []common.Address
	codes            map[string]bool
	credentials      map[credentialKey]*storedCredential

	nonce       uint64
	blockNumber uint64
	receipts    map[common.Hash]*types.Receipt
	reasons     map[common.Hash]string
	pendingFor  map[common.Hash]int

	now          func() time.Time
	failures     map[string]error
	keyFailures  map[common.Address]error
	mineReverts  map[string]string
	pendingPolls int
	calls        map[string]int
}

// MockRegistryClient provides an in-memory implementation of the CredentialRegistry
// interface for testing purposes without requiring a blockchain connection.
// It enforces the deployed contract's rules: owner-only institution registration,
// duplicate checks, issuer-only revocation and expiry-aware verification.
// Rejected writes fail at submission with a RevertError, the way a node rejects them
// during gas estimation.
type MockRegistryClient struct {
	*mockLedger
	address          common.Address
	sender           common.Address
	allowTransacting bool
}

// NewMockRegistryClient creates an empty in-memory registry at address owned by owner.
// The returned client is read-only, use WithSender or SetTransactOpts to send transactions.
func NewMockRegistryClient(address, owner common.Address) *MockRegistryClient {
	return &MockRegistryClient{
		mockLedger: &mockLedger{
			owner:        owner,
			institutions: make(map[common.Address]*interfaces.Institution),
			codes:        make(map[string]bool),
			credentials:  make(map[credentialKey]*storedCredential),
			receipts:     make(map[common.Hash]*types.Receipt),
			reasons:      make(map[common.Hash]string),
			pendingFor:   make(map[common.Hash]int),
			now:          time.Now,
			failures:     make(map[string]error),
			keyFailures:  make(map[common.Address]error),
			mineReverts:  make(map[string]string),
			calls:        make(map[string]int),
		},
		address: address,
	}
}

// WithSender returns a view of the same registry that sends transactions as sender.
func (m *MockRegistryClient) WithSender(sender common.Address) *MockRegistryClient {
	return &MockRegistryClient{
		mockLedger:       m.mockLedger,
		address:          m.address,
		sender:           sender,
		allowTransacting: true,
	}
}

// SetTransactOpts enables transaction operations on the mock client as auth.From.
func (m *MockRegistryClient) SetTransactOpts(auth *bind.TransactOpts) {
	m.sender = auth.From
	m.allowTransacting = true
}

// SetNow overrides the clock used for expiry checks.
func (m *MockRegistryClient) SetNow(now func() time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.now = now
}

// FailOn makes every call of the named method return err until cleared with a nil err.
func (m *MockRegistryClient) FailOn(method string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// FailInstitution makes InstitutionsData fail for one address.
func (m *MockRegistryClient) FailInstitution(institution common.Address, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.keyFailures[institution] = err
}

// RevertOnMine makes the next accepted transaction of the named method get mined with
// status 0, reporting reason on replay.
func (m *MockRegistryClient) RevertOnMine(method, reason string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.mineReverts[method] = reason
}

// SetPendingPolls makes receipts of subsequently sent transactions unavailable for the
// given number of lookups.
func (m *MockRegistryClient) SetPendingPolls(n int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.pendingPolls = n
}

// CallCount returns how many times the named method was invoked across all views.
func (m *MockRegistryClient) CallCount(method string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.calls[method]
}

// record counts the call and returns an injected failure. Caller must hold the lock.
func (m *MockRegistryClient) record(method string) error {
	m.calls[method]++
	return m.failures[method]
}

func (m *MockRegistryClient) Address() common.Address {
	return m.address
}

func (m *MockRegistryClient) Owner(ctx context.Context) (common.Address, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("Owner"); err != nil {
		return common.Address{}, err
	}
	return m.owner, nil
}

func (m *MockRegistryClient) AllRegisteredInstitutionAddresses(ctx context.Context) ([]common.Address, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("AllRegisteredInstitutionAddresses"); err != nil {
		return nil, err
	}
	return append([]common.Address(nil), m.institutionOrder...), nil
}

// InstitutionsData returns a zero tuple for unknown addresses, as a public mapping getter does.
func (m *MockRegistryClient) InstitutionsData(ctx context.Context, institution common.Address) (*interfaces.Institution, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("InstitutionsData"); err != nil {
		return nil, err
	}
	if err, found := m.keyFailures[institution]; found {
		return nil, err
	}

	inst, found := m.institutions[institution]
	if !found {
		return &interfaces.Institution{Code: new(big.Int)}, nil
	}
	cp := *inst
	cp.Code = new(big.Int).Set(inst.Code)
	return &cp, nil
}

func (m *MockRegistryClient) InstitutionCodeExists(ctx context.Context, code *big.Int) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("InstitutionCodeExists"); err != nil {
		return false, err
	}
	return m.codes[code.String()], nil
}

func (m *MockRegistryClient) SearchCredential(ctx context.Context, studentID, schoolID *big.Int) (*interfaces.Credential, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("SearchCredential"); err != nil {
		return nil, err
	}

	stored, found := m.credentials[keyOf(studentID, schoolID)]
	if !found {
		return nil, &interfaces.RevertError{Reason: ReasonCredentialNotFound}
	}
	return copyCredential(&stored.credential), nil
}

func (m *MockRegistryClient) VerifyCredential(ctx context.Context, studentID, schoolID *big.Int, documentHash string) (*interfaces.Verification, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("VerifyCredential"); err != nil {
		return nil, err
	}

	stored, found := m.credentials[keyOf(studentID, schoolID)]
	if !found {
		return &interfaces.Verification{}, nil
	}

	cred := stored.credential
	expired := cred.ExpiryDate != nil && cred.ExpiryDate.Sign() > 0 &&
		big.NewInt(m.now().Unix()).Cmp(cred.ExpiryDate) > 0

	return &interfaces.Verification{
		IsValid:   cred.DocumentHash == documentHash && !cred.IsRevoked && !expired,
		IsRevoked: cred.IsRevoked,
		IsExpired: expired,
	}, nil
}

func (m *MockRegistryClient) RegisterInstitution(ctx context.Context, institution common.Address, name string, code *big.Int) (*types.Transaction, error) {
	if !m.allowTransacting {
		return nil, ErrNoTransactOpts
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("RegisterInstitution"); err != nil {
		return nil, err
	}

	if m.sender != m.owner {
		return nil, &interfaces.RevertError{Reason: ReasonOnlyOwner}
	}
	if institution == (common.Address{}) {
		return nil, &interfaces.RevertError{Reason: ReasonInvalidInstitution}
	}
	if inst, found := m.institutions[institution]; found && inst.IsRegistered {
		return nil, &interfaces.RevertError{Reason: ReasonInstitutionRegistered}
	}
	if m.codes[code.String()] {
		return nil, &interfaces.RevertError{Reason: ReasonCodeExists}
	}

	return m.send("RegisterInstitution", func() {
		m.institutions[institution] = &interfaces.Institution{
			InstitutionAddress: institution,
			Name:               name,
			Code:               new(big.Int).Set(code),
			IsRegistered:       true,
		}
		m.institutionOrder = append(m.institutionOrder, institution)
		m.codes[code.String()] = true
	}), nil
}

func (m *MockRegistryClient) StoreCredential(ctx context.Context, credential *interfaces.Credential) (*types.Transaction, error) {
	if !m.allowTransacting {
		return nil, ErrNoTransactOpts
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("StoreCredential"); err != nil {
		return nil, err
	}

	if inst, found := m.institutions[m.sender]; !found || !inst.IsRegistered {
		return nil, &interfaces.RevertError{Reason: ReasonOnlyInstitution}
	}
	if credential.StudentId == nil || credential.SchoolId == nil ||
		credential.StudentId.Sign() == 0 || credential.SchoolId.Sign() == 0 {
		return nil, &interfaces.RevertError{Reason: ReasonInvalidIDs}
	}
	key := keyOf(credential.StudentId, credential.SchoolId)
	if _, found := m.credentials[key]; found {
		return nil, &interfaces.RevertError{Reason: ReasonCredentialExists}
	}
	if credential.ExpiryDate != nil && credential.ExpiryDate.Sign() > 0 &&
		credential.IssueDate != nil && credential.ExpiryDate.Cmp(credential.IssueDate) <= 0 {
		return nil, &interfaces.RevertError{Reason: ReasonInvalidExpiry}
	}

	stored := copyCredential(credential)
	stored.IsRevoked = false
	if stored.ExpiryDate == nil {
		stored.ExpiryDate = new(big.Int)
	}
	issuer := m.sender

	return m.send("StoreCredential", func() {
		m.credentials[key] = &storedCredential{credential: *stored, issuer: issuer}
	}), nil
}

func (m *MockRegistryClient) RevokeCredential(ctx context.Context, studentID, schoolID *big.Int) (*types.Transaction, error) {
	if !m.allowTransacting {
		return nil, ErrNoTransactOpts
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("RevokeCredential"); err != nil {
		return nil, err
	}

	stored, found := m.credentials[keyOf(studentID, schoolID)]
	if !found {
		return nil, &interfaces.RevertError{Reason: ReasonCredentialNotFound}
	}
	if m.sender != stored.issuer && m.sender != m.owner {
		return nil, &interfaces.RevertError{Reason: ReasonOnlyIssuer}
	}
	if stored.credential.IsRevoked {
		return nil, &interfaces.RevertError{Reason: ReasonCredentialRevoked}
	}

	return m.send("RevokeCredential", func() {
		stored.credential.IsRevoked = true
	}), nil
}

// send creates a transaction and its receipt. The state change is applied immediately
// unless the method is scheduled to revert on mining. Caller must hold the lock.
func (m *MockRegistryClient) send(method string, apply func()) *types.Transaction {
	to := m.address
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    m.nonce,
		To:       &to,
		Gas:      100000,
		GasPrice: big.NewInt(1),
		Data:     []byte(method),
	})
	m.nonce++
	m.blockNumber++

	status := types.ReceiptStatusSuccessful
	if reason, found := m.mineReverts[method]; found {
		delete(m.mineReverts, method)
		status = types.ReceiptStatusFailed
		m.reasons[tx.Hash()] = reason
	} else {
		apply()
	}

	m.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(m.blockNumber),
		GasUsed:     21000,
	}
	m.pendingFor[tx.Hash()] = m.pendingPolls
	return tx
}

// TransactionReceipt returns ethereum.NotFound while the transaction is still pending.
func (m *MockRegistryClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("TransactionReceipt"); err != nil {
		return nil, err
	}

	receipt, found := m.receipts[txHash]
	if !found {
		return nil, ethereum.NotFound
	}
	if m.pendingFor[txHash] > 0 {
		m.pendingFor[txHash]--
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (m *MockRegistryClient) RevertReason(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.record("RevertReason"); err != nil {
		return "", err
	}
	return m.reasons[tx.Hash()], nil
}

func copyCredential(c *interfaces.Credential) *interfaces.Credential {
	cp := *c
	for _, field := range []**big.Int{&cp.StudentId, &cp.SchoolId, &cp.DateOfBirth, &cp.IssueDate, &cp.ExpiryDate} {
		if *field != nil {
			*field = new(big.Int).Set(*field)
		}
	}
	return &cp
}

// MockClientFactory hands out views of one MockRegistryClient, each sending as the
// signer's account.
type MockClientFactory struct {
	Registry *MockRegistryClient
}

// NewMockClientFactory creates a factory over an empty in-memory registry.
func NewMockClientFactory(address, owner common.Address) *MockClientFactory {
	return &MockClientFactory{Registry: NewMockRegistryClient(address, owner)}
}

// RegistryFor returns a view of the shared registry authorized by auth.
func (f *MockClientFactory) RegistryFor(address common.Address, auth *bind.TransactOpts) (interfaces.CredentialRegistry, error) {
	if auth == nil {
		return &MockRegistryClient{mockLedger: f.Registry.mockLedger, address: address}, nil
	}
	view := f.Registry.WithSender(auth.From)
	view.address = address
	return view, nil
}
