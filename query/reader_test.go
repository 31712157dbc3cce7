package query

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/registry"
	"github.com/ruteri/credential-registry-client/wallet"
)

var (
	chainID      = big.NewInt(11155111)
	contractAddr = common.HexToAddress("0xA82b7F3fd0366b2B08c8d626dBdC3D2485b73abd")
	ownerAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	instA        = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	instB        = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	instC        = common.HexToAddress("0xcccc000000000000000000000000000000000003")
)

func setupReader(t *testing.T) (*Reader, *registry.MockRegistryClient) {
	t.Helper()

	provider := wallet.NewMockProvider(chainID, ownerAddr)
	factory := registry.NewMockClientFactory(contractAddr, ownerAddr)
	session := wallet.NewSessionManager(provider, interfaces.Deployment{Address: contractAddr, ChainID: chainID}, factory, slog.Default())
	t.Cleanup(session.Close)
	require.NoError(t, session.Connect(context.Background()))

	return NewReader(session, slog.Default()), factory.Registry
}

func mustDate(t *testing.T, s string) interfaces.Date {
	t.Helper()
	d, err := interfaces.ParseDate(s)
	require.NoError(t, err)
	return d
}

func registerInstitution(t *testing.T, contract *registry.MockRegistryClient, address common.Address, name string, code int64) {
	t.Helper()
	_, err := contract.WithSender(ownerAddr).RegisterInstitution(context.Background(), address, name, big.NewInt(code))
	require.NoError(t, err)
}

func storeCredential(t *testing.T, contract *registry.MockRegistryClient, issuer common.Address, expiry *big.Int) {
	t.Helper()
	_, err := contract.WithSender(issuer).StoreCredential(context.Background(), &interfaces.Credential{
		StudentId:        big.NewInt(101),
		SchoolId:         big.NewInt(1001),
		StudentName:      "Ada Lovelace",
		DateOfBirth:      mustDate(t, "2000-05-17").Timestamp(),
		InstitutionName:  "School A",
		CertificateTitle: "BSc Mathematics",
		IssueDate:        mustDate(t, "2023-01-01").Timestamp(),
		ExpiryDate:       expiry,
		DocumentHash:     "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		IpfsCid:          "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
	})
	require.NoError(t, err)
}

func TestReader_Institution(t *testing.T) {
	reader, contract := setupReader(t)
	ctx := context.Background()
	registerInstitution(t, contract, instA, "School A", 123456789)

	record, err := reader.Institution(ctx, instA)
	require.NoError(t, err)
	assert.Equal(t, &InstitutionRecord{Address: instA, Name: "School A", Code: 123456789, IsRegistered: true}, record)

	_, err = reader.Institution(ctx, instB)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	registered, err := reader.InstitutionRegistered(ctx, instB)
	require.NoError(t, err)
	assert.False(t, registered)

	exists, err := reader.InstitutionCodeExists(ctx, 123456789)
	require.NoError(t, err)
	assert.True(t, exists)

	owner, err := reader.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, ownerAddr, owner)
}

func TestReader_AllInstitutionsPartialFailure(t *testing.T) {
	reader, contract := setupReader(t)
	registerInstitution(t, contract, instA, "School A", 100000001)
	registerInstitution(t, contract, instB, "School B", 100000002)
	registerInstitution(t, contract, instC, "School C", 100000003)

	contract.FailInstitution(instB, errors.New("dial tcp: connection refused"))

	entries, err := reader.AllInstitutions(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, instA, entries[0].Key)
	assert.Equal(t, "School A", entries[0].Value.Name)
	assert.NoError(t, entries[0].Err)

	assert.Equal(t, instB, entries[1].Key)
	assert.Nil(t, entries[1].Value)
	assert.ErrorIs(t, entries[1].Err, interfaces.ErrNetwork)

	assert.Equal(t, "School C", entries[2].Value.Name)
	assert.Equal(t, 3, contract.CallCount("InstitutionsData"), "the failing key does not stop the enumeration")
}

func TestReader_AllInstitutionsListFailure(t *testing.T) {
	reader, contract := setupReader(t)
	contract.FailOn("AllRegisteredInstitutionAddresses", errors.New("read tcp 10.0.0.2:8545: connection refused"))

	entries, err := reader.AllInstitutions(context.Background())
	assert.Nil(t, entries)
	assert.ErrorIs(t, err, interfaces.ErrNetwork)
}

func TestReader_CredentialRoundTrip(t *testing.T) {
	reader, contract := setupReader(t)
	ctx := context.Background()

	_, err := reader.Credential(ctx, 101, 1001)
	require.ErrorIs(t, err, interfaces.ErrNotFound)

	registerInstitution(t, contract, instA, "School A", 123456789)
	storeCredential(t, contract, instA, nil)

	record, err := reader.Credential(ctx, 101, 1001)
	require.NoError(t, err)
	assert.Equal(t, uint64(101), record.StudentID)
	assert.Equal(t, uint64(1001), record.SchoolID)
	assert.Equal(t, "Ada Lovelace", record.StudentName)
	assert.Equal(t, "2000-05-17", record.DateOfBirth.String())
	assert.Equal(t, "2023-01-01", record.IssueDate.String())
	assert.Nil(t, record.ExpiryDate, "zero expiry means the credential never expires")
	assert.Equal(t, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", record.IPFSCid)
	assert.False(t, record.IsRevoked)
}

func TestReader_Verify(t *testing.T) {
	reader, contract := setupReader(t)
	ctx := context.Background()
	hash := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

	registerInstitution(t, contract, instA, "School A", 123456789)
	storeCredential(t, contract, instA, mustDate(t, "2024-01-01").Timestamp())
	contract.SetNow(func() time.Time { return time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC) })

	result, err := reader.Verify(ctx, 101, 1001, hash)
	require.NoError(t, err)
	assert.Equal(t, &VerificationResult{IsValid: true}, result)

	result, err = reader.Verify(ctx, 101, 1001, "deadbeef")
	require.NoError(t, err)
	assert.False(t, result.IsValid)

	result, err = reader.Verify(ctx, 999, 1001, hash)
	require.NoError(t, err)
	assert.Equal(t, &VerificationResult{}, result, "missing credential is reported as invalid")

	contract.SetNow(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) })
	result, err = reader.Verify(ctx, 101, 1001, hash)
	require.NoError(t, err)
	assert.Equal(t, &VerificationResult{IsExpired: true}, result)

	contract.SetNow(func() time.Time { return time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC) })
	_, err = contract.WithSender(instA).RevokeCredential(ctx, big.NewInt(101), big.NewInt(1001))
	require.NoError(t, err)

	result, err = reader.Verify(ctx, 101, 1001, hash)
	require.NoError(t, err)
	assert.Equal(t, &VerificationResult{IsRevoked: true}, result)

	record, err := reader.Credential(ctx, 101, 1001)
	require.NoError(t, err)
	assert.True(t, record.IsRevoked)
	require.NotNil(t, record.ExpiryDate)
	assert.Equal(t, "2024-01-01", record.ExpiryDate.String())
}

func TestReader_NotConnected(t *testing.T) {
	session := wallet.NewSessionManager(nil, interfaces.Deployment{Address: contractAddr, ChainID: chainID}, nil, slog.Default())
	defer session.Close()

	_, err := NewReader(session, slog.Default()).Owner(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrNotConnected)
}
