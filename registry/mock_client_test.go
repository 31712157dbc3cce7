package registry

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/credential-registry-client/interfaces"
)

func requireRevert(t *testing.T, err error, reason string) {
	t.Helper()
	var revertErr *interfaces.RevertError
	require.ErrorAs(t, err, &revertErr)
	assert.Equal(t, reason, revertErr.Reason)
}

func TestMockRegistryClient_InstitutionRules(t *testing.T) {
	ctx := context.Background()
	base := NewMockRegistryClient(contractAddr, accountA)

	_, err := base.RegisterInstitution(ctx, accountB, "Uni B", big.NewInt(123456789))
	assert.ErrorIs(t, err, ErrNoTransactOpts)

	_, err = base.WithSender(accountB).RegisterInstitution(ctx, accountB, "Uni B", big.NewInt(123456789))
	requireRevert(t, err, ReasonOnlyOwner)

	owner := base.WithSender(accountA)
	tx, err := owner.RegisterInstitution(ctx, accountB, "Uni B", big.NewInt(123456789))
	require.NoError(t, err)

	receipt, err := owner.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	_, err = owner.RegisterInstitution(ctx, accountB, "Uni B", big.NewInt(987654321))
	requireRevert(t, err, ReasonInstitutionRegistered)

	_, err = owner.RegisterInstitution(ctx, accountA, "Uni A", big.NewInt(123456789))
	requireRevert(t, err, ReasonCodeExists)

	inst, err := base.InstitutionsData(ctx, accountB)
	require.NoError(t, err)
	assert.True(t, inst.IsRegistered)
	assert.Equal(t, "Uni B", inst.Name)

	unknown, err := base.InstitutionsData(ctx, accountA)
	require.NoError(t, err)
	assert.False(t, unknown.IsRegistered)
	assert.Equal(t, int64(0), unknown.Code.Int64())

	exists, err := base.InstitutionCodeExists(ctx, big.NewInt(123456789))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMockRegistryClient_CredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	base := NewMockRegistryClient(contractAddr, accountA)
	_, err := base.WithSender(accountA).RegisterInstitution(ctx, accountB, "Uni B", big.NewInt(123456789))
	require.NoError(t, err)

	issuer := base.WithSender(accountB)
	issue := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	cred := &interfaces.Credential{
		StudentId:    big.NewInt(101),
		SchoolId:     big.NewInt(1001),
		StudentName:  "Alice",
		IssueDate:    big.NewInt(issue.Unix()),
		ExpiryDate:   big.NewInt(issue.AddDate(1, 0, 0).Unix()),
		DocumentHash: "abc",
		IpfsCid:      "QmHash",
	}

	_, err = base.WithSender(accountA).StoreCredential(ctx, cred)
	requireRevert(t, err, ReasonOnlyInstitution)

	_, err = issuer.StoreCredential(ctx, cred)
	require.NoError(t, err)

	_, err = issuer.StoreCredential(ctx, cred)
	requireRevert(t, err, ReasonCredentialExists)

	base.SetNow(func() time.Time { return issue.AddDate(0, 6, 0) })
	verification, err := base.VerifyCredential(ctx, big.NewInt(101), big.NewInt(1001), "abc")
	require.NoError(t, err)
	assert.Equal(t, &interfaces.Verification{IsValid: true}, verification)

	verification, err = base.VerifyCredential(ctx, big.NewInt(101), big.NewInt(1001), "other")
	require.NoError(t, err)
	assert.False(t, verification.IsValid)

	base.SetNow(func() time.Time { return issue.AddDate(2, 0, 0) })
	verification, err = base.VerifyCredential(ctx, big.NewInt(101), big.NewInt(1001), "abc")
	require.NoError(t, err)
	assert.Equal(t, &interfaces.Verification{IsExpired: true}, verification)

	_, err = base.WithSender(contractAddr).RevokeCredential(ctx, big.NewInt(101), big.NewInt(1001))
	requireRevert(t, err, ReasonOnlyIssuer)

	_, err = issuer.RevokeCredential(ctx, big.NewInt(101), big.NewInt(1001))
	require.NoError(t, err)

	_, err = issuer.RevokeCredential(ctx, big.NewInt(101), big.NewInt(1001))
	requireRevert(t, err, ReasonCredentialRevoked)

	stored, err := base.SearchCredential(ctx, big.NewInt(101), big.NewInt(1001))
	require.NoError(t, err)
	assert.True(t, stored.IsRevoked)

	_, err = base.SearchCredential(ctx, big.NewInt(1), big.NewInt(1))
	requireRevert(t, err, ReasonCredentialNotFound)

	_, err = issuer.RevokeCredential(ctx, big.NewInt(1), big.NewInt(1))
	requireRevert(t, err, ReasonCredentialNotFound)
}

func TestMockRegistryClient_MiningControls(t *testing.T) {
	ctx := context.Background()
	base := NewMockRegistryClient(contractAddr, accountA)
	owner := base.WithSender(accountA)

	base.SetPendingPolls(2)
	base.RevertOnMine("RegisterInstitution", ReasonInstitutionRegistered)

	tx, err := owner.RegisterInstitution(ctx, accountB, "Uni B", big.NewInt(123456789))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = owner.TransactionReceipt(ctx, tx.Hash())
		assert.ErrorIs(t, err, ethereum.NotFound)
	}

	receipt, err := owner.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)

	reason, err := owner.RevertReason(ctx, tx, receipt)
	require.NoError(t, err)
	assert.Equal(t, ReasonInstitutionRegistered, reason)

	inst, err := base.InstitutionsData(ctx, accountB)
	require.NoError(t, err)
	assert.False(t, inst.IsRegistered, "reverted transaction must not change state")
}

func TestMockClientFactory(t *testing.T) {
	factory := NewMockClientFactory(contractAddr, accountA)

	readOnly, err := factory.RegistryFor(contractAddr, nil)
	require.NoError(t, err)
	_, err = readOnly.RevokeCredential(context.Background(), big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoTransactOpts)

	reg, err := factory.RegistryFor(contractAddr, noSendOpts(t, mustKey(t)))
	require.NoError(t, err)
	_, err = reg.RegisterInstitution(context.Background(), accountB, "Uni B", big.NewInt(123456789))
	requireRevert(t, err, ReasonOnlyOwner)
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}
