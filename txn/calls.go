package txn

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// Operation names a state-changing registry operation.
type Operation string

const (
	OpRegisterInstitution Operation = "registerInstitution"
	OpStoreCredential     Operation = "storeCredential"
	OpRevokeCredential    Operation = "revokeCredential"
)

// Call is one contract write. Send must submit exactly one transaction.
type Call interface {
	Operation() Operation
	Send(ctx context.Context, registry interfaces.CredentialRegistry) (*types.Transaction, error)
	// SuccessMessage is shown once the transaction is confirmed.
	SuccessMessage() string
}

// RegisterInstitution registers an institution address under a name and code. Owner only.
type RegisterInstitution struct {
	Institution common.Address
	Name        string
	Code        *big.Int
}

func (c RegisterInstitution) Operation() Operation { return OpRegisterInstitution }

func (c RegisterInstitution) Send(ctx context.Context, registry interfaces.CredentialRegistry) (*types.Transaction, error) {
	return registry.RegisterInstitution(ctx, c.Institution, c.Name, c.Code)
}

func (c RegisterInstitution) SuccessMessage() string {
	return fmt.Sprintf("Institution %q registered successfully!", c.Name)
}

// StoreCredential stores a credential issued by the sending institution.
type StoreCredential struct {
	Credential *interfaces.Credential
}

func (c StoreCredential) Operation() Operation { return OpStoreCredential }

func (c StoreCredential) Send(ctx context.Context, registry interfaces.CredentialRegistry) (*types.Transaction, error) {
	return registry.StoreCredential(ctx, c.Credential)
}

func (c StoreCredential) SuccessMessage() string {
	return fmt.Sprintf("Credential for %s (%s) stored successfully!", c.Credential.StudentName, c.Credential.CertificateTitle)
}

// RevokeCredential revokes the credential identified by a student and school id.
type RevokeCredential struct {
	StudentID *big.Int
	SchoolID  *big.Int
}

func (c RevokeCredential) Operation() Operation { return OpRevokeCredential }

func (c RevokeCredential) Send(ctx context.Context, registry interfaces.CredentialRegistry) (*types.Transaction, error) {
	return registry.RevokeCredential(ctx, c.StudentID, c.SchoolID)
}

func (c RevokeCredential) SuccessMessage() string {
	return fmt.Sprintf(`Credential for Student ID "%s" and School ID "%s" revoked successfully!`, c.StudentID, c.SchoolID)
}
