package common

// Build-time values, overridden with
// -ldflags "-X github.com/ruteri/credential-registry-client/common.ContractAddress=0x..."
var (
	Version = "dev"

	// ContractAddress is the address of the deployed SIRCMS registry contract.
	ContractAddress = "0xA82b7F3fd0366b2B08c8d626dBdC3D2485b73abd"

	// ChainID is the decimal id of the network the contract is deployed on (Sepolia).
	ChainID = "11155111"
)

const PackageName = "github.com/ruteri/credential-registry-client"
