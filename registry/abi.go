package registry

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// SIRCMSABI is the interface definition of the deployed credential registry contract.
const SIRCMSABI = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getAllRegisteredInstitutionAddresses","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"institutionsData","stateMutability":"view",
	 "inputs":[{"name":"","type":"address"}],
	 "outputs":[
		{"name":"institutionAddress","type":"address"},
		{"name":"name","type":"string"},
		{"name":"code","type":"uint224"},
		{"name":"isRegistered","type":"bool"}]},
	{"type":"function","name":"institutionCodeExists","stateMutability":"view",
	 "inputs":[{"name":"","type":"uint224"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"searchCredential","stateMutability":"view",
	 "inputs":[{"name":"_studentId","type":"uint256"},{"name":"_schoolId","type":"uint256"}],
	 "outputs":[
		{"name":"studentId","type":"uint256"},
		{"name":"schoolId","type":"uint256"},
		{"name":"studentName","type":"string"},
		{"name":"dateOfBirth","type":"uint256"},
		{"name":"institutionName","type":"string"},
		{"name":"certificateTitle","type":"string"},
		{"name":"issueDate","type":"uint256"},
		{"name":"expiryDate","type":"uint256"},
		{"name":"documentHash","type":"string"},
		{"name":"ipfsCid","type":"string"},
		{"name":"isRevoked","type":"bool"}]},
	{"type":"function","name":"verifyCredential","stateMutability":"view",
	 "inputs":[{"name":"_studentId","type":"uint256"},{"name":"_schoolId","type":"uint256"},{"name":"_documentHash","type":"string"}],
	 "outputs":[
		{"name":"isValid","type":"bool"},
		{"name":"isRevoked","type":"bool"},
		{"name":"isExpired","type":"bool"}]},
	{"type":"function","name":"registerInstitution","stateMutability":"nonpayable",
	 "inputs":[{"name":"_institutionAddress","type":"address"},{"name":"_name","type":"string"},{"name":"_code","type":"uint224"}],
	 "outputs":[]},
	{"type":"function","name":"storeCredential","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"_studentId","type":"uint256"},
		{"name":"_schoolId","type":"uint256"},
		{"name":"_studentName","type":"string"},
		{"name":"_dateOfBirth","type":"uint256"},
		{"name":"_institutionName","type":"string"},
		{"name":"_certificateTitle","type":"string"},
		{"name":"_issueDate","type":"uint256"},
		{"name":"_expiryDate","type":"uint256"},
		{"name":"_documentHash","type":"string"},
		{"name":"_ipfsCid","type":"string"}],
	 "outputs":[]},
	{"type":"function","name":"revokeCredential","stateMutability":"nonpayable",
	 "inputs":[{"name":"_studentId","type":"uint256"},{"name":"_schoolId","type":"uint256"}],
	 "outputs":[]},
	{"type":"event","name":"InstitutionRegistered","anonymous":false,
	 "inputs":[
		{"name":"institutionAddress","type":"address","indexed":true},
		{"name":"name","type":"string","indexed":false},
		{"name":"code","type":"uint256","indexed":false}]},
	{"type":"event","name":"CredentialStored","anonymous":false,
	 "inputs":[
		{"name":"studentId","type":"uint256","indexed":true},
		{"name":"schoolId","type":"uint256","indexed":true},
		{"name":"studentName","type":"string","indexed":false},
		{"name":"institutionName","type":"string","indexed":false},
		{"name":"certificateTitle","type":"string","indexed":false},
		{"name":"documentHash","type":"string","indexed":false}]},
	{"type":"event","name":"CredentialRevoked","anonymous":false,
	 "inputs":[
		{"name":"studentId","type":"uint256","indexed":true},
		{"name":"schoolId","type":"uint256","indexed":true}]}
]`

var (
	parsedABI     abi.ABI
	parsedABIErr  error
	parsedABIOnce sync.Once
)

// ParsedABI returns the parsed SIRCMS interface definition.
func ParsedABI() (abi.ABI, error) {
	parsedABIOnce.Do(func() {
		parsedABI, parsedABIErr = abi.JSON(strings.NewReader(SIRCMSABI))
	})
	return parsedABI, parsedABIErr
}
