package contract

import "github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

const (
	Title   = "ChainProof - Secure Disclosure Network"
	Version = "1.0.0"
)

// NewChaincode assembles the four role contracts into one chaincode.
func NewChaincode() (*contractapi.ContractChaincode, error) {
	cc, err := contractapi.NewChaincode(
		&WhistleblowerContract{},
		&VerifierContract{},
		&LegalContract{},
		&QueryContract{},
	)
	if err != nil {
		return nil, err
	}
	cc.Info.Title = Title
	cc.Info.Version = Version
	return cc, nil
}
