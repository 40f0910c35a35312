package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

// MSP IDs as provisioned by the Microfab network.
const (
	WhistleblowersOrgMSP = "WhistleblowersOrgMSP"
	VerifierOrgMSP       = "VerifierOrgMSP"
	LegalOrgMSP          = "LegalOrgMSP"
)

const (
	WhistleblowerPrivateCollection = "WhistleblowerPrivateCollection"
	VerifierPrivateCollection      = "VerifierPrivateCollection"
	LegalPrivateCollection         = "LegalPrivateCollection"
)

var ErrAccessDenied = errors.New("access denied")

var allOrgs = []string{WhistleblowersOrgMSP, VerifierOrgMSP, LegalOrgMSP}

func clientOrg(ctx contractapi.TransactionContextInterface) (string, error) {
	id := ctx.GetClientIdentity()
	if id == nil {
		return "", errors.New("failed to get client MSP ID: no client identity")
	}
	msp, err := id.GetMSPID()
	if err != nil {
		return "", fmt.Errorf("failed to get client MSP ID: %w", err)
	}
	return msp, nil
}

// requireOrg returns the caller's MSP ID when it is one of allowed.
func requireOrg(ctx contractapi.TransactionContextInterface, allowed ...string) (string, error) {
	msp, err := clientOrg(ctx)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if msp == a {
			return msp, nil
		}
	}
	if len(allowed) == 1 {
		return "", fmt.Errorf("%w: caller MSP '%s' is not authorized, required '%s'", ErrAccessDenied, msp, allowed[0])
	}
	return "", fmt.Errorf("%w: caller MSP '%s' not in allowed list [%s]", ErrAccessDenied, msp, strings.Join(allowed, " "))
}

func requireAnyOrg(ctx contractapi.TransactionContextInterface) (string, error) {
	return requireOrg(ctx, allOrgs...)
}
