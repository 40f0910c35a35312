package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// errMismatch exits 1 without extra output; the summary is already printed.
var errMismatch = errors.New("hash mismatch")

var now = time.Now

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cpctl",
		Short: "ChainProof evidence tooling",
		Long: `cpctl computes the identifiers ChainProof derives for users and evidence,
checks files against recorded hashes, and reads evidence from the Fabric gateway.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newHashCmd(),
		newIdentityCmd(),
		newLookupKeyCmd(),
		newVerifyFileCmd(),
		newEvidenceCmd(),
		newAnchorIDCmd(),
	)
	return root
}

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	if !errors.Is(err, errMismatch) {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(1)
}
