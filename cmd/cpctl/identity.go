package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"chainproof/pkg/identity"
)

func newIdentityCmd() *cobra.Command {
	var name, aadhaar string
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Derive the identity hashes and login key for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" || strings.TrimSpace(aadhaar) == "" {
				return errors.New("--name and --aadhaar are required")
			}
			aadhaarHash, pkh := identity.Hashes(name, aadhaar)
			fmt.Fprintf(cmd.OutOrStdout(), "{\"aadhaarHash\":%s,\"publicKeyHash\":%s,\"loginKey\":%s}\n",
				jsonQuote(aadhaarHash), jsonQuote(pkh), jsonQuote(identity.LoginKey(pkh)))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name as registered")
	cmd.Flags().StringVar(&aadhaar, "aadhaar", "", "12 digit Aadhaar number")
	return cmd
}

func newLookupKeyCmd() *cobra.Command {
	var pkh, pepper string
	cmd := &cobra.Command{
		Use:   "lookup-key",
		Short: "Print the private lookup key for a public key hash",
		Long:  "The pepper defaults to LOOKUP_PEPPER, then to the development pepper.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(pkh) == "" {
				return errors.New("--pkh is required")
			}
			if pepper == "" {
				pepper = os.Getenv("LOOKUP_PEPPER")
			}
			if pepper == "" {
				pepper = identity.DefaultPepper
			}
			fmt.Fprintln(cmd.OutOrStdout(), identity.LookupKey(pepper, pkh))
			return nil
		},
	}
	cmd.Flags().StringVar(&pkh, "pkh", "", "public key hash")
	cmd.Flags().StringVar(&pepper, "pepper", "", "HMAC pepper")
	return cmd
}

func newAnchorIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "anchor-id <evidenceId>",
		Short: "Print the bytes32 key an evidence id is anchored under on Sepolia",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), crypto.Keccak256Hash([]byte(args[0])).Hex())
			return nil
		},
	}
}
