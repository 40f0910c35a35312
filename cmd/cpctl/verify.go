package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chainproof/pkg/evidencehash"
)

func newVerifyFileCmd() *cobra.Command {
	var expected string
	cmd := &cobra.Command{
		Use:   "verify-file <file>",
		Short: "Check a file against an expected sha256",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := args[0]
			if strings.TrimSpace(expected) == "" {
				failSummary(out, path, "", expected, "--expected is required")
				return errMismatch
			}
			digests, err := hashFiles([]string{path})
			if err != nil {
				failSummary(out, path, "", expected, err.Error())
				return errMismatch
			}
			computed := digests[0].Hash
			if !evidencehash.HashesMatch(computed, expected) {
				failSummary(out, path, computed, expected, "computed hash does not match expected hash")
				return errMismatch
			}
			passSummary(out, path, computed, expected)
			return nil
		},
	}
	cmd.Flags().StringVar(&expected, "expected", "", "expected sha256 hex digest")
	return cmd
}

func passSummary(w io.Writer, path, computed, expected string) {
	fmt.Fprintf(w, "{\"protocol\":\"chainproof\",\"status\":\"PASS\",\"file\":%s,\"computed_hash\":%s,\"expected_hash\":%s,\"timestamp_utc\":\"%s\"}\n",
		jsonQuote(path),
		jsonQuote(computed),
		jsonQuote(expected),
		now().UTC().Format(time.RFC3339),
	)
}

func failSummary(w io.Writer, path, computed, expected, reason string) {
	fmt.Fprintf(w, "{\"protocol\":\"chainproof\",\"status\":\"FAIL\",\"file\":%s,\"computed_hash\":%s,\"expected_hash\":%s,\"reason\":%s,\"timestamp_utc\":\"%s\"}\n",
		jsonQuote(path),
		jsonQuote(computed),
		jsonQuote(expected),
		jsonQuote(reason),
		now().UTC().Format(time.RFC3339),
	)
}

func jsonQuote(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}
