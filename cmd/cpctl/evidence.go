package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chainproof/pkg/svcauth"
)

var errEmptyResponse = errors.New("gateway returned no data")

func newEvidenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "Read evidence from the Fabric gateway",
	}
	var gateway, secret string
	get := &cobra.Command{
		Use:   "get <evidenceId>",
		Short: "Print the ledger record for an evidence id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("GATEWAY_SHARED_SECRET")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			data, err := fetchEvidence(ctx, gateway, secret, args[0])
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, data, "", "  "); err != nil {
				return err
			}
			pretty.WriteByte('\n')
			_, err = pretty.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	get.Flags().StringVar(&gateway, "gateway", envOr("FABRIC_GATEWAY_URL", "http://localhost:5000"), "Fabric gateway base URL")
	get.Flags().StringVar(&secret, "secret", "", "shared secret for signed requests (default $GATEWAY_SHARED_SECRET)")
	cmd.AddCommand(get)
	return cmd
}

func fetchEvidence(ctx context.Context, gateway, secret, evidenceID string) (json.RawMessage, error) {
	base := strings.TrimRight(strings.TrimSpace(gateway), "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/fabric/evidence/"+url.PathEscape(evidenceID), nil)
	if err != nil {
		return nil, err
	}
	if secret != "" {
		if err := svcauth.Sign(req, nil, secret, now()); err != nil {
			return nil, err
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode >= 300 {
		if env.Error.Message != "" {
			return nil, fmt.Errorf("gateway returned %d %s: %s", resp.StatusCode, env.Error.Code, env.Error.Message)
		}
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, errEmptyResponse
	}
	return env.Data, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
