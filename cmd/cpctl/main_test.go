package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainproof/pkg/evidencehash"
	"chainproof/pkg/identity"
	"chainproof/pkg/svcauth"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestHashPrintsEachFile(t *testing.T) {
	a := writeFile(t, "a.txt", "alpha")
	b := writeFile(t, "b.txt", "beta")
	out, err := run(t, "hash", a, b)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, evidencehash.HashStringSHA256Hex("alpha")+"  "+a, lines[0])
	assert.Equal(t, evidencehash.HashStringSHA256Hex("beta")+"  "+b, lines[1])
}

func TestHashMissingFile(t *testing.T) {
	_, err := run(t, "hash", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestIdentity(t *testing.T) {
	out, err := run(t, "identity", "--name", " Asha Rao ", "--aadhaar", "1234 5678 9012")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	aadhaarHash, pkh := identity.Hashes("asha rao", "123456789012")
	assert.Equal(t, aadhaarHash, got["aadhaarHash"])
	assert.Equal(t, pkh, got["publicKeyHash"])
	assert.Equal(t, strings.ToUpper(pkh[:8]), got["loginKey"])

	_, err = run(t, "identity", "--name", "Asha")
	require.Error(t, err)
}

func TestLookupKeyPepperSources(t *testing.T) {
	t.Setenv("LOOKUP_PEPPER", "")
	out, err := run(t, "lookup-key", "--pkh", "abc")
	require.NoError(t, err)
	assert.Equal(t, identity.LookupKey(identity.DefaultPepper, "abc"), strings.TrimSpace(out))

	t.Setenv("LOOKUP_PEPPER", "from-env")
	out, err = run(t, "lookup-key", "--pkh", "abc")
	require.NoError(t, err)
	assert.Equal(t, identity.LookupKey("from-env", "abc"), strings.TrimSpace(out))

	out, err = run(t, "lookup-key", "--pkh", "abc", "--pepper", "flag")
	require.NoError(t, err)
	assert.Equal(t, identity.LookupKey("flag", "abc"), strings.TrimSpace(out))
}

func TestVerifyFile(t *testing.T) {
	now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })
	p := writeFile(t, "evidence.bin", "payload")
	want := evidencehash.HashStringSHA256Hex("payload")

	out, err := run(t, "verify-file", p, "--expected", strings.ToUpper(want))
	require.NoError(t, err)
	var pass map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &pass))
	assert.Equal(t, "PASS", pass["status"])
	assert.Equal(t, want, pass["computed_hash"])
	assert.Equal(t, "2026-03-14T09:30:00Z", pass["timestamp_utc"])

	out, err = run(t, "verify-file", p, "--expected", evidencehash.HashStringSHA256Hex("other"))
	require.ErrorIs(t, err, errMismatch)
	var fail map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &fail))
	assert.Equal(t, "FAIL", fail["status"])
	assert.Equal(t, "computed hash does not match expected hash", fail["reason"])
}

func TestAnchorID(t *testing.T) {
	out, err := run(t, "anchor-id", "EVD-1A2B3C4D")
	require.NoError(t, err)
	got := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(got, "0x"))
	assert.Len(t, got, 66)

	again, err := run(t, "anchor-id", "EVD-1A2B3C4D")
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestEvidenceGetSignsRequest(t *testing.T) {
	secret := "s3cret"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := svcauth.Verify(r.Header, r.Method, svcauth.Target(r.URL), nil, secret, time.Now(), time.Minute); err != nil {
			w.WriteHeader(401)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"bad signature"}}`))
			return
		}
		if r.URL.Path != "/api/fabric/evidence/EVD-1" {
			w.WriteHeader(404)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"NOT_FOUND","message":"Evidence EVD-1 does not exist"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"evidenceId":"EVD-1","status":"SUBMITTED"}}`))
	}))
	defer srv.Close()

	out, err := run(t, "evidence", "get", "EVD-1", "--gateway", srv.URL, "--secret", secret)
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "SUBMITTED", got["status"])

	_, err = run(t, "evidence", "get", "EVD-1", "--gateway", srv.URL, "--secret", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad signature")
}
