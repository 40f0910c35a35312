package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"
)

func sample() Evidence {
	return Evidence{
		EvidenceID:      "EVD-1A2B3C4D",
		IPFSCID:         "bafybeigdyr",
		FileHash:        "ab12",
		Status:          "REVIEWED",
		IntegrityStatus: "VERIFIED",
		SubmittedAt:     1767225600,
		VerifiedAt:      1767229200,
		PolygonTxHash:   "0xdeadbeef",
		PolygonAnchorAt: 1767225660,
		CustodyLog: []CustodyEntry{
			{Action: "SUBMIT", ActorOrg: "WhistleblowersOrgMSP", Timestamp: 1767225600, Description: "Evidence submitted anonymously"},
			{Action: "VERIFY", ActorOrg: "VerifierOrgMSP", Timestamp: 1767229200, Description: "Integrity verified"},
		},
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := FormatTimestamp(1767225600); got != "2026-01-01 00:00:00 UTC" {
		t.Fatalf("FormatTimestamp = %q", got)
	}
	if got := FormatTimestamp(0); got != "N/A" {
		t.Fatalf("FormatTimestamp(0) = %q", got)
	}
}

func TestHashMatchesDocumentedLayout(t *testing.T) {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	ev := Evidence{EvidenceID: "EVD-1", FileHash: "ff"}
	got, err := Hash(ev, now)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	sum := sha256.Sum256([]byte(`{"evidenceId":"EVD-1","fileHash":"ff","custodyLog":[],"exportedAt":"2026-02-03T04:05:06Z"}`))
	if want := hex.EncodeToString(sum[:]); got != want {
		t.Fatalf("Hash = %s, want %s", got, want)
	}
}

func TestAuditReportRendersSections(t *testing.T) {
	compress = false
	defer func() { compress = true }()
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	pdf, hash, err := AuditReport(sample(), now)
	if err != nil {
		t.Fatalf("AuditReport: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
	want, _ := Hash(sample(), now)
	if hash != want {
		t.Fatalf("report hash %s, want %s", hash, want)
	}
	for _, s := range []string{"CHAINPROOF", "EVIDENCE SUMMARY", "PUBLIC BLOCKCHAIN ANCHOR", "CHAIN OF CUSTODY LOG", "VerifierOrgMSP", hash} {
		if !bytes.Contains(pdf, []byte(s)) {
			t.Fatalf("expected %q in report", s)
		}
	}
	if bytes.Contains(pdf, []byte("Reviewed:")) {
		t.Fatalf("unset timeline rows should be omitted")
	}
}

func TestAuditReportWithoutCustodyOrAnchor(t *testing.T) {
	compress = false
	defer func() { compress = true }()
	ev := Evidence{EvidenceID: "EVD-EMPTY", FileHash: "00"}
	pdf, _, err := AuditReport(ev, time.Now())
	if err != nil {
		t.Fatalf("AuditReport: %v", err)
	}
	if !bytes.Contains(pdf, []byte("No custody log entries found.")) {
		t.Fatalf("expected empty custody notice")
	}
	if bytes.Contains(pdf, []byte("PUBLIC BLOCKCHAIN ANCHOR")) {
		t.Fatalf("anchor section should be omitted without a tx hash")
	}
}
