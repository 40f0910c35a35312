package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainproof/pkg/evidencehash"
)

func verified(t *testing.T, h *harness, id, pkh string) {
	t.Helper()
	h.submit(id, pkh)
	require.NoError(t, h.ver.VerifyIntegrity(h.as(VerifierOrgMSP), id, "hash-"+id, true, ""))
}

func TestReviewEvidenceLifecycle(t *testing.T) {
	h := newHarness(t)
	h.submit("EVD-1", "pkh")

	err := h.legal.ReviewEvidence(h.as(LegalOrgMSP), "EVD-1", false)
	require.ErrorContains(t, err, "must be VERIFIED or UNDER_REVIEW")

	require.NoError(t, h.ver.VerifyIntegrity(h.as(VerifierOrgMSP), "EVD-1", "hash-EVD-1", true, ""))
	require.NoError(t, h.legal.ReviewEvidence(h.as(LegalOrgMSP), "EVD-1", false))
	ev := h.evidence("EVD-1")
	assert.Equal(t, StatusUnderReview, ev.Status)
	assert.Zero(t, ev.ReviewedAt)
	assert.Equal(t, "Legal review started", ev.CustodyLog[len(ev.CustodyLog)-1].Description)

	require.NoError(t, h.legal.ReviewEvidence(h.as(LegalOrgMSP), "EVD-1", true))
	ev = h.evidence("EVD-1")
	assert.Equal(t, StatusReviewed, ev.Status)
	assert.Equal(t, h.stub.now, ev.ReviewedAt)
	last := ev.CustodyLog[len(ev.CustodyLog)-1]
	assert.Equal(t, ActionReview, last.Action)
	assert.Equal(t, LegalOrgMSP, last.ActorOrg)
	assert.Equal(t, "Legal review completed", last.Description)

	notif := h.stub.pdc[WhistleblowerPrivateCollection][notificationID("EVD-1", h.stub.now)]
	require.NotNil(t, notif)
	var n Notification
	require.NoError(t, json.Unmarshal(notif, &n))
	assert.Equal(t, NotifyReviewed, n.MessageType)

	require.ErrorIs(t, h.legal.ReviewEvidence(h.as(VerifierOrgMSP), "EVD-1", true), ErrAccessDenied)
}

func TestAddLegalComment(t *testing.T) {
	h := newHarness(t)
	verified(t, h, "EVD-1", "pkh")

	require.NoError(t, h.legal.AddLegalComment(h.as(LegalOrgMSP), "EVD-1", "C1", "admissible", "", "file motion"))
	require.ErrorContains(t, h.legal.AddLegalComment(h.as(LegalOrgMSP), "EVD-1", "C2", "x", "MAYBE", ""), "invalid court readiness")
	require.ErrorContains(t, h.legal.AddLegalComment(h.as(LegalOrgMSP), "NOPE", "C3", "x", CourtReady, ""), "does not exist")

	comments, err := h.legal.GetLegalComments(h.as(LegalOrgMSP), "EVD-1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, CourtNeedsReview, comments[0].CourtReadiness)
	assert.Equal(t, LegalOrgMSP, comments[0].LegalReviewerOrg)

	_, ok := h.stub.pdc[LegalPrivateCollection]["comment_EVD-1_C1"]
	assert.True(t, ok)
	ev := h.evidence("EVD-1")
	assert.Equal(t, ActionAddComment, ev.CustodyLog[len(ev.CustodyLog)-1].Action)
}

func TestExportEvidence(t *testing.T) {
	h := newHarness(t)
	verified(t, h, "EVD-1", "pkh")

	_, err := h.legal.ExportEvidence(h.as(LegalOrgMSP), "EVD-1")
	require.ErrorContains(t, err, "must be REVIEWED to export")

	require.NoError(t, h.legal.ReviewEvidence(h.as(LegalOrgMSP), "EVD-1", true))
	before := h.evidence("EVD-1")

	rec, err := h.legal.ExportEvidence(h.as(LegalOrgMSP), "EVD-1")
	require.NoError(t, err)
	assert.Equal(t, h.stub.now, rec.ExportedAt)
	assert.Equal(t, before.CustodyLog, rec.CustodyLog)

	unsigned := *rec
	unsigned.ExportHash = ""
	want, _, err := evidencehash.CanonicalSHA256(unsigned)
	require.NoError(t, err)
	assert.Equal(t, want, rec.ExportHash)

	ev := h.evidence("EVD-1")
	assert.Equal(t, StatusExported, ev.Status)
	assert.Equal(t, h.stub.now, ev.ExportedAt)
	last := ev.CustodyLog[len(ev.CustodyLog)-1]
	assert.Equal(t, ActionExport, last.Action)
	assert.Equal(t, "Evidence exported for court proceedings. Export hash: "+rec.ExportHash, last.Description)

	assert.Equal(t, 1, h.reputation("pkh").ExportedSubmissions)

	// Re-export of EXPORTED evidence is allowed and appends another entry.
	_, err = h.legal.ExportEvidence(h.as(LegalOrgMSP), "EVD-1")
	require.NoError(t, err)
	assert.Len(t, h.evidence("EVD-1").CustodyLog, len(ev.CustodyLog)+1)
}

func TestRepeatedExportCountsOnce(t *testing.T) {
	h := newHarness(t)
	verified(t, h, "EVD-1", "pkh")
	require.NoError(t, h.legal.ReviewEvidence(h.as(LegalOrgMSP), "EVD-1", true))

	_, err := h.legal.ExportEvidence(h.as(LegalOrgMSP), "EVD-1")
	require.NoError(t, err)
	firstAt := h.stub.now
	rep := *h.reputation("pkh")

	for i := 0; i < 2; i++ {
		rec, err := h.legal.ExportEvidence(h.as(LegalOrgMSP), "EVD-1")
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ExportHash)
		assert.Nil(t, h.stub.pdc[WhistleblowerPrivateCollection][notificationID("EVD-1", h.stub.now)])
	}

	assert.Equal(t, rep, *h.reputation("pkh"))
	assert.Equal(t, 1, h.reputation("pkh").TotalSubmissions)
	assert.Equal(t, 1, h.reputation("pkh").ExportedSubmissions)
	assert.NotNil(t, h.stub.pdc[WhistleblowerPrivateCollection][notificationID("EVD-1", firstAt)])
}

func TestQueryEvidenceByDateRange(t *testing.T) {
	h := newHarness(t)
	h.submit("EVD-1", "pkh") // t+1
	h.submit("EVD-2", "pkh") // t+2
	h.submit("EVD-3", "pkh") // t+3

	res, err := h.legal.QueryEvidenceByDateRange(h.as(LegalOrgMSP), baseTxTime+2, baseTxTime+3, 10, "")
	require.NoError(t, err)
	require.Equal(t, 2, res.FetchedRecordsCount)
	assert.Equal(t, "EVD-3", res.Records[0].EvidenceID)
	assert.Equal(t, "EVD-2", res.Records[1].EvidenceID)

	_, err = h.legal.QueryEvidenceByDateRange(h.as(VerifierOrgMSP), 0, baseTxTime+10, 10, "")
	require.ErrorIs(t, err, ErrAccessDenied)
	assert.Contains(t, err.Error(), "date range search is restricted to LegalOrg")

	_, err = h.legal.QueryEvidenceByDateRange(h.as(LegalOrgMSP), 10, 5, 10, "")
	require.Error(t, err)
}
