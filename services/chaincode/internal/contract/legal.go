package contract

import (
	"errors"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	"chainproof/pkg/evidencehash"
)

// LegalContract handles review, private assessment and court export.
// Callers must belong to LegalOrgMSP.
type LegalContract struct {
	contractapi.Contract
}

func (c *LegalContract) ReviewEvidence(
	ctx contractapi.TransactionContextInterface,
	evidenceId string,
	reviewComplete bool,
) error {
	caller, err := requireOrg(ctx, LegalOrgMSP)
	if err != nil {
		return err
	}
	ev, err := getEvidence(ctx, evidenceId)
	if err != nil {
		return err
	}
	if ev.Status != StatusVerified && ev.Status != StatusUnderReview {
		return fmt.Errorf("evidence must be VERIFIED or UNDER_REVIEW to review, current: %s", ev.Status)
	}
	ts, err := txUnix(ctx)
	if err != nil {
		return err
	}

	description := "Legal review started"
	ev.Status = StatusUnderReview
	if reviewComplete {
		ev.Status = StatusReviewed
		ev.ReviewedAt = ts
		description = "Legal review completed"
		msg := fmt.Sprintf("Your evidence (ID: %s) has completed legal review.", evidenceId)
		secondary("notification", ev.PublicKeyHash, notify(ctx, ev.PublicKeyHash, evidenceId, NotifyReviewed, msg, caller, ts))
	}
	ev.appendCustody(ActionReview, caller, ts, description)
	return putEvidence(ctx, ev)
}

func validCourtReadiness(v string) bool {
	switch v {
	case CourtReady, CourtNotReady, CourtNeedsReview:
		return true
	}
	return false
}

func commentKey(evidenceID, commentID string) string {
	return fmt.Sprintf("comment_%s_%s", evidenceID, commentID)
}

func (c *LegalContract) AddLegalComment(
	ctx contractapi.TransactionContextInterface,
	evidenceId string,
	commentId string,
	content string,
	courtReadiness string,
	recommendation string,
) error {
	caller, err := requireOrg(ctx, LegalOrgMSP)
	if err != nil {
		return err
	}
	if courtReadiness == "" {
		courtReadiness = CourtNeedsReview
	}
	if !validCourtReadiness(courtReadiness) {
		return fmt.Errorf("invalid court readiness %q", courtReadiness)
	}
	ev, err := getEvidence(ctx, evidenceId)
	if err != nil {
		return err
	}
	ts, err := txUnix(ctx)
	if err != nil {
		return err
	}
	comment := LegalComment{
		DocType:          docTypeComment,
		EvidenceID:       evidenceId,
		CommentID:        commentId,
		Content:          content,
		CourtReadiness:   courtReadiness,
		Recommendation:   recommendation,
		CreatedAt:        ts,
		LegalReviewerOrg: caller,
	}
	if err := putPrivateJSON(ctx, LegalPrivateCollection, commentKey(evidenceId, commentId), comment); err != nil {
		return fmt.Errorf("failed to store legal comment in PDC: %w", err)
	}
	ev.appendCustody(ActionAddComment, caller, ts, "Legal comment added (private)")
	return putEvidence(ctx, ev)
}

func (c *LegalContract) GetLegalComments(
	ctx contractapi.TransactionContextInterface,
	evidenceId string,
) ([]*LegalComment, error) {
	if _, err := requireOrg(ctx, LegalOrgMSP); err != nil {
		return nil, err
	}
	q := richQuery{Selector: map[string]any{"docType": docTypeComment, "evidenceId": evidenceId}}
	comments, err := collectPrivate[LegalComment](ctx, LegalPrivateCollection, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query legal comments: %w", err)
	}
	return comments, nil
}

// ExportEvidence builds the court package. ExportHash is the sha256 of the
// record's JSON taken while ExportHash is still empty.
func (c *LegalContract) ExportEvidence(
	ctx contractapi.TransactionContextInterface,
	evidenceId string,
) (*ExportRecord, error) {
	caller, err := requireOrg(ctx, LegalOrgMSP)
	if err != nil {
		return nil, err
	}
	ev, err := getEvidence(ctx, evidenceId)
	if err != nil {
		return nil, err
	}
	if ev.Status != StatusReviewed && ev.Status != StatusExported {
		return nil, fmt.Errorf("evidence must be REVIEWED to export, current: %s", ev.Status)
	}
	ts, err := txUnix(ctx)
	if err != nil {
		return nil, err
	}

	firstExport := ev.Status == StatusReviewed

	rec := &ExportRecord{
		EvidenceID:      ev.EvidenceID,
		IPFSCID:         ev.IPFSCID,
		FileHash:        ev.FileHash,
		FileType:        ev.FileType,
		Category:        ev.Category,
		SubmittedAt:     ev.SubmittedAt,
		VerifiedAt:      ev.VerifiedAt,
		ReviewedAt:      ev.ReviewedAt,
		ExportedAt:      ts,
		PolygonTxHash:   ev.PolygonTxHash,
		IntegrityStatus: ev.IntegrityStatus,
		CustodyLog:      ev.CustodyLog,
	}
	hash, _, err := evidencehash.CanonicalSHA256(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to hash export record: %w", err)
	}
	rec.ExportHash = hash

	ev.Status = StatusExported
	ev.ExportedAt = ts
	ev.appendCustody(ActionExport, caller, ts, fmt.Sprintf("Evidence exported for court proceedings. Export hash: %s", hash))
	if err := putEvidence(ctx, ev); err != nil {
		return nil, err
	}

	// A re-export only re-issues the package.
	if firstExport {
		secondary("reputation", ev.PublicKeyHash, reputationOnExport(ctx, ev.PublicKeyHash, ts))
		msg := fmt.Sprintf("Your evidence (ID: %s) has been exported for court proceedings.", evidenceId)
		secondary("notification", ev.PublicKeyHash, notify(ctx, ev.PublicKeyHash, evidenceId, NotifyExported, msg, caller, ts))
	}
	return rec, nil
}

func (c *LegalContract) QueryEvidenceByDateRange(
	ctx contractapi.TransactionContextInterface,
	startTimestamp int64,
	endTimestamp int64,
	pageSize int32,
	bookmark string,
) (*EvidenceQueryResult, error) {
	if _, err := requireOrg(ctx, LegalOrgMSP); err != nil {
		return nil, fmt.Errorf("date range search is restricted to LegalOrg: %w", err)
	}
	if endTimestamp < startTimestamp {
		return nil, errors.New("end timestamp must not be before start timestamp")
	}
	q := evidenceSelector(map[string]any{
		"submittedAt": map[string]int64{"$gte": startTimestamp, "$lte": endTimestamp},
	})
	q.Sort = []map[string]string{{"submittedAt": "desc"}}
	return queryEvidencePage(ctx, q, pageSize, bookmark)
}
