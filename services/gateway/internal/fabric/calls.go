package fabric

import (
	"context"
	"encoding/json"
	"strconv"
)

// SubmitEvidenceArgs are the SubmitEvidence transaction arguments in
// chaincode order.
type SubmitEvidenceArgs struct {
	EvidenceID    string
	IPFSCID       string
	FileHash      string
	FileType      string
	FileSize      int64
	Category      string
	Description   string
	PublicKeyHash string
	Signature     string
}

func (m *Manager) SubmitEvidence(ctx context.Context, a SubmitEvidenceArgs) (json.RawMessage, error) {
	return m.Submit(ctx, Whistleblower, "SubmitEvidence",
		a.EvidenceID, a.IPFSCID, a.FileHash, a.FileType, strconv.FormatInt(a.FileSize, 10),
		a.Category, a.Description, a.PublicKeyHash, a.Signature)
}

// SubmitBulkEvidence takes the items already encoded as a JSON array.
func (m *Manager) SubmitBulkEvidence(ctx context.Context, bulkSubmissionID string, itemsJSON []byte) (json.RawMessage, error) {
	return m.Submit(ctx, Whistleblower, "SubmitBulkEvidence", bulkSubmissionID, string(itemsJSON))
}

func (m *Manager) GetNotifications(ctx context.Context, publicKeyHash string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Whistleblower, "GetNotifications", publicKeyHash)
}

func (m *Manager) GetReputation(ctx context.Context, publicKeyHash string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Whistleblower, "GetReputation", publicKeyHash)
}

func (m *Manager) MarkNotificationRead(ctx context.Context, notificationID string) (json.RawMessage, error) {
	return m.Submit(ctx, Whistleblower, "MarkNotificationRead", notificationID)
}

func (m *Manager) UpdatePolygonAnchor(ctx context.Context, evidenceID, txHash string) (json.RawMessage, error) {
	return m.Submit(ctx, Whistleblower, "UpdatePolygonAnchor", evidenceID, txHash)
}

func (m *Manager) VerifyIntegrity(ctx context.Context, evidenceID, computedHash string, passed bool, rejectionComment string) (json.RawMessage, error) {
	return m.Submit(ctx, Verifier, "VerifyIntegrity", evidenceID, computedHash, strconv.FormatBool(passed), rejectionComment)
}

func (m *Manager) AddVerificationNote(ctx context.Context, evidenceID, noteID, content, hashComparison string) (json.RawMessage, error) {
	return m.Submit(ctx, Verifier, "AddVerificationNote", evidenceID, noteID, content, hashComparison)
}

func (m *Manager) GetVerificationNotes(ctx context.Context, evidenceID string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Verifier, "GetVerificationNotes", evidenceID)
}

func (m *Manager) ReviewEvidence(ctx context.Context, evidenceID string, complete bool) (json.RawMessage, error) {
	return m.Submit(ctx, Legal, "ReviewEvidence", evidenceID, strconv.FormatBool(complete))
}

func (m *Manager) AddLegalComment(ctx context.Context, evidenceID, commentID, content, courtReadiness, recommendation string) (json.RawMessage, error) {
	return m.Submit(ctx, Legal, "AddLegalComment", evidenceID, commentID, content, courtReadiness, recommendation)
}

func (m *Manager) GetLegalComments(ctx context.Context, evidenceID string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Legal, "GetLegalComments", evidenceID)
}

func (m *Manager) ExportEvidence(ctx context.Context, evidenceID string) (json.RawMessage, error) {
	return m.Submit(ctx, Legal, "ExportEvidence", evidenceID)
}

func (m *Manager) QueryEvidenceByDateRange(ctx context.Context, start, end int64, pageSize int32, bookmark string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Legal, "QueryEvidenceByDateRange",
		strconv.FormatInt(start, 10), strconv.FormatInt(end, 10), page(pageSize), bookmark)
}

func (m *Manager) GetEvidence(ctx context.Context, evidenceID string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Query, "GetEvidence", evidenceID)
}

func (m *Manager) GetEvidenceHistory(ctx context.Context, evidenceID string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Query, "GetEvidenceHistory", evidenceID)
}

func (m *Manager) GetAllEvidence(ctx context.Context, pageSize int32, bookmark string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Query, "GetAllEvidence", page(pageSize), bookmark)
}

func (m *Manager) GetEvidenceCount(ctx context.Context) (json.RawMessage, error) {
	return m.Evaluate(ctx, Query, "GetEvidenceCount")
}

func (m *Manager) QueryEvidenceByStatus(ctx context.Context, status string, pageSize int32, bookmark string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Query, "QueryEvidenceByStatus", status, page(pageSize), bookmark)
}

func (m *Manager) QueryEvidenceByCategory(ctx context.Context, category string, pageSize int32, bookmark string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Query, "QueryEvidenceByCategory", category, page(pageSize), bookmark)
}

func (m *Manager) QueryEvidenceByBulkSubmission(ctx context.Context, bulkSubmissionID string) (json.RawMessage, error) {
	return m.Evaluate(ctx, Query, "QueryEvidenceByBulkSubmission", bulkSubmissionID)
}

func page(n int32) string { return strconv.FormatInt(int64(n), 10) }
