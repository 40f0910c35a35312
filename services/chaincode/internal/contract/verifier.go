package contract

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

const defaultRejectionComment = "Hash verification failed: computed hash does not match stored hash. Evidence may have been tampered with."

// VerifierContract records integrity checks. Callers must belong to
// VerifierOrgMSP.
type VerifierContract struct {
	contractapi.Contract
}

// VerifyIntegrity moves SUBMITTED evidence to VERIFIED or, on failure, to
// the terminal REJECTED state.
func (c *VerifierContract) VerifyIntegrity(
	ctx contractapi.TransactionContextInterface,
	evidenceId string,
	computedHash string,
	passed bool,
	rejectionComment string,
) error {
	caller, err := requireOrg(ctx, VerifierOrgMSP)
	if err != nil {
		return err
	}
	ev, err := getEvidence(ctx, evidenceId)
	if err != nil {
		return err
	}
	if ev.Status != StatusSubmitted {
		return fmt.Errorf("evidence status must be %s to verify, current: %s", StatusSubmitted, ev.Status)
	}
	ts, err := txUnix(ctx)
	if err != nil {
		return err
	}

	description := fmt.Sprintf("Integrity check: computed=%s, stored=%s, result=%t", computedHash, ev.FileHash, passed)
	if passed {
		ev.IntegrityStatus = IntegrityVerified
		ev.Status = StatusVerified
		secondary("reputation", ev.PublicKeyHash, reputationOnVerdict(ctx, ev.PublicKeyHash, true, ts))
		secondary("notification", ev.PublicKeyHash, notify(ctx, ev.PublicKeyHash, evidenceId, NotifyVerified,
			"Your evidence has been successfully verified. It will now proceed to legal review.", caller, ts))
	} else {
		if rejectionComment == "" {
			rejectionComment = defaultRejectionComment
		}
		ev.IntegrityStatus = IntegrityFailed
		ev.Status = StatusRejected
		ev.RejectionComment = rejectionComment
		description += " | Rejection: " + rejectionComment
		secondary("reputation", ev.PublicKeyHash, reputationOnVerdict(ctx, ev.PublicKeyHash, false, ts))
		msg := fmt.Sprintf("Your evidence (ID: %s) was REJECTED during verification. Reason: %s. You may re-upload the evidence with a new ID.", evidenceId, rejectionComment)
		secondary("notification", ev.PublicKeyHash, notify(ctx, ev.PublicKeyHash, evidenceId, NotifyRejection, msg, caller, ts))
	}
	ev.VerifiedAt = ts
	ev.appendCustody(ActionVerify, caller, ts, description)
	return putEvidence(ctx, ev)
}

func noteKey(evidenceID, noteID string) string {
	return fmt.Sprintf("note_%s_%s", evidenceID, noteID)
}

func (c *VerifierContract) AddVerificationNote(
	ctx contractapi.TransactionContextInterface,
	evidenceId string,
	noteId string,
	content string,
	hashComparison string,
) error {
	caller, err := requireOrg(ctx, VerifierOrgMSP)
	if err != nil {
		return err
	}
	ev, err := getEvidence(ctx, evidenceId)
	if err != nil {
		return err
	}
	ts, err := txUnix(ctx)
	if err != nil {
		return err
	}
	note := VerificationNote{
		DocType:        docTypeNote,
		EvidenceID:     evidenceId,
		NoteID:         noteId,
		Content:        content,
		HashComparison: hashComparison,
		CreatedAt:      ts,
		VerifierOrg:    caller,
	}
	if err := putPrivateJSON(ctx, VerifierPrivateCollection, noteKey(evidenceId, noteId), note); err != nil {
		return fmt.Errorf("failed to store verification note in PDC: %w", err)
	}
	ev.appendCustody(ActionAddNote, caller, ts, "Verification note added (private)")
	return putEvidence(ctx, ev)
}

func (c *VerifierContract) GetVerificationNotes(
	ctx contractapi.TransactionContextInterface,
	evidenceId string,
) ([]*VerificationNote, error) {
	if _, err := requireOrg(ctx, VerifierOrgMSP); err != nil {
		return nil, err
	}
	q := richQuery{Selector: map[string]any{"docType": docTypeNote, "evidenceId": evidenceId}}
	notes, err := collectPrivate[VerificationNote](ctx, VerifierPrivateCollection, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query verification notes: %w", err)
	}
	return notes, nil
}
