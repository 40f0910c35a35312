package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
	"go.uber.org/zap"
)

// WhistleblowerContract handles submission and the whistleblower's private
// inbox. Callers must belong to WhistleblowersOrgMSP.
type WhistleblowerContract struct {
	contractapi.Contract
}

func (c *WhistleblowerContract) InitLedger(ctx contractapi.TransactionContextInterface) error {
	logger.Info("chainproof chaincode initialized", zap.String("tx_id", ctx.GetStub().GetTxID()))
	return nil
}

func (c *WhistleblowerContract) SubmitEvidence(
	ctx contractapi.TransactionContextInterface,
	evidenceId string,
	ipfsCid string,
	fileHash string,
	fileType string,
	fileSize int64,
	category string,
	description string,
	publicKeyHash string,
	signature string,
) error {
	caller, err := requireOrg(ctx, WhistleblowersOrgMSP)
	if err != nil {
		return err
	}
	if strings.TrimSpace(evidenceId) == "" || strings.TrimSpace(fileHash) == "" {
		return errors.New("evidenceId and fileHash are required")
	}
	if publicKeyHash == "" {
		return errors.New("publicKeyHash is required for anonymous identity")
	}
	if signature == "" {
		return errors.New("signature is required to prove ownership of keypair")
	}

	exists, err := evidenceExists(ctx, evidenceId)
	if err != nil {
		return fmt.Errorf("failed to check evidence existence: %w", err)
	}
	if exists {
		return fmt.Errorf("evidence %s already exists", evidenceId)
	}

	ts, err := txUnix(ctx)
	if err != nil {
		return err
	}
	if category == "" {
		category = CategoryOther
	}
	ev := &Evidence{
		DocType:         docTypeEvidence,
		EvidenceID:      evidenceId,
		IPFSCID:         ipfsCid,
		FileHash:        fileHash,
		FileType:        fileType,
		FileSize:        fileSize,
		Category:        category,
		Description:     description,
		SubmittedAt:     ts,
		Status:          StatusSubmitted,
		IntegrityStatus: IntegrityPending,
		PublicKeyHash:   publicKeyHash,
		Signature:       signature,
	}
	ev.appendCustody(ActionSubmit, caller, ts, "Evidence submitted anonymously via cryptographic keypair")
	if err := putEvidence(ctx, ev); err != nil {
		return err
	}

	secondary("reputation", publicKeyHash, reputationOnSubmit(ctx, publicKeyHash, 1, ts))
	return nil
}

// SubmitBulkEvidence writes every item or none of them.
func (c *WhistleblowerContract) SubmitBulkEvidence(
	ctx contractapi.TransactionContextInterface,
	bulkSubmissionId string,
	itemsJSON string,
) (*BulkSubmissionResult, error) {
	caller, err := requireOrg(ctx, WhistleblowersOrgMSP)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(bulkSubmissionId) == "" {
		return nil, errors.New("bulkSubmissionId is required")
	}

	var items []BulkEvidenceItem
	if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
		return nil, fmt.Errorf("failed to parse bulk items: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("bulk submission must contain at least one item")
	}

	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.EvidenceID) == "" || strings.TrimSpace(item.FileHash) == "" {
			return nil, fmt.Errorf("item %d: evidenceId and fileHash are required", i+1)
		}
		if _, dup := seen[item.EvidenceID]; dup {
			return nil, fmt.Errorf("evidence %s appears more than once in bulk submission", item.EvidenceID)
		}
		seen[item.EvidenceID] = struct{}{}

		exists, err := evidenceExists(ctx, item.EvidenceID)
		if err != nil {
			return nil, fmt.Errorf("failed to check evidence existence for %s: %w", item.EvidenceID, err)
		}
		if exists {
			return nil, fmt.Errorf("evidence %s already exists", item.EvidenceID)
		}
	}

	ts, err := txUnix(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	perKey := map[string]int{}
	var keys []string
	for i, item := range items {
		category := item.Category
		if category == "" {
			category = CategoryOther
		}
		ev := &Evidence{
			DocType:          docTypeEvidence,
			EvidenceID:       item.EvidenceID,
			IPFSCID:          item.IPFSCID,
			FileHash:         item.FileHash,
			FileType:         item.FileType,
			FileSize:         item.FileSize,
			Category:         category,
			Description:      item.Description,
			SubmittedAt:      ts,
			Status:           StatusSubmitted,
			IntegrityStatus:  IntegrityPending,
			BulkSubmissionID: bulkSubmissionId,
			BulkIndex:        i,
			PublicKeyHash:    item.PublicKeyHash,
			Signature:        item.Signature,
		}
		ev.appendCustody(ActionBulkSubmit, caller, ts,
			fmt.Sprintf("Bulk submission %s - item %d of %d", bulkSubmissionId, i+1, len(items)))
		if err := putEvidence(ctx, ev); err != nil {
			return nil, err
		}
		if item.PublicKeyHash != "" {
			if _, ok := perKey[item.PublicKeyHash]; !ok {
				keys = append(keys, item.PublicKeyHash)
			}
			perKey[item.PublicKeyHash]++
		}
		ids = append(ids, item.EvidenceID)
	}
	for _, pkh := range keys {
		secondary("reputation", pkh, reputationOnSubmit(ctx, pkh, perKey[pkh], ts))
	}

	return &BulkSubmissionResult{
		BulkSubmissionID: bulkSubmissionId,
		SubmittedCount:   len(ids),
		EvidenceIDs:      ids,
		SubmittedAt:      ts,
	}, nil
}

// UpdatePolygonAnchor records the public-chain transaction that anchors the
// evidence hash.
func (c *WhistleblowerContract) UpdatePolygonAnchor(
	ctx contractapi.TransactionContextInterface,
	evidenceId string,
	polygonTxHash string,
) error {
	caller, err := requireOrg(ctx, WhistleblowersOrgMSP)
	if err != nil {
		return err
	}
	if strings.TrimSpace(polygonTxHash) == "" {
		return errors.New("anchor transaction hash is required")
	}
	ev, err := getEvidence(ctx, evidenceId)
	if err != nil {
		return err
	}
	ts, err := txUnix(ctx)
	if err != nil {
		return err
	}
	ev.PolygonTxHash = polygonTxHash
	ev.PolygonAnchorAt = ts
	ev.appendCustody(ActionAnchor, caller, ts, fmt.Sprintf("Anchored to Polygon: %s", polygonTxHash))
	return putEvidence(ctx, ev)
}

func (c *WhistleblowerContract) GetNotifications(
	ctx contractapi.TransactionContextInterface,
	publicKeyHash string,
) (*NotificationQueryResult, error) {
	if _, err := requireOrg(ctx, WhistleblowersOrgMSP); err != nil {
		return nil, err
	}
	q := richQuery{Selector: map[string]any{
		"docType":       docTypeNotification,
		"publicKeyHash": publicKeyHash,
	}}
	notifications, err := collectPrivate[Notification](ctx, WhistleblowerPrivateCollection, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	return &NotificationQueryResult{Notifications: notifications, Count: len(notifications)}, nil
}

func (c *WhistleblowerContract) MarkNotificationRead(
	ctx contractapi.TransactionContextInterface,
	notificationId string,
) error {
	if _, err := requireOrg(ctx, WhistleblowersOrgMSP); err != nil {
		return err
	}
	stub := ctx.GetStub()
	b, err := stub.GetPrivateData(WhistleblowerPrivateCollection, notificationId)
	if err != nil {
		return fmt.Errorf("failed to get notification: %w", err)
	}
	if b == nil {
		return fmt.Errorf("notification %s not found", notificationId)
	}
	var n Notification
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	n.Read = true
	updated, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return stub.PutPrivateData(WhistleblowerPrivateCollection, notificationId, updated)
}

func (c *WhistleblowerContract) GetReputation(
	ctx contractapi.TransactionContextInterface,
	publicKeyHash string,
) (*Reputation, error) {
	if _, err := requireOrg(ctx, WhistleblowersOrgMSP); err != nil {
		return nil, err
	}
	rep, err := loadReputation(ctx, publicKeyHash)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return &Reputation{
			DocType:       docTypeReputation,
			PublicKeyHash: publicKeyHash,
			TrustScore:    initialTrustScore,
		}, nil
	}
	return rep, nil
}
