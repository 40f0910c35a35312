package contract

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
	"go.uber.org/zap"

	"chainproof/pkg/logging"
)

const defaultPageSize int32 = 10

// txUnix is the transaction timestamp in unix seconds. Writes must not use
// the local clock.
func txUnix(ctx contractapi.TransactionContextInterface) (int64, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return 0, fmt.Errorf("failed to read tx timestamp: %w", err)
	}
	if ts == nil {
		return 0, fmt.Errorf("failed to read tx timestamp: empty")
	}
	return ts.GetSeconds(), nil
}

func evidenceExists(ctx contractapi.TransactionContextInterface, evidenceID string) (bool, error) {
	b, err := ctx.GetStub().GetState(evidenceID)
	if err != nil {
		return false, fmt.Errorf("failed to read from world state: %w", err)
	}
	return b != nil, nil
}

func getEvidence(ctx contractapi.TransactionContextInterface, evidenceID string) (*Evidence, error) {
	b, err := ctx.GetStub().GetState(evidenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence %s: %w", evidenceID, err)
	}
	if b == nil {
		return nil, fmt.Errorf("evidence %s does not exist", evidenceID)
	}
	var ev Evidence
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
	}
	return &ev, nil
}

func putEvidence(ctx contractapi.TransactionContextInterface, ev *Evidence) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}
	if err := ctx.GetStub().PutState(ev.EvidenceID, b); err != nil {
		return fmt.Errorf("failed to store evidence %s: %w", ev.EvidenceID, err)
	}
	return nil
}

func (ev *Evidence) appendCustody(action, actorOrg string, ts int64, description string) {
	ev.CustodyLog = append(ev.CustodyLog, CustodyLog{
		Action:      action,
		ActorOrg:    actorOrg,
		Timestamp:   ts,
		Description: description,
	})
}

// richQuery is a CouchDB Mango query. Selectors are always marshalled, so
// caller-supplied values cannot change the query shape.
type richQuery struct {
	Selector map[string]any      `json:"selector"`
	Sort     []map[string]string `json:"sort,omitempty"`
}

func (q richQuery) String() (string, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("failed to build query: %w", err)
	}
	return string(b), nil
}

func evidenceSelector(extra map[string]any) richQuery {
	sel := map[string]any{"docType": docTypeEvidence}
	for k, v := range extra {
		sel[k] = v
	}
	return richQuery{Selector: sel}
}

func queryEvidencePage(ctx contractapi.TransactionContextInterface, q richQuery, pageSize int32, bookmark string) (*EvidenceQueryResult, error) {
	query, err := q.String()
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	it, meta, err := ctx.GetStub().GetQueryResultWithPagination(query, pageSize, bookmark)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer it.Close()

	records := []*Evidence{}
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, err
		}
		var ev Evidence
		if err := json.Unmarshal(kv.Value, &ev); err != nil {
			return nil, err
		}
		records = append(records, &ev)
	}
	res := &EvidenceQueryResult{Records: records, FetchedRecordsCount: len(records)}
	if meta != nil {
		res.Bookmark = meta.GetBookmark()
	}
	return res, nil
}

// collectPrivate decodes every row of a private data rich query into T.
func collectPrivate[T any](ctx contractapi.TransactionContextInterface, collection string, q richQuery) ([]*T, error) {
	query, err := q.String()
	if err != nil {
		return nil, err
	}
	it, err := ctx.GetStub().GetPrivateDataQueryResult(collection, query)
	if err != nil {
		return nil, err
	}
	return drain[T](it)
}

func drain[T any](it shim.StateQueryIteratorInterface) ([]*T, error) {
	defer it.Close()
	out := []*T{}
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, err
		}
		v := new(T)
		if err := json.Unmarshal(kv.Value, v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func reputationKey(publicKeyHash string) string { return "reputation_" + publicKeyHash }

func loadReputation(ctx contractapi.TransactionContextInterface, publicKeyHash string) (*Reputation, error) {
	b, err := ctx.GetStub().GetPrivateData(WhistleblowerPrivateCollection, reputationKey(publicKeyHash))
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	var rep Reputation
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func saveReputation(ctx contractapi.TransactionContextInterface, rep *Reputation) error {
	b, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutPrivateData(WhistleblowerPrivateCollection, reputationKey(rep.PublicKeyHash), b)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxTrustScore {
		return maxTrustScore
	}
	return score
}

// reputationOnSubmit counts n new submissions. A transaction cannot read its
// own writes, so bulk callers pass the per-key total once.
func reputationOnSubmit(ctx contractapi.TransactionContextInterface, publicKeyHash string, n int, ts int64) error {
	rep, err := loadReputation(ctx, publicKeyHash)
	if err != nil {
		return err
	}
	if rep == nil {
		rep = &Reputation{
			DocType:           docTypeReputation,
			PublicKeyHash:     publicKeyHash,
			TrustScore:        initialTrustScore,
			FirstSubmissionAt: ts,
		}
	}
	rep.TotalSubmissions += n
	rep.LastSubmissionAt = ts
	rep.LastUpdatedAt = ts
	return saveReputation(ctx, rep)
}

// reputationUpdate applies fn to an existing record. Evidence submitted
// without a key, or whose key has no record, is skipped.
func reputationUpdate(ctx contractapi.TransactionContextInterface, publicKeyHash string, ts int64, fn func(*Reputation)) error {
	if publicKeyHash == "" {
		return nil
	}
	rep, err := loadReputation(ctx, publicKeyHash)
	if err != nil || rep == nil {
		return err
	}
	fn(rep)
	rep.TrustScore = clampScore(rep.TrustScore)
	rep.LastUpdatedAt = ts
	return saveReputation(ctx, rep)
}

func reputationOnVerdict(ctx contractapi.TransactionContextInterface, publicKeyHash string, passed bool, ts int64) error {
	return reputationUpdate(ctx, publicKeyHash, ts, func(rep *Reputation) {
		if passed {
			rep.VerifiedSubmissions++
			rep.TrustScore += verifiedBonus
			return
		}
		rep.RejectedSubmissions++
		rep.TrustScore -= rejectedPenalty
	})
}

func reputationOnExport(ctx contractapi.TransactionContextInterface, publicKeyHash string, ts int64) error {
	return reputationUpdate(ctx, publicKeyHash, ts, func(rep *Reputation) {
		rep.ExportedSubmissions++
	})
}

func notificationID(evidenceID string, ts int64) string {
	return fmt.Sprintf("notif_%s_%d", evidenceID, ts)
}

func notify(ctx contractapi.TransactionContextInterface, publicKeyHash, evidenceID, messageType, message, fromOrg string, ts int64) error {
	if publicKeyHash == "" {
		return nil
	}
	n := Notification{
		DocType:        docTypeNotification,
		NotificationID: notificationID(evidenceID, ts),
		EvidenceID:     evidenceID,
		PublicKeyHash:  publicKeyHash,
		MessageType:    messageType,
		Message:        message,
		FromOrg:        fromOrg,
		Timestamp:      ts,
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutPrivateData(WhistleblowerPrivateCollection, n.NotificationID, b)
}

// secondary logs a failed side effect that must not abort the transaction.
func secondary(what, publicKeyHash string, err error) {
	if err != nil {
		logger.Warn("secondary update failed",
			zap.String("what", what),
			zap.String("pkh", logging.ShortHash(publicKeyHash)),
			zap.Error(err),
		)
	}
}

func putPrivateJSON(ctx contractapi.TransactionContextInterface, collection, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ctx.GetStub().PutPrivateData(collection, key, b)
}
