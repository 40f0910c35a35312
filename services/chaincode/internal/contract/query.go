package contract

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

const bulkQueryPageSize int32 = 100

// QueryContract is the read side, open to all three organizations.
type QueryContract struct {
	contractapi.Contract
}

func (c *QueryContract) GetEvidence(ctx contractapi.TransactionContextInterface, evidenceId string) (*Evidence, error) {
	if _, err := requireAnyOrg(ctx); err != nil {
		return nil, err
	}
	return getEvidence(ctx, evidenceId)
}

func (c *QueryContract) GetAllEvidence(ctx contractapi.TransactionContextInterface, pageSize int32, bookmark string) (*EvidenceQueryResult, error) {
	if _, err := requireAnyOrg(ctx); err != nil {
		return nil, err
	}
	return queryEvidencePage(ctx, evidenceSelector(nil), pageSize, bookmark)
}

func (c *QueryContract) QueryEvidenceByStatus(ctx contractapi.TransactionContextInterface, status string, pageSize int32, bookmark string) (*EvidenceQueryResult, error) {
	if _, err := requireAnyOrg(ctx); err != nil {
		return nil, err
	}
	return queryEvidencePage(ctx, evidenceSelector(map[string]any{"status": status}), pageSize, bookmark)
}

func (c *QueryContract) QueryEvidenceByCategory(ctx contractapi.TransactionContextInterface, category string, pageSize int32, bookmark string) (*EvidenceQueryResult, error) {
	if _, err := requireAnyOrg(ctx); err != nil {
		return nil, err
	}
	return queryEvidencePage(ctx, evidenceSelector(map[string]any{"category": category}), pageSize, bookmark)
}

func (c *QueryContract) QueryEvidenceByBulkSubmission(ctx contractapi.TransactionContextInterface, bulkSubmissionId string) (*EvidenceQueryResult, error) {
	if _, err := requireAnyOrg(ctx); err != nil {
		return nil, err
	}
	return queryEvidencePage(ctx, evidenceSelector(map[string]any{"bulkSubmissionId": bulkSubmissionId}), bulkQueryPageSize, "")
}

func (c *QueryContract) GetEvidenceCount(ctx contractapi.TransactionContextInterface) (int, error) {
	if _, err := requireAnyOrg(ctx); err != nil {
		return 0, err
	}
	query, err := evidenceSelector(nil).String()
	if err != nil {
		return 0, err
	}
	it, err := ctx.GetStub().GetQueryResult(query)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	count := 0
	for it.HasNext() {
		if _, err := it.Next(); err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

func (c *QueryContract) GetEvidenceHistory(ctx contractapi.TransactionContextInterface, evidenceId string) (*EvidenceHistory, error) {
	if _, err := requireAnyOrg(ctx); err != nil {
		return nil, err
	}
	it, err := ctx.GetStub().GetHistoryForKey(evidenceId)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", evidenceId, err)
	}
	defer it.Close()

	history := []*HistoryEntry{}
	for it.HasNext() {
		mod, err := it.Next()
		if err != nil {
			return nil, err
		}
		entry := &HistoryEntry{
			TxID:     mod.GetTxId(),
			IsDelete: mod.GetIsDelete(),
		}
		if ts := mod.GetTimestamp(); ts != nil {
			entry.Timestamp = ts.GetSeconds()
		}
		if !entry.IsDelete {
			var ev Evidence
			if err := json.Unmarshal(mod.GetValue(), &ev); err != nil {
				return nil, err
			}
			entry.Value = &ev
		}
		history = append(history, entry)
	}
	return &EvidenceHistory{EvidenceID: evidenceId, History: history}, nil
}
