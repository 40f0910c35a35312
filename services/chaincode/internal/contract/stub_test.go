package contract

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/hyperledger/fabric-chaincode-go/v2/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
	"github.com/hyperledger/fabric-protos-go-apiv2/ledger/queryresult"
	"github.com/hyperledger/fabric-protos-go-apiv2/peer"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const baseTxTime int64 = 1_735_689_600 // 2025-01-01T00:00:00Z

// memStub is an in-memory ledger: world state, private collections and key
// history. Methods not overridden panic through the nil embedded interface.
type memStub struct {
	shim.ChaincodeStubInterface

	ws      map[string][]byte
	pdc     map[string]map[string][]byte
	history map[string][]*queryresult.KeyModification

	txID string
	now  int64
}

func newMemStub() *memStub {
	return &memStub{
		ws:      map[string][]byte{},
		pdc:     map[string]map[string][]byte{},
		history: map[string][]*queryresult.KeyModification{},
		txID:    "tx-000",
		now:     baseTxTime,
	}
}

func (s *memStub) GetTxID() string { return s.txID }

func (s *memStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return &timestamppb.Timestamp{Seconds: s.now}, nil
}

func (s *memStub) GetState(key string) ([]byte, error) {
	if v, ok := s.ws[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

func (s *memStub) PutState(key string, value []byte) error {
	s.ws[key] = append([]byte(nil), value...)
	s.history[key] = append(s.history[key], &queryresult.KeyModification{
		TxId:      s.txID,
		Value:     append([]byte(nil), value...),
		Timestamp: &timestamppb.Timestamp{Seconds: s.now},
	})
	return nil
}

func (s *memStub) DelState(key string) error {
	delete(s.ws, key)
	s.history[key] = append(s.history[key], &queryresult.KeyModification{
		TxId:      s.txID,
		Timestamp: &timestamppb.Timestamp{Seconds: s.now},
		IsDelete:  true,
	})
	return nil
}

func (s *memStub) GetPrivateData(collection, key string) ([]byte, error) {
	if c, ok := s.pdc[collection]; ok {
		if v, ok := c[key]; ok {
			return append([]byte(nil), v...), nil
		}
	}
	return nil, nil
}

func (s *memStub) PutPrivateData(collection, key string, value []byte) error {
	c := s.pdc[collection]
	if c == nil {
		c = map[string][]byte{}
		s.pdc[collection] = c
	}
	c[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStub) GetQueryResult(query string) (shim.StateQueryIteratorInterface, error) {
	kvs, err := runMango(s.ws, query)
	if err != nil {
		return nil, err
	}
	return &kvIter{kvs: kvs}, nil
}

func (s *memStub) GetQueryResultWithPagination(query string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *peer.QueryResponseMetadata, error) {
	kvs, err := runMango(s.ws, query)
	if err != nil {
		return nil, nil, err
	}
	start := 0
	if bookmark != "" {
		if start, err = strconv.Atoi(bookmark); err != nil {
			return nil, nil, fmt.Errorf("bad bookmark %q", bookmark)
		}
	}
	if start > len(kvs) {
		start = len(kvs)
	}
	end := start + int(pageSize)
	if end > len(kvs) {
		end = len(kvs)
	}
	page := kvs[start:end]
	return &kvIter{kvs: page}, &peer.QueryResponseMetadata{
		FetchedRecordsCount: int32(len(page)),
		Bookmark:            strconv.Itoa(end),
	}, nil
}

func (s *memStub) GetPrivateDataQueryResult(collection, query string) (shim.StateQueryIteratorInterface, error) {
	kvs, err := runMango(s.pdc[collection], query)
	if err != nil {
		return nil, err
	}
	return &kvIter{kvs: kvs}, nil
}

func (s *memStub) GetHistoryForKey(key string) (shim.HistoryQueryIteratorInterface, error) {
	return &historyIter{mods: s.history[key]}, nil
}

type kvIter struct {
	kvs []*queryresult.KV
	i   int
}

func (it *kvIter) HasNext() bool { return it.i < len(it.kvs) }
func (it *kvIter) Close() error  { return nil }
func (it *kvIter) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("iterator exhausted")
	}
	kv := it.kvs[it.i]
	it.i++
	return kv, nil
}

type historyIter struct {
	mods []*queryresult.KeyModification
	i    int
}

func (it *historyIter) HasNext() bool { return it.i < len(it.mods) }
func (it *historyIter) Close() error  { return nil }
func (it *historyIter) Next() (*queryresult.KeyModification, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("iterator exhausted")
	}
	m := it.mods[it.i]
	it.i++
	return m, nil
}

// runMango evaluates the subset of CouchDB selectors the contracts emit:
// equality, $gte, $lte and a single-field sort.
func runMango(docs map[string][]byte, query string) ([]*queryresult.KV, error) {
	var q struct {
		Selector map[string]any      `json:"selector"`
		Sort     []map[string]string `json:"sort"`
	}
	if err := json.Unmarshal([]byte(query), &q); err != nil {
		return nil, fmt.Errorf("bad query %q: %w", query, err)
	}
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	type row struct {
		kv  *queryresult.KV
		doc map[string]any
	}
	var rows []row
	for _, k := range keys {
		var doc map[string]any
		if err := json.Unmarshal(docs[k], &doc); err != nil {
			continue
		}
		if matches(doc, q.Selector) {
			rows = append(rows, row{kv: &queryresult.KV{Key: k, Value: append([]byte(nil), docs[k]...)}, doc: doc})
		}
	}
	for _, s := range q.Sort {
		for field, dir := range s {
			sort.SliceStable(rows, func(i, j int) bool {
				a, _ := rows[i].doc[field].(float64)
				b, _ := rows[j].doc[field].(float64)
				if dir == "desc" {
					return a > b
				}
				return a < b
			})
		}
	}
	out := make([]*queryresult.KV, len(rows))
	for i, r := range rows {
		out[i] = r.kv
	}
	return out, nil
}

func matches(doc, selector map[string]any) bool {
	for field, want := range selector {
		got, ok := doc[field]
		if !ok {
			return false
		}
		ops, isOps := want.(map[string]any)
		if !isOps {
			if !reflect.DeepEqual(got, want) {
				return false
			}
			continue
		}
		n, _ := got.(float64)
		for op, v := range ops {
			bound, _ := v.(float64)
			switch op {
			case "$gte":
				if n < bound {
					return false
				}
			case "$lte":
				if n > bound {
					return false
				}
			case "$eq":
				if !reflect.DeepEqual(got, v) {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}

type txCtx struct {
	stub shim.ChaincodeStubInterface
	id   cid.ClientIdentity
}

func (c *txCtx) GetStub() shim.ChaincodeStubInterface { return c.stub }
func (c *txCtx) GetClientIdentity() cid.ClientIdentity { return c.id }

type harness struct {
	t    *testing.T
	stub *memStub
	ctx  contractapi.TransactionContextInterface
	msp  string
	seq  int

	wb    *WhistleblowerContract
	ver   *VerifierContract
	legal *LegalContract
	query *QueryContract
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	id := NewMockClientIdentity(ctrl)
	stub := newMemStub()
	h := &harness{
		t:     t,
		stub:  stub,
		ctx:   &txCtx{stub: stub, id: id},
		msp:   WhistleblowersOrgMSP,
		wb:    &WhistleblowerContract{},
		ver:   &VerifierContract{},
		legal: &LegalContract{},
		query: &QueryContract{},
	}
	id.EXPECT().GetMSPID().AnyTimes().DoAndReturn(func() (string, error) { return h.msp, nil })
	return h
}

// as starts a new transaction signed by msp, one second after the last.
func (h *harness) as(msp string) contractapi.TransactionContextInterface {
	h.seq++
	h.msp = msp
	h.stub.txID = fmt.Sprintf("tx-%03d", h.seq)
	h.stub.now = baseTxTime + int64(h.seq)
	return h.ctx
}

func (h *harness) submit(id, pkh string) {
	h.t.Helper()
	err := h.wb.SubmitEvidence(h.as(WhistleblowersOrgMSP), id, "bafy-"+id, "hash-"+id, FileTypeDocument, 1024, CategoryCorruption, "memo", pkh, "sig-"+id)
	if err != nil {
		h.t.Fatalf("SubmitEvidence(%s): %v", id, err)
	}
}

func (h *harness) evidence(id string) *Evidence {
	h.t.Helper()
	raw, ok := h.stub.ws[id]
	if !ok {
		h.t.Fatalf("evidence %s missing from world state", id)
	}
	var ev Evidence
	if err := json.Unmarshal(raw, &ev); err != nil {
		h.t.Fatalf("bad evidence json: %v", err)
	}
	return &ev
}

func (h *harness) reputation(pkh string) *Reputation {
	h.t.Helper()
	raw := h.stub.pdc[WhistleblowerPrivateCollection][reputationKey(pkh)]
	if raw == nil {
		return nil
	}
	var rep Reputation
	if err := json.Unmarshal(raw, &rep); err != nil {
		h.t.Fatalf("bad reputation json: %v", err)
	}
	return &rep
}
