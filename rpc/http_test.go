package rpc

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"capchain/core"
	"capchain/core/types"
	"capchain/crypto"
	"capchain/native/identity"
	"capchain/storage"
)

func newTestServer(t *testing.T) (*Server, *core.Ledger) {
	t.Helper()
	ledger, err := core.NewLedger(storage.NewMemDB())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	var mu sync.Mutex
	return NewServer(ledger, &mu), ledger
}

func call(t *testing.T, s *Server, method string, params ...interface{}) RPCResponse {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal param: %v", err)
		}
		raw = append(raw, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: "2.0", Method: method, Params: raw, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", bytes.NewReader(body))
	s.Handler().ServeHTTP(rec, req)
	var resp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestGetStatus(t *testing.T) {
	server, ledger := newTestServer(t)
	resp := call(t, server, "ledger_getStatus")
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape %T", resp.Result)
	}
	if got := result["height"]; got != float64(ledger.Height()) {
		t.Fatalf("height = %v, want %d", got, ledger.Height())
	}
}

func TestMethodNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	resp := call(t, server, "ledger_noSuchMethod")
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %v, want method not found", resp.Error)
	}
}

func TestResolveIdentity(t *testing.T) {
	server, ledger := newTestServer(t)

	var key types.AccountKey
	key[19] = 7
	did := types.IdentityID{1}
	if err := ledger.State().Identity().KeyRecordPut(key, &identity.KeyRecord{DID: did, IsPrimary: true}); err != nil {
		t.Fatalf("seed key record: %v", err)
	}

	addr := crypto.NewAddress(crypto.AccountPrefix, key[:])
	resp := call(t, server, "identity_resolve", map[string]string{"address": addr.String()})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape %T", resp.Result)
	}
	if got := result["did"]; got != did.String() {
		t.Fatalf("did = %v, want %s", got, did)
	}
	if got := result["isPrimary"]; got != true {
		t.Fatalf("isPrimary = %v, want true", got)
	}
}

func TestResolveUnknownKey(t *testing.T) {
	server, _ := newTestServer(t)
	var key types.AccountKey
	key[0] = 9
	addr := crypto.NewAddress(crypto.AccountPrefix, key[:])
	resp := call(t, server, "identity_resolve", map[string]string{"address": addr.String()})
	if resp.Error == nil || resp.Error.Code != codeServerError {
		t.Fatalf("error = %v, want server error for unlinked key", resp.Error)
	}
}

func TestInstructionUnknownStatus(t *testing.T) {
	server, _ := newTestServer(t)
	resp := call(t, server, "settlement_getInstruction", map[string]uint64{"id": 42})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape %T", resp.Result)
	}
	if got := result["status"]; got != "unknown" {
		t.Fatalf("status = %v, want unknown", got)
	}
}
