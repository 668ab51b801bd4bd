package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"capchain/core"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Server is a read-only JSON-RPC front end over the ledger. The ledger is
// single-threaded, so every query takes the same mutex the block loop holds
// while producing a block.
type Server struct {
	ledger *core.Ledger
	mu     *sync.Mutex
}

func NewServer(ledger *core.Ledger, mu *sync.Mutex) *Server {
	return &Server{ledger: ledger, mu: mu}
}

// Handler returns the HTTP handler serving JSON-RPC requests.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeParseError, "failed to read request body")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		writeError(w, req.ID, codeInvalidRequest, "invalid request")
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
		return
	}

	s.mu.Lock()
	result, rpcErr := handler(req.Params)
	s.mu.Unlock()

	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

type methodFunc func(params []json.RawMessage) (interface{}, *RPCError)

func (s *Server) methods() map[string]methodFunc {
	return map[string]methodFunc{
		"ledger_getStatus":          s.getStatus,
		"identity_resolve":          s.resolveIdentity,
		"bank_getBalance":           s.getBankBalance,
		"portfolio_getBalance":      s.getPortfolioBalance,
		"settlement_getInstruction": s.getInstruction,
		"corporate_getAction":       s.getCorporateAction,
		"governance_getMip":         s.getMip,
		"governance_getReferendum":  s.getReferendum,
		"multisig_getProposal":      s.getMultisigProposal,
	}
}

func decodeParams(params []json.RawMessage, into interface{}) *RPCError {
	if len(params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(params[0], into); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	return nil
}

func serverError(err error) *RPCError {
	return &RPCError{Code: codeServerError, Message: err.Error()}
}

func writeResult(w http.ResponseWriter, id, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeRPCError(w, id, &RPCError{Code: code, Message: message})
}
