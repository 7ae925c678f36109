package api

import (
	"encoding/json"
	"net/http"

	"github.com/vietddude/rpcgate/internal/core/domain"
)

const rateLimitedMessage = "Too many requests from this client"

type lookupResponse struct {
	RPCURL          string `json:"rpc_url"`
	Network         string `json:"network"`
	ProxyEnabled    bool   `json:"proxy_enabled"`
	LatestBlockhash string `json:"latest_blockhash,omitempty"`
	Synthetic       bool   `json:"synthetic,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  blockhashResult `json:"result"`
}

type blockhashResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value blockhashValue `json:"value"`
}

type blockhashValue struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	Synthetic            bool   `json:"synthetic,omitempty"`
}

type errorResponse struct {
	Error        string  `json:"error"`
	RPCURL       *string `json:"rpc_url"`
	ProxyEnabled *bool   `json:"proxy_enabled,omitempty"`
}

func newRPCResponse(id json.RawMessage, res domain.Resolution) rpcResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	out := rpcResponse{JSONRPC: "2.0", ID: id}
	out.Result.Context.Slot = res.Slot
	out.Result.Value = blockhashValue{
		Blockhash:            res.Hash,
		LastValidBlockHeight: res.LastValidBlockHeight,
		Synthetic:            res.Synthetic(),
	}
	return out
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
