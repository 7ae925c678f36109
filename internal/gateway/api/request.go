package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vietddude/rpcgate/internal/core/domain"
)

const (
	methodGetLatestBlockhash = "getLatestBlockhash"
	maxBodyBytes             = 64 << 10
)

// Request modes, used as metric labels.
const (
	modeJSONRPC = "jsonrpc"
	modeLookup  = "lookup"
)

// clientRequest covers both accepted shapes: a JSON-RPC envelope with an
// extra network field, and a simple {network, method?} lookup.
type clientRequest struct {
	JSONRPC    string            `json:"jsonrpc"`
	ID         json.RawMessage   `json:"id"`
	Method     string            `json:"method"`
	Params     []json.RawMessage `json:"params"`
	Network    string            `json:"network"`
	Commitment string            `json:"commitment"`
}

func (r *clientRequest) mode() string {
	if r.JSONRPC != "" {
		return modeJSONRPC
	}
	return modeLookup
}

func (r *clientRequest) wantsBlockhash() bool {
	return r.Method == methodGetLatestBlockhash
}

func (r *clientRequest) network() domain.Network {
	return domain.NormalizeNetwork(r.Network)
}

// commitment reads params[0].commitment, then the top-level field.
func (r *clientRequest) commitment() domain.Commitment {
	if len(r.Params) > 0 {
		var cfg struct {
			Commitment string `json:"commitment"`
		}
		if err := json.Unmarshal(r.Params[0], &cfg); err == nil && cfg.Commitment != "" {
			return domain.NormalizeCommitment(cfg.Commitment)
		}
	}
	return domain.NormalizeCommitment(r.Commitment)
}

// parseRequest reads query parameters and, for POST, the JSON body. Body
// fields win over query parameters. Unparseable bodies yield a default
// lookup; only a failed read is reported as an error.
func parseRequest(r *http.Request) (*clientRequest, error) {
	q := r.URL.Query()
	req := &clientRequest{
		Method:     q.Get("method"),
		Network:    q.Get("network"),
		Commitment: q.Get("commitment"),
	}

	if r.Method != http.MethodPost || r.Body == nil {
		return req, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}

	var parsed clientRequest
	if err := json.Unmarshal(body, &parsed); err != nil {
		return req, nil
	}
	if parsed.Method == "" {
		parsed.Method = req.Method
	}
	if parsed.Network == "" {
		parsed.Network = req.Network
	}
	if parsed.Commitment == "" {
		parsed.Commitment = req.Commitment
	}
	return &parsed, nil
}
