// Package rpctest provides fake Solana RPC nodes for tests.
package rpctest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Behavior controls how a fake node answers.
type Behavior int

const (
	// Healthy answers getHealth with "ok" and serves Blockhash.
	Healthy Behavior = iota
	// Hang blocks until the client gives up.
	Hang
	// RateLimited answers every call with HTTP 429.
	RateLimited
	// Unhealthy answers getHealth with an RPC error and 500 for everything else.
	Unhealthy
	// Malformed answers getLatestBlockhash without a value.
	Malformed
	// Forbidden answers every call with HTTP 403.
	Forbidden
)

// Node is an httptest server impersonating a Solana RPC endpoint.
type Node struct {
	*httptest.Server

	mu                   sync.Mutex
	behavior             Behavior
	blockhash            string
	lastValidBlockHeight uint64
	slot                 uint64

	healthCalls    atomic.Int32
	blockhashCalls atomic.Int32
}

// NewNode starts a node that is closed when the test ends.
func NewNode(t testing.TB, behavior Behavior, blockhash string) *Node {
	t.Helper()
	n := &Node{
		behavior:             behavior,
		blockhash:            blockhash,
		lastValidBlockHeight: 123456,
		slot:                 987654,
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Close)
	return n
}

// SetBehavior changes how the node answers subsequent calls.
func (n *Node) SetBehavior(b Behavior) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.behavior = b
}

// SetBlockhash changes the blockhash served.
func (n *Node) SetBlockhash(hash string, lastValidBlockHeight uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blockhash = hash
	n.lastValidBlockHeight = lastValidBlockHeight
}

// HealthCalls returns the number of getHealth calls received.
func (n *Node) HealthCalls() int { return int(n.healthCalls.Load()) }

// BlockhashCalls returns the number of getLatestBlockhash calls received.
func (n *Node) BlockhashCalls() int { return int(n.blockhashCalls.Load()) }

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     any    `json:"id"`
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch req.Method {
	case "getHealth":
		n.healthCalls.Add(1)
	case "getLatestBlockhash":
		n.blockhashCalls.Add(1)
	}

	n.mu.Lock()
	behavior, hash, height, slot := n.behavior, n.blockhash, n.lastValidBlockHeight, n.slot
	n.mu.Unlock()

	switch behavior {
	case Hang:
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
		return
	case RateLimited:
		w.Header().Set("Retry-After", "1")
		http.Error(w, `{"error":"Too many requests"}`, http.StatusTooManyRequests)
		return
	case Forbidden:
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case Unhealthy:
		if req.Method == "getHealth" {
			writeJSON(w, map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]any{"code": -32005, "message": "Node is behind by 42 slots"},
			})
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "getHealth":
		resp["result"] = "ok"
	case "getLatestBlockhash":
		if behavior == Malformed {
			resp["result"] = map[string]any{"context": map[string]any{"slot": slot}}
			break
		}
		resp["result"] = map[string]any{
			"context": map[string]any{"slot": slot},
			"value": map[string]any{
				"blockhash":            hash,
				"lastValidBlockHeight": height,
			},
		}
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
