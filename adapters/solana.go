package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/canopy-network/canopy/lib/musig"
)

// RPCClient is the part of the Solana JSON-RPC API the signing tool needs.
// Errors are returned as-is; callers decide whether to retry.
type RPCClient interface {
	GetBalance(ctx context.Context, address musig.SolanaAddress) (uint64, error)
	RequestAirdrop(ctx context.Context, to musig.SolanaAddress, lamports uint64) (string, error)
	GetRecentBlockhash(ctx context.Context) (musig.Blockhash, error)
	SendTransaction(ctx context.Context, tx *musig.SolanaTransaction) (string, error)
}

// RPCError is an error object returned by the node
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("solana rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// SolanaAdapter talks JSON-RPC 2.0 to one Solana endpoint over HTTP
type SolanaAdapter struct {
	endpoint   string
	httpClient *http.Client
	commitment string
	limiter    *rate.Limiter
	nextID     atomic.Uint64
}

// AdapterOption configures a SolanaAdapter
type AdapterOption func(*SolanaAdapter)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) AdapterOption {
	return func(a *SolanaAdapter) { a.httpClient = client }
}

// WithCommitment sets the commitment level used for reads
func WithCommitment(commitment string) AdapterOption {
	return func(a *SolanaAdapter) { a.commitment = commitment }
}

// WithRateLimit throttles requests to requestsPerSecond with the given burst.
// Public cluster endpoints reject clients that exceed their quota.
func WithRateLimit(requestsPerSecond float64, burst int) AdapterOption {
	return func(a *SolanaAdapter) {
		if requestsPerSecond <= 0 {
			a.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// NewSolanaAdapter creates an adapter for endpoint
func NewSolanaAdapter(endpoint string, opts ...AdapterOption) *SolanaAdapter {
	a := &SolanaAdapter{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		commitment: "confirmed",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewSolanaAdapterForNetwork creates an adapter for a cluster's public endpoint
func NewSolanaAdapterForNetwork(network musig.Network, opts ...AdapterOption) (*SolanaAdapter, error) {
	if !network.Valid() {
		return nil, fmt.Errorf("unknown network %q", network)
	}
	return NewSolanaAdapter(network.RPCURL(), opts...), nil
}

// Endpoint returns the RPC URL
func (a *SolanaAdapter) Endpoint() string { return a.endpoint }

// call performs one JSON-RPC request and decodes the result into out
func (a *SolanaAdapter) call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit: %w", method, err)
		}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      a.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: unexpected HTTP status %s", method, resp.Status)
		}
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%s: %w", method, decoded.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected HTTP status %s", method, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// GetBalance returns the balance of address in lamports
func (a *SolanaAdapter) GetBalance(ctx context.Context, address musig.SolanaAddress) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	err := a.call(ctx, "getBalance", &result, address.String(), map[string]string{"commitment": a.commitment})
	if err != nil {
		return 0, err
	}
	return result.Value, nil
}

// RequestAirdrop asks a test cluster faucet for lamports and returns the
// airdrop transaction signature
func (a *SolanaAdapter) RequestAirdrop(ctx context.Context, to musig.SolanaAddress, lamports uint64) (string, error) {
	var signature string
	if err := a.call(ctx, "requestAirdrop", &signature, to.String(), lamports); err != nil {
		return "", err
	}
	return signature, nil
}

// GetRecentBlockhash returns the latest blockhash
func (a *SolanaAdapter) GetRecentBlockhash(ctx context.Context) (musig.Blockhash, error) {
	var result struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	err := a.call(ctx, "getLatestBlockhash", &result, map[string]string{"commitment": "finalized"})
	if err != nil {
		return musig.Blockhash{}, err
	}
	return musig.ParseBlockhash(result.Value.Blockhash)
}

// SendTransaction submits a signed transaction and returns its signature
func (a *SolanaAdapter) SendTransaction(ctx context.Context, tx *musig.SolanaTransaction) (string, error) {
	if !tx.IsSigned() {
		return "", fmt.Errorf("transaction is not fully signed")
	}
	raw, err := tx.Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}

	var signature string
	err = a.call(ctx, "sendTransaction", &signature,
		base64.StdEncoding.EncodeToString(raw),
		map[string]string{"encoding": "base64", "preflightCommitment": a.commitment},
	)
	if err != nil {
		return "", err
	}
	return signature, nil
}

var _ RPCClient = (*SolanaAdapter)(nil)
