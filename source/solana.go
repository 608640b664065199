package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/agora/governance"
)

// maxRPCResponseSize bounds RPC response bodies. getProgramAccounts over a
// busy realm can return a lot of data, but not unbounded.
const maxRPCResponseSize = 50 * 1024 * 1024 // 50MB

// Account type prefixes used by SPL Governance memcmp filters. The values
// are base58-encoded single bytes matched at offset 0 of the account data.
const (
	governanceAccountPrefix = "1"
	proposalAccountPrefix   = "2"
)

// Client fetches governance proposals from a Solana RPC node.
type Client struct {
	rpcURL     string
	program    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithProgram overrides the governance program address. Used for testing
// against non-mainnet deployments.
func WithProgram(program string) ClientOption {
	return func(client *Client) {
		client.program = program
	}
}

// NewClient creates a Solana governance client.
func NewClient(rpcURL string, opts ...ClientOption) *Client {
	if rpcURL == "" {
		rpcURL = DefaultRPCURL
	}
	c := &Client{
		rpcURL:  rpcURL,
		program: SPLGovernanceProgram,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// programAccount is one entry in a getProgramAccounts result.
type programAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		// Data is [content, encoding] with base64 encoding requested.
		Data []string `json:"data"`
	} `json:"account"`
}

// call executes a single JSON-RPC request.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewUnavailableError(fmt.Errorf("rpc call %s: %w", method, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRPCResponseSize))
	if err != nil {
		return nil, NewUnavailableError(fmt.Errorf("read rpc response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewUnavailableError(fmt.Errorf("rpc call %s: HTTP %d", method, resp.StatusCode))
	}

	var parsed rpcResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewUnavailableError(fmt.Errorf("parse rpc response: %w", err))
	}
	if parsed.Error != nil {
		return nil, NewUnavailableError(fmt.Errorf("rpc call %s: %w", method, parsed.Error))
	}

	return parsed.Result, nil
}

// programAccounts runs getProgramAccounts with an account-type prefix filter
// and a pubkey reference filter at offset 1.
func (c *Client) programAccounts(ctx context.Context, typePrefix, reference string) ([]programAccount, error) {
	result, err := c.call(ctx, "getProgramAccounts", []any{
		c.program,
		map[string]any{
			"encoding": "base64",
			"filters": []any{
				map[string]any{
					"memcmp": map[string]any{"offset": 0, "bytes": typePrefix},
				},
				map[string]any{
					"memcmp": map[string]any{"offset": 1, "bytes": reference},
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	var accounts []programAccount
	if err := json.Unmarshal(result, &accounts); err != nil {
		return nil, fmt.Errorf("parse program accounts: %w", err)
	}
	return accounts, nil
}

// GovernanceAccounts returns the governance account addresses for a realm.
func (c *Client) GovernanceAccounts(ctx context.Context, realmAddress string) ([]string, error) {
	accounts, err := c.programAccounts(ctx, governanceAccountPrefix, realmAddress)
	if err != nil {
		return nil, fmt.Errorf("governance accounts for realm %s: %w", realmAddress, err)
	}

	pubkeys := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		pubkeys = append(pubkeys, acc.Pubkey)
	}
	return pubkeys, nil
}

// FetchProposals returns every decodable proposal across all governance
// accounts of the realm. Accounts that fail to decode are logged and skipped;
// one corrupt account must not hide the rest of the realm.
func (c *Client) FetchProposals(ctx context.Context, realm Realm) ([]governance.Proposal, error) {
	governances, err := c.GovernanceAccounts(ctx, realm.Address)
	if err != nil {
		return nil, err
	}

	var proposals []governance.Proposal
	for _, gov := range governances {
		accounts, err := c.programAccounts(ctx, proposalAccountPrefix, gov)
		if err != nil {
			return nil, fmt.Errorf("proposals for governance %s: %w", gov, err)
		}

		for _, acc := range accounts {
			if len(acc.Account.Data) == 0 {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(acc.Account.Data[0])
			if err != nil {
				c.logger.Warn("Skipping account with undecodable data",
					"pubkey", acc.Pubkey, "error", err)
				continue
			}

			proposal, err := decodeProposal(raw)
			if err != nil {
				c.logger.Warn("Skipping undecodable proposal account",
					"pubkey", acc.Pubkey, "error", err)
				continue
			}

			proposal.ID = acc.Pubkey
			proposal.DAO = realm.Name
			proposals = append(proposals, *proposal)
		}
	}

	c.logger.Debug("Fetched proposals",
		"realm", realm.Name,
		"governances", len(governances),
		"proposals", len(proposals))

	return proposals, nil
}
