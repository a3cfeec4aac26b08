// Package agentconsole is a Go client for the agent console REST API.
package agentconsole

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the agent console API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Status mirrors GET /api/agent/status.
type Status struct {
	Owner               string `json:"owner"`
	LastActionTimestamp uint64 `json:"lastActionTimestamp"`
	LastActionData      string `json:"lastActionData"`
	ContractAddress     string `json:"contractAddress"`
}

// Ownership mirrors POST /api/agent/check-owner.
type Ownership struct {
	IsOwner       bool   `json:"isOwner"`
	Owner         string `json:"owner"`
	WalletAddress string `json:"walletAddress"`
}

// Event is a single AgentActionTriggered entry.
type Event struct {
	Data        string `json:"data"`
	Timestamp   uint64 `json:"timestamp"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// EventPage mirrors GET /api/agent/events. TotalScanned only covers the
// lookback window scanned by the server.
type EventPage struct {
	Events       []Event `json:"events"`
	TotalScanned int     `json:"totalScanned"`
}

// TriggerRequest is the advisory trigger payload.
type TriggerRequest struct {
	ContractAddress string `json:"contractAddress"`
	ActionData      string `json:"actionData"`
	WalletAddress   string `json:"walletAddress"`
	Signature       string `json:"signature"`
}

// TriggerAdvice is returned by the trigger endpoint; the server never submits.
type TriggerAdvice struct {
	Message string `json:"message"`
	Note    string `json:"note"`
}

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Network mirrors GET /api/network.
type Network struct {
	ChainID uint64 `json:"chainId"`
	Params  struct {
		ChainID           string         `json:"chainId"`
		ChainName         string         `json:"chainName"`
		NativeCurrency    NativeCurrency `json:"nativeCurrency"`
		RPCURLs           []string       `json:"rpcUrls"`
		BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
	} `json:"params"`
}

// APIError represents an error envelope returned by the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agent console api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agent console api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client. When httpClient is nil a default client
// with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Status reads the agent status of a contract.
func (c *Client) Status(ctx context.Context, contract string) (Status, error) {
	var status Status
	query := url.Values{"address": {contract}}
	if err := c.get(ctx, "/api/agent/status", query, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// CheckOwner reports whether wallet owns the contract.
func (c *Client) CheckOwner(ctx context.Context, contract, wallet string) (Ownership, error) {
	var out Ownership
	body := map[string]string{"contractAddress": contract, "walletAddress": wallet}
	if err := c.post(ctx, "/api/agent/check-owner", body, &out); err != nil {
		return Ownership{}, err
	}
	return out, nil
}

// Events lists action events newest first.
func (c *Client) Events(ctx context.Context, contract string, limit, offset int) (EventPage, error) {
	var page EventPage
	query := url.Values{
		"address": {contract},
		"limit":   {strconv.Itoa(limit)},
		"offset":  {strconv.Itoa(offset)},
	}
	if err := c.get(ctx, "/api/agent/events", query, &page); err != nil {
		return EventPage{}, err
	}
	return page, nil
}

// Trigger validates an action with the server.
func (c *Client) Trigger(ctx context.Context, req TriggerRequest) (TriggerAdvice, error) {
	var advice TriggerAdvice
	if err := c.post(ctx, "/api/agent/trigger", req, &advice); err != nil {
		return TriggerAdvice{}, err
	}
	return advice, nil
}

// Network returns the wallet registration parameters of the required chain.
func (c *Client) Network(ctx context.Context) (Network, error) {
	var network Network
	if err := c.get(ctx, "/api/network", nil, &network); err != nil {
		return Network{}, err
	}
	return network, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: query.Encode()}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
