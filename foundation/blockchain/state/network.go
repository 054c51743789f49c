package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
)

// baseURL is the root of the node to node API of a peer. Peers are known
// by their private API address.
const baseURL = "http://%s/v1/node"

// ChainFetcher represents the behavior required to retrieve the chain
// held by a peer.
type ChainFetcher interface {
	FetchChain(ctx context.Context, pr peer.Peer) (peer.ChainResponse, error)
}

// =============================================================================

// HTTPFetcher retrieves peer chains over the node to node HTTP API.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher constructs a fetcher using its own http client. Timeouts
// come from the context of each call.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{},
	}
}

// FetchChain asks the peer for its full chain.
func (f *HTTPFetcher) FetchChain(ctx context.Context, pr peer.Peer) (peer.ChainResponse, error) {
	url := fmt.Sprintf("%s/chain", fmt.Sprintf(baseURL, pr.Host))

	var resp peer.ChainResponse
	if err := send(ctx, f.client, http.MethodGet, url, nil, &resp); err != nil {
		return peer.ChainResponse{}, err
	}

	return resp, nil
}

// =============================================================================

// send is a helper function to send an HTTP request to a node.
func send(ctx context.Context, client *http.Client, method string, url string, dataSend any, dataRecv any) error {
	var body io.Reader
	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if dataSend != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err != nil {
			return err
		}
		return fmt.Errorf("status %d: %w", resp.StatusCode, errors.New(string(bytes.TrimSpace(msg))))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
