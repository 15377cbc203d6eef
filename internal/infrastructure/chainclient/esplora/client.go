package esploraclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ark-network/watchtower/internal/core/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	callTimeout   = 30 * time.Second
	maxAttempts   = 3
	defaultMinGap = 300 * time.Millisecond
)

// DefaultBaseURL is the compiled-in Esplora host per network. Regtest has
// no default: its URL is injected at startup.
var DefaultBaseURL = map[string]string{
	"bitcoin": "https://blockstream.info/api",
	"testnet": "https://mempool.space/testnet/api",
	"tape":    "https://tape.rewindbitcoin.com/api",
}

// Client is a typed Esplora REST wrapper for one network. It maintains
// its own rate limiter so calls are paced by minGap regardless of
// caller concurrency.
type Client struct {
	baseURL string
	minGap  time.Duration
	limiter *rate.Limiter
	http    *http.Client
	log     *logrus.Entry
}

func New(networkID, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL[networkID]
	}
	return &Client{
		baseURL: baseURL,
		minGap:  defaultMinGap,
		limiter: rate.NewLimiter(rate.Every(defaultMinGap), 1),
		http:    &http.Client{Timeout: callTimeout},
		log:     logrus.WithField("network", networkID),
	}
}

func (c *Client) TipHeight(ctx context.Context) (int64, error) {
	body, err := c.doGet(ctx, "blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chain client: parse tip height: %w", err)
	}
	return height, nil
}

func (c *Client) BlockHash(ctx context.Context, height int64) (string, error) {
	body, err := c.doGet(ctx, fmt.Sprintf("block-height/%d", height))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) BlockTxids(ctx context.Context, hash string) ([]string, error) {
	body, err := c.doGet(ctx, fmt.Sprintf("block/%s/txids", hash))
	if err != nil {
		return nil, err
	}
	var txids []string
	if err := json.Unmarshal(body, &txids); err != nil {
		return nil, fmt.Errorf("chain client: decode block txids: %w", err)
	}
	return txids, nil
}

func (c *Client) MempoolTxids(ctx context.Context) (map[string]struct{}, error) {
	body, err := c.doGet(ctx, "mempool/txids")
	if err != nil {
		return nil, err
	}
	var txids []string
	if err := json.Unmarshal(body, &txids); err != nil {
		return nil, fmt.Errorf("chain client: decode mempool txids: %w", err)
	}
	set := make(map[string]struct{}, len(txids))
	for _, t := range txids {
		set[t] = struct{}{}
	}
	return set, nil
}

type esploraStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
}

func (c *Client) TxStatus(ctx context.Context, txid string) (*ports.TxStatus, error) {
	body, absent, err := c.doGetAllowNotFound(ctx, fmt.Sprintf("tx/%s/status", txid))
	if err != nil {
		return nil, err
	}
	if absent {
		return nil, nil
	}
	var s esploraStatus
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("chain client: decode tx status: %w", err)
	}
	return &ports.TxStatus{Confirmed: s.Confirmed, BlockHeight: s.BlockHeight, BlockHash: s.BlockHash}, nil
}

type esploraTxDetails struct {
	Txid string `json:"txid"`
	Vin  []struct {
		Txid string `json:"txid"`
		Vout uint32 `json:"vout"`
	} `json:"vin"`
	Vout []struct {
		Value    int64  `json:"value"`
		PkScript string `json:"scriptpubkey"`
	} `json:"vout"`
}

func (c *Client) TxDetails(ctx context.Context, txid string) (*ports.TxDetails, error) {
	body, absent, err := c.doGetAllowNotFound(ctx, fmt.Sprintf("tx/%s", txid))
	if err != nil {
		return nil, err
	}
	if absent {
		return nil, nil
	}
	var d esploraTxDetails
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("chain client: decode tx details: %w", err)
	}
	details := &ports.TxDetails{Txid: d.Txid}
	for _, in := range d.Vin {
		details.Vin = append(details.Vin, ports.TxIn{Txid: in.Txid, Vout: in.Vout})
	}
	for _, out := range d.Vout {
		script, err := hex.DecodeString(out.PkScript)
		if err != nil {
			return nil, fmt.Errorf("chain client: decode output script: %w", err)
		}
		details.Vout = append(details.Vout, ports.TxOut{Value: out.Value, PkScript: script})
	}
	return details, nil
}

func (c *Client) endpoint(path string) (string, error) {
	return url.JoinPath(c.baseURL, path)
}

// doGet performs a paced, retried GET. 404s are treated as errors here;
// callers that need "absent" semantics use doGetAllowNotFound.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	body, absent, err := c.doGetAllowNotFound(ctx, path)
	if err != nil {
		return nil, err
	}
	if absent {
		return nil, fmt.Errorf("chain client: %s: not found", path)
	}
	return body, nil
}

func (c *Client) doGetAllowNotFound(ctx context.Context, path string) (body []byte, absent bool, err error) {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return nil, false, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			cancel()
			return nil, false, err
		}

		resp, err := c.http.Do(req)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("%w: %s", ports.ErrTimeout, err)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, true, nil
		}

		b, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("chain client: %s: unexpected status %s", path, resp.Status)
			c.backoff(ctx, attempt)
			continue
		}

		return b, false, nil
	}

	c.log.WithError(lastErr).Warnf("chain client: %s: giving up after %d attempts", path, maxAttempts)
	return nil, false, lastErr
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	select {
	case <-time.After(time.Duration(attempt) * c.minGap):
	case <-ctx.Done():
	}
}
