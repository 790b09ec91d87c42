// Package httpsync implements the remote peer port over the HTTP peer
// protocol: a polling changes endpoint, a bulk upload endpoint and a live
// WebSocket change feed.
package httpsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driven"
	"github.com/cartloop-labs/cartloop-cli/internal/logger"
)

var _ driven.RemotePeer = (*Peer)(nil)
var _ driven.RemoteDialer = (*Dialer)(nil)

const dialTimeout = 10 * time.Second

// Dialer connects to remote peers over HTTP.
type Dialer struct {
	client *http.Client
}

// NewDialer creates a Dialer. If client is nil, a client with a sensible
// timeout is used.
func NewDialer(client *http.Client) *Dialer {
	if client == nil {
		client = &http.Client{Timeout: dialTimeout}
	}
	return &Dialer{client: client}
}

// Dial validates the remote URL and returns a connected peer. The remote is
// probed with a changes request past the end of any feed, so an unreachable
// or non-peer endpoint fails here, not mid-replication.
func (d *Dialer) Dial(ctx context.Context, rawURL string) (driven.RemotePeer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing remote URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported remote scheme %q", u.Scheme)
	}

	p := &Peer{
		baseURL: strings.TrimRight(rawURL, "/"),
		client:  d.client,
	}
	if _, _, err := p.Changes(ctx, math.MaxInt64); err != nil {
		return nil, fmt.Errorf("probing remote: %w", err)
	}
	return p, nil
}

// Peer is one connected remote endpoint.
type Peer struct {
	baseURL string
	client  *http.Client
}

// Changes fetches the remote change feed entries with seq > since.
func (p *Peer) Changes(ctx context.Context, since int64) ([]driven.Change, int64, error) {
	u := p.baseURL + "/changes?since=" + strconv.FormatInt(since, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building changes request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching changes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("changes request failed: %s", resp.Status)
	}

	var body ChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("decoding changes response: %w", err)
	}

	changes := make([]driven.Change, 0, len(body.Results))
	for _, row := range body.Results {
		changes = append(changes, driven.Change{Seq: row.Seq, Doc: row.Doc})
	}
	return changes, body.LastSeq, nil
}

// Push uploads documents to the remote store.
func (p *Peer) Push(ctx context.Context, docs []domain.Document) error {
	payload, err := json.Marshal(BulkDocsRequest{Docs: docs})
	if err != nil {
		return fmt.Errorf("encoding bulk docs: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/bulk_docs", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building bulk docs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("uploading documents: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bulk docs request failed: %s", resp.Status)
	}
	return nil
}

// Feed opens the live WebSocket change feed starting after since. Both
// returned channels are closed when the feed ends; a read failure is
// delivered on the error channel before closing. Cancelling ctx closes
// the connection.
func (p *Peer) Feed(ctx context.Context, since int64) (<-chan driven.Change, <-chan error, error) {
	wsURL, err := p.feedURL(since)
	if err != nil {
		return nil, nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("opening feed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	feed := make(chan driven.Change)
	errs := make(chan error, 1)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(feed)
		defer close(errs)
		for {
			var row ChangeRow
			if err := conn.ReadJSON(&row); err != nil {
				if ctx.Err() != nil {
					return // cancelled, not a transport failure
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				errs <- fmt.Errorf("reading feed: %w", err)
				return
			}
			select {
			case <-ctx.Done():
				return
			case feed <- driven.Change{Seq: row.Seq, Doc: row.Doc}:
			}
		}
	}()

	logger.Debug("live feed opened to %s (since=%d)", p.baseURL, since)
	return feed, errs, nil
}

// Close releases idle connections held for this peer.
func (p *Peer) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *Peer) feedURL(since int64) (string, error) {
	u, err := url.Parse(p.baseURL + "/ws")
	if err != nil {
		return "", fmt.Errorf("parsing feed URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("since", strconv.FormatInt(since, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
