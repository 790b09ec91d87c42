package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driven"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driving"
	"github.com/cartloop-labs/cartloop-cli/internal/logger"
)

// Ensure SyncController implements the interface.
var _ driving.SyncController = (*SyncController)(nil)

// checkpointPrefix namespaces the per-remote replication cursors among the
// local documents.
const checkpointPrefix = domain.LocalDocPrefix + "sync:"

// checkpoint persists how far replication got against one remote, so
// catch-up is incremental across runs.
type checkpoint struct {
	PullSeq  int64  `json:"pullSeq"`
	PushSeq  int64  `json:"pushSeq"`
	LastSync string `json:"lastSync"`
}

// SyncController reconciles the local store with a remote peer: a one-shot
// catch-up pass in both directions until converged, then a continuous,
// auto-retrying, bidirectional session. At most one continuous session per
// store is active; starting a new one cancels the previous.
type SyncController struct {
	store  driven.DocumentStore
	dialer driven.RemoteDialer

	// retryEvery paces restarts of a failed continuous session;
	// pollEvery paces the outbound push scan.
	retryEvery time.Duration
	pollEvery  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// Directional filtering: revisions this session pushed must not be
	// re-reported when they echo back on the remote feed, and revisions it
	// pulled must not be pushed back out.
	sess sessionRevs
}

// NewSyncController creates a controller for a store. dialer may be nil for
// local-only operation.
func NewSyncController(store driven.DocumentStore, dialer driven.RemoteDialer) *SyncController {
	return &SyncController{
		store:      store,
		dialer:     dialer,
		retryEvery: 3 * time.Second,
		pollEvery:  500 * time.Millisecond,
	}
}

// sessionRevs tracks which revision of each document crossed the wire in
// which direction during the current session.
type sessionRevs struct {
	mu     sync.Mutex
	pulled map[string]string
	pushed map[string]string
}

func (s *sessionRevs) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulled = make(map[string]string)
	s.pushed = make(map[string]string)
}

func (s *sessionRevs) markPulled(id, rev string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulled[id] = rev
}

func (s *sessionRevs) markPushed(id, rev string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushed[id] = rev
}

func (s *sessionRevs) wasPulled(id, rev string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulled[id] == rev
}

func (s *sessionRevs) wasPushed(id, rev string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed[id] == rev
}

// Synchronize runs the two-phase replication lifecycle.
//
// Any previously started continuous session is cancelled first. An empty
// remoteURL reports an immediate no-op success (local-only mode). Catch-up
// runs to completion or failure before this call returns; its outcome is
// surfaced exactly once through onComplete, and a failure means the
// continuous phase never starts. Continuous-phase errors are non-fatal,
// reported through onChange while the session keeps retrying.
func (c *SyncController) Synchronize(ctx context.Context, remoteURL string, onComplete driving.CompleteFunc, onChange driving.ChangeFunc) error {
	c.Cancel()

	if remoteURL == "" {
		if onComplete != nil {
			onComplete(nil, &driving.SyncInfo{})
		}
		return nil
	}
	if c.dialer == nil {
		return fmt.Errorf("%w: no remote dialer configured", domain.ErrSync)
	}

	c.sess.reset()

	peer, err := c.dialer.Dial(ctx, remoteURL)
	if err != nil {
		if onComplete != nil {
			onComplete(fmt.Errorf("%w: dialing %s: %w", domain.ErrSync, remoteURL, err), nil)
		}
		return nil
	}

	cp := c.loadCheckpoint(ctx, remoteURL)

	info, err := c.catchUp(ctx, remoteURL, peer, &cp)
	if err != nil {
		peer.Close()
		if onComplete != nil {
			onComplete(fmt.Errorf("%w: %w", domain.ErrSync, err), nil)
		}
		return nil
	}
	if onComplete != nil {
		onComplete(nil, info)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.runContinuous(sessionCtx, done, remoteURL, peer, cp, onChange)
	return nil
}

// Cancel stops the active continuous session and waits for it to wind down.
// An in-flight catch-up is never cancelled; it completes or fails on its own.
func (c *SyncController) Cancel() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// catchUp replicates in both directions until a full round moves nothing.
func (c *SyncController) catchUp(ctx context.Context, remoteURL string, peer driven.RemotePeer, cp *checkpoint) (*driving.SyncInfo, error) {
	info := &driving.SyncInfo{}

	for {
		pulled, err := c.pullOnce(ctx, peer, cp)
		if err != nil {
			return nil, fmt.Errorf("catch-up pull: %w", err)
		}
		pushed, err := c.pushOnce(ctx, peer, cp)
		if err != nil {
			return nil, fmt.Errorf("catch-up push: %w", err)
		}

		info.DocsPulled += pulled
		info.DocsPushed += pushed
		c.saveCheckpoint(ctx, remoteURL, *cp)

		if pulled == 0 && pushed == 0 {
			logger.Info("catch-up converged: %d pulled, %d pushed", info.DocsPulled, info.DocsPushed)
			return info, nil
		}
	}
}

// pullOnce applies one batch of remote changes locally. Changes that echo a
// revision this session pushed only advance the cursor.
func (c *SyncController) pullOnce(ctx context.Context, peer driven.RemotePeer, cp *checkpoint) (int, error) {
	changes, last, err := peer.Changes(ctx, cp.PullSeq)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}

	var inbound []domain.Document
	for _, ch := range changes {
		if c.sess.wasPushed(ch.Doc.ID, ch.Doc.Rev) {
			continue
		}
		inbound = append(inbound, ch.Doc)
		c.sess.markPulled(ch.Doc.ID, ch.Doc.Rev)
	}

	if len(inbound) > 0 {
		if err := c.store.ApplyReplicated(ctx, inbound); err != nil {
			return 0, err
		}
	}
	cp.PullSeq = last
	return len(inbound), nil
}

// pushOnce uploads one batch of local changes. Changes that echo a revision
// this session pulled only advance the cursor.
func (c *SyncController) pushOnce(ctx context.Context, peer driven.RemotePeer, cp *checkpoint) (int, error) {
	changes, last, err := c.store.Changes(ctx, cp.PushSeq)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}

	var outbound []domain.Document
	for _, ch := range changes {
		if c.sess.wasPulled(ch.Doc.ID, ch.Doc.Rev) {
			continue
		}
		outbound = append(outbound, ch.Doc)
	}

	if len(outbound) > 0 {
		if err := peer.Push(ctx, outbound); err != nil {
			return 0, err
		}
		for _, doc := range outbound {
			c.sess.markPushed(doc.ID, doc.Rev)
		}
	}
	cp.PushSeq = last
	return len(outbound), nil
}

// runContinuous keeps a live session going until the context is cancelled.
// The retry limiter paces reconnects; errors are reported through onChange
// without tearing the loop down.
func (c *SyncController) runContinuous(ctx context.Context, done chan struct{}, remoteURL string, peer driven.RemotePeer, cp checkpoint, onChange driving.ChangeFunc) {
	defer close(done)
	defer peer.Close()

	limiter := rate.NewLimiter(rate.Every(c.retryEvery), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		err := c.liveSession(ctx, remoteURL, peer, &cp, onChange)
		if ctx.Err() != nil {
			return
		}
		if err != nil && onChange != nil {
			onChange(fmt.Errorf("%w: %w", domain.ErrSync, err), nil)
		}
	}
}

// liveSession runs one subscription to the remote feed plus the outbound
// push poll, until either side fails or the context ends.
func (c *SyncController) liveSession(ctx context.Context, remoteURL string, peer driven.RemotePeer, cp *checkpoint, onChange driving.ChangeFunc) error {
	feed, errs, err := peer.Feed(ctx, cp.PullSeq)
	if err != nil {
		return fmt.Errorf("opening feed: %w", err)
	}

	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-errs:
			if err != nil {
				return fmt.Errorf("feed: %w", err)
			}

		case ch, ok := <-feed:
			if !ok {
				return errors.New("feed closed")
			}
			batch := append([]driven.Change{ch}, drain(feed)...)
			if err := c.applyInbound(ctx, remoteURL, batch, cp, onChange); err != nil {
				return fmt.Errorf("applying inbound batch: %w", err)
			}

		case <-ticker.C:
			if _, err := c.pushOnce(ctx, peer, cp); err != nil {
				return fmt.Errorf("pushing: %w", err)
			}
			c.saveCheckpoint(ctx, remoteURL, *cp)
		}
	}
}

// applyInbound writes a pulled batch locally and notifies the caller.
// Echoes of this session's own pushes are filtered out: the caller already
// knows about its own writes.
func (c *SyncController) applyInbound(ctx context.Context, remoteURL string, batch []driven.Change, cp *checkpoint, onChange driving.ChangeFunc) error {
	var inbound []domain.Document
	for _, ch := range batch {
		if ch.Seq > cp.PullSeq {
			cp.PullSeq = ch.Seq
		}
		if c.sess.wasPushed(ch.Doc.ID, ch.Doc.Rev) {
			continue
		}
		inbound = append(inbound, ch.Doc)
		c.sess.markPulled(ch.Doc.ID, ch.Doc.Rev)
	}

	if len(inbound) > 0 {
		if err := c.store.ApplyReplicated(ctx, inbound); err != nil {
			return err
		}
		if onChange != nil {
			onChange(nil, inbound)
		}
	}
	c.saveCheckpoint(ctx, remoteURL, *cp)
	return nil
}

// drain collects whatever is already buffered on the feed without blocking,
// so rapid changes are reported as one batch.
func drain(feed <-chan driven.Change) []driven.Change {
	var more []driven.Change
	for {
		select {
		case ch, ok := <-feed:
			if !ok {
				return more
			}
			more = append(more, ch)
		default:
			return more
		}
	}
}

// loadCheckpoint reads the per-remote cursor document. A missing or corrupt
// checkpoint restarts replication from zero, which is safe: replication is
// idempotent, just slower.
func (c *SyncController) loadCheckpoint(ctx context.Context, remoteURL string) checkpoint {
	var cp checkpoint
	body, _, err := c.store.GetLocal(ctx, checkpointPrefix+remoteURL)
	if err != nil {
		return cp
	}
	if err := json.Unmarshal(body, &cp); err != nil {
		logger.Warn("checkpoint for %s unreadable, restarting from zero: %v", remoteURL, err)
		return checkpoint{}
	}
	return cp
}

// saveCheckpoint persists the cursors. Best effort: a lost checkpoint only
// costs a redundant (idempotent) replication pass.
func (c *SyncController) saveCheckpoint(ctx context.Context, remoteURL string, cp checkpoint) {
	cp.LastSync = domain.Timestamp()
	body, err := json.Marshal(cp)
	if err != nil {
		logger.Warn("encoding checkpoint for %s: %v", remoteURL, err)
		return
	}

	id := checkpointPrefix + remoteURL
	_, rev, err := c.store.GetLocal(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("loading checkpoint revision for %s: %v", remoteURL, err)
		return
	}
	if _, err := c.store.PutLocal(ctx, id, rev, body); err != nil {
		logger.Warn("saving checkpoint for %s: %v", remoteURL, err)
	}
}
