package solwatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"
)

// SigUpdate reports the confirmation state of one watched transaction
// signature.
type SigUpdate struct {
	Signature string
	Slot      uint64
	Status    string // "processed", "confirmed" or "finalized"
	Finalized bool
	TxErr     string
	OK        bool
	At        time.Time
}

// Watcher is a minimal pusher: each tick it queries the signature
// status of every signature that currently has at least one subscriber
// and broadcasts a SigUpdate. Finalized results are cached so later
// subscribers do not wait for another RPC round-trip.
type Watcher struct {
	log    slog.Logger
	rpcURL string
	client *http.Client

	mu   sync.RWMutex
	slot uint64
	subs map[string]map[chan SigUpdate]struct{} // signature -> set(chan)
	// known stores finalized or failed signatures so subsequent ticks
	// and late subscribers can be answered without re-querying.
	known map[string]SigUpdate

	pollInterval time.Duration
	quit         chan struct{}
}

func NewWatcher(log slog.Logger, rpcURL string) *Watcher {
	return &Watcher{
		log:          log,
		rpcURL:       rpcURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		subs:         make(map[string]map[chan SigUpdate]struct{}),
		known:        make(map[string]SigUpdate),
		pollInterval: 5 * time.Second,
		quit:         make(chan struct{}),
	}
}

func (w *Watcher) Stop() { close(w.quit) }

func (w *Watcher) Run(ctx context.Context) {
	w.log.Infof("watcher: started")
	t := time.NewTicker(w.pollInterval)
	defer t.Stop()
	defer w.log.Infof("watcher: stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.quit:
			return
		case <-t.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	// Update current slot (best effort).
	var slot uint64
	if err := w.call(ctx, "getSlot", nil, &slot); err == nil {
		w.mu.Lock()
		w.slot = slot
		w.mu.Unlock()
	} else {
		w.log.Debugf("watcher: getSlot failed: %v", err)
	}

	// Snapshot subscribed signatures.
	w.mu.RLock()
	if len(w.subs) == 0 {
		w.mu.RUnlock()
		return
	}
	sigs := make([]string, 0, len(w.subs))
	for k := range w.subs {
		sigs = append(sigs, k)
	}
	w.mu.RUnlock()

	statuses, err := w.signatureStatuses(ctx, sigs)
	if err != nil {
		w.log.Debugf("watcher: getSignatureStatuses failed: %v", err)
		return
	}

	for i, sig := range sigs {
		u := SigUpdate{Signature: sig, At: time.Now()}
		if st := statuses[i]; st != nil {
			u.Slot = st.Slot
			u.Status = st.ConfirmationStatus
			u.Finalized = st.ConfirmationStatus == "finalized"
			u.OK = true
			if st.Err != nil {
				b, _ := json.Marshal(st.Err)
				u.TxErr = string(b)
			}
		}
		if u.Finalized || u.TxErr != "" {
			w.mu.Lock()
			w.known[sig] = u
			w.mu.Unlock()
		}
		w.broadcastUpdate(sig, u)
	}
}

type sigStatus struct {
	Slot               uint64 `json:"slot"`
	ConfirmationStatus string `json:"confirmationStatus"`
	Err                any    `json:"err"`
}

func (w *Watcher) signatureStatuses(ctx context.Context, sigs []string) ([]*sigStatus, error) {
	params := []any{sigs, map[string]bool{"searchTransactionHistory": true}}
	var res struct {
		Value []*sigStatus `json:"value"`
	}
	if err := w.call(ctx, "getSignatureStatuses", params, &res); err != nil {
		return nil, err
	}
	if len(res.Value) != len(sigs) {
		return nil, fmt.Errorf("status count mismatch: got %d, want %d", len(res.Value), len(sigs))
	}
	return res.Value, nil
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call performs a single JSON-RPC round-trip against the configured
// endpoint, decoding the result into out when non-nil.
func (w *Watcher) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// Subscribe adds a listener for a signature and returns the channel +
// unsubscribe. A cached terminal result is delivered immediately;
// otherwise first data arrives on the next tick.
func (w *Watcher) Subscribe(signature string) (<-chan SigUpdate, func()) {
	k := strings.TrimSpace(signature)
	ch := make(chan SigUpdate, 8)

	w.mu.Lock()
	if u, ok := w.known[k]; ok {
		ch <- u
	}
	if _, ok := w.subs[k]; !ok {
		w.subs[k] = make(map[chan SigUpdate]struct{})
	}
	w.subs[k][ch] = struct{}{}
	n := len(w.subs[k])
	w.mu.Unlock()
	w.log.Debugf("watcher: subscribed sig=%s (subs=%d)", k, n)

	unsub := func() {
		w.mu.Lock()
		if set, ok := w.subs[k]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(w.subs, k)
			}
		}
		w.mu.Unlock()
		// Do not close(ch): the producer may still try to send; the
		// receiver stops via its own context.
	}
	return ch, unsub
}

// broadcastUpdate snapshots subscribers for sig, then best-effort sends.
func (w *Watcher) broadcastUpdate(sig string, u SigUpdate) {
	w.mu.RLock()
	set := w.subs[sig]
	chs := make([]chan SigUpdate, 0, len(set))
	for ch := range set {
		chs = append(chs, ch)
	}
	w.mu.RUnlock()

	for _, ch := range chs {
		select {
		case ch <- u:
		default:
			// Drop if receiver is slow.
		}
	}
}

// ConfirmDeposit blocks until the signature finalizes, the transaction
// fails, or ctx expires. It satisfies clickgame.EscrowOracle.
func (w *Watcher) ConfirmDeposit(ctx context.Context, signature string) error {
	ch, unsub := w.Subscribe(signature)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("deposit %s not confirmed: %w", signature, ctx.Err())
		case u := <-ch:
			if u.TxErr != "" {
				return fmt.Errorf("deposit transaction failed: %s", u.TxErr)
			}
			if u.Finalized {
				return nil
			}
		}
	}
}

// ReleasePayout records the payout for the program wallet service to
// execute. The transfer itself happens outside this process, so the
// release is optimistic.
func (w *Watcher) ReleasePayout(ctx context.Context, walletRef string, amount float64) error {
	if walletRef == "" {
		return fmt.Errorf("no payout wallet for winner")
	}
	w.log.Infof("watcher: payout of %.4f SOL released to %s", amount, walletRef)
	return nil
}
