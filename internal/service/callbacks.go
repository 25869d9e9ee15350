package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/ayo6706/payout-ledger/internal/models"
	"github.com/ayo6706/payout-ledger/internal/observability"
	"go.uber.org/zap"
)

// CallbackLog is the append-only record of simulated webhook deliveries.
type CallbackLog struct {
	mu      sync.Mutex
	entries []models.CallbackEntry
	seq     int64
	hmacKey []byte
}

func NewCallbackLog(hmacKey string) *CallbackLog {
	return &CallbackLog{hmacKey: []byte(hmacKey)}
}

// Append records a delivery of payout to url and returns the stored entry.
func (l *CallbackLog) Append(url, event string, payout models.Payout, at time.Time) models.CallbackEntry {
	payload := models.CallbackPayload{Event: event, Payout: payout}
	signature := l.sign(payload)

	l.mu.Lock()
	l.seq++
	entry := models.CallbackEntry{
		Seq:       l.seq,
		URL:       url,
		Event:     event,
		Payload:   payload,
		Signature: signature,
		Timestamp: at.UTC(),
	}
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	observability.IncrementCallback(event, "logged")
	return entry
}

// Entries returns a copy of the whole log.
func (l *CallbackLog) Entries() []models.CallbackEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.CallbackEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// CallbacksAfter returns up to limit entries with Seq greater than seq.
func (l *CallbackLog) CallbacksAfter(seq int64, limit int) []models.CallbackEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.CallbackEntry, 0)
	for _, e := range l.entries {
		if e.Seq <= seq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Reset empties the log. Sequence numbers keep increasing so tailing consumers
// never re-read an old position.
func (l *CallbackLog) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

func (l *CallbackLog) sign(payload models.CallbackPayload) string {
	if len(l.hmacKey) == 0 {
		return ""
	}
	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Warn("marshal callback payload for signing", zap.Error(err))
		return ""
	}
	return SignPayload(l.hmacKey, body)
}

// SignPayload returns the "sha256=<hex>" HMAC of body under key.
func SignPayload(key, body []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature reports whether signature is the HMAC of body under key.
// Receivers of callback deliveries use it to authenticate the sender.
func VerifySignature(key, body []byte, signature string) bool {
	if len(key) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(SignPayload(key, body)))
}
