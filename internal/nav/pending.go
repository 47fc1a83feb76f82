package nav

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// pendingKey is the sessionStorage slot for the cross-navigation restore
// record. sessionStorage is exactly the durability the record needs: it
// survives a full page navigation in the same tab but not a new browsing
// session.
const pendingKey = "calquick.pending_restore"

// PendingRestore is the durable record written when an in-place route
// restoration failed and a hard navigation is about to happen. It is
// consumed exactly once, at next startup, then discarded regardless of
// whether the restore that follows succeeds.
type PendingRestore struct {
	Route      string   `json:"route"`
	WinX       float64  `json:"win_x"`
	WinY       float64  `json:"win_y"`
	PrimaryTop *float64 `json:"primary_top"`
	CapturedAt int64    `json:"captured_at"` // epoch milliseconds
}

// Scroll reconstructs the ScrollSnapshot carried by the record.
func (p *PendingRestore) Scroll() ScrollSnapshot {
	return ScrollSnapshot{WinX: p.WinX, WinY: p.WinY, PrimaryTop: p.PrimaryTop}
}

const jsSetPending = `(key, val) => { sessionStorage.setItem(key, val); }`

const jsConsumePending = `(key) => {
	const v = sessionStorage.getItem(key);
	sessionStorage.removeItem(key);
	return v || "";
}`

// SetPendingRestore persists the record for the next page load.
func SetPendingRestore(ctx context.Context, ev Evaluator, route RouteSnapshot, scroll ScrollSnapshot, now time.Time) error {
	rec := PendingRestore{
		Route:      string(route),
		WinX:       scroll.WinX,
		WinY:       scroll.WinY,
		PrimaryTop: scroll.PrimaryTop,
		CapturedAt: now.UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("nav: marshal pending restore: %w", err)
	}
	if err := ev.Eval(ctx, jsSetPending, nil, pendingKey, string(data)); err != nil {
		return fmt.Errorf("nav: persist pending restore: %w", err)
	}
	return nil
}

// ConsumePendingRestore reads and deletes the record in one step. The
// removal happens even when the payload turns out to be garbage: the
// record is one-shot by contract.
func ConsumePendingRestore(ctx context.Context, ev Evaluator) (*PendingRestore, bool, error) {
	var raw string
	if err := ev.Eval(ctx, jsConsumePending, &raw, pendingKey); err != nil {
		return nil, false, fmt.Errorf("nav: consume pending restore: %w", err)
	}
	if raw == "" {
		return nil, false, nil
	}
	var rec PendingRestore
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("nav: decode pending restore: %w", err)
	}
	return &rec, true, nil
}
