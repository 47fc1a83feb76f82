package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/calquick/internal/dom"
	"github.com/hazyhaar/calquick/internal/poll"
)

// Policy decides which control the acceptor presses when the host asks
// whether to notify other participants about the change.
type Policy string

const (
	PolicySend     Policy = "send"
	PolicyDontSend Policy = "dont_send"
)

// roleForPolicy maps the configured answer to the control role to press.
func roleForPolicy(p Policy) dom.Role {
	if p == PolicyDontSend {
		return dom.RoleUpdateDecline
	}
	return dom.RoleUpdateSend
}

// promptWindow bounds how long an armed acceptor keeps looking. The
// prompt appears within a second or two of the save click when it
// appears at all.
const promptWindow = 6 * time.Second

// promptTick is the acceptor's re-check interval.
const promptTick = 300 * time.Millisecond

// finder is the slice of the host surface the acceptor needs.
type finder interface {
	Find(ctx context.Context, role dom.Role, scope string) (dom.Candidate, bool, error)
	Click(ctx context.Context, xpath string) error
}

// Armer spawns short-lived acceptors for the host's update prompt. One
// acceptor per save attempt, armed just before the post-save idle wait
// and disarmed right after it.
type Armer struct {
	ui     finder
	policy Policy
	clock  poll.Clock
	logger *slog.Logger
}

// NewArmer creates an Armer.
func NewArmer(ui finder, policy Policy, clock poll.Clock, logger *slog.Logger) *Armer {
	if clock == nil {
		clock = poll.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if policy != PolicyDontSend {
		policy = PolicySend
	}
	return &Armer{ui: ui, policy: policy, clock: clock, logger: logger}
}

// Arm starts an acceptor goroutine and returns its stop function. The
// acceptor ends on its own after answering the prompt or exhausting the
// window; stop is idempotent and safe to call after either.
func (a *Armer) Arm(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		a.run(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}

func (a *Armer) run(ctx context.Context) {
	deadline := a.clock.Now().Add(promptWindow)
	for a.clock.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}

		prompt, found, err := a.ui.Find(ctx, dom.RoleUpdatePrompt, "")
		if err != nil {
			a.logger.Debug("watch: prompt sweep failed", "error", err)
		}
		if found {
			if a.answer(ctx, prompt.XPath) {
				return
			}
		}

		a.clock.Sleep(promptTick)
	}
}

// answer presses the policy's control inside the prompt. Returns true
// when the prompt was dealt with.
func (a *Armer) answer(ctx context.Context, promptXPath string) bool {
	role := roleForPolicy(a.policy)

	ctrl, found, err := a.ui.Find(ctx, role, promptXPath)
	if err != nil || !found {
		// Prompt on screen but the expected control not yet rendered;
		// next tick retries.
		return false
	}

	if err := a.ui.Click(ctx, ctrl.XPath); err != nil {
		a.logger.Warn("watch: prompt answer click failed", "error", err)
		return false
	}

	a.logger.Info("watch: update prompt answered",
		"policy", string(a.policy), "control", role.String())
	return true
}
