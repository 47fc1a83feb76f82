package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/calquick/internal/dom"
	"github.com/hazyhaar/calquick/internal/poll"
)

type fakeFinder struct {
	mu          sync.Mutex
	prompt      bool
	send        bool
	decline     bool
	ctrlAfter   int // Find calls for the control before it renders
	ctrlCalls   int
	clicks      []string
	clicked     chan struct{}
	clickedOnce sync.Once
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{clicked: make(chan struct{})}
}

func (f *fakeFinder) Find(_ context.Context, role dom.Role, scope string) (dom.Candidate, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch role {
	case dom.RoleUpdatePrompt:
		if f.prompt {
			return dom.Candidate{XPath: "/prompt"}, true, nil
		}
	case dom.RoleUpdateSend:
		f.ctrlCalls++
		if f.send && f.ctrlCalls > f.ctrlAfter {
			return dom.Candidate{XPath: scope + "/send"}, true, nil
		}
	case dom.RoleUpdateDecline:
		f.ctrlCalls++
		if f.decline && f.ctrlCalls > f.ctrlAfter {
			return dom.Candidate{XPath: scope + "/decline"}, true, nil
		}
	}
	return dom.Candidate{}, false, nil
}

func (f *fakeFinder) Click(_ context.Context, xpath string) error {
	f.mu.Lock()
	f.clicks = append(f.clicks, xpath)
	f.mu.Unlock()
	f.clickedOnce.Do(func() { close(f.clicked) })
	return nil
}

func (f *fakeFinder) clickList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clicks...)
}

func waitClicked(t *testing.T, f *fakeFinder) {
	t.Helper()
	select {
	case <-f.clicked:
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor never clicked")
	}
}

func TestArmAnswersSend(t *testing.T) {
	f := newFakeFinder()
	f.prompt, f.send, f.decline = true, true, true

	a := NewArmer(f, PolicySend, poll.NewFake(), nil)
	stop := a.Arm(context.Background())

	waitClicked(t, f)
	stop()

	clicks := f.clickList()
	if len(clicks) != 1 || clicks[0] != "/prompt/send" {
		t.Errorf("clicks: %v", clicks)
	}
}

func TestArmAnswersDecline(t *testing.T) {
	f := newFakeFinder()
	f.prompt, f.send, f.decline = true, true, true

	a := NewArmer(f, PolicyDontSend, poll.NewFake(), nil)
	stop := a.Arm(context.Background())

	waitClicked(t, f)
	stop()

	clicks := f.clickList()
	if len(clicks) != 1 || clicks[0] != "/prompt/decline" {
		t.Errorf("clicks: %v", clicks)
	}
}

func TestArmNoPromptClicksNothing(t *testing.T) {
	f := newFakeFinder()

	a := NewArmer(f, PolicySend, poll.NewFake(), nil)
	stop := a.Arm(context.Background())
	stop()

	if got := f.clickList(); len(got) != 0 {
		t.Errorf("no prompt on screen, yet clicks: %v", got)
	}
}

func TestArmRetriesUntilControlRenders(t *testing.T) {
	f := newFakeFinder()
	f.prompt, f.send = true, true
	f.ctrlAfter = 3 // prompt shell renders before its buttons

	a := NewArmer(f, PolicySend, poll.NewFake(), nil)
	stop := a.Arm(context.Background())

	waitClicked(t, f)
	stop()

	if got := f.clickList(); len(got) != 1 {
		t.Errorf("clicks: %v", got)
	}
}

func TestRoleForPolicy(t *testing.T) {
	if roleForPolicy(PolicySend) != dom.RoleUpdateSend {
		t.Error("send policy must press the send control")
	}
	if roleForPolicy(PolicyDontSend) != dom.RoleUpdateDecline {
		t.Error("dont_send policy must press the decline control")
	}
}

func TestNewArmerNormalizesPolicy(t *testing.T) {
	a := NewArmer(newFakeFinder(), Policy("bogus"), poll.NewFake(), nil)
	if a.policy != PolicySend {
		t.Errorf("unknown policy must default to send, got %q", a.policy)
	}
}
