package dom

import (
	"context"
	"fmt"
	"log/slog"
)

// Candidate is a read-only projection of one host element, produced by a
// Source sweep. It carries everything classification needs so the match
// itself never touches the live document.
type Candidate struct {
	XPath     string  `json:"xpath"`
	Tag       string  `json:"tag"`
	RoleAttr  string  `json:"role"`
	Label     string  `json:"label"` // accessible label (aria-label or labelledby text)
	TitleAttr string  `json:"title"` // tooltip
	Text      string  `json:"text"`  // visible text, trimmed
	Visible   bool    `json:"visible"`
	Editable  bool    `json:"editable"`
	InDialog  bool    `json:"in_dialog"`
	Modal     bool    `json:"modal"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// Source produces candidates from the live document. The CDP edge
// implements it; tests feed canned slices.
type Source interface {
	// Candidates lists elements under scope (an XPath; "" = whole document).
	Candidates(ctx context.Context, scope string) ([]Candidate, error)
	// DialogAncestor returns the XPath of the nearest dialog-like ancestor
	// of xpath, or "" when there is none.
	DialogAncestor(ctx context.Context, xpath string) (string, error)
}

// minProgressSize is the minimum rendered dimension for a progress
// indicator to count as "the host is busy". Tiny inline spinners are
// decoration, not activity.
const minProgressSize = 24

// Locator resolves a semantic role to the best-matching visible element.
// It only reads; acting on the result is the caller's business.
type Locator struct {
	src    Source
	logger *slog.Logger
}

// NewLocator creates a Locator over src.
func NewLocator(src Source, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{src: src, logger: logger}
}

// Find searches for role starting at scope (an XPath; "" = document).
// Scope order: the supplied container, its nearest dialog ancestor, then
// the whole document. Within each scope: exact accessible-label match,
// then tooltip/visible-text match, then the role's structural fallback.
// The first hit wins, so a match in a narrower scope always beats one in
// a wider scope.
func (l *Locator) Find(ctx context.Context, role Role, scope string) (Candidate, bool, error) {
	scopes, err := l.scopeChain(ctx, scope)
	if err != nil {
		return Candidate{}, false, err
	}

	for _, sc := range scopes {
		cands, err := l.src.Candidates(ctx, sc)
		if err != nil {
			return Candidate{}, false, fmt.Errorf("dom: candidates in %q: %w", sc, err)
		}

		if c, ok := matchIn(cands, role); ok {
			l.logger.Debug("dom: located", "role", role.String(), "scope", sc, "xpath", c.XPath)
			return c, true, nil
		}
	}
	return Candidate{}, false, nil
}

func (l *Locator) scopeChain(ctx context.Context, scope string) ([]string, error) {
	if scope == "" {
		return []string{""}, nil
	}
	scopes := []string{scope}

	anc, err := l.src.DialogAncestor(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("dom: dialog ancestor of %q: %w", scope, err)
	}
	if anc != "" && anc != scope {
		scopes = append(scopes, anc)
	}
	return append(scopes, ""), nil
}

// matchIn runs the three passes over one scope's candidates.
func matchIn(cands []Candidate, role Role) (Candidate, bool) {
	// Pass 1: exact accessible label.
	for _, c := range cands {
		if c.Visible && Classify(role, c.Label) {
			return c, true
		}
	}
	// Pass 2: tooltip or visible text against the same set.
	for _, c := range cands {
		if c.Visible && (Classify(role, c.TitleAttr) || Classify(role, c.Text)) {
			return c, true
		}
	}
	// Pass 3: structural fallback.
	return structuralFallback(cands, role)
}

func structuralFallback(cands []Candidate, role Role) (Candidate, bool) {
	switch role {
	case RoleTitleInput:
		// First visible text input inside an open dialog.
		for _, c := range cands {
			if c.Visible && c.Editable && c.InDialog {
				return c, true
			}
		}

	case RoleDialog, RoleUpdatePrompt:
		for _, c := range cands {
			if c.Visible && IsDialogLike(c) {
				return c, true
			}
		}

	case RoleProgress:
		for _, c := range cands {
			if c.Visible && c.RoleAttr == "progressbar" &&
				c.Width >= minProgressSize && c.Height >= minProgressSize {
				return c, true
			}
		}
	}
	// OpenEditor, SaveControl, UpdateSend, UpdateDecline have no safe
	// structural shape; a miss is a miss.
	return Candidate{}, false
}
