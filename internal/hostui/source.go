// Package hostui is the live-document edge: it implements the candidate
// sweep behind dom.Locator, the acting surface the save orchestrator
// drives, and the navigation facade over nav. Everything goes through one
// Evaluator so tests can swap the page for a fake.
package hostui

import (
	"context"
	"fmt"

	"github.com/hazyhaar/calquick/internal/dom"
	"github.com/hazyhaar/calquick/internal/nav"
)

// maxCandidates caps one sweep; the host renders thousands of grid cells
// and only the interactive surface matters.
const maxCandidates = 400

// jsCandidates projects the interactive elements under an XPath scope
// into the wire shape dom.Candidate expects. Scope "" means the document.
const jsCandidates = `(scope, max) => {
	let root = document;
	if (scope) {
		const n = document.evaluate(scope, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!n) return [];
		root = n;
	}

	const xpathOf = (el) => {
		const parts = [];
		for (let n = el; n && n.nodeType === 1; n = n.parentNode) {
			let i = 1;
			for (let s = n.previousSibling; s; s = s.previousSibling) {
				if (s.nodeType === 1 && s.nodeName === n.nodeName) i++;
			}
			parts.unshift(n.nodeName.toLowerCase() + '[' + i + ']');
		}
		return '/' + parts.join('/');
	};

	const labelOf = (el) => {
		const aria = el.getAttribute('aria-label');
		if (aria) return aria;
		const by = el.getAttribute('aria-labelledby');
		if (by) {
			const txt = by.split(/\s+/)
				.map(id => { const r = document.getElementById(id); return r ? r.textContent : ''; })
				.join(' ').trim();
			if (txt) return txt;
		}
		return '';
	};

	const dialogAttr = (el) =>
		el.tagName === 'DIALOG' ||
		el.getAttribute('role') === 'dialog' ||
		el.getAttribute('role') === 'alertdialog';

	const sel = 'button, a, input, textarea, select, dialog, ' +
		'[role], [aria-label], [title], [contenteditable], [tabindex]';
	const els = root === document
		? document.querySelectorAll(sel)
		: [root, ...root.querySelectorAll(sel)];

	const out = [];
	for (const el of els) {
		if (out.length >= max) break;
		const r = el.getBoundingClientRect();
		const st = getComputedStyle(el);
		const visible = r.width > 0 && r.height > 0 &&
			st.display !== 'none' && st.visibility !== 'hidden';

		let inDialog = false, modal = false;
		for (let p = el; p; p = p.parentElement) {
			if (dialogAttr(p)) {
				inDialog = true;
				modal = p.getAttribute('aria-modal') === 'true' || p.tagName === 'DIALOG';
				break;
			}
		}

		const editable = (el.tagName === 'INPUT' && !['checkbox','radio','button','submit','hidden'].includes(el.type)) ||
			el.tagName === 'TEXTAREA' || el.isContentEditable;

		out.push({
			xpath: xpathOf(el),
			tag: el.tagName.toLowerCase(),
			role: el.getAttribute('role') || '',
			label: labelOf(el),
			title: el.getAttribute('title') || '',
			text: (el.innerText || '').trim().slice(0, 200),
			visible: visible,
			editable: editable,
			in_dialog: inDialog,
			modal: modal,
			width: r.width,
			height: r.height,
		});
	}
	return out;
}`

// jsDialogAncestor walks up from an XPath and returns the nearest
// dialog-like ancestor's XPath, or ''.
const jsDialogAncestor = `(xp) => {
	const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!n) return '';

	const xpathOf = (el) => {
		const parts = [];
		for (let c = el; c && c.nodeType === 1; c = c.parentNode) {
			let i = 1;
			for (let s = c.previousSibling; s; s = s.previousSibling) {
				if (s.nodeType === 1 && s.nodeName === c.nodeName) i++;
			}
			parts.unshift(c.nodeName.toLowerCase() + '[' + i + ']');
		}
		return '/' + parts.join('/');
	};

	for (let p = n.parentElement; p; p = p.parentElement) {
		const role = p.getAttribute('role');
		if (p.tagName === 'DIALOG' || role === 'dialog' || role === 'alertdialog') {
			return xpathOf(p);
		}
	}
	return '';
}`

// Source implements dom.Source over the page evaluator.
type Source struct {
	ev nav.Evaluator
}

// NewSource creates a Source over ev.
func NewSource(ev nav.Evaluator) *Source {
	return &Source{ev: ev}
}

func (s *Source) Candidates(ctx context.Context, scope string) ([]dom.Candidate, error) {
	var out []dom.Candidate
	if err := s.ev.Eval(ctx, jsCandidates, &out, scope, maxCandidates); err != nil {
		return nil, fmt.Errorf("hostui: candidate sweep: %w", err)
	}
	return out, nil
}

func (s *Source) DialogAncestor(ctx context.Context, xpath string) (string, error) {
	var anc string
	if err := s.ev.Eval(ctx, jsDialogAncestor, &anc, xpath); err != nil {
		return "", fmt.Errorf("hostui: dialog ancestor: %w", err)
	}
	return anc, nil
}
