// Package dom implements heuristic element location over the host
// document. Classification is pure and table-driven: a role plus a label,
// tooltip, or visible text maps to a boolean, so matching rules extend
// without touching orchestration code.
package dom

import (
	"regexp"
	"strings"
)

// Role is the semantic part the engine needs to find in the host UI.
type Role int

const (
	// RoleOpenEditor is the control on a quick popup that opens the
	// host's full event editor.
	RoleOpenEditor Role = iota
	// RoleTitleInput is the event title field inside the full editor.
	RoleTitleInput
	// RoleSaveControl is the editor's save/confirm control.
	RoleSaveControl
	// RoleUpdatePrompt is the "send update to guests?" modal.
	RoleUpdatePrompt
	// RoleUpdateSend is the prompt's affirmative (notify guests) choice.
	RoleUpdateSend
	// RoleUpdateDecline is the prompt's "don't send" choice.
	RoleUpdateDecline
	// RoleProgress is a loading/progress indicator.
	RoleProgress
	// RoleDialog is any open dialog-like region.
	RoleDialog
)

func (r Role) String() string {
	switch r {
	case RoleOpenEditor:
		return "open-editor"
	case RoleTitleInput:
		return "title-input"
	case RoleSaveControl:
		return "save-control"
	case RoleUpdatePrompt:
		return "update-prompt"
	case RoleUpdateSend:
		return "update-send"
	case RoleUpdateDecline:
		return "update-decline"
	case RoleProgress:
		return "progress"
	case RoleDialog:
		return "dialog"
	}
	return "unknown"
}

// labelPatterns holds the curated multilingual regex set per role. The same
// set serves both the accessible-label pass and the tooltip/text pass; only
// the field being inspected differs.
var labelPatterns = map[Role][]*regexp.Regexp{
	RoleOpenEditor: compileAll(
		`^edit( event)?$`,
		`^open detail(s| view)?$`,
		`^(termin )?bearbeiten$`,
		`^modifier( l.événement)?$`,
		`^editar( evento)?$`,
		`^modifica( evento)?$`,
		`^bewerken$`,
		`^編集$`,
		`^изменить$`,
	),
	RoleTitleInput: compileAll(
		`^(add )?title$`,
		`^summary$`,
		`^titel( hinzufügen)?$`,
		`^(ajouter un )?titre$`,
		`^(añadir )?título$`,
		`^(aggiungi )?titolo$`,
		`^タイトル(を追加)?$`,
		`^(добавьте )?название$`,
	),
	RoleSaveControl: compileAll(
		`^save$`,
		`^done$`,
		`^confirm$`,
		`^speichern$`,
		`^enregistrer$`,
		`^guardar$`,
		`^salvar$`,
		`^salva$`,
		`^opslaan$`,
		`^保存$`,
		`^сохранить$`,
	),
	RoleUpdatePrompt: compileAll(
		`send (an )?update`,
		`update (the )?guests`,
		`email guests`,
		`an (die )?gäste senden`,
		`envoyer (une )?mise à jour`,
		`enviar (una )?actualización`,
		`enviar (uma )?atualização`,
		`invia(re)? (un )?aggiornamento`,
		`ゲストに(更新を)?送信`,
		`отправить обновление`,
	),
	RoleUpdateSend: compileAll(
		`^send$`,
		`^senden$`,
		`^envoyer$`,
		`^enviar$`,
		`^invia$`,
		`^versturen$`,
		`^送信$`,
		`^отправить$`,
	),
	RoleUpdateDecline: compileAll(
		`^don.t send$`,
		`^do not send$`,
		`^nicht senden$`,
		`^ne pas envoyer$`,
		`^no enviar$`,
		`^não enviar$`,
		`^non inviare$`,
		`^niet versturen$`,
		`^送信しない$`,
		`^не отправлять$`,
	),
	RoleProgress: compileAll(
		`^loading`,
		`^lädt`,
		`^chargement`,
		`^cargando`,
		`^carregando`,
		`^caricamento`,
		`^laden`,
		`^読み込み中`,
		`^загрузка`,
	),
	RoleDialog: nil, // structural only
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// Classify reports whether text matches role's curated pattern set.
// Pure; no DOM access.
func Classify(role Role, text string) bool {
	text = normalize(text)
	if text == "" {
		return false
	}
	for _, re := range labelPatterns[role] {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// normalize collapses whitespace and trims, so multi-line button labels
// still match anchored patterns.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dialogRoles are ARIA roles that count as a dialog-like region.
var dialogRoles = map[string]bool{
	"dialog":      true,
	"alertdialog": true,
}

// IsDialogLike reports whether a candidate is an open dialog-like region:
// a <dialog> element, an ARIA dialog role, or an aria-modal container.
func IsDialogLike(c Candidate) bool {
	if strings.EqualFold(c.Tag, "dialog") {
		return true
	}
	if dialogRoles[strings.ToLower(c.RoleAttr)] {
		return true
	}
	return c.Modal
}
