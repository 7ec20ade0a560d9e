package service

import "strings"

// WizardState is a step of the guided store creation dialog
type WizardState string

// Wizard states
const (
	WizardIdle                WizardState = "idle"
	WizardAwaitingName        WizardState = "awaiting_name"
	WizardAwaitingDescription WizardState = "awaiting_description"
	WizardDone                WizardState = "done"
)

type wizardSession struct {
	State WizardState
	Name  string
}

// WizardStep is the result of feeding one message to the wizard
type WizardStep struct {
	State       WizardState
	Name        string
	Description string
}

// Wizard drives the two-step "add store" dialog. State expires with the session TTL.
type Wizard struct {
	sessions *Sessions
}

// NewWizard creates a wizard backed by the session cache
func NewWizard(sessions *Sessions) *Wizard {
	return &Wizard{sessions: sessions}
}

// Start begins the dialog for the user, replacing any previous one
func (w *Wizard) Start(userID int64) {
	w.sessions.setWizard(userID, wizardSession{State: WizardAwaitingName})
}

// State returns the user's current step
func (w *Wizard) State(userID int64) WizardState {
	s, ok := w.sessions.wizard(userID)
	if !ok {
		return WizardIdle
	}
	return s.State
}

// Active reports whether the user is in the middle of the dialog
func (w *Wizard) Active(userID int64) bool {
	return w.State(userID) != WizardIdle
}

// Cancel aborts the dialog and reports whether one was active
func (w *Wizard) Cancel(userID int64) bool {
	return w.sessions.clearWizard(userID)
}

// Advance consumes the user's reply. On WizardDone the session is gone and
// Name/Description are ready for creation. A "-" description means none.
func (w *Wizard) Advance(userID int64, text string) WizardStep {
	s, ok := w.sessions.wizard(userID)
	if !ok {
		return WizardStep{State: WizardIdle}
	}
	text = strings.TrimSpace(text)

	switch s.State {
	case WizardAwaitingName:
		if text == "" {
			return WizardStep{State: WizardAwaitingName}
		}
		s.Name = text
		s.State = WizardAwaitingDescription
		w.sessions.setWizard(userID, s)
		return WizardStep{State: WizardAwaitingDescription, Name: s.Name}
	case WizardAwaitingDescription:
		if text == "-" {
			text = ""
		}
		w.sessions.clearWizard(userID)
		return WizardStep{State: WizardDone, Name: s.Name, Description: text}
	}

	w.sessions.clearWizard(userID)
	return WizardStep{State: WizardIdle}
}
