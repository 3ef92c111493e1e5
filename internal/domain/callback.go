package domain

import (
	"errors"
	"fmt"
	"strings"
)

// MaxCallbackBytes is the platform limit for inline button payloads.
const MaxCallbackBytes = 64

// CallbackKind is the prefix of an inline button payload.
type CallbackKind string

const (
	CallbackStaffStatus CallbackKind = "st"
	CallbackConfirm     CallbackKind = "cf"
	CallbackCancel      CallbackKind = "cancel"
	CallbackWizard      CallbackKind = "wz"
	CallbackRemarks     CallbackKind = "rq"
)

// RemarksSkip is the only action carried by rq: payloads.
const RemarksSkip = "skip"

// ErrCallbackTooLong is returned when an encoded payload exceeds MaxCallbackBytes.
var ErrCallbackTooLong = errors.New("callback payload exceeds 64 bytes")

// CallbackAction is a decoded inline button payload.
type CallbackAction struct {
	Kind     CallbackKind
	TicketID string
	// Status is set for st: payloads.
	Status TicketStatus
	// Confirmed is set for cf: payloads.
	Confirmed bool
	// Step is the wizard question a wz: payload answers.
	Step WizardStep
	// Value carries the wizard answer for wz: payloads and the action for rq: payloads.
	Value string
}

// StaffStatusCallback builds st:<ticketId>:<code>.
func StaffStatusCallback(ticketID string, status TicketStatus) (string, error) {
	code := status.Code()
	if code == "" {
		return "", fmt.Errorf("status %q has no callback code", status)
	}
	return limit(string(CallbackStaffStatus) + ":" + ticketID + ":" + code)
}

// ConfirmCallback builds cf:<ticketId>:yes|no.
func ConfirmCallback(ticketID string, yes bool) (string, error) {
	answer := "no"
	if yes {
		answer = "yes"
	}
	return limit(string(CallbackConfirm) + ":" + ticketID + ":" + answer)
}

// CancelCallback builds cancel:<ticketId>.
func CancelCallback(ticketID string) (string, error) {
	return limit(string(CallbackCancel) + ":" + ticketID)
}

// WizardCallback builds wz:<step>:<value>.
func WizardCallback(step WizardStep, value string) (string, error) {
	return limit(string(CallbackWizard) + ":" + string(step) + ":" + value)
}

// RemarksSkipCallback builds rq:skip.
func RemarksSkipCallback() string {
	return string(CallbackRemarks) + ":" + RemarksSkip
}

// ParseCallback decodes an inline button payload.
func ParseCallback(data string) (CallbackAction, error) {
	if data == "" || len(data) > MaxCallbackBytes {
		return CallbackAction{}, fmt.Errorf("invalid callback payload %q", data)
	}
	kind, rest, ok := strings.Cut(data, ":")
	if !ok || rest == "" {
		return CallbackAction{}, fmt.Errorf("invalid callback payload %q", data)
	}
	switch CallbackKind(kind) {
	case CallbackStaffStatus:
		ticketID, code, ok := cutLast(rest)
		if !ok {
			return CallbackAction{}, fmt.Errorf("invalid status callback %q", data)
		}
		status, ok := statusCodes[code]
		if !ok {
			return CallbackAction{}, fmt.Errorf("unknown status code %q", code)
		}
		return CallbackAction{Kind: CallbackStaffStatus, TicketID: ticketID, Status: status}, nil
	case CallbackConfirm:
		ticketID, answer, ok := cutLast(rest)
		if !ok || (answer != "yes" && answer != "no") {
			return CallbackAction{}, fmt.Errorf("invalid confirm callback %q", data)
		}
		return CallbackAction{Kind: CallbackConfirm, TicketID: ticketID, Confirmed: answer == "yes"}, nil
	case CallbackCancel:
		return CallbackAction{Kind: CallbackCancel, TicketID: rest}, nil
	case CallbackWizard:
		step, value, ok := strings.Cut(rest, ":")
		if !ok || step == "" || value == "" {
			return CallbackAction{}, fmt.Errorf("invalid wizard callback %q", data)
		}
		return CallbackAction{Kind: CallbackWizard, Step: WizardStep(step), Value: value}, nil
	case CallbackRemarks:
		if rest != RemarksSkip {
			return CallbackAction{}, fmt.Errorf("unknown remarks action %q", rest)
		}
		return CallbackAction{Kind: CallbackRemarks, Value: rest}, nil
	}
	return CallbackAction{}, fmt.Errorf("unknown callback kind %q", kind)
}

func cutLast(s string) (string, string, bool) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func limit(data string) (string, error) {
	if len(data) > MaxCallbackBytes {
		return "", ErrCallbackTooLong
	}
	return data, nil
}
