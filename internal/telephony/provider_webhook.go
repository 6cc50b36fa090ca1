package telephony

import (
	"encoding/json"
	"net/http"
	"strings"
)

// StatusCallbackForm captures the subset of provider voice status-callback
// fields we care about. Twilio sends application/x-www-form-urlencoded.
//
// Keep it minimal and provider-adapter-only; reconciliation decisions are not
// made here.
type StatusCallbackForm struct {
	CallSid       string
	AccountSid    string
	CallStatus    string
	AnsweredBy    string
	CallDuration  string
	ErrorCode     string
	ErrorMessage  string
	From          string
	To            string
	Direction     string
	Timestamp     string
	RecordingSid  string
	TranscriptSid string
}

func ParseStatusCallback(r *http.Request) (StatusCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallbackForm{}, err
	}
	f := StatusCallbackForm{
		CallSid:       r.PostFormValue("CallSid"),
		AccountSid:    r.PostFormValue("AccountSid"),
		CallStatus:    strings.TrimSpace(r.PostFormValue("CallStatus")),
		AnsweredBy:    strings.TrimSpace(r.PostFormValue("AnsweredBy")),
		CallDuration:  r.PostFormValue("CallDuration"),
		ErrorCode:     r.PostFormValue("ErrorCode"),
		ErrorMessage:  r.PostFormValue("ErrorMessage"),
		From:          strings.TrimSpace(r.PostFormValue("From")),
		To:            strings.TrimSpace(r.PostFormValue("To")),
		Direction:     r.PostFormValue("Direction"),
		Timestamp:     r.PostFormValue("Timestamp"),
		RecordingSid:  r.PostFormValue("RecordingSid"),
		TranscriptSid: r.PostFormValue("TranscriptSid"),
	}
	return f, nil
}

// RawJSON serializes the form for the append-only event log.
func (f StatusCallbackForm) RawJSON() string {
	raw, _ := json.Marshal(f)
	return string(raw)
}

func (f StatusCallbackForm) FailureReason() string {
	if f.ErrorMessage != "" {
		return f.ErrorMessage
	}
	if f.ErrorCode != "" {
		return "provider_error_" + f.ErrorCode
	}
	return ""
}

// DigitsCallbackForm captures a provider keypad (gather) callback.
type DigitsCallbackForm struct {
	CallSid string
	Digits  string
}

func ParseDigitsCallback(r *http.Request) (DigitsCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return DigitsCallbackForm{}, err
	}
	return DigitsCallbackForm{
		CallSid: r.PostFormValue("CallSid"),
		Digits:  strings.TrimSpace(r.PostFormValue("Digits")),
	}, nil
}
