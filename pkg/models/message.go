package models

import (
	"encoding/json"
	"fmt"
)

// Command names one request type on the message bus
type Command string

const (
	CmdStart         Command = "start"
	CmdUpdate        Command = "update"
	CmdGetState      Command = "getState"
	CmdStorePayment  Command = "storePayment"
	CmdGetPayment    Command = "getPayment"
	CmdTrackTab      Command = "trackTab"
	CmdMostRecentTab Command = "getMostRecentTab"
	CmdCloseTabs     Command = "closeTabs"
	CmdStop          Command = "stop"

	// EventTabLoaded is one-way; the coordinator never answers it
	EventTabLoaded Command = "tabLoaded"
)

// Commands lists every request/response command in bus order
var Commands = []Command{
	CmdStart, CmdUpdate, CmdGetState, CmdStorePayment, CmdGetPayment,
	CmdTrackTab, CmdMostRecentTab, CmdCloseTabs, CmdStop,
}

// Envelope is the wire frame for requests, responses and events
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    Command         `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewEnvelope marshals payload into a frame of the given type
func NewEnvelope(id string, typ Command, payload any) (Envelope, error) {
	env := Envelope{ID: id, Type: typ}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	env.Payload = raw
	return env, nil
}

// Decode unmarshals the payload into v, treating an empty payload as zero value
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", e.Type, err)
	}
	return nil
}

// StartRequest is the payload of start
type StartRequest struct {
	Config Config `json:"config"`
}

// UpdateRequest carries the full accumulated state, never a delta
type UpdateRequest struct {
	Items    []ItemRecord `json:"items"`
	SeenKeys []string     `json:"seenKeys"`

	// Current is the item whose handoff is in flight, nil once it is settled
	Current *ItemRecord `json:"currentItem,omitempty"`
}

// StorePaymentRequest is the payload of storePayment
type StorePaymentRequest struct {
	URL  string      `json:"url"`
	Data PaymentData `json:"paymentData"`
}

// GetPaymentRequest is the payload of getPayment
type GetPaymentRequest struct {
	URL string `json:"offerUrl"`
}

// TrackTabRequest is the payload of trackTab
type TrackTabRequest struct {
	URL string `json:"url"`
}

// MostRecentTabResponse wraps an optional tab record
type MostRecentTabResponse struct {
	Tab *TabRecord `json:"tab,omitempty"`
}

// CloseTabsRequest selects tabs by URL pattern (a regular expression)
type CloseTabsRequest struct {
	Pattern string `json:"pattern,omitempty"`
}

// CloseTabsResponse reports how many tabs were closed
type CloseTabsResponse struct {
	ClosedCount int `json:"closedCount"`
}

// StopResponse carries the final item list
type StopResponse struct {
	Items []ItemRecord `json:"items"`
}

// TabLoadedEvent is fired by the host when a tab finishes loading
type TabLoadedEvent struct {
	TabID string `json:"tabId"`
	URL   string `json:"url"`
}

// Ack acknowledges a command that returns no data
type Ack struct {
	Success bool `json:"success"`
}
