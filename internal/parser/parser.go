package parser

import (
	"encoding/base64"
	"encoding/json"
	"unicode/utf8"
)

// Parse runs the three-stage pipeline over the wire-form payload:
// decode (base64, then UTF-8 JSON), classify, validate. Every stage is
// allowed to fail without failing the message: the caller always receives
// a Result describing how far the payload got.
func Parse(base64Contents string) Result {
	contents, err := base64.StdEncoding.DecodeString(base64Contents)
	if err != nil {
		// Not valid base64: store the wire form untouched, nothing to decode.
		return Result{}
	}

	result := Result{Contents: contents}

	if !utf8.Valid(contents) {
		return result
	}

	var doc any
	if err := json.Unmarshal(contents, &doc); err != nil {
		return result
	}

	mapping, ok := doc.(map[string]any)
	if !ok {
		// Valid JSON but not a document; classifiable only as unknown.
		result.Kind = KindUnknown
		return result
	}

	result.Decoded = mapping
	result.Kind = classify(mapping)

	if event := validate(result.Kind, contents); event != nil {
		result.Event = event
	}

	return result
}

// classify derives the kind tag from the decoded document. A `type` field
// wins and its string value is preserved verbatim even when unrecognized;
// the {from, text, timestamp} shape is COMMS; anything else is unknown.
func classify(doc map[string]any) string {
	if typ, ok := doc["type"].(string); ok && typ != "" {
		return typ
	}

	if hasField(doc, "from") && hasField(doc, "text") && hasField(doc, "timestamp") {
		return KindComms
	}

	return KindUnknown
}

func hasField(doc map[string]any, key string) bool {
	_, ok := doc[key]
	return ok
}

// validate attempts to decode the payload into the typed event struct for
// its kind and checks the required fields. Returns nil when the kind is
// not a known schema or the shape does not match.
func validate(kind string, contents []byte) any {
	switch kind {
	case KindAgentInit, KindAgentCreated:
		var ev AgentInitEvent
		if err := json.Unmarshal(contents, &ev); err != nil {
			return nil
		}
		if ev.AgentID == "" || ev.AgentName == "" || ev.Platform == "" || ev.Timestamp == 0 {
			return nil
		}
		return &ev

	case KindAction:
		var ev ActionEvent
		if err := json.Unmarshal(contents, &ev); err != nil {
			return nil
		}
		if ev.AgentID == "" || ev.SessionKey == "" || ev.Action.Tool == "" || ev.Timestamp == 0 {
			return nil
		}
		return &ev

	case KindTransaction:
		var ev TransactionEvent
		if err := json.Unmarshal(contents, &ev); err != nil {
			return nil
		}
		if ev.AgentID == "" || ev.TransactionType == "" || ev.TransactionID == "" || ev.Timestamp == 0 {
			return nil
		}
		return &ev

	case KindRentalInitiated:
		var ev RentalInitiatedEvent
		if err := json.Unmarshal(contents, &ev); err != nil {
			return nil
		}
		if ev.AgentID == "" || ev.RentalID == "" || ev.Renter == "" ||
			ev.EscrowAccount == "" || ev.Timestamp == 0 {
			return nil
		}
		return &ev

	case KindRentalCompleted:
		var ev RentalCompletedEvent
		if err := json.Unmarshal(contents, &ev); err != nil {
			return nil
		}
		if ev.RentalID == "" || ev.Timestamp == 0 {
			return nil
		}
		return &ev

	case KindComms:
		var ev CommsEvent
		if err := json.Unmarshal(contents, &ev); err != nil {
			return nil
		}
		if ev.From == "" || ev.Text == "" || ev.Timestamp == "" {
			return nil
		}
		return &ev
	}

	return nil
}
