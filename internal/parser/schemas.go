package parser

import (
	"github.com/invopop/jsonschema"
)

// EventSchemas generates JSON Schema documents for every recognized event
// shape, keyed by kind. Served by the read API so producers can validate
// payloads before submitting them to a topic.
func EventSchemas() map[string]*jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}

	return map[string]*jsonschema.Schema{
		KindAgentInit:       reflector.Reflect(&AgentInitEvent{}),
		KindAgentCreated:    reflector.Reflect(&AgentInitEvent{}),
		KindAction:          reflector.Reflect(&ActionEvent{}),
		KindTransaction:     reflector.Reflect(&TransactionEvent{}),
		KindRentalInitiated: reflector.Reflect(&RentalInitiatedEvent{}),
		KindRentalCompleted: reflector.Reflect(&RentalCompletedEvent{}),
		KindComms:           reflector.Reflect(&CommsEvent{}),
	}
}
