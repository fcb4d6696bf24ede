package common

const (
	ComponentManager      = "ingestion-manager"
	ComponentSupervisor   = "topic-supervisor"
	ComponentMirrorClient = "mirror-client"
	ComponentSubscriber   = "subscriber"
	ComponentParser       = "parser"
	ComponentProjection   = "projection-writer"
	ComponentStore        = "read-store"
	ComponentAPI          = "api"
	ComponentDB           = "db"
)

var AllComponents = map[string]struct{}{
	ComponentManager:      {},
	ComponentSupervisor:   {},
	ComponentMirrorClient: {},
	ComponentSubscriber:   {},
	ComponentParser:       {},
	ComponentProjection:   {},
	ComponentStore:        {},
	ComponentAPI:          {},
	ComponentDB:           {},
}
