package bus

import "github.com/weftdb/weft/internal/transform"

// Topic identifies an event stream on the bus. Topic strings are stable
// contracts consumed by the orchestrator, schema lifecycle, and storage
// layers.
type Topic string

const (
	TopicFieldValueSet                 Topic = "field.value.set"
	TopicSchemaChanged                 Topic = "schema.changed"
	TopicTransformTriggered            Topic = "transform.triggered"
	TopicTransformExecuted             Topic = "transform.executed"
	TopicTransformRegistrationRequest  Topic = "transform.registration.request"
	TopicTransformRegistrationResponse Topic = "transform.registration.response"
	TopicAtomCreated                   Topic = "atom.created"
	TopicAtomUpdated                   Topic = "atom.updated"
	TopicAtomRefCreated                Topic = "atomref.created"
	TopicAtomRefUpdated                Topic = "atomref.updated"
)

// Event is a tagged record delivered to topic subscribers.
type Event struct {
	Topic   Topic
	Payload any
}

// FieldValueSet announces a field write. Consumed by the orchestrator to
// look up dependent transforms.
type FieldValueSet struct {
	Field  string
	Value  any
	Source string
}

// SchemaChanged announces a schema load, unload, or removal.
type SchemaChanged struct {
	Schema string
}

// TransformTriggered is the internal trigger record for one (transform,
// trigger) pair.
type TransformTriggered struct {
	TransformID   string
	CorrelationID string
}

// TransformExecuted is produced when an execution reaches a terminal
// outcome. Result is nil unless Outcome is "succeeded".
type TransformExecuted struct {
	TransformID   string
	CorrelationID string
	Outcome       string
	Result        any
	Error         string
}

// TransformRegistrationRequest asks the orchestrator to register a
// transform out-of-band. The response is correlated by CorrelationID.
type TransformRegistrationRequest struct {
	Schema        string
	Registration  transform.Declaration
	CorrelationID string
}

// TransformRegistrationResponse reports the outcome of a registration
// request.
type TransformRegistrationResponse struct {
	CorrelationID string
	Success       bool
	Error         string
}

// AtomCreated announces a new immutable atom version.
type AtomCreated struct {
	AtomID string
	Data   string
}

// AtomUpdated announces that an atom became the latest version of its
// reference chain.
type AtomUpdated struct {
	AtomID string
	Data   string
}

// AtomRefCreated announces a new atom reference.
type AtomRefCreated struct {
	RefUUID   string
	RefKind   string
	FieldPath string
}

// AtomRefUpdated announces a repointed atom reference.
type AtomRefUpdated struct {
	RefUUID   string
	FieldPath string
	Operation string
}
