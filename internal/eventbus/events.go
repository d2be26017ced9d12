package eventbus

// Topic names used on the Redis stream bus.
const (
	// TopicTransactionCreated carries notifications from the (out-of-core)
	// ingestion pipeline: a new Transaction row has been committed and the
	// runtime matcher (C5) should evaluate it against active patterns
	// (spec.md §6 "Inputs from external collaborators").
	TopicTransactionCreated = "tx:created"

	// TopicTransactionDeadLetter receives transactions whose matcher job
	// exhausted its retry budget (spec.md §5, §7).
	TopicTransactionDeadLetter = "tx:deadletter"

	// TopicDiscoveryRequested carries asynchronous Discover command
	// requests, for callers that prefer a fire-and-forget HTTP response
	// backed by a background worker rather than a synchronous pipeline run.
	TopicDiscoveryRequested = "patterns:discover:requested"
)

// TransactionCreatedEvent is the payload published to TopicTransactionCreated.
type TransactionCreatedEvent struct {
	TransactionID string `json:"transaction_id"`
}

// DiscoveryRequestedEvent is the payload published to TopicDiscoveryRequested.
type DiscoveryRequestedEvent struct {
	UserID    string `json:"user_id"`
	PayeeID   string `json:"payee_id,omitempty"`
	Direction string `json:"direction,omitempty"`
}
