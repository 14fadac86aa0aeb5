package event

// Subjects for cross-component notifications. Collaborators (UI processes,
// monitors) subscribe to these instead of the core relying on any ambient
// broadcast medium.
const (
	SubjectTaskCreated    = "wake.task.created"
	SubjectTaskUpdated    = "wake.task.updated"
	SubjectTaskDeleted    = "wake.task.deleted"
	SubjectHistoryUpdated = "wake.history.updated"
	SubjectHistoryCleared = "wake.history.cleared"
	SubjectRunCompleted   = "wake.run.completed"
	SubjectRuntimeStats   = "wake.runtime.stats"
)

// Publisher is the notification capability injected into the registry,
// history log and runner. Publishing is best-effort; failures must never
// affect the in-memory state change that triggered the event.
type Publisher interface {
	Publish(subject string, payload interface{}) error
}

// NopPublisher discards all events.
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(string, interface{}) error { return nil }
