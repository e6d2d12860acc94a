package dynaform

import "context"

// EventKind names a notification emitted after a successful operation.
type EventKind string

const (
	EventCollectionCreated EventKind = "collection.created"
	EventCollectionDeleted EventKind = "collection.deleted"
	EventRecordCreated     EventKind = "record.created"
	EventRecordUpdated     EventKind = "record.updated"
	EventRecordDeleted     EventKind = "record.deleted"
)

// Notifier delivers events to users. Delivery is best-effort: a failed
// notification never fails the operation that produced it.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind EventKind, payload map[string]any) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, userID string, kind EventKind, payload map[string]any) error

func (f NotifierFunc) Notify(ctx context.Context, userID string, kind EventKind, payload map[string]any) error {
	return f(ctx, userID, kind, payload)
}

type actorKey struct{}

// WithActor attaches the id of the user performing an operation to ctx.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFromContext returns the user id set by WithActor, or "".
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(actorKey{}).(string)
	return v
}
