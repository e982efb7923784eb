package changelog

import (
	"context"
	"log/slog"
	"reflect"
	"sort"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

// Tracked is the contract an entity satisfies to participate in change
// interception. Satisfied structurally; entities never import this package.
type Tracked interface {
	EntityID() string
	EntityTenant() id.TenantID
	EntityFields() map[string]any
}

// Descriptor configures interception for one entity type. Registering a new
// tracked type is a configuration entry, not new interception code.
type Descriptor struct {
	EntityType string
	// TrackedFields names the fields whose transitions are logged. Transitions
	// of any other field are silently ignored.
	TrackedFields map[string]bool
	// ReferenceJoins configures snapshot denormalization per field.
	ReferenceJoins map[string]JoinSpec
}

// Interceptor wraps create and update operations on registered entity types
// and appends immutable log entries for tracked-field transitions. One generic
// implementation services every registered type.
//
// The interceptor writes through the same context transaction as the wrapped
// mutation: a log-write failure aborts the mutation, so an applied change
// without its audit trail is unobservable.
type Interceptor struct {
	store       Store
	log         *slog.Logger
	metrics     *Metrics
	descriptors map[string]Descriptor
}

func NewInterceptor(store Store, log *slog.Logger, metrics *Metrics) *Interceptor {
	return &Interceptor{
		store:       store,
		log:         log,
		metrics:     metrics,
		descriptors: make(map[string]Descriptor),
	}
}

// Register adds a per-type configuration. Registration happens once at
// startup; duplicate registration is a wiring bug.
func (i *Interceptor) Register(d Descriptor) error {
	if d.EntityType == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "descriptor needs an entity type")
	}
	if _, exists := i.descriptors[d.EntityType]; exists {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "entity type %q registered twice", d.EntityType)
	}
	i.descriptors[d.EntityType] = d
	return nil
}

func (i *Interceptor) descriptor(entityType string) (Descriptor, error) {
	d, ok := i.descriptors[entityType]
	if !ok {
		return Descriptor{}, dErrors.Newf(dErrors.CodeInvariantViolation, "entity type %q not registered for interception", entityType)
	}
	return d, nil
}

// InterceptCreate runs the insert and, on success, appends exactly one CREATED
// entry with a flattened snapshot of the new row and no old value.
func InterceptCreate[T Tracked](ctx context.Context, i *Interceptor, entityType string, insert func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	desc, err := i.descriptor(entityType)
	if err != nil {
		return zero, err
	}

	created, err := insert(ctx)
	if err != nil {
		return zero, err
	}

	snapshot, err := Flatten(ctx, created.EntityFields(), desc.ReferenceJoins)
	if err != nil {
		return zero, dErrors.Wrap(err, dErrors.CodeInternal, "flatten created row")
	}
	entry := i.newEntry(ctx, desc, created)
	entry.ChangeType = ChangeCreated
	entry.NewValue = snapshot
	if err := i.store.Append(ctx, entry); err != nil {
		return zero, dErrors.Wrap(err, dErrors.CodeInternal, "append change log entry")
	}
	i.noteWritten(1)
	return created, nil
}

// InterceptUpdate reads the current row, runs the update, and appends one
// UPDATED entry per tracked field that both appears in payloadFields and
// actually changed. Every entry carries the complete before and after
// snapshots. The pre-read runs inside the caller's transaction, so concurrent
// writers cannot slip a change between read and diff.
func InterceptUpdate[T Tracked](ctx context.Context, i *Interceptor, entityType string, payloadFields []string,
	current func(ctx context.Context) (T, error), apply func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	desc, err := i.descriptor(entityType)
	if err != nil {
		return zero, err
	}

	before, err := current(ctx)
	if err != nil {
		return zero, err
	}
	oldFields := before.EntityFields()

	after, err := apply(ctx)
	if err != nil {
		return zero, err
	}
	newFields := after.EntityFields()

	changed := changedTrackedFields(desc, payloadFields, oldFields, newFields)
	if len(changed) == 0 {
		return after, nil
	}

	oldSnapshot, err := Flatten(ctx, oldFields, desc.ReferenceJoins)
	if err != nil {
		return zero, dErrors.Wrap(err, dErrors.CodeInternal, "flatten previous row")
	}
	newSnapshot, err := Flatten(ctx, newFields, desc.ReferenceJoins)
	if err != nil {
		return zero, dErrors.Wrap(err, dErrors.CodeInternal, "flatten updated row")
	}

	for _, field := range changed {
		entry := i.newEntry(ctx, desc, after)
		entry.ChangeType = ChangeUpdated
		f := field
		entry.FieldChanged = &f
		entry.OldValue = oldSnapshot.Clone()
		entry.NewValue = newSnapshot.Clone()
		if err := i.store.Append(ctx, entry); err != nil {
			return zero, dErrors.Wrap(err, dErrors.CodeInternal, "append change log entry")
		}
	}
	i.noteWritten(len(changed))
	return after, nil
}

// changedTrackedFields intersects the update payload with the tracked set and
// keeps only fields whose values differ. Sorted for deterministic entry order.
func changedTrackedFields(desc Descriptor, payloadFields []string, oldFields, newFields map[string]any) []string {
	var changed []string
	for _, field := range payloadFields {
		if !desc.TrackedFields[field] {
			continue
		}
		if !reflect.DeepEqual(oldFields[field], newFields[field]) {
			changed = append(changed, field)
		}
	}
	sort.Strings(changed)
	return changed
}

func (i *Interceptor) newEntry(ctx context.Context, desc Descriptor, entity Tracked) Entry {
	return Entry{
		ID:           id.NewEntryID(),
		TenantID:     entity.EntityTenant(),
		EntityType:   desc.EntityType,
		EntityID:     entity.EntityID(),
		ChangedAt:    requestcontext.Now(ctx).UTC(),
		ActorID:      requestcontext.ActorID(ctx),
		ChangeReason: ChangeReason(ctx),
	}
}

func (i *Interceptor) noteWritten(n int) {
	if i.metrics != nil {
		i.metrics.AddEntriesWritten(n)
	}
}

type changeReasonKey struct{}

// WithChangeReason attaches a caller-supplied reason to subsequent log entries
// in this context.
func WithChangeReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, changeReasonKey{}, reason)
}

// ChangeReason retrieves the change reason, empty when none was supplied.
func ChangeReason(ctx context.Context) string {
	if r, ok := ctx.Value(changeReasonKey{}).(string); ok {
		return r
	}
	return ""
}
