package canonical

import "context"

// Action reports what an upsert did so the orchestrator can fill the
// ImportResult counters without peeking into store internals.
type Action string

const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
	ActionSkipped  Action = "skipped"
)

// Store is the persistence contract the pipeline writes through.  Day-keyed
// entities merge field-by-field (fill-if-absent); samples and workout
// sessions dedup on their natural key and are never merged.  The store is
// the only shared resource between concurrent imports — everything above it
// is caller-owned.
type Store interface {
	UpsertDayActivity(ctx context.Context, rec DayActivity) (Action, error)
	UpsertDaySleep(ctx context.Context, rec DaySleep) (Action, error)
	UpsertBodyComposition(ctx context.Context, rec BodyComposition) (Action, error)
	InsertBiometricSample(ctx context.Context, s BiometricSample) (Action, error)
	InsertWorkoutSession(ctx context.Context, w WorkoutSession) (Action, error)
}

// Persist writes a flushed snapshot through the store, updating the result
// counters per entity kind.  A store error is fatal for the import: unlike a
// malformed row, a failing store is not something to skip past.
func (s Snapshot) Persist(ctx context.Context, st Store, res *ImportResult) error {
	count := func(kind string, action Action) {
		switch action {
		case ActionInserted:
			res.CountInsert(kind)
		case ActionUpdated:
			res.CountUpdate(kind)
		}
	}

	for _, rec := range s.Activity {
		action, err := st.UpsertDayActivity(ctx, rec)
		if err != nil {
			return err
		}
		count(KindDayActivity, action)
	}
	for _, rec := range s.Sleep {
		action, err := st.UpsertDaySleep(ctx, rec)
		if err != nil {
			return err
		}
		count(KindDaySleep, action)
	}
	for _, rec := range s.Body {
		action, err := st.UpsertBodyComposition(ctx, rec)
		if err != nil {
			return err
		}
		count(KindBodyComposition, action)
	}
	for _, sample := range s.Samples {
		action, err := st.InsertBiometricSample(ctx, sample)
		if err != nil {
			return err
		}
		count(KindBiometricSample, action)
	}
	for _, w := range s.Workouts {
		action, err := st.InsertWorkoutSession(ctx, w)
		if err != nil {
			return err
		}
		count(KindWorkoutSession, action)
	}
	return nil
}
