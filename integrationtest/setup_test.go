package integrationtest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/conductor"
	"github.com/randalmurphal/conductor/event"
	"github.com/randalmurphal/conductor/plan"
	"github.com/randalmurphal/conductor/profile"
	"github.com/randalmurphal/conductor/retry"
	"github.com/randalmurphal/conductor/testutil"
)

// openStores opens SQLite-backed stores under a fresh temp directory.
func openStores(t *testing.T) *conductor.Stores {
	t.Helper()
	stores, err := conductor.OpenStores(filepath.Join(t.TempDir(), "conductor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores
}

// autonomousProfile runs low and medium risk batches without pausing
// for batch approval.
func autonomousProfile() *profile.Profile {
	return &profile.Profile{
		Name:            "auto",
		Trust:           profile.TrustAutonomous,
		Retry:           retry.DefaultConfig(),
		StepTimeout:     time.Minute,
		MaxReviewFixes:  2,
		AutoApproveRisk: plan.RiskMedium,
	}
}

// newManager wires a manager over real stores, the real git context,
// and the real shell command runner; only the agents are scripted.
func newManager(t *testing.T, stores *conductor.Stores, arch *testutil.ScriptedArchitect, opts ...conductor.Option) *conductor.Manager {
	t.Helper()
	base := []conductor.Option{
		conductor.WithStores(stores),
		conductor.WithArchitect(arch),
		conductor.WithDeveloper(testutil.NewScriptedDeveloper()),
		conductor.WithReviewer(testutil.NewScriptedReviewer()),
		conductor.WithProfiles(autonomousProfile()),
		conductor.WithJanitorInterval(0),
		conductor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	mgr, err := conductor.NewManager(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

// subscribe attaches to a workflow's event stream. History replays
// before live delivery, so a subscriber never misses events published
// ahead of it.
func subscribe(t *testing.T, mgr *conductor.Manager, id string) *event.Subscription {
	t.Helper()
	sub, err := mgr.Subscribe(context.Background(), event.SubscribeRequest{WorkflowID: id})
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub
}

// waitFor reads events until one of the wanted type arrives.
func waitFor(t *testing.T, sub *event.Subscription, typ event.Type) event.Event {
	t.Helper()
	deadline := time.After(15 * time.Second)
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				t.Fatalf("subscription closed waiting for %s: %v", typ, sub.Err())
			}
			if e.Type == typ {
				return e
			}
			if e.Type == event.TypeWorkflowFailed && typ != event.TypeWorkflowFailed {
				t.Fatalf("workflow failed waiting for %s: %s", typ, e.Message)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

// collectUntil drains sub until an event of the given type arrives and
// returns everything received, that event included.
func collectUntil(t *testing.T, sub *event.Subscription, typ event.Type) []event.Event {
	t.Helper()
	var events []event.Event
	deadline := time.After(15 * time.Second)
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				t.Fatalf("subscription closed collecting %s: %v", typ, sub.Err())
			}
			events = append(events, e)
			if e.Type == typ {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out collecting %s", typ)
		}
	}
}
