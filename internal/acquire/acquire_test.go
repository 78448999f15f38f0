// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/waybar-locate/internal/geocode"
	"github.com/wneessen/waybar-locate/internal/logger"
	"github.com/wneessen/waybar-locate/internal/position"
)

var testConfig = Config{
	TargetAccuracy: 10,
	Deadline:       time.Second * 60,
	MaxReadingAge:  time.Second * 5,
	SettleDistance: 1,
	SettleAfter:    time.Second * 10,
}

// fakeSource is a position source fed by the test. Stop closes the event channel so the
// consume pump winds down exactly like it would with a real backend.
type fakeSource struct {
	mu       sync.Mutex
	events   chan position.Event
	started  int
	stopped  int
	startErr error
}

func (f *fakeSource) Name() string { return "fake source" }

func (f *fakeSource) Start(_ context.Context) (<-chan position.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started++
	f.events = make(chan position.Event)
	return f.events, nil
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	if f.events != nil {
		close(f.events)
		f.events = nil
	}
}

// emit delivers an event to the running session and reports whether the source was
// still started.
func (f *fakeSource) emit(event position.Event) bool {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	if events == nil {
		return false
	}
	events <- event
	return true
}

func (f *fakeSource) counts() (started, stopped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped
}

// stubResolver resolves every reading to a display name derived from its coordinates.
// With a block channel set, lookups stall until the channel is closed.
type stubResolver struct {
	mu    sync.Mutex
	calls int
	block chan struct{}
}

func (s *stubResolver) Name() string { return "stub resolver" }

func (s *stubResolver) Reverse(_ context.Context, reading position.Reading) (geocode.Address, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	return geocode.Address{
		Found:       true,
		DisplayName: fmt.Sprintf("address at %.4f/%.4f", reading.Lat, reading.Lon),
	}, nil
}

func (s *stubResolver) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testHarness struct {
	acquirer *Acquirer
	source   *fakeSource
	resolver *stubResolver
	changes  *int
}

func newTestHarness(conf Config) *testHarness {
	log := logger.NewLogger(slog.LevelDebug, io.Discard)
	changes := 0
	onChange := func() { changes++ }
	resolver := &stubResolver{}
	flight := geocode.NewSingleFlight(resolver, time.Second*5, log, onChange)
	source := &fakeSource{}
	acquirer := New(conf, source, flight, clockwork.NewRealClock(), log, onChange)
	return &testHarness{acquirer: acquirer, source: source, resolver: resolver, changes: &changes}
}

func freshReading(accuracy float64) position.Reading {
	return position.Reading{Lat: 53.5511, Lon: 9.9937, Accuracy: accuracy, At: time.Now(), Source: "fake source"}
}

func TestAcquirer_Start(t *testing.T) {
	t.Run("start begins a session and clears previous results", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)

			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			if !th.acquirer.Acquiring() {
				t.Fatal("expected session to be acquiring")
			}
			time.Sleep(time.Second * 61)
			snap := th.acquirer.Snapshot()
			if !errors.Is(snap.PositionErr, ErrTimedOut) {
				t.Fatalf("expected first session to time out, got: %v", snap.PositionErr)
			}

			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to restart acquisition: %s", err)
			}
			snap = th.acquirer.Snapshot()
			if snap.PositionErr != nil {
				t.Errorf("expected previous session error to be cleared, got: %v", snap.PositionErr)
			}
			if snap.Best.IsSet() {
				t.Error("expected no fix at session start")
			}
			if !snap.Acquiring {
				t.Error("expected new session to be acquiring")
			}
			th.acquirer.Stop()
		})
	})
	t.Run("start while acquiring is a no-op", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("second start should be a no-op, got: %s", err)
			}
			started, _ := th.source.counts()
			if started != 1 {
				t.Errorf("expected the source to be started once, got %d", started)
			}
			th.acquirer.Stop()
		})
	})
	t.Run("a failing source start surfaces the error and stays idle", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			th.source.startErr = errors.New("gpsd connection refused")

			err := th.acquirer.Start(t.Context())
			if err == nil {
				t.Fatal("expected start to fail")
			}
			if th.acquirer.Acquiring() {
				t.Error("expected session to stay idle")
			}
			snap := th.acquirer.Snapshot()
			if snap.PositionErr == nil {
				t.Error("expected the start failure to be surfaced in the snapshot")
			}
		})
	})
}

func TestAcquirer_Stop(t *testing.T) {
	t.Run("stop is idempotent", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Reading: freshReading(50)})
			synctest.Wait()

			th.acquirer.Stop()
			first := th.acquirer.Snapshot()
			th.acquirer.Stop()
			second := th.acquirer.Snapshot()

			if first.Acquiring || second.Acquiring {
				t.Error("expected session to be stopped")
			}
			if first.Best != second.Best || first.PositionErr != second.PositionErr {
				t.Error("expected repeated stops to leave the state unchanged")
			}
			_, stopped := th.source.counts()
			if stopped != 1 {
				t.Errorf("expected the source to be stopped once, got %d", stopped)
			}
		})
	})
	t.Run("stop cancels the deadline", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.acquirer.Stop()
			time.Sleep(time.Second * 90)

			snap := th.acquirer.Snapshot()
			if snap.PositionErr != nil {
				t.Errorf("expected no error from a cancelled deadline, got: %v", snap.PositionErr)
			}
		})
	})
}

func TestAcquirer_Readings(t *testing.T) {
	t.Run("readings with negative accuracy are never accepted", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Reading: freshReading(-5)})
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if snap.Best.IsSet() {
				t.Error("expected no fix after an invalid reading")
			}
			if !snap.Acquiring {
				t.Error("expected session to continue")
			}
			if th.resolver.callCount() != 0 {
				t.Error("expected no geocode lookup for an invalid reading")
			}
			th.acquirer.Stop()
		})
	})
	t.Run("stale readings are never accepted", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			stale := freshReading(20)
			stale.At = time.Now().Add(-time.Second * 6)
			th.source.emit(position.Event{Reading: stale})
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if snap.Best.IsSet() {
				t.Error("expected a stale reading to be discarded")
			}
			th.acquirer.Stop()
		})
	})
	t.Run("fix accuracy never regresses within a session", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			lastAccuracy := -1.0
			for _, accuracy := range []float64{80, 40, 60, 30, 35, 55} {
				th.source.emit(position.Event{Reading: freshReading(accuracy)})
				synctest.Wait()
				snap := th.acquirer.Snapshot()
				if !snap.Best.IsSet() {
					t.Fatal("expected a fix to be held")
				}
				got := snap.Best.Value().Accuracy
				if lastAccuracy >= 0 && got > lastAccuracy {
					t.Errorf("fix accuracy regressed from %.0f to %.0f", lastAccuracy, got)
				}
				lastAccuracy = got
			}
			snap := th.acquirer.Snapshot()
			if got := snap.Best.Value().Accuracy; got != 30 {
				t.Errorf("expected best accuracy of 30, got %.0f", got)
			}
			th.acquirer.Stop()
		})
	})
	t.Run("readings with equal accuracy do not replace the fix", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			first := freshReading(50)
			th.source.emit(position.Event{Reading: first})
			synctest.Wait()
			tie := freshReading(50)
			tie.Lat = 48.1371
			tie.Lon = 11.5754
			th.source.emit(position.Event{Reading: tie})
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if got := snap.Best.Value().Lat; got != first.Lat {
				t.Errorf("expected the first fix at this accuracy to win, got latitude %f", got)
			}
			th.acquirer.Stop()
		})
	})
	t.Run("reaching the target accuracy ends the session", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			for _, accuracy := range []float64{50, 20} {
				th.source.emit(position.Event{Reading: freshReading(accuracy)})
				synctest.Wait()
				if !th.acquirer.Acquiring() {
					t.Fatalf("expected session to continue at accuracy %.0f", accuracy)
				}
			}
			th.source.emit(position.Event{Reading: freshReading(10)})
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if snap.Acquiring {
				t.Error("expected session to end once the target accuracy is reached")
			}
			if got := snap.Best.Value().Accuracy; got != 10 {
				t.Errorf("expected best accuracy of 10, got %.0f", got)
			}
			if snap.PositionErr != nil {
				t.Errorf("expected no session error, got: %v", snap.PositionErr)
			}
			if got := th.resolver.callCount(); got != 3 {
				t.Errorf("expected one lookup per accepted reading, got %d", got)
			}
			_, stopped := th.source.counts()
			if stopped != 1 {
				t.Errorf("expected the source to be stopped once, got %d", stopped)
			}
		})
	})
	t.Run("a settled position ends the session without an accuracy improvement", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Reading: freshReading(30)})
			synctest.Wait()
			time.Sleep(time.Second * 12)
			th.source.emit(position.Event{Reading: freshReading(35)})
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if snap.Acquiring {
				t.Error("expected session to end on a settled position")
			}
			if got := snap.Best.Value().Accuracy; got != 30 {
				t.Errorf("expected the held fix to survive, got accuracy %.0f", got)
			}
			if snap.PositionErr != nil {
				t.Errorf("expected no session error, got: %v", snap.PositionErr)
			}
		})
	})
	t.Run("non-improving readings outside the settle radius keep the session running", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Reading: freshReading(30)})
			synctest.Wait()
			time.Sleep(time.Second * 12)
			moved := freshReading(35)
			moved.Lat += 0.001
			th.source.emit(position.Event{Reading: moved})
			synctest.Wait()

			if !th.acquirer.Acquiring() {
				t.Error("expected session to continue for a moving position")
			}
			th.acquirer.Stop()
		})
	})
	t.Run("non-improving readings within the settle radius need the settle age", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Reading: freshReading(30)})
			synctest.Wait()
			time.Sleep(time.Second * 5)
			th.source.emit(position.Event{Reading: freshReading(35)})
			synctest.Wait()

			if !th.acquirer.Acquiring() {
				t.Error("expected session to continue before the settle age is reached")
			}
			th.acquirer.Stop()
		})
	})
	t.Run("an improving reading at the same spot skips the settle check", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Reading: freshReading(30)})
			synctest.Wait()
			time.Sleep(time.Second * 12)
			th.source.emit(position.Event{Reading: freshReading(20)})
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if !snap.Acquiring {
				t.Error("expected the improved fix to keep the session running")
			}
			if got := snap.Best.Value().Accuracy; got != 20 {
				t.Errorf("expected the improved fix to be accepted, got accuracy %.0f", got)
			}
			th.acquirer.Stop()
		})
	})
	t.Run("events from an ended session are dropped", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.acquirer.Stop()
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to restart acquisition: %s", err)
			}

			th.acquirer.onReading(1, freshReading(5))
			snap := th.acquirer.Snapshot()
			if snap.Best.IsSet() {
				t.Error("expected a reading from a stale session to be dropped")
			}
			th.acquirer.onDeadline(1)
			if !th.acquirer.Acquiring() {
				t.Error("expected a stale deadline to not stop the session")
			}
			th.acquirer.Stop()
		})
	})
}

func TestAcquirer_SourceFailures(t *testing.T) {
	t.Run("transient failures are ignored", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Err: fmt.Errorf("no satellite fix: %w", position.ErrUnavailable)})
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if !snap.Acquiring {
				t.Error("expected session to survive a transient failure")
			}
			if snap.PositionErr != nil {
				t.Errorf("expected no surfaced error, got: %v", snap.PositionErr)
			}
			th.acquirer.Stop()
		})
	})
	t.Run("fatal failures end the session and are surfaced", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			wantErr := errors.New("wifi device vanished")
			th.source.emit(position.Event{Err: wantErr})
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if snap.Acquiring {
				t.Error("expected session to end on a fatal failure")
			}
			if !errors.Is(snap.PositionErr, wantErr) {
				t.Errorf("expected the failure to be surfaced, got: %v", snap.PositionErr)
			}
		})
	})
	t.Run("a fatal failure after a fix keeps the fix", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Reading: freshReading(25)})
			synctest.Wait()
			th.source.emit(position.Event{Err: errors.New("receiver powered off")})
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if snap.Acquiring {
				t.Error("expected session to end on a fatal failure")
			}
			if snap.PositionErr == nil {
				t.Error("expected the failure to be surfaced")
			}
			if !snap.Best.IsSet() || snap.Best.Value().Accuracy != 25 {
				t.Error("expected the held fix to survive the failure")
			}
		})
	})
}

func TestAcquirer_Deadline(t *testing.T) {
	t.Run("the deadline without any fix times the session out", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			time.Sleep(time.Second * 61)

			snap := th.acquirer.Snapshot()
			if snap.Acquiring {
				t.Error("expected session to end at the deadline")
			}
			if !errors.Is(snap.PositionErr, ErrTimedOut) {
				t.Errorf("expected a timeout error, got: %v", snap.PositionErr)
			}
			if snap.Best.IsSet() {
				t.Error("expected no fix after a timed out session")
			}
		})
	})
	t.Run("the deadline with a fix held is a no-op", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Reading: freshReading(50)})
			synctest.Wait()
			time.Sleep(time.Second * 61)

			snap := th.acquirer.Snapshot()
			if !snap.Acquiring {
				t.Error("expected session to continue past the deadline with a fix held")
			}
			if snap.PositionErr != nil {
				t.Errorf("expected no timeout error with a fix held, got: %v", snap.PositionErr)
			}
			if !snap.Best.IsSet() || snap.Best.Value().Accuracy != 50 {
				t.Error("expected the held fix to survive the deadline")
			}
			th.acquirer.Stop()
		})
	})
}

func TestAcquirer_GeocodeCoordination(t *testing.T) {
	t.Run("a better reading does not restart an outstanding lookup", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			th.resolver.block = make(chan struct{})
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}

			first := freshReading(50)
			th.source.emit(position.Event{Reading: first})
			synctest.Wait()
			better := freshReading(20)
			better.Lat = 48.1371
			better.Lon = 11.5754
			th.source.emit(position.Event{Reading: better})
			synctest.Wait()

			if got := th.resolver.callCount(); got != 1 {
				t.Fatalf("expected a single outstanding lookup, got %d", got)
			}
			close(th.resolver.block)
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if !snap.Address.IsSet() {
				t.Fatal("expected an address result")
			}
			want := fmt.Sprintf("address at %.4f/%.4f", first.Lat, first.Lon)
			if got := snap.Address.Value().DisplayName; got != want {
				t.Errorf("expected the outstanding lookup's result %q, got %q", want, got)
			}
			th.acquirer.Stop()
		})
	})
	t.Run("the next accepted reading after completion starts a new lookup", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Reading: freshReading(50)})
			synctest.Wait()
			th.source.emit(position.Event{Reading: freshReading(20)})
			synctest.Wait()

			if got := th.resolver.callCount(); got != 2 {
				t.Errorf("expected a lookup per accepted reading once idle, got %d", got)
			}
			th.acquirer.Stop()
		})
	})
	t.Run("a lookup completing after the session ended is still surfaced", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			th.resolver.block = make(chan struct{})
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			th.source.emit(position.Event{Reading: freshReading(10)})
			synctest.Wait()

			snap := th.acquirer.Snapshot()
			if snap.Acquiring {
				t.Fatal("expected session to end at the target accuracy")
			}
			if !snap.GeocodeInFlight {
				t.Fatal("expected the lookup to still be in flight")
			}
			close(th.resolver.block)
			synctest.Wait()

			snap = th.acquirer.Snapshot()
			if snap.GeocodeInFlight {
				t.Error("expected the lookup to have completed")
			}
			if !snap.Address.IsSet() {
				t.Error("expected the late address to be surfaced")
			}
		})
	})
}

func TestAcquirer_ChangeNotifications(t *testing.T) {
	t.Run("state changes and completions notify exactly once each", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			th := newTestHarness(testConfig)
			if err := th.acquirer.Start(t.Context()); err != nil {
				t.Fatalf("failed to start acquisition: %s", err)
			}
			synctest.Wait()
			afterStart := *th.changes
			if afterStart == 0 {
				t.Error("expected a notification for the session start")
			}

			th.source.emit(position.Event{Reading: freshReading(50)})
			synctest.Wait()
			afterReading := *th.changes
			if afterReading != afterStart+2 {
				t.Errorf("expected notifications for the accepted reading and the lookup completion, got %d", afterReading-afterStart)
			}

			th.source.emit(position.Event{Reading: freshReading(60)})
			synctest.Wait()
			if *th.changes != afterReading {
				t.Error("expected no notification for a rejected reading")
			}

			th.acquirer.Stop()
			if *th.changes != afterReading+1 {
				t.Error("expected a notification for the stop")
			}
			th.acquirer.Stop()
			if *th.changes != afterReading+1 {
				t.Error("expected no notification for a repeated stop")
			}
		})
	})
}
