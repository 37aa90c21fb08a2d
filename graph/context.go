package graph

import (
	"sync"
	"time"
)

// ExecutionContext holds the engine clock for one run: the current engine
// time, the proposed next engine time, the wall-clock correlation, and the
// push-wakeup signal. One context exists per run and is shared with the
// graph for its duration.
//
// Within one evaluation pass the current engine time is constant; between
// passes it strictly increases. The proposed next engine time is narrowed
// monotonically within a tick and reset to MaxDT whenever the current time
// moves.
type ExecutionContext interface {
	// CurrentEngineTime returns the engine time of the current tick.
	CurrentEngineTime() time.Time

	// SetCurrentEngineTime moves the clock and resets the proposed next
	// engine time to MaxDT. Executor use only.
	SetCurrentEngineTime(t time.Time)

	// ProposedNextEngineTime returns the earliest future engine time any
	// node has announced interest in, or MaxDT.
	ProposedNextEngineTime() time.Time

	// NextCycleEngineTime returns the next distinguishable instant after
	// the current engine time.
	NextCycleEngineTime() time.Time

	// UpdateNextProposedTime narrows the proposal towards t. A proposal
	// equal to the current engine time is ignored; the proposal never
	// widens and never lands at or before the current time.
	UpdateNextProposedTime(t time.Time)

	// WallClockTime returns the wall-clock time correlated with the
	// engine clock. In back-test mode this is simulated.
	WallClockTime() time.Time

	// EngineLag returns how far wall-clock has run ahead of the engine
	// clock.
	EngineLag() time.Duration

	// RequestEngineStop asks the engine to terminate at the next tick
	// boundary. Safe from any goroutine; a blocked real-time wait is
	// woken.
	RequestEngineStop()

	// IsStopRequested reports whether a stop has been requested.
	IsStopRequested() bool

	// WaitUntilProposedEngineTime blocks until engine time may advance to
	// t, then moves the clock. Back-test clocks return immediately;
	// real-time clocks sleep until t, a push notification, or a stop.
	WaitUntilProposedEngineTime(t time.Time)

	// MarkPushHasPendingValues records that a push source has enqueued a
	// value and wakes a blocked real-time wait. Back-test clocks return
	// ErrPushNotSupported.
	MarkPushHasPendingValues() error

	// PushHasPendingValues reports whether a push enqueue is outstanding.
	PushHasPendingValues() bool

	// ResetPushHasPendingValues clears the push-pending flag. Executor
	// use only, at the start of push drainage.
	ResetPushHasPendingValues()

	// AddBeforeEvaluationNotification parks a callback to run once at the
	// start of the next evaluation pass (FIFO).
	AddBeforeEvaluationNotification(fn func())

	// AddAfterEvaluationNotification parks a callback to run once at the
	// end of the current evaluation pass (LIFO).
	AddAfterEvaluationNotification(fn func())
}

// baseExecutionContext carries the clock state shared by both run modes.
// The engine back-reference is non-owning; the engine owns the context.
type baseExecutionContext struct {
	mu            sync.Mutex
	currentTime   time.Time
	proposedTime  time.Time
	stopRequested bool
	engine        *GraphEngine
}

func (c *baseExecutionContext) CurrentEngineTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime
}

func (c *baseExecutionContext) ProposedNextEngineTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proposedTime
}

func (c *baseExecutionContext) NextCycleEngineTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime.Add(MinTD)
}

func (c *baseExecutionContext) UpdateNextProposedTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Equal(c.currentTime) {
		return
	}
	c.proposedTime = maxTime(c.currentTime.Add(MinTD), minTime(c.proposedTime, t))
}

func (c *baseExecutionContext) RequestEngineStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRequested = true
}

func (c *baseExecutionContext) IsStopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested
}

func (c *baseExecutionContext) AddBeforeEvaluationNotification(fn func()) {
	c.engine.addBeforeEvaluationNotification(fn)
}

func (c *baseExecutionContext) AddAfterEvaluationNotification(fn func()) {
	c.engine.addAfterEvaluationNotification(fn)
}

// setCurrentTimeLocked moves the clock and resets the proposal. Callers
// hold c.mu.
func (c *baseExecutionContext) setCurrentTimeLocked(t time.Time) {
	c.currentTime = t
	c.proposedTime = MaxDT
}

// BackTestExecutionContext is the clock of a back-test run: logical time
// advances as fast as work permits and wall-clock is simulated as the
// engine time plus the observed engine lag. Push sources are forbidden.
type BackTestExecutionContext struct {
	baseExecutionContext
	wallClockAtCurrentTime time.Time
}

// NewBackTestExecutionContext creates a back-test clock positioned at the
// given engine time.
func NewBackTestExecutionContext(current time.Time, engine *GraphEngine) *BackTestExecutionContext {
	c := &BackTestExecutionContext{}
	c.engine = engine
	c.currentTime = current
	c.proposedTime = MaxDT
	c.wallClockAtCurrentTime = time.Now().UTC()
	return c
}

// SetCurrentEngineTime moves the clock, re-anchoring the simulated wall
// clock.
func (c *BackTestExecutionContext) SetCurrentEngineTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCurrentTimeLocked(t)
	c.wallClockAtCurrentTime = time.Now().UTC()
}

// WaitUntilProposedEngineTime advances instantaneously.
func (c *BackTestExecutionContext) WaitUntilProposedEngineTime(t time.Time) {
	c.SetCurrentEngineTime(t)
}

// WallClockTime returns the simulated wall clock: engine time plus lag.
func (c *BackTestExecutionContext) WallClockTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime.Add(time.Since(c.wallClockAtCurrentTime))
}

// EngineLag returns the real time spent since the engine clock last moved.
func (c *BackTestExecutionContext) EngineLag() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.wallClockAtCurrentTime)
}

// MarkPushHasPendingValues fails: back-test engines cannot be woken by
// external producers.
func (c *BackTestExecutionContext) MarkPushHasPendingValues() error {
	return ErrPushNotSupported
}

// PushHasPendingValues always reports false in back-test mode.
func (c *BackTestExecutionContext) PushHasPendingValues() bool { return false }

// ResetPushHasPendingValues is a no-op in back-test mode.
func (c *BackTestExecutionContext) ResetPushHasPendingValues() {}

// RealTimeExecutionContext is the clock of a real-time run: logical time
// tracks wall-clock and a blocked wait is woken by push enqueues and stop
// requests through a condition variable.
type RealTimeExecutionContext struct {
	baseExecutionContext
	pushPending   bool
	pushCondMu    sync.Mutex
	pushCondition *sync.Cond
}

// NewRealTimeExecutionContext creates a real-time clock positioned at the
// given engine time.
func NewRealTimeExecutionContext(current time.Time, engine *GraphEngine) *RealTimeExecutionContext {
	c := &RealTimeExecutionContext{}
	c.engine = engine
	c.currentTime = current
	c.proposedTime = MaxDT
	c.pushCondition = sync.NewCond(&c.pushCondMu)
	return c
}

// SetCurrentEngineTime moves the clock.
func (c *RealTimeExecutionContext) SetCurrentEngineTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCurrentTimeLocked(t)
}

// WaitUntilProposedEngineTime sleeps until wall-clock reaches t, a push
// value arrives, or a stop is requested. On exit the engine clock is set to
// min(t, wall-now).
func (c *RealTimeExecutionContext) WaitUntilProposedEngineTime(t time.Time) {
	c.pushCondMu.Lock()
	for {
		now := time.Now().UTC()
		if !now.Before(t) || c.pushPending || c.IsStopRequested() {
			break
		}
		c.waitWithTimeout(t.Sub(now))
	}
	c.pushCondMu.Unlock()
	c.SetCurrentEngineTime(minTime(t, time.Now().UTC()))
}

// waitWithTimeout waits on the push condition for at most d. The condition
// mutex is held by the caller. A timer broadcast stands in for the timed
// wait sync.Cond lacks.
func (c *RealTimeExecutionContext) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		c.pushCondMu.Lock()
		c.pushCondMu.Unlock() //nolint:staticcheck // barrier so the wake is not lost
		c.pushCondition.Broadcast()
	})
	defer timer.Stop()
	c.pushCondition.Wait()
}

// WallClockTime returns the real wall clock.
func (c *RealTimeExecutionContext) WallClockTime() time.Time {
	return time.Now().UTC()
}

// EngineLag returns how far wall-clock has run ahead of engine time.
func (c *RealTimeExecutionContext) EngineLag() time.Duration {
	return time.Now().UTC().Sub(c.CurrentEngineTime())
}

// MarkPushHasPendingValues sets the push-pending flag and wakes a blocked
// wait. Safe from any goroutine.
func (c *RealTimeExecutionContext) MarkPushHasPendingValues() error {
	c.pushCondMu.Lock()
	c.pushPending = true
	c.pushCondMu.Unlock()
	c.pushCondition.Broadcast()
	return nil
}

// PushHasPendingValues reports whether a push enqueue is outstanding.
func (c *RealTimeExecutionContext) PushHasPendingValues() bool {
	c.pushCondMu.Lock()
	defer c.pushCondMu.Unlock()
	return c.pushPending
}

// ResetPushHasPendingValues clears the push-pending flag.
func (c *RealTimeExecutionContext) ResetPushHasPendingValues() {
	c.pushCondMu.Lock()
	defer c.pushCondMu.Unlock()
	c.pushPending = false
}

// RequestEngineStop sets the stop flag and wakes a blocked wait.
func (c *RealTimeExecutionContext) RequestEngineStop() {
	c.baseExecutionContext.RequestEngineStop()
	c.pushCondMu.Lock()
	c.pushCondMu.Unlock() //nolint:staticcheck // barrier so the wake is not lost
	c.pushCondition.Broadcast()
}
