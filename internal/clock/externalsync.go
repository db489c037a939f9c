package clock

// Debounce/cooldown windows for the external sync input.
const (
	PulseCooldownUs   = 5_000   // 5 ms minimum between accepted pulses
	DetectDebounceUs  = 10_000  // 10 ms stable level required to change cable state
)

// PinReader reads the instantaneous level of a digital input pin. Active-low:
// Level() returns true when the pin is asserted (low).
type PinReader interface {
	Level() bool
}

// ExternalSyncInput is a polled 2 PPQN sync-pulse + cable-detect input. It
// has no ISR: Update must be called from the main loop.
type ExternalSyncInput struct {
	observers []Observer

	syncPin   PinReader
	detectPin PinReader

	lastSyncLevel bool
	lastPulseUs   uint32
	hasPulse      bool

	detectCandidateLevel bool
	detectCandidateSince uint32
	hasDetectCandidate   bool
	connected            bool
	hasConnected         bool
}

// NewExternalSyncInput wires the two digital inputs.
func NewExternalSyncInput(syncPin, detectPin PinReader) *ExternalSyncInput {
	return &ExternalSyncInput{syncPin: syncPin, detectPin: detectPin}
}

func (e *ExternalSyncInput) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// Update polls both pins; now is a monotonic microsecond timestamp.
func (e *ExternalSyncInput) Update(nowUs uint32) {
	e.pollSync(nowUs)
	e.pollDetect(nowUs)
}

func (e *ExternalSyncInput) pollSync(nowUs uint32) {
	level := e.syncPin.Level()
	risingEdge := level && !e.lastSyncLevel
	e.lastSyncLevel = level
	if !risingEdge {
		return
	}
	if e.hasPulse && elapsed(e.lastPulseUs, nowUs) <= PulseCooldownUs {
		return
	}
	e.hasPulse = true
	e.lastPulseUs = nowUs
	ev := Event{Source: SourceExternalSync, IsBeat: true, TimestampUs: nowUs}
	for _, o := range e.observers {
		o.OnClockEvent(ev)
	}
}

func (e *ExternalSyncInput) pollDetect(nowUs uint32) {
	level := e.detectPin.Level()
	if !e.hasDetectCandidate || level != e.detectCandidateLevel {
		e.detectCandidateLevel = level
		e.detectCandidateSince = nowUs
		e.hasDetectCandidate = true
		return
	}
	if elapsed(e.detectCandidateSince, nowUs) >= DetectDebounceUs {
		e.connected = level
		e.hasConnected = true
	}
}

// IsCableConnected returns the debounced cable-insertion state. Before the
// first debounce window completes it reports false (nothing detected yet).
func (e *ExternalSyncInput) IsCableConnected() bool {
	return e.hasConnected && e.connected
}

func elapsed(prev, now uint32) uint32 {
	return now - prev // wraps correctly for uint32 monotonic timestamps
}
