package connection

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/fixture"
	"github.com/ayusman/fixtureplay/internal/metrics"
	"github.com/ayusman/fixtureplay/internal/protocol"
)

// Defaults applied by NewManager.
const (
	DefaultMaxRenderers    = 64
	DefaultMaxMissedRounds = 1
)

// tombstoneRounds is how many ping rounds a pruned id stays ignored.
const tombstoneRounds = 32

// Config holds Manager options.
type Config struct {
	// MaxRenderers bounds the number of connection records.
	MaxRenderers int
	// MaxMissedRounds is the number of consecutive ping rounds a renderer
	// may stay silent before it is pruned.
	MaxMissedRounds int
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager is the sole owner of renderer connection records and of the
// fixture state they report. Messages from one renderer must be handled in
// the order they were sent; the manager makes no assumption about ordering
// across renderers.
type Manager struct {
	mu          sync.RWMutex
	cfg         Config
	poster      protocol.Poster
	log         *zap.Logger
	records     map[protocol.RendererID]*Record
	order       []protocol.RendererID
	states      map[stateKey]fixture.State
	tombstones  map[protocol.RendererID]int
	round       int
	subscribers map[int]func(Change)
	nextSub     int
}

// NewManager creates a Manager posting outbound messages through poster.
func NewManager(poster protocol.Poster, cfg Config) *Manager {
	if cfg.MaxRenderers <= 0 {
		cfg.MaxRenderers = DefaultMaxRenderers
	}
	if cfg.MaxMissedRounds <= 0 {
		cfg.MaxMissedRounds = DefaultMaxMissedRounds
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cfg:         cfg,
		poster:      poster,
		log:         log.Named("connection"),
		records:     make(map[protocol.RendererID]*Record),
		states:      make(map[stateKey]fixture.State),
		tombstones:  make(map[protocol.RendererID]int),
		subscribers: make(map[int]func(Change)),
	}
}

// Subscribe registers fn for every Change. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Change)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

func (m *Manager) emit(changes []Change) {
	if len(changes) == 0 {
		return
	}
	m.mu.RLock()
	subs := make([]func(Change), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()

	for _, c := range changes {
		for _, fn := range subs {
			fn(c)
		}
	}
}

// Receive decodes and handles one inbound frame. Malformed frames are
// logged and dropped.
func (m *Manager) Receive(data []byte) {
	p, err := protocol.Decode(data)
	if err != nil {
		m.log.Warn("dropping malformed message", zap.Error(err))
		m.cfg.Metrics.Dropped(metrics.DropMalformed)
		return
	}
	m.Handle(p)
}

// Handle applies a message sent by a renderer. Messages from unknown or
// pruned renderers and stale fixture state are dropped silently.
func (m *Manager) Handle(p protocol.Payload) {
	m.cfg.Metrics.Received(string(p.MessageType()))

	var changes []Change
	switch msg := p.(type) {
	case protocol.FixtureListUpdate:
		changes = m.handleFixtureList(msg)
	case protocol.FixtureStateChange:
		changes = m.handleFixtureState(msg)
	default:
		m.log.Warn("dropping message sent in the wrong direction", zap.String("type", string(p.MessageType())))
		m.cfg.Metrics.Dropped(metrics.DropDirection)
	}
	m.emit(changes)
}

func (m *Manager) handleFixtureList(msg protocol.FixtureListUpdate) []Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, pruned := m.tombstones[msg.RendererID]; pruned {
		m.log.Debug("ignoring pruned renderer", zap.String("renderer", string(msg.RendererID)))
		m.cfg.Metrics.Dropped(metrics.DropUnrecognized)
		return nil
	}

	rec, ok := m.records[msg.RendererID]
	if ok {
		m.touchLocked(rec)
		if rec.Fixtures.Equal(msg.Fixtures) {
			return nil
		}
		rec.Fixtures = msg.Fixtures.Clone()
		m.log.Debug("fixture list replaced",
			zap.String("renderer", string(msg.RendererID)),
			zap.Int("fixtures", len(msg.Fixtures)))
		return []Change{{Kind: FixtureListChanged, RendererID: msg.RendererID}}
	}

	if len(m.records) >= m.cfg.MaxRenderers {
		m.log.Warn("renderer limit reached, ignoring renderer",
			zap.String("renderer", string(msg.RendererID)),
			zap.Int("max", m.cfg.MaxRenderers))
		m.cfg.Metrics.Dropped(metrics.DropCapacity)
		return nil
	}

	now := m.cfg.Now()
	rec = &Record{
		RendererID:  msg.RendererID,
		Fixtures:    msg.Fixtures.Clone(),
		ConnectedAt: now,
	}
	m.touchLocked(rec)
	m.records[msg.RendererID] = rec
	m.order = append(m.order, msg.RendererID)
	m.cfg.Metrics.SetRenderers(len(m.records))
	m.log.Info("renderer connected",
		zap.String("renderer", string(msg.RendererID)),
		zap.Int("fixtures", len(msg.Fixtures)))

	return []Change{
		{Kind: RendererAdded, RendererID: msg.RendererID},
		{Kind: FixtureListChanged, RendererID: msg.RendererID},
	}
}

func (m *Manager) handleFixtureState(msg protocol.FixtureStateChange) []Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[msg.RendererID]
	if !ok {
		m.cfg.Metrics.Dropped(metrics.DropUnrecognized)
		return nil
	}
	m.touchLocked(rec)

	var changes []Change
	switch {
	case rec.PendingSelection != nil && *rec.PendingSelection == msg.FixtureID:
		rec.CurrentFixtureID = rec.PendingSelection
		rec.PendingSelection = nil
		changes = append(changes, Change{Kind: SelectionChanged, RendererID: rec.RendererID, FixtureID: cloneID(rec.CurrentFixtureID)})
	case rec.PendingSelection == nil && rec.CurrentFixtureID != nil && *rec.CurrentFixtureID == msg.FixtureID:
	default:
		m.log.Debug("dropping state of superseded fixture",
			zap.String("renderer", string(msg.RendererID)),
			zap.String("fixture", msg.FixtureID.String()))
		m.cfg.Metrics.Dropped(metrics.DropStale)
		return nil
	}

	key := stateKey{renderer: rec.RendererID, fixture: msg.FixtureID}
	m.states[key] = m.states[key].Merge(msg.FixtureState)

	id := msg.FixtureID
	return append(changes, Change{Kind: FixtureStateChanged, RendererID: rec.RendererID, FixtureID: &id})
}

func (m *Manager) touchLocked(rec *Record) {
	rec.LastSeenAt = m.cfg.Now()
	rec.seen = true
	rec.MissedRounds = 0
}

// SelectFixture asks a renderer to render fixtureID. A later selection
// supersedes an earlier one; state of the previous fixture is discarded.
func (m *Manager) SelectFixture(rendererID protocol.RendererID, fixtureID fixture.ID) error {
	m.mu.Lock()
	rec, ok := m.records[rendererID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnrecognizedRenderer, rendererID)
	}
	if !rec.Fixtures.Has(fixtureID) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidFixture, fixtureID)
	}

	m.selectLocked(rec, fixtureID)
	m.mu.Unlock()

	m.emit([]Change{{Kind: SelectionChanged, RendererID: rendererID, FixtureID: &fixtureID}})
	return m.post(protocol.SelectFixture{RendererID: rendererID, FixtureID: fixtureID})
}

// SelectAll selects fixtureID on every known renderer. Renderers that do not
// export it are sent the selection too, so they drop the previous fixture and
// show "not found"; their record carries NotFoundFixtureID. It returns the
// number of renderers that export the fixture.
func (m *Manager) SelectAll(fixtureID fixture.ID) (int, error) {
	m.mu.Lock()
	var (
		found   int
		changes []Change
		posts   []protocol.Payload
	)
	for _, rid := range m.order {
		if m.selectLocked(m.records[rid], fixtureID) {
			found++
		}
		id := fixtureID
		changes = append(changes, Change{Kind: SelectionChanged, RendererID: rid, FixtureID: &id})
		posts = append(posts, protocol.SelectFixture{RendererID: rid, FixtureID: fixtureID})
	}
	m.mu.Unlock()

	m.emit(changes)
	var errs []error
	for _, p := range posts {
		if err := m.post(p); err != nil {
			errs = append(errs, err)
		}
	}
	return found, errors.Join(errs...)
}

// selectLocked replaces rec's selection and reports whether rec exports
// fixtureID.
func (m *Manager) selectLocked(rec *Record, fixtureID fixture.ID) bool {
	m.discardStateLocked(rec)
	id := fixtureID
	rec.CurrentFixtureID = nil
	if !rec.Fixtures.Has(fixtureID) {
		rec.PendingSelection = nil
		rec.NotFoundFixtureID = &id
		return false
	}
	rec.PendingSelection = &id
	rec.NotFoundFixtureID = nil
	return true
}

// UnselectFixture clears a renderer's selection.
func (m *Manager) UnselectFixture(rendererID protocol.RendererID) error {
	m.mu.Lock()
	rec, ok := m.records[rendererID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnrecognizedRenderer, rendererID)
	}
	m.discardStateLocked(rec)
	rec.PendingSelection = nil
	rec.CurrentFixtureID = nil
	rec.NotFoundFixtureID = nil
	m.mu.Unlock()

	m.emit([]Change{{Kind: SelectionChanged, RendererID: rendererID}})
	return m.post(protocol.UnselectFixture{RendererID: rendererID})
}

// SetFixtureState applies a UI edit to the state of the selected fixture and
// forwards it to the renderer.
func (m *Manager) SetFixtureState(rendererID protocol.RendererID, fixtureID fixture.ID, change fixture.State) error {
	m.mu.Lock()
	rec, ok := m.records[rendererID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnrecognizedRenderer, rendererID)
	}
	selected := rec.Selected()
	if selected == nil || *selected != fixtureID {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is not selected", ErrInvalidFixture, fixtureID)
	}
	key := stateKey{renderer: rendererID, fixture: fixtureID}
	m.states[key] = m.states[key].Merge(change)
	m.mu.Unlock()

	id := fixtureID
	m.emit([]Change{{Kind: FixtureStateChanged, RendererID: rendererID, FixtureID: &id}})
	return m.post(protocol.SetFixtureState{RendererID: rendererID, FixtureID: fixtureID, StateChange: change.Clone()})
}

func (m *Manager) discardStateLocked(rec *Record) {
	for _, id := range []*fixture.ID{rec.PendingSelection, rec.CurrentFixtureID} {
		if id != nil {
			delete(m.states, stateKey{renderer: rec.RendererID, fixture: *id})
		}
	}
}

func (m *Manager) post(p protocol.Payload) error {
	if m.poster == nil {
		return nil
	}
	if err := m.poster.Post(p); err != nil {
		return fmt.Errorf("post %s: %w", p.MessageType(), err)
	}
	m.cfg.Metrics.Sent(string(p.MessageType()))
	return nil
}

// Sweep closes a ping round. Renderers that sent nothing since the previous
// round accumulate a missed round; those reaching MaxMissedRounds are pruned.
// Each pruned id is returned exactly once.
func (m *Manager) Sweep() []protocol.RendererID {
	m.mu.Lock()
	m.round++
	for id, round := range m.tombstones {
		if m.round-round > tombstoneRounds {
			delete(m.tombstones, id)
		}
	}

	var pruned []protocol.RendererID
	for _, id := range m.order {
		rec := m.records[id]
		if rec.seen {
			rec.seen = false
			rec.MissedRounds = 0
			continue
		}
		rec.MissedRounds++
		if rec.MissedRounds >= m.cfg.MaxMissedRounds {
			pruned = append(pruned, id)
		}
	}

	changes := make([]Change, 0, len(pruned))
	for _, id := range pruned {
		rec := m.records[id]
		m.discardStateLocked(rec)
		delete(m.records, id)
		m.tombstones[id] = m.round
		changes = append(changes, Change{Kind: RendererPruned, RendererID: id})
		m.log.Info("renderer pruned",
			zap.String("renderer", string(id)),
			zap.Time("lastSeenAt", rec.LastSeenAt))
	}
	if len(pruned) > 0 {
		m.order = slices.DeleteFunc(m.order, func(id protocol.RendererID) bool {
			return slices.Contains(pruned, id)
		})
		m.cfg.Metrics.Pruned(len(pruned))
		m.cfg.Metrics.SetRenderers(len(m.records))
	}
	m.mu.Unlock()

	m.emit(changes)
	return pruned
}

// Record returns a copy of a renderer's connection record.
func (m *Manager) Record(rendererID protocol.RendererID) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[rendererID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Records returns copies of all connection records in connection order.
func (m *Manager) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id].clone())
	}
	return out
}

// Len returns the number of known renderers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// FixtureState returns the stored state of a renderer's fixture.
func (m *Manager) FixtureState(rendererID protocol.RendererID, fixtureID fixture.ID) (fixture.State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[stateKey{renderer: rendererID, fixture: fixtureID}]
	if !ok {
		return nil, false
	}
	return state.Clone(), true
}
