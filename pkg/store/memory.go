package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Argus/pkg/errors"
	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/status"
)

// MemoryStore is a thread-safe in-memory Store. It backs tests and the
// embedded deployment mode; hierarchy records are held by pointer so
// the engine's counters stay live across reads.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
	workers  map[string]time.Time
	logger   *zap.Logger
}

type memSession struct {
	session *model.Session
	pages   map[string]*memPage
}

type memPage struct {
	page  *model.Page
	tabs  map[string]*memTab
	order []string
}

type memTab struct {
	tab    *model.Tab
	params map[string]*model.Parameter
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &MemoryStore{
		sessions: make(map[string]*memSession),
		workers:  make(map[string]time.Time),
		logger:   logger,
	}
}

// CreateSession persists a new session record.
func (m *MemoryStore) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &memSession{
		session: s,
		pages:   make(map[string]*memPage),
	}
	return nil
}

// GetSession returns the session or errors.ErrSessionNotFound.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, sdkerrors.ErrSessionNotFound
	}
	return ms.session, nil
}

// UpdateSessionConfig replaces the session's execution configuration.
// Missing sessions are tolerated as a no-op.
func (m *MemoryStore) UpdateSessionConfig(_ context.Context, id string, cfg model.ExecutionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.sessions[id]; ok {
		ms.session.Config = cfg
		ms.session.AlreadyValidated = false
		ms.session.Status = status.InProgress
	}
	return nil
}

// SetSessionResult records the final verdict. Missing sessions are a
// no-op: the session may have been killed while a result was in flight.
func (m *MemoryStore) SetSessionResult(_ context.Context, id string, st status.ValidationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.sessions[id]; ok {
		ms.session.Status = st
		ms.session.AlreadyValidated = true
	}
	return nil
}

// DeleteSession removes the session and its page tree.
func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// ListSessionsByWorker returns the sessions owned by a worker.
func (m *MemoryStore) ListSessionsByWorker(_ context.Context, workerID string) ([]*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Session
	for _, ms := range m.sessions {
		if ms.session.WorkerID == workerID {
			out = append(out, ms.session)
		}
	}
	return out, nil
}

// ListSessions returns every session record.
func (m *MemoryStore) ListSessions(_ context.Context) ([]*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Session, 0, len(m.sessions))
	for _, ms := range m.sessions {
		out = append(out, ms.session)
	}
	return out, nil
}

// ReplacePage atomically replaces the named page and its children.
func (m *MemoryStore) ReplacePage(_ context.Context, page *model.Page, tabs []*model.Tab, params []*model.Parameter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[page.SessionID]
	if !ok {
		return nil
	}

	mp := &memPage{page: page, tabs: make(map[string]*memTab)}
	for _, t := range tabs {
		mp.tabs[t.Name] = &memTab{tab: t, params: make(map[string]*model.Parameter)}
		mp.order = append(mp.order, t.Name)
	}
	for _, p := range params {
		if mt, ok := mp.tabs[p.TabName]; ok {
			mt.params[p.Path] = p
		}
	}
	ms.pages[page.Name] = mp
	return nil
}

// GetPage returns one page of a session.
func (m *MemoryStore) GetPage(_ context.Context, sessionID, pageName string) (*model.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, err := m.page(sessionID, pageName)
	if err != nil {
		return nil, err
	}
	return mp.page, nil
}

// ListPages returns every page of a session.
func (m *MemoryStore) ListPages(_ context.Context, sessionID string) ([]*model.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.sessions[sessionID]
	if !ok {
		return nil, sdkerrors.ErrSessionNotFound
	}
	out := make([]*model.Page, 0, len(ms.pages))
	for _, mp := range ms.pages {
		out = append(out, mp.page)
	}
	return out, nil
}

// SetPageResult records a page's rolled-up status. Missing records are
// tolerated.
func (m *MemoryStore) SetPageResult(_ context.Context, sessionID, pageName string, st status.ValidationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mp, err := m.page(sessionID, pageName); err == nil {
		mp.page.Status = st
		mp.page.AlreadyValidated = true
	}
	return nil
}

// ImpactingPageStatuses returns rollup-relevant page statuses.
func (m *MemoryStore) ImpactingPageStatuses(_ context.Context, sessionID string) ([]status.ValidationStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.sessions[sessionID]
	if !ok {
		return nil, sdkerrors.ErrSessionNotFound
	}
	var out []status.ValidationStatus
	for _, mp := range ms.pages {
		if status.Impacting(mp.page.Status) {
			out = append(out, mp.page.Status)
		}
	}
	return out, nil
}

// GetTab returns one tab of a page.
func (m *MemoryStore) GetTab(_ context.Context, sessionID, pageName, tabName string) (*model.Tab, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, err := m.tab(sessionID, pageName, tabName)
	if err != nil {
		return nil, err
	}
	return mt.tab, nil
}

// ListTabs returns every tab of a page in definition order.
func (m *MemoryStore) ListTabs(_ context.Context, sessionID, pageName string) ([]*model.Tab, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, err := m.page(sessionID, pageName)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Tab, 0, len(mp.order))
	for _, name := range mp.order {
		out = append(out, mp.tabs[name].tab)
	}
	return out, nil
}

// SetTabResult records a tab's rolled-up status. Missing records are
// tolerated.
func (m *MemoryStore) SetTabResult(_ context.Context, sessionID, pageName, tabName string, st status.ValidationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt, err := m.tab(sessionID, pageName, tabName); err == nil {
		mt.tab.Status = st
		mt.tab.AlreadyValidated = true
	}
	return nil
}

// ImpactingTabStatuses returns rollup-relevant tab statuses.
func (m *MemoryStore) ImpactingTabStatuses(_ context.Context, sessionID, pageName string) ([]status.ValidationStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, err := m.page(sessionID, pageName)
	if err != nil {
		return nil, err
	}
	var out []status.ValidationStatus
	for _, name := range mp.order {
		if st := mp.tabs[name].tab.Status; status.Impacting(st) {
			out = append(out, st)
		}
	}
	return out, nil
}

// SaveParameter persists a parameter's terminal value. Writes against
// a vanished session or page are discarded silently.
func (m *MemoryStore) SaveParameter(_ context.Context, p *model.Parameter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt, err := m.tab(p.SessionID, p.PageName, p.TabName); err == nil {
		mt.params[p.Path] = p
	}
	return nil
}

// GetParameter returns one parameter of a tab.
func (m *MemoryStore) GetParameter(_ context.Context, sessionID, pageName, tabName, path string) (*model.Parameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, err := m.tab(sessionID, pageName, tabName)
	if err != nil {
		return nil, err
	}
	p, ok := mt.params[path]
	if !ok {
		return nil, sdkerrors.ErrParameterNotFound
	}
	return p, nil
}

// ImpactingParameterStatuses returns rollup-relevant parameter statuses.
func (m *MemoryStore) ImpactingParameterStatuses(_ context.Context, sessionID, pageName, tabName string) ([]status.ValidationStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, err := m.tab(sessionID, pageName, tabName)
	if err != nil {
		return nil, err
	}
	var out []status.ValidationStatus
	for _, p := range mt.params {
		if status.Impacting(p.Status) {
			out = append(out, p.Status)
		}
	}
	return out, nil
}

// Heartbeat records that a worker was alive at the given instant.
func (m *MemoryStore) Heartbeat(_ context.Context, workerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[workerID] = at
	return nil
}

// LiveWorkers returns workers seen at or after the cutoff.
func (m *MemoryStore) LiveWorkers(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, at := range m.workers {
		if !at.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out, nil
}

// RemoveWorker drops a worker from the heartbeat registry.
func (m *MemoryStore) RemoveWorker(_ context.Context, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workers, workerID)
	return nil
}

func (m *MemoryStore) page(sessionID, pageName string) (*memPage, error) {
	ms, ok := m.sessions[sessionID]
	if !ok {
		return nil, sdkerrors.ErrSessionNotFound
	}
	mp, ok := ms.pages[pageName]
	if !ok {
		return nil, sdkerrors.ErrPageNotFound
	}
	return mp, nil
}

func (m *MemoryStore) tab(sessionID, pageName, tabName string) (*memTab, error) {
	mp, err := m.page(sessionID, pageName)
	if err != nil {
		return nil, err
	}
	mt, ok := mp.tabs[tabName]
	if !ok {
		return nil, sdkerrors.ErrTabNotFound
	}
	return mt, nil
}
