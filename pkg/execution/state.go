package execution

import (
	"sync"

	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/variables"
)

// Runtime completion state. Counters are the engine's own in-memory
// invariant, kept consistent independent of whatever transactional
// discipline the persistence collaborator offers. State is registered
// by the skeleton builder before any parameter executes, and dropped
// when the session dies.

type sessionState struct {
	vars         *variables.Store
	pendingPages model.Counter
	pages        sync.Map // pageName -> *pageState
}

type pageState struct {
	pendingTabs model.Counter
	tabs        sync.Map // tabName -> *tabState
}

type tabState struct {
	pendingParams model.Counter
}

// InitSessionState registers runtime state for a run wave of pageCount
// pages. Re-entering an existing session keeps its accumulated
// variables and re-arms the page counter for the new wave.
func (s *Service) InitSessionState(sessionID string, pageCount int) *variables.Store {
	if v, ok := s.state.Load(sessionID); ok {
		st := v.(*sessionState)
		st.pendingPages.Reset(int32(pageCount))
		return st.vars
	}
	st := &sessionState{vars: variables.NewStore()}
	st.pendingPages.Reset(int32(pageCount))
	s.state.Store(sessionID, st)
	return st.vars
}

// InitPageState arms the page's tab counter and one parameter counter
// per tab. Replaces any previous state for the same page name, latest
// page wins.
func (s *Service) InitPageState(sessionID, pageName string, tabParamCounts map[string]int) {
	v, ok := s.state.Load(sessionID)
	if !ok {
		return
	}
	st := v.(*sessionState)

	ps := &pageState{}
	ps.pendingTabs.Reset(int32(len(tabParamCounts)))
	for tabName, n := range tabParamCounts {
		ts := &tabState{}
		ts.pendingParams.Reset(int32(n))
		ps.tabs.Store(tabName, ts)
	}
	st.pages.Store(pageName, ps)
}

// SessionVars returns the session's shared variable store.
func (s *Service) SessionVars(sessionID string) (*variables.Store, bool) {
	v, ok := s.state.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*sessionState).vars, true
}

// DropSessionState discards a dead session's counters and variables.
func (s *Service) DropSessionState(sessionID string) {
	s.state.Delete(sessionID)
}

func (s *Service) sessionState(sessionID string) (*sessionState, bool) {
	v, ok := s.state.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*sessionState), true
}

func (s *Service) pageState(sessionID, pageName string) (*pageState, bool) {
	st, ok := s.sessionState(sessionID)
	if !ok {
		return nil, false
	}
	v, ok := st.pages.Load(pageName)
	if !ok {
		return nil, false
	}
	return v.(*pageState), true
}

func (s *Service) tabState(sessionID, pageName, tabName string) (*tabState, bool) {
	ps, ok := s.pageState(sessionID, pageName)
	if !ok {
		return nil, false
	}
	v, ok := ps.tabs.Load(tabName)
	if !ok {
		return nil, false
	}
	return v.(*tabState), true
}
