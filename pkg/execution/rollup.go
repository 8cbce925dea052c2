package execution

import (
	"context"

	"go.uber.org/zap"

	"github.com/wehubfusion/Argus/pkg/notify"
	"github.com/wehubfusion/Argus/pkg/status"
)

// Rollup chain. Each level aggregates the impacting child statuses,
// persists and notifies, then decrements its parent's counter; the
// zero edge carries the chain one level up. A rollup at level L always
// observes every child's final status because the decrement-to-zero
// transition happens-after every child's own status write.

func (s *Service) rollupTab(ctx context.Context, sessionID, pageName, tabName string) error {
	statuses, err := s.store.ImpactingParameterStatuses(ctx, sessionID, pageName, tabName)
	if err != nil {
		// Session deleted mid-rollup; nothing left to aggregate.
		return nil
	}
	tabStatus := status.Aggregate(statuses)

	if err := s.store.SetTabResult(ctx, sessionID, pageName, tabName, tabStatus); err != nil {
		return err
	}
	notify.Emit(ctx, s.sink, s.logger, notify.TabStatusEvent(sessionID, pageName, tabName, tabStatus))

	s.logger.Info("Tab validated",
		zap.String("session_id", sessionID),
		zap.String("page", pageName),
		zap.String("tab", tabName),
		zap.String("status", string(tabStatus)))

	ps, ok := s.pageState(sessionID, pageName)
	if !ok {
		return nil
	}
	if ps.pendingTabs.Decrement() {
		return s.rollupPage(ctx, sessionID, pageName)
	}
	return nil
}

func (s *Service) rollupPage(ctx context.Context, sessionID, pageName string) error {
	statuses, err := s.store.ImpactingTabStatuses(ctx, sessionID, pageName)
	if err != nil {
		return nil
	}
	pageStatus := status.Aggregate(statuses)

	if err := s.store.SetPageResult(ctx, sessionID, pageName, pageStatus); err != nil {
		return err
	}
	notify.Emit(ctx, s.sink, s.logger, notify.PageStatusEvent(sessionID, pageName, pageStatus))

	s.logger.Info("Page validated",
		zap.String("session_id", sessionID),
		zap.String("page", pageName),
		zap.String("status", string(pageStatus)))

	st, ok := s.sessionState(sessionID)
	if !ok {
		return nil
	}
	if st.pendingPages.Decrement() {
		return s.finishSession(ctx, sessionID)
	}
	return nil
}

// finishSession computes the binary session verdict, persists it and
// marks the session validated. The verdict is pushed to clients only
// when the run configuration requested session-level result delivery.
func (s *Service) finishSession(ctx context.Context, sessionID string) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil
	}

	statuses, err := s.store.ImpactingPageStatuses(ctx, sessionID)
	if err != nil {
		return nil
	}
	verdict := status.AggregateSession(statuses)

	if err := s.store.SetSessionResult(ctx, sessionID, verdict); err != nil {
		return err
	}

	if sess.Config.DeliverSessionResult {
		notify.Emit(ctx, s.sink, s.logger, notify.SessionStatusEvent(sessionID, verdict))
	}

	s.logger.Info("Session validated",
		zap.String("session_id", sessionID),
		zap.String("status", string(verdict)))
	return nil
}

// SettleEmptyLevels fires the rollup edges for levels a wave armed at
// zero. A tab whose executable parameter set is empty never sees a
// Decrement, so its zero edge is raised here and the empty statuses
// aggregate to None; a page with no tabs rolls up directly.
func (s *Service) SettleEmptyLevels(ctx context.Context, sessionID, pageName string, tabParamCounts map[string]int) error {
	if len(tabParamCounts) == 0 {
		return s.rollupPage(ctx, sessionID, pageName)
	}
	for tabName, n := range tabParamCounts {
		if n > 0 {
			continue
		}
		if err := s.rollupTab(ctx, sessionID, pageName, tabName); err != nil {
			return err
		}
	}
	return nil
}

// FinishSession records the verdict for a wave that requested no pages.
// No page edge will ever fire for such a wave, so the session completes
// here instead of hanging until expiry.
func (s *Service) FinishSession(ctx context.Context, sessionID string) error {
	return s.finishSession(ctx, sessionID)
}
