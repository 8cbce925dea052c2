// Package execution runs individual parameters and drives the
// completion-counting protocol that triggers bottom-up rollup as
// parameters finish, including asynchronous ones reconciled later
// through arrival callbacks.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Argus/pkg/compare"
	"github.com/wehubfusion/Argus/pkg/connector"
	"github.com/wehubfusion/Argus/pkg/deferred"
	sdkerrors "github.com/wehubfusion/Argus/pkg/errors"
	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/notify"
	"github.com/wehubfusion/Argus/pkg/search"
	"github.com/wehubfusion/Argus/pkg/status"
	"github.com/wehubfusion/Argus/pkg/store"
)

// DetailOffloader moves oversized validation-detail payloads out of the
// parameter record before it is published and persisted.
type DetailOffloader interface {
	OffloadDetail(ctx context.Context, p *model.Parameter)
}

// Service is the parameter execution unit plus the rollup machinery
// behind it. One Service instance serves every session on this worker.
type Service struct {
	store      store.Store
	connectors *connector.Registry
	comparer   compare.Engine
	cache      *deferred.Cache
	sink       notify.Sink
	offloader  DetailOffloader
	logger     *zap.Logger
	tracer     trace.Tracer

	state sync.Map // sessionID -> *sessionState
}

// NewService wires the execution unit. offloader may be nil. The
// service registers itself as the cache's eviction handler.
func NewService(st store.Store, connectors *connector.Registry, comparer compare.Engine, cache *deferred.Cache, sink notify.Sink, offloader DetailOffloader, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	s := &Service{
		store:      st,
		connectors: connectors,
		comparer:   comparer,
		cache:      cache,
		sink:       sink,
		offloader:  offloader,
		logger:     logger,
		tracer:     otel.Tracer("argus/execution"),
	}
	if cache != nil {
		cache.SetHandler(s)
	}
	return s
}

// Execute resolves one parameter's actual result, validates it and
// reports completion. Connector and variable failures never propagate:
// they become error-result values so the hierarchy always holds some
// terminal value. Only persistence failures are returned.
//
// When the connector defers to an asynchronous search, the unit parks
// itself in the deferred cache and returns without decrementing any
// counter; OnArrival finishes the work later.
func (s *Service) Execute(ctx context.Context, def model.ParameterDefinition, param *model.Parameter) error {
	ctx, span := s.tracer.Start(ctx, "execution.Execute",
		trace.WithAttributes(
			attribute.String("session.id", param.SessionID),
			attribute.String("parameter.path", param.Path),
			attribute.String("engine.type", def.EngineType),
		))
	defer span.End()

	st, ok := s.sessionState(param.SessionID)
	if !ok {
		// Session killed before this parameter started; discard.
		span.SetStatus(codes.Error, "session state missing")
		return nil
	}

	sess, err := s.store.GetSession(ctx, param.SessionID)
	if err != nil {
		span.SetStatus(codes.Error, "session record missing")
		return nil
	}

	sourceSpec, err := st.vars.Resolve(def.SourceSpec)
	if err != nil {
		// Unresolved placeholder fails this parameter only.
		param.Status = status.Failed
		param.ErrorText = err.Error()
		return s.finish(ctx, def, param)
	}

	conn, err := s.connectors.Get(def.EngineType)
	if err != nil {
		param.Status = status.Failed
		param.ErrorText = err.Error()
		return s.finish(ctx, def, param)
	}

	res, fetchErr := conn.Fetch(ctx, sourceSpec, sess.Config.SearchWindow)
	if fetchErr != nil {
		span.RecordError(fetchErr)
		s.logger.Warn("Connector fetch failed",
			zap.String("session_id", param.SessionID),
			zap.String("parameter_path", param.Path),
			zap.String("engine_type", def.EngineType),
			zap.Error(fetchErr))
		s.applyConnectorFailure(param, res, fetchErr)
		return s.validate(ctx, def, param, true)
	}

	if res.IsDeferred() {
		param.Status = status.InProgress
		param.Async = true
		s.cache.Store(deferred.Entry{
			RequestID:  res.Deferred.RequestID,
			SearchID:   res.Deferred.SearchID,
			SessionID:  param.SessionID,
			Parameter:  param,
			Definition: def,
			StartedAt:  time.Now(),
		})
		// No counter decrement: the arrival callback or an eviction
		// sweep finishes this parameter.
		return nil
	}

	param.ActualResults = res.Values
	param.LogErrorText = res.LogErrors
	return s.validate(ctx, def, param, false)
}

// OnArrival re-enters a deferred parameter when its search result
// arrives. A request id that is no longer cached was already evicted
// by a racing sweep; the arrival is silently dropped.
func (s *Service) OnArrival(ctx context.Context, arrival search.Arrival) error {
	entry, ok := s.cache.Evict(arrival.RequestID)
	if !ok {
		s.logger.Debug("Arrival for unknown or evicted request",
			zap.String("request_id", arrival.RequestID))
		return nil
	}

	param := entry.Parameter
	if arrival.Error != "" {
		s.applyConnectorFailure(param, connector.Result{AuxMessage: arrival.Error},
			fmt.Errorf("search failed: %s", arrival.Error))
		return s.validate(ctx, entry.Definition, param, true)
	}

	param.ActualResults = arrival.Values
	param.LogErrorText = arrival.LogErrors
	return s.validate(ctx, entry.Definition, param, false)
}

// HandleEvicted finishes a deferred parameter whose entry was evicted
// by a kill or expiry sweep: synthesize a WARNING result carrying the
// reason, clear partial actuals, notify and roll up.
func (s *Service) HandleEvicted(ctx context.Context, entry deferred.Entry, reason string) {
	param := entry.Parameter
	param.ActualResults = nil
	param.Status = status.Warning
	param.ErrorText = reason

	if err := s.finish(ctx, entry.Definition, param); err != nil {
		s.logger.Error("Failed to finish evicted parameter",
			zap.String("session_id", param.SessionID),
			zap.String("parameter_path", param.Path),
			zap.Error(err))
	}
}

// applyConnectorFailure converts a connector error into an error-result
// value, preserving the connector's auxiliary diagnostic.
func (s *Service) applyConnectorFailure(param *model.Parameter, res connector.Result, err error) {
	param.ActualResults = []string{fmt.Sprintf("ERROR: %v", err)}
	if res.AuxMessage != "" {
		param.ErrorText = res.AuxMessage
	} else {
		param.ErrorText = err.Error()
	}
}

// validate resolves the expected result if the parameter is not a pure
// observation, runs the compare engine and finishes the parameter.
func (s *Service) validate(ctx context.Context, def model.ParameterDefinition, param *model.Parameter, connectorFailed bool) error {
	if def.Observation {
		// Pure observations carry no verdict and stay out of rollup.
		param.Status = status.None
		return s.finish(ctx, def, param)
	}

	if err := s.resolveExpected(ctx, def, param, &connectorFailed); err != nil {
		param.Status = status.Failed
		param.ErrorText = err.Error()
		return s.finish(ctx, def, param)
	}

	switch {
	case connectorFailed:
		param.Status = status.Warning
	case param.LogErrorText != "":
		param.Status = status.LCWarning
	default:
		outcome, err := s.comparer.Compare(ctx, param.Expected, param.ActualResults, def.Ruleset)
		if err != nil {
			param.Status = status.Failed
			param.ErrorText = err.Error()
		} else {
			param.Status = outcome.Status
			if len(outcome.Diffs) > 0 {
				param.Detail = &model.ValidationDetail{Diffs: outcome.Diffs}
			}
		}
	}
	return s.finish(ctx, def, param)
}

// resolveExpected fills param.Expected from the literal value or a
// second connector call. Connector failures on the expected side are
// recovered the same way as on the actual side.
func (s *Service) resolveExpected(ctx context.Context, def model.ParameterDefinition, param *model.Parameter, connectorFailed *bool) error {
	st, ok := s.sessionState(param.SessionID)
	if !ok {
		return nil
	}

	if def.ExpectedLiteral != "" || def.ExpectedSpec == "" {
		expected, err := st.vars.Resolve(def.ExpectedLiteral)
		if err != nil {
			return err
		}
		param.Expected = expected
		return nil
	}

	spec, err := st.vars.Resolve(def.ExpectedSpec)
	if err != nil {
		return err
	}

	sess, err := s.store.GetSession(ctx, param.SessionID)
	if err != nil {
		return nil
	}
	conn, err := s.connectors.Get(def.EngineType)
	if err != nil {
		return err
	}

	res, fetchErr := conn.Fetch(ctx, spec, sess.Config.SearchWindow)
	if fetchErr != nil {
		*connectorFailed = true
		if res.AuxMessage != "" {
			param.ErrorText = res.AuxMessage
		} else {
			param.ErrorText = fetchErr.Error()
		}
		return nil
	}
	if len(res.Values) > 0 {
		param.Expected = res.Values[0]
	}
	return nil
}

// finish publishes the parameter's terminal value, persists it,
// decrements the owning tab's counter and triggers rollup on the
// reached-zero edge. Persistence failures are fatal and surfaced.
func (s *Service) finish(ctx context.Context, def model.ParameterDefinition, param *model.Parameter) error {
	if st, ok := s.sessionState(param.SessionID); ok {
		if def.VariableName != "" && len(param.ActualResults) > 0 && param.Status != status.Failed {
			st.vars.Put(def.VariableName, param.ActualResults[0])
		}
	}

	if s.offloader != nil && param.Detail != nil {
		s.offloader.OffloadDetail(ctx, param)
	}

	notify.Emit(ctx, s.sink, s.logger, notify.ParameterResultEvent(param))

	if err := s.store.SaveParameter(ctx, param); err != nil {
		return sdkerrors.NewFatalError("PARAMETER_PERSIST_FAILED",
			fmt.Sprintf("failed to persist parameter %s", param.Path), err)
	}

	s.logger.Debug("Parameter finished",
		zap.String("session_id", param.SessionID),
		zap.String("parameter_path", param.Path),
		zap.String("status", string(param.Status)))

	return s.completeParameter(ctx, param.SessionID, param.PageName, param.TabName)
}

// completeParameter decrements the tab counter; the single caller that
// observes the zero edge runs the tab rollup.
func (s *Service) completeParameter(ctx context.Context, sessionID, pageName, tabName string) error {
	ts, ok := s.tabState(sessionID, pageName, tabName)
	if !ok {
		return nil
	}
	if ts.pendingParams.Decrement() {
		return s.rollupTab(ctx, sessionID, pageName, tabName)
	}
	return nil
}
