package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/provost-labs/provost-go/internal/domain"
	"github.com/provost-labs/provost-go/internal/idempotency"
	"github.com/provost-labs/provost-go/internal/platform/metrics"
	"github.com/provost-labs/provost-go/internal/repo"
	"github.com/provost-labs/provost-go/internal/rules"
)

// Request is one transition request as received from the transport layer.
type Request struct {
	ProposalID     string
	Action         domain.Action
	Actor          domain.Actor
	IdempotencyKey string
	Payload        ActionPayload
	Meta           domain.RequestMeta
}

// Executor orchestrates a transition: idempotency guard, row-locked load,
// validation, holder/SLA resolution, proposal mutation, and audit append,
// all inside one transaction.
type Executor struct {
	tx        repo.TxRunner
	guard     *idempotency.Guard
	validator *Validator
	resolver  *Resolver
	logger    *slog.Logger
	metrics   *metrics.Engine
	now       func() time.Time
}

func NewExecutor(tx repo.TxRunner, guard *idempotency.Guard, validator *Validator, resolver *Resolver, logger *slog.Logger, m *metrics.Engine) *Executor {
	if tx == nil || guard == nil || validator == nil || resolver == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		tx:        tx,
		guard:     guard,
		validator: validator,
		resolver:  resolver,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Execute runs one transition with at-most-one effect per idempotency key.
func (e *Executor) Execute(ctx context.Context, req Request) (domain.TransitionResult, error) {
	if e == nil {
		return domain.TransitionResult{}, errors.New("executor not initialized")
	}
	if strings.TrimSpace(req.ProposalID) == "" {
		return domain.TransitionResult{}, domain.NewError(domain.CodeNotFound, "proposal id is required")
	}

	start := e.now()
	ticket, cached, err := e.guard.Begin(ctx, req.IdempotencyKey, string(req.Action), req.Actor.ID)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeAlreadyProcessing {
			e.metrics.Conflict()
		}
		return domain.TransitionResult{}, err
	}
	if ticket == nil {
		var result domain.TransitionResult
		if err := json.Unmarshal(cached, &result); err != nil {
			return domain.TransitionResult{}, fmt.Errorf("decode cached result: %w", err)
		}
		e.metrics.Replay()
		e.logger.Info("transition replayed from idempotency cache",
			"proposal_id", req.ProposalID,
			"action", req.Action,
			"actor_id", req.Actor.ID,
			"request_id", req.Meta.RequestID,
		)
		return result, nil
	}

	var result domain.TransitionResult
	txErr := e.tx.InTx(ctx, func(ctx context.Context, s repo.Stores) error {
		proposal, err := s.Proposals().GetForUpdate(ctx, req.ProposalID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.NewError(domain.CodeNotFound, "proposal %s not found", req.ProposalID)
			}
			return fmt.Errorf("load proposal: %w", err)
		}
		if proposal.Deleted {
			return domain.NewError(domain.CodeNotFound, "proposal %s not found", req.ProposalID)
		}

		rule, err := e.validator.Validate(proposal, req.Action, req.Actor, req.Payload)
		if err != nil {
			return err
		}
		assignment, err := e.resolver.Resolve(ctx, rule, proposal, req.Payload, e.now())
		if err != nil {
			return err
		}

		now := e.now().UTC()
		previous := proposal.State
		proposal.State = rule.To
		proposal.HolderUnit = assignment.HolderUnit
		proposal.HolderUser = assignment.HolderUser
		proposal.SLAStartDate = assignment.SLAStartDate
		proposal.SLADeadline = assignment.SLADeadline
		if rule.Holder == rules.HolderActionCouncil {
			council := strings.TrimSpace(req.Payload.CouncilID)
			proposal.CouncilID = &council
		}
		if rule.MarksActualStart && proposal.ActualStartDate == nil {
			proposal.ActualStartDate = &now
		}
		if rule.MarksCompleted && proposal.CompletedDate == nil {
			proposal.CompletedDate = &now
		}
		proposal.UpdatedAt = now

		if err := s.Proposals().Update(ctx, proposal); err != nil {
			return fmt.Errorf("persist proposal: %w", err)
		}

		entry := domain.WorkflowLogEntry{
			ProposalID: proposal.ID,
			Action:     req.Action,
			FromState:  previous,
			ToState:    proposal.State,
			ActorID:    req.Actor.ID,
			ActorRole:  req.Actor.Role,
			OccurredAt: now,
			Comment:    req.Payload.Comment,
			ReasonCode: req.Payload.ReasonCode,
			RequestID:  req.Meta.RequestID,
			IP:         req.Meta.IP,
			UserAgent:  req.Meta.UserAgent,
		}
		if rule.Return {
			entry.ReturnTargetState = rule.To
		}
		logID, err := s.WorkflowLog().Append(ctx, entry)
		if err != nil {
			return fmt.Errorf("append workflow log: %w", err)
		}

		result = domain.TransitionResult{
			Proposal:      proposal,
			PreviousState: previous,
			CurrentState:  proposal.State,
			HolderUnit:    proposal.HolderUnit,
			HolderUser:    proposal.HolderUser,
			WorkflowLogID: logID,
			OccurredAt:    now,
		}
		return nil
	})
	if txErr != nil {
		if rbErr := ticket.Rollback(ctx); rbErr != nil {
			e.logger.Error("idempotency rollback failed",
				"proposal_id", req.ProposalID,
				"request_id", req.Meta.RequestID,
				"error", rbErr,
			)
		}
		e.metrics.Denial(string(domain.CodeOf(txErr)))
		var coded *domain.Error
		if errors.As(txErr, &coded) {
			return domain.TransitionResult{}, txErr
		}
		e.logger.Error("transition failed",
			"proposal_id", req.ProposalID,
			"action", req.Action,
			"request_id", req.Meta.RequestID,
			"error", txErr,
		)
		return domain.TransitionResult{}, domain.NewError(domain.CodeInternal, "transition failed")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		payload = nil
	}
	if err := ticket.Commit(ctx, payload); err != nil {
		// The transition is committed; the record stays in-flight until the
		// lease reclaims it, so only replay caching is degraded.
		e.logger.Warn("idempotency commit failed",
			"proposal_id", req.ProposalID,
			"request_id", req.Meta.RequestID,
			"error", err,
		)
	}

	e.metrics.Transition(string(req.Action), string(result.CurrentState), e.now().Sub(start).Seconds())
	e.logger.Info("transition executed",
		"proposal_id", req.ProposalID,
		"action", req.Action,
		"from", result.PreviousState,
		"to", result.CurrentState,
		"actor_id", req.Actor.ID,
		"request_id", req.Meta.RequestID,
		"workflow_log_id", result.WorkflowLogID,
	)
	return result, nil
}
