package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/provost-labs/provost-go/internal/domain"
)

// WorkflowLogStore is the append-only audit trail. Entries are never
// updated or deleted.
type WorkflowLogStore struct {
	db DB
}

func NewWorkflowLogStore(db DB) *WorkflowLogStore {
	if db == nil {
		return nil
	}
	return &WorkflowLogStore{db: db}
}

func (s *WorkflowLogStore) Append(ctx context.Context, entry domain.WorkflowLogEntry) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("workflow log store not initialized")
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}

	integrity, err := computeIntegritySHA256(entry)
	if err != nil {
		return 0, err
	}
	var ip sql.NullString
	if ipStr := entry.IP.String(); ipStr != "" && ipStr != "<nil>" {
		ip = sql.NullString{String: ipStr, Valid: true}
	}

	var id int64
	err = s.db.QueryRowContext(
		ctx,
		`INSERT INTO workflow_log (
			proposal_id,
			action,
			from_state,
			to_state,
			actor_id,
			actor_role,
			occurred_at,
			comment,
			reason_code,
			return_target_state,
			request_id,
			ip,
			user_agent,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING log_id`,
		strings.TrimSpace(entry.ProposalID),
		string(entry.Action),
		string(entry.FromState),
		string(entry.ToState),
		strings.TrimSpace(entry.ActorID),
		strings.TrimSpace(entry.ActorRole),
		entry.OccurredAt.UTC(),
		nullIfEmpty(entry.Comment),
		nullIfEmpty(entry.ReasonCode),
		nullIfEmpty(string(entry.ReturnTargetState)),
		nullIfEmpty(entry.RequestID),
		ip,
		nullIfEmpty(entry.UserAgent),
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert workflow log entry: %w", err)
	}
	return id, nil
}

// ListByProposal returns the proposal's transitions ordered by occurrence,
// insertion sequence breaking ties.
func (s *WorkflowLogStore) ListByProposal(ctx context.Context, proposalID string) ([]domain.WorkflowLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("workflow log store not initialized")
	}
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return nil, fmt.Errorf("proposal id is required")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT log_id, proposal_id, action, from_state, to_state, actor_id, actor_role,
			occurred_at, comment, reason_code, return_target_state, request_id, ip, user_agent,
			integrity_sha256
		 FROM workflow_log
		 WHERE proposal_id = $1
		 ORDER BY occurred_at ASC, log_id ASC`,
		proposalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list workflow log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.WorkflowLogEntry
	for rows.Next() {
		var (
			entry        domain.WorkflowLogEntry
			action       string
			fromState    string
			toState      string
			comment      sql.NullString
			reasonCode   sql.NullString
			returnTarget sql.NullString
			requestID    sql.NullString
			ip           sql.NullString
			userAgent    sql.NullString
		)
		if err := rows.Scan(
			&entry.ID, &entry.ProposalID, &action, &fromState, &toState, &entry.ActorID, &entry.ActorRole,
			&entry.OccurredAt, &comment, &reasonCode, &returnTarget, &requestID, &ip, &userAgent,
			&entry.IntegritySHA256,
		); err != nil {
			return nil, fmt.Errorf("scan workflow log entry: %w", err)
		}
		entry.Action = domain.Action(action)
		entry.FromState = domain.State(fromState)
		entry.ToState = domain.State(toState)
		entry.OccurredAt = entry.OccurredAt.UTC()
		if comment.Valid {
			entry.Comment = comment.String
		}
		if reasonCode.Valid {
			entry.ReasonCode = reasonCode.String
		}
		if returnTarget.Valid {
			entry.ReturnTargetState = domain.State(returnTarget.String)
		}
		if requestID.Valid {
			entry.RequestID = requestID.String
		}
		if ip.Valid {
			entry.IP = parseIP(ip.String)
		}
		if userAgent.Valid {
			entry.UserAgent = userAgent.String
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workflow log: %w", err)
	}
	return out, nil
}

func computeIntegritySHA256(entry domain.WorkflowLogEntry) (string, error) {
	type integrityInput struct {
		ProposalID        string    `json:"proposal_id"`
		Action            string    `json:"action"`
		FromState         string    `json:"from_state"`
		ToState           string    `json:"to_state"`
		ActorID           string    `json:"actor_id"`
		ActorRole         string    `json:"actor_role"`
		OccurredAt        time.Time `json:"occurred_at"`
		Comment           string    `json:"comment,omitempty"`
		ReasonCode        string    `json:"reason_code,omitempty"`
		ReturnTargetState string    `json:"return_target_state,omitempty"`
		RequestID         string    `json:"request_id,omitempty"`
	}
	blob, err := json.Marshal(integrityInput{
		ProposalID:        strings.TrimSpace(entry.ProposalID),
		Action:            string(entry.Action),
		FromState:         string(entry.FromState),
		ToState:           string(entry.ToState),
		ActorID:           strings.TrimSpace(entry.ActorID),
		ActorRole:         strings.TrimSpace(entry.ActorRole),
		OccurredAt:        entry.OccurredAt.UTC(),
		Comment:           entry.Comment,
		ReasonCode:        entry.ReasonCode,
		ReturnTargetState: string(entry.ReturnTargetState),
		RequestID:         strings.TrimSpace(entry.RequestID),
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
