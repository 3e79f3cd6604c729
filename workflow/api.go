package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/provost-labs/provost-go/internal/domain"
	"github.com/provost-labs/provost-go/internal/engine"
	"github.com/provost-labs/provost-go/internal/platform/auth"
)

type transitionExecutor interface {
	Execute(ctx context.Context, req engine.Request) (domain.TransitionResult, error)
}

type draftService interface {
	Create(ctx context.Context, actor domain.Actor, title, summary string) (domain.Proposal, error)
	Save(ctx context.Context, actor domain.Actor, patch engine.SavePatch) (domain.Proposal, error)
	Delete(ctx context.Context, actor domain.Actor, proposalID string, expectedUpdatedAt time.Time) error
	Get(ctx context.Context, proposalID string) (domain.Proposal, error)
}

type workflowLogReader interface {
	ListByProposal(ctx context.Context, proposalID string) ([]domain.WorkflowLogEntry, error)
}

type workflowAPI struct {
	logger   *slog.Logger
	executor transitionExecutor
	drafts   draftService
	logs     workflowLogReader
}

func newWorkflowAPI(logger *slog.Logger, executor transitionExecutor, drafts draftService, logs workflowLogReader) *workflowAPI {
	return &workflowAPI{
		logger:   logger,
		executor: executor,
		drafts:   drafts,
		logs:     logs,
	}
}

func (api *workflowAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /proposals", api.handleCreateProposal)
	mux.HandleFunc("GET /proposals/{proposal_id}", api.handleGetProposal)
	mux.HandleFunc("PATCH /proposals/{proposal_id}/draft", api.handleSaveDraft)
	mux.HandleFunc("DELETE /proposals/{proposal_id}", api.handleDeleteProposal)
	mux.HandleFunc("POST /proposals/{proposal_id}/transitions", api.handleTransition)
	mux.HandleFunc("GET /proposals/{proposal_id}/workflow-log", api.handleWorkflowLog)
}

type proposalView struct {
	ProposalID      string     `json:"proposal_id"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary,omitempty"`
	State           string     `json:"state"`
	OwnerID         string     `json:"owner_id"`
	FacultyID       string     `json:"faculty_id"`
	CouncilID       *string    `json:"council_id,omitempty"`
	HolderUnit      *string    `json:"holder_unit,omitempty"`
	HolderUser      *string    `json:"holder_user,omitempty"`
	SLAStartDate    *time.Time `json:"sla_start_date,omitempty"`
	SLADeadline     *time.Time `json:"sla_deadline,omitempty"`
	ActualStartDate *time.Time `json:"actual_start_date,omitempty"`
	CompletedDate   *time.Time `json:"completed_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func viewOfProposal(p domain.Proposal) proposalView {
	return proposalView{
		ProposalID:      p.ID,
		Title:           p.Title,
		Summary:         p.Summary,
		State:           string(p.State),
		OwnerID:         p.OwnerID,
		FacultyID:       p.FacultyID,
		CouncilID:       p.CouncilID,
		HolderUnit:      p.HolderUnit,
		HolderUser:      p.HolderUser,
		SLAStartDate:    p.SLAStartDate,
		SLADeadline:     p.SLADeadline,
		ActualStartDate: p.ActualStartDate,
		CompletedDate:   p.CompletedDate,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type transitionView struct {
	Proposal      proposalView `json:"proposal"`
	PreviousState string       `json:"previous_state"`
	CurrentState  string       `json:"current_state"`
	WorkflowLogID int64        `json:"workflow_log_id"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

type logEntryView struct {
	LogID             int64     `json:"log_id"`
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
	IntegritySHA256   string    `json:"integrity_sha256"`
}

type createProposalRequest struct {
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

func (api *workflowAPI) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actorFromRequest(w, r)
	if !ok {
		return
	}

	var req createProposalRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeErrorCode(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	proposal, err := api.drafts.Create(r.Context(), actor, req.Title, req.Summary)
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/proposals/"+proposal.ID)
	api.writeJSON(w, http.StatusCreated, viewOfProposal(proposal))
}

func (api *workflowAPI) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	proposalID := strings.TrimSpace(r.PathValue("proposal_id"))
	if proposalID == "" {
		api.writeErrorCode(w, r, http.StatusBadRequest, "proposal_id_required", "proposal id is required")
		return
	}

	proposal, err := api.drafts.Get(r.Context(), proposalID)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, viewOfProposal(proposal))
}

type saveDraftRequest struct {
	Title             *string   `json:"title,omitempty"`
	Summary           *string   `json:"summary,omitempty"`
	ExpectedUpdatedAt time.Time `json:"expected_updated_at"`
}

func (api *workflowAPI) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	proposalID := strings.TrimSpace(r.PathValue("proposal_id"))
	if proposalID == "" {
		api.writeErrorCode(w, r, http.StatusBadRequest, "proposal_id_required", "proposal id is required")
		return
	}
	actor, ok := api.actorFromRequest(w, r)
	if !ok {
		return
	}

	var req saveDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeErrorCode(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.ExpectedUpdatedAt.IsZero() {
		api.writeErrorCode(w, r, http.StatusBadRequest, "expected_updated_at_required",
			"expected_updated_at is required for optimistic concurrency")
		return
	}

	proposal, err := api.drafts.Save(r.Context(), actor, engine.SavePatch{
		ProposalID:        proposalID,
		Title:             req.Title,
		Summary:           req.Summary,
		ExpectedUpdatedAt: req.ExpectedUpdatedAt,
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, viewOfProposal(proposal))
}

func (api *workflowAPI) handleDeleteProposal(w http.ResponseWriter, r *http.Request) {
	proposalID := strings.TrimSpace(r.PathValue("proposal_id"))
	if proposalID == "" {
		api.writeErrorCode(w, r, http.StatusBadRequest, "proposal_id_required", "proposal id is required")
		return
	}
	actor, ok := api.actorFromRequest(w, r)
	if !ok {
		return
	}

	expectedRaw := strings.TrimSpace(r.URL.Query().Get("expected_updated_at"))
	if expectedRaw == "" {
		api.writeErrorCode(w, r, http.StatusBadRequest, "expected_updated_at_required",
			"expected_updated_at query parameter is required")
		return
	}
	expected, err := time.Parse(time.RFC3339Nano, expectedRaw)
	if err != nil {
		api.writeErrorCode(w, r, http.StatusBadRequest, "invalid_expected_updated_at", err.Error())
		return
	}

	if err := api.drafts.Delete(r.Context(), actor, proposalID, expected); err != nil {
		api.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Action     string `json:"action"`
	Comment    string `json:"comment,omitempty"`
	ReasonCode string `json:"reason_code,omitempty"`
	CouncilID  string `json:"council_id,omitempty"`
}

func (api *workflowAPI) handleTransition(w http.ResponseWriter, r *http.Request) {
	proposalID := strings.TrimSpace(r.PathValue("proposal_id"))
	if proposalID == "" {
		api.writeErrorCode(w, r, http.StatusBadRequest, "proposal_id_required", "proposal id is required")
		return
	}
	actor, ok := api.actorFromRequest(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeErrorCode(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		api.writeErrorCode(w, r, http.StatusBadRequest, "action_required", "action is required")
		return
	}

	result, err := api.executor.Execute(r.Context(), engine.Request{
		ProposalID:     proposalID,
		Action:         domain.Action(strings.ToUpper(strings.TrimSpace(req.Action))),
		Actor:          actor,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		Payload: engine.ActionPayload{
			CouncilID:  req.CouncilID,
			Comment:    req.Comment,
			ReasonCode: req.ReasonCode,
		},
		Meta: domain.RequestMeta{
			RequestID: r.Header.Get("X-Request-Id"),
			IP:        requestIP(r.RemoteAddr),
			UserAgent: r.UserAgent(),
		},
	})
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	api.writeJSON(w, http.StatusOK, transitionView{
		Proposal:      viewOfProposal(result.Proposal),
		PreviousState: string(result.PreviousState),
		CurrentState:  string(result.CurrentState),
		WorkflowLogID: result.WorkflowLogID,
		OccurredAt:    result.OccurredAt,
	})
}

func (api *workflowAPI) handleWorkflowLog(w http.ResponseWriter, r *http.Request) {
	proposalID := strings.TrimSpace(r.PathValue("proposal_id"))
	if proposalID == "" {
		api.writeErrorCode(w, r, http.StatusBadRequest, "proposal_id_required", "proposal id is required")
		return
	}

	// The proposal must exist and not be soft-deleted before its trail is
	// readable.
	if _, err := api.drafts.Get(r.Context(), proposalID); err != nil {
		api.writeError(w, r, err)
		return
	}

	entries, err := api.logs.ListByProposal(r.Context(), proposalID)
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	out := make([]logEntryView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, logEntryView{
			LogID:             entry.ID,
			ProposalID:        entry.ProposalID,
			Action:            string(entry.Action),
			FromState:         string(entry.FromState),
			ToState:           string(entry.ToState),
			ActorID:           entry.ActorID,
			ActorRole:         entry.ActorRole,
			OccurredAt:        entry.OccurredAt,
			Comment:           entry.Comment,
			ReasonCode:        entry.ReasonCode,
			ReturnTargetState: string(entry.ReturnTargetState),
			RequestID:         entry.RequestID,
			IntegritySHA256:   entry.IntegritySHA256,
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (api *workflowAPI) actorFromRequest(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", "caller identity is missing")
		return domain.Actor{}, false
	}
	return domain.Actor{
		ID:        identity.Subject,
		Role:      identity.Role,
		FacultyID: identity.FacultyID,
	}, true
}

// statusForCode maps engine error codes to HTTP statuses. Both transition
// and auto-save conflicts land on 409.
func statusForCode(code domain.Code) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidTransition:
		return http.StatusConflict
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodePreconditionFailed:
		return http.StatusUnprocessableEntity
	case domain.CodeAlreadyProcessing:
		return http.StatusConflict
	case domain.CodeConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (api *workflowAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := statusForCode(code)

	message := ""
	var coded *domain.Error
	if errors.As(err, &coded) {
		message = coded.Message
	}
	if status == http.StatusInternalServerError {
		api.logger.Error("request failed",
			"request_id", r.Header.Get("X-Request-Id"),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		message = ""
	}

	body := map[string]any{
		"error":      string(code),
		"request_id": r.Header.Get("X-Request-Id"),
	}
	if message != "" {
		body["message"] = message
	}
	api.writeJSON(w, status, body)
}

func (api *workflowAPI) writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	body := map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	}
	if message != "" {
		body["message"] = message
	}
	api.writeJSON(w, status, body)
}

func (api *workflowAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func requestIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return net.ParseIP(remoteAddr)
	}
	return net.ParseIP(host)
}
