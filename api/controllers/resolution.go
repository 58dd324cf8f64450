package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baselhussain/ketoplan-backend/api/middleware"
	"github.com/baselhussain/ketoplan-backend/api/responses"
	"github.com/baselhussain/ketoplan-backend/api/validators"
	"github.com/baselhussain/ketoplan-backend/internal/resolution"
	"github.com/baselhussain/ketoplan-backend/pkg/db/models"
	pkgerrors "github.com/baselhussain/ketoplan-backend/pkg/errors"
	"github.com/baselhussain/ketoplan-backend/pkg/logger"
)

const maxResolutionPageSize = 100

type resolutionEntryView struct {
	ID          uuid.UUID  `json:"id"`
	PaymentID   string     `json:"payment_id"`
	Email       string     `json:"email"`
	IssueType   string     `json:"issue_type"`
	Status      string     `json:"status"`
	SLADeadline time.Time  `json:"sla_deadline"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

type resolutionListView struct {
	Entries       []resolutionEntryView `json:"entries"`
	NextCursor    string                `json:"next_cursor,omitempty"`
	PendingCount  int64                 `json:"pending_count"`
	BreachedCount int64                 `json:"breached_count"`
}

func entryView(entry models.ResolutionEntry) resolutionEntryView {
	return resolutionEntryView{
		ID:          entry.ID,
		PaymentID:   entry.PaymentID,
		Email:       entry.Email,
		IssueType:   entry.IssueType.String(),
		Status:      entry.Status.String(),
		SLADeadline: entry.SLADeadline,
		CreatedAt:   entry.CreatedAt,
		ResolvedAt:  entry.ResolvedAt,
		Assignee:    entry.Assignee,
		Notes:       entry.Notes,
	}
}

// ResolutionList returns the manual-resolution queue ordered by SLA urgency.
func ResolutionList(svc resolution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resolution service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, maxResolutionPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), resolution.ListQuery{
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view := resolutionListView{
			Entries:       make([]resolutionEntryView, 0, len(result.Entries)),
			NextCursor:    result.NextCursor,
			PendingCount:  result.PendingCount,
			BreachedCount: result.BreachedCount,
		}
		for _, entry := range result.Entries {
			view.Entries = append(view.Entries, entryView(entry))
		}
		responses.WriteSuccess(w, view)
	}
}

// ResolutionClaim marks an entry in progress under the calling operator.
func ResolutionClaim(svc resolution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resolution service unavailable"))
			return
		}

		id, err := entryID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.MarkInProgress(r.Context(), id, middleware.AdminSubjectFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entryView(*entry))
	}
}

type resolveRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// ResolutionResolve closes an active entry. Terminal entries reject the
// mutation with a state conflict.
func ResolutionResolve(svc resolution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resolution service unavailable"))
			return
		}

		id, err := entryID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body resolveRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		entry, err := svc.Resolve(r.Context(), id, middleware.AdminSubjectFromContext(r.Context()), body.Notes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entryView(*entry))
	}
}

func entryID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "entryId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry id")
	}
	return id, nil
}
