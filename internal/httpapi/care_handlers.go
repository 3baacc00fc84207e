package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kinhelp.org/internal/care"
)

type createHelpRequest struct {
	SeniorID    string        `json:"senior_id"`
	Category    string        `json:"category"`
	Priority    care.Priority `json:"priority"`
	Description string        `json:"description"`
}

type assignRequest struct {
	VolunteerID string `json:"volunteer_id"`
}

type createSOSRequest struct {
	SeniorID string `json:"senior_id"`
	Message  string `json:"message"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// --- help requests ---

func (a *API) createHelpRequest(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var req createHelpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.svc.CreateHelpRequest(r.Context(), act, req.SeniorID, care.NewHelpRequest{
		Category:    req.Category,
		Priority:    req.Priority,
		Description: req.Description,
	})
	writeResult(w, r, http.StatusCreated, rec, err)
}

func (a *API) listHelpRequests(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	limit, ok := listLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, err := care.Collect(a.svc.ListHelpRequests(r.Context(), act, care.HelpRequestFilter{
		Status:     care.HelpStatus(q.Get("status")),
		SeniorID:   q.Get("senior_id"),
		AssignedTo: q.Get("assigned_to"),
		Limit:      limit,
	}))
	writeList(w, r, items, err)
}

func (a *API) getHelpRequest(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.GetHelpRequest(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}

func (a *API) removeHelpRequest(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	if err := a.svc.RemoveRequest(r.Context(), act, chi.URLParam(r, "id")); err != nil {
		handleCareError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) acceptHelpRequest(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.AcceptRequest(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}

func (a *API) assignHelpRequest(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.svc.AssignRequest(r.Context(), act, chi.URLParam(r, "id"), req.VolunteerID)
	writeResult(w, r, http.StatusOK, rec, err)
}

func (a *API) unassignHelpRequest(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.UnassignRequest(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}

func (a *API) completeHelpRequest(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.CompleteRequest(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}

// --- SOS ---

func (a *API) createSOS(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var req createSOSRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.svc.CreateSOSAlert(r.Context(), act, req.SeniorID, req.Message)
	writeResult(w, r, http.StatusCreated, rec, err)
}

func (a *API) listSOS(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	limit, ok := listLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, err := care.Collect(a.svc.ListSOSAlerts(r.Context(), act, care.SOSFilter{
		Status:   care.SOSStatus(q.Get("status")),
		SeniorID: q.Get("senior_id"),
		Limit:    limit,
	}))
	writeList(w, r, items, err)
}

func (a *API) getSOS(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.GetSOSAlert(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}

func (a *API) acknowledgeSOS(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.AcknowledgeSOS(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}

func (a *API) escalateSOS(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.svc.EscalateSOS(r.Context(), act, chi.URLParam(r, "id"), req.Reason)
	writeResult(w, r, http.StatusOK, rec, err)
}

func (a *API) resolveSOS(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.ResolveSOS(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}
