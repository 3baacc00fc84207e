package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kinhelp.org/internal/care"
)

type applicationRequest struct {
	Motivation string `json:"motivation"`
}

type registerVolunteerRequest struct {
	VolunteerID string `json:"volunteer_id"`
}

type moodRequest struct {
	Mood int    `json:"mood"`
	Note string `json:"note"`
}

// --- volunteer applications ---

func (a *API) submitApplication(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var req applicationRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.svc.SubmitApplication(r.Context(), act, req.Motivation)
	writeResult(w, r, http.StatusCreated, rec, err)
}

func (a *API) listApplications(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	limit, ok := listLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, err := care.Collect(a.svc.ListApplications(r.Context(), act, care.ApplicationFilter{
		Status:      care.ApplicationStatus(q.Get("status")),
		ApplicantID: q.Get("applicant_id"),
		Limit:       limit,
	}))
	writeList(w, r, items, err)
}

func (a *API) getApplication(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.GetApplication(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}

func (a *API) approveApplication(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.ApproveVolunteer(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}

func (a *API) rejectApplication(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.svc.RejectVolunteer(r.Context(), act, chi.URLParam(r, "id"), req.Reason)
	writeResult(w, r, http.StatusOK, rec, err)
}

// --- volunteers ---

func (a *API) registerVolunteer(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var req registerVolunteerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.svc.RegisterVolunteer(r.Context(), act, req.VolunteerID)
	writeResult(w, r, http.StatusCreated, rec, err)
}

func (a *API) getVolunteer(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.GetVolunteer(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}

// --- notifications ---

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	limit, ok := listLimit(w, r)
	if !ok {
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	items, err := care.Collect(a.svc.ListNotifications(r.Context(), act, unread, limit))
	writeList(w, r, items, err)
}

func (a *API) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	rec, err := a.svc.MarkNotificationRead(r.Context(), act, chi.URLParam(r, "id"))
	writeResult(w, r, http.StatusOK, rec, err)
}

// --- mood logs ---

func (a *API) logMood(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	var req moodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.svc.LogMood(r.Context(), act, req.Mood, req.Note)
	writeResult(w, r, http.StatusCreated, rec, err)
}

func (a *API) listMoodLogs(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(w, r)
	if !ok {
		return
	}
	limit, ok := listLimit(w, r)
	if !ok {
		return
	}
	seq, err := a.svc.ListMoodLogs(r.Context(), act, care.MoodFilter{
		SeniorID: r.URL.Query().Get("senior_id"),
		Limit:    limit,
	})
	if err != nil {
		handleCareError(w, r, err)
		return
	}
	items, err := care.Collect(seq)
	writeList(w, r, items, err)
}
