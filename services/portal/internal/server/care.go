package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"healthconnect/services/portal/internal/app"
)

type complaintRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// refillDate accepts "2006-01-02" or an RFC 3339 timestamp.
type refillDate struct {
	time.Time
}

func (d *refillDate) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return errors.New("date must be YYYY-MM-DD")
	}
	d.Time = t
	return nil
}

type refillRequest struct {
	MedicationName   *string     `json:"medicationName"`
	Dosage           *string     `json:"dosage"`
	FrequencyDays    *int        `json:"frequencyDays"`
	NextRefillDate   *refillDate `json:"nextRefillDate"`
	RemindDaysBefore *int        `json:"remindDaysBefore"`
	Active           *bool       `json:"active"`
}

type alertRequest struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Severity string   `json:"severity"`
	Regions  []string `json:"regions"`
}

// complaints

func (s *Server) handleComplaints(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.app.ListMyComplaints(actor)
		if err != nil {
			s.writeAppError(w, r, "list complaints failed", err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		in, closeFile, ok := s.complaintInput(w, r)
		if !ok {
			return
		}
		defer closeFile()
		c, err := s.app.FileComplaint(r.Context(), actor, in)
		if err != nil {
			s.writeAppError(w, r, "file complaint failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	default:
		methodNotAllowed(w)
	}
}

// complaintInput reads a JSON body, or a multipart form with an optional
// "file" attachment.
func (s *Server) complaintInput(w http.ResponseWriter, r *http.Request) (app.ComplaintInput, func(), bool) {
	noop := func() {}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req complaintRequest
		if !decodeJSON(w, r, &req) {
			return app.ComplaintInput{}, noop, false
		}
		return app.ComplaintInput{Subject: req.Subject, Description: req.Description, Category: req.Category}, noop, true
	}
	if !s.parseMultipart(w, r) {
		return app.ComplaintInput{}, noop, false
	}
	in := app.ComplaintInput{
		Subject:     r.FormValue("subject"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
	}
	upload, closeFile, ok := formUpload(r)
	if ok {
		in.Attachment = upload
	}
	return in, closeFile, true
}

func (s *Server) handleAdminComplaints(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	list, err := s.app.ListComplaintsForReview(r.Context(), actor, r.URL.Query().Get("status"))
	if err != nil {
		s.writeAppError(w, r, "list complaints for review failed", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAdminComplaintByID(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	parts := pathParts(r, "/api/admin/complaints/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, ok := app.ParseComplaintStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, app.ErrInvalidStatus.Error())
		return
	}
	c, err := s.app.RespondToComplaint(r.Context(), actor, parts[0], status, req.Response)
	if err != nil {
		s.writeAppError(w, r, "update complaint failed", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// refills

func (s *Server) handleRefills(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.app.ListRefills(actor)
		if err != nil {
			s.writeAppError(w, r, "list refills failed", err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req refillRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in := app.RefillInput{RemindDaysBefore: req.RemindDaysBefore}
		if req.MedicationName != nil {
			in.MedicationName = *req.MedicationName
		}
		if req.Dosage != nil {
			in.Dosage = *req.Dosage
		}
		if req.FrequencyDays != nil {
			in.FrequencyDays = *req.FrequencyDays
		}
		if req.NextRefillDate != nil {
			in.NextRefillDate = req.NextRefillDate.Time
		}
		refill, err := s.app.CreateRefill(actor, in)
		if err != nil {
			s.writeAppError(w, r, "create refill failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, refill)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleRefillByID(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	parts := pathParts(r, "/api/refills/")
	switch {
	case len(parts) == 1:
		s.handleRefill(w, r, actor, parts[0])
	case len(parts) == 2 && parts[1] == "refilled":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		refill, err := s.app.MarkRefilled(actor, parts[0])
		if err != nil {
			s.writeAppError(w, r, "mark refilled failed", err)
			return
		}
		writeJSON(w, http.StatusOK, refill)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleRefill(w http.ResponseWriter, r *http.Request, actor app.Actor, id string) {
	switch r.Method {
	case http.MethodPatch:
		var req refillRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patch := app.RefillPatch{
			MedicationName:   req.MedicationName,
			Dosage:           req.Dosage,
			FrequencyDays:    req.FrequencyDays,
			RemindDaysBefore: req.RemindDaysBefore,
			Active:           req.Active,
		}
		if req.NextRefillDate != nil {
			patch.NextRefillDate = &req.NextRefillDate.Time
		}
		refill, err := s.app.UpdateRefill(actor, id, patch)
		if err != nil {
			s.writeAppError(w, r, "update refill failed", err)
			return
		}
		writeJSON(w, http.StatusOK, refill)
	case http.MethodDelete:
		if err := s.app.DeleteRefill(actor, id); err != nil {
			s.writeAppError(w, r, "delete refill failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// notifications

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	list, err := s.app.ListNotifications(actor, unread, queryLimit(r))
	if err != nil {
		s.writeAppError(w, r, "list notifications failed", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleNotificationByID(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	parts := pathParts(r, "/api/notifications/")
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	switch {
	case len(parts) == 1 && parts[0] == "read-all":
		n, err := s.app.MarkAllNotificationsRead(actor)
		if err != nil {
			s.writeAppError(w, r, "mark all notifications failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"marked": n})
	case len(parts) == 2 && parts[1] == "read":
		if err := s.app.MarkNotificationRead(actor, parts[0]); err != nil {
			s.writeAppError(w, r, "mark notification failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// alerts

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request, _ app.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	list, err := s.app.ListActiveAlerts(r.URL.Query().Get("region"))
	if err != nil {
		s.writeAppError(w, r, "list alerts failed", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAdminAlerts(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.app.ListAllAlerts(actor)
		if err != nil {
			s.writeAppError(w, r, "list alerts failed", err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req alertRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		alert, err := s.app.CreateAlert(actor, app.AlertInput{
			Title:    req.Title,
			Message:  req.Message,
			Severity: req.Severity,
			Regions:  req.Regions,
		})
		if err != nil {
			s.writeAppError(w, r, "create alert failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, alert)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminAlertByID(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	parts := pathParts(r, "/api/admin/alerts/")
	if len(parts) != 2 || parts[1] != "deactivate" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	alert, err := s.app.DeactivateAlert(actor, parts[0])
	if err != nil {
		s.writeAppError(w, r, "deactivate alert failed", err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.AdminStats(r.Context(), actor)
	if err != nil {
		s.writeAppError(w, r, "admin stats failed", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
