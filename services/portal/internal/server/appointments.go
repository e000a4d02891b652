package server

import (
	"net/http"
	"time"

	"healthconnect/services/portal/internal/app"
)

type appointmentRequest struct {
	DoctorID    string    `json:"doctorId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Reason      string    `json:"reason"`
}

type statusRequest struct {
	Status   string `json:"status"`
	Notes    string `json:"notes"`
	Response string `json:"response"`
}

type openChatRequest struct {
	CounterpartID string `json:"counterpartId"`
}

type messageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleAppointments(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.app.ListAppointments(actor)
		if err != nil {
			s.writeAppError(w, r, "list appointments failed", err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req appointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		appt, err := s.app.BookAppointment(r.Context(), actor, app.AppointmentInput{
			DoctorID:    req.DoctorID,
			ScheduledAt: req.ScheduledAt,
			Reason:      req.Reason,
		})
		if err != nil {
			s.writeAppError(w, r, "book appointment failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, appt)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAppointmentByID(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	parts := pathParts(r, "/api/appointments/")
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
	status, ok := app.ParseAppointmentStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, app.ErrInvalidStatus.Error())
		return
	}
	appt, err := s.app.UpdateAppointmentStatus(r.Context(), actor, parts[0], status, req.Notes)
	if err != nil {
		s.writeAppError(w, r, "update appointment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	switch r.Method {
	case http.MethodGet:
		chats, err := s.app.ListChats(actor)
		if err != nil {
			s.writeAppError(w, r, "list chats failed", err)
			return
		}
		writeJSON(w, http.StatusOK, chats)
	case http.MethodPost:
		var req openChatRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		session, created, err := s.app.OpenChat(actor, req.CounterpartID)
		if err != nil {
			s.writeAppError(w, r, "open chat failed", err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, session)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleChatByID(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	parts := pathParts(r, "/api/chats/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]
	switch parts[1] {
	case "messages":
		switch r.Method {
		case http.MethodGet:
			msgs, err := s.app.ListMessages(actor, id, queryLimit(r))
			if err != nil {
				s.writeAppError(w, r, "list messages failed", err)
				return
			}
			writeJSON(w, http.StatusOK, msgs)
		case http.MethodPost:
			var req messageRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			msg, err := s.app.SendMessage(r.Context(), actor, id, req.Content)
			if err != nil {
				s.writeAppError(w, r, "send message failed", err)
				return
			}
			writeJSON(w, http.StatusCreated, msg)
		default:
			methodNotAllowed(w)
		}
	case "close":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		session, err := s.app.CloseChat(actor, id)
		if err != nil {
			s.writeAppError(w, r, "close chat failed", err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case "read":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		n, err := s.app.MarkChatRead(actor, id)
		if err != nil {
			s.writeAppError(w, r, "mark chat read failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"marked": n})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}
