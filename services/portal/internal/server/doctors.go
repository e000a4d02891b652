package server

import (
	"net/http"

	"healthconnect/services/portal/internal/app"
)

type doctorProfileRequest struct {
	Specialization  string `json:"specialization"`
	LicenseNumber   string `json:"licenseNumber"`
	InstitutionID   string `json:"institutionId"`
	YearsExperience int    `json:"yearsExperience"`
	Bio             string `json:"bio"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleDoctors(w http.ResponseWriter, r *http.Request, _ app.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	docs, err := s.app.ListApprovedDoctors(q.Get("specialization"), q.Get("institutionId"))
	if err != nil {
		s.writeAppError(w, r, "list doctors failed", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDoctorByID(w http.ResponseWriter, r *http.Request, _ app.Actor) {
	parts := pathParts(r, "/api/doctors/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	doc, err := s.app.GetApprovedDoctor(parts[0])
	if err != nil {
		s.writeAppError(w, r, "get doctor failed", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleOwnDoctorProfile(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	switch r.Method {
	case http.MethodGet:
		doc, err := s.app.GetOwnDoctorProfile(actor)
		if err != nil {
			s.writeAppError(w, r, "get doctor profile failed", err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodPut:
		var req doctorProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doc, err := s.app.SaveDoctorProfile(actor, app.DoctorProfileInput{
			Specialization:  req.Specialization,
			LicenseNumber:   req.LicenseNumber,
			InstitutionID:   req.InstitutionID,
			YearsExperience: req.YearsExperience,
			Bio:             req.Bio,
		})
		if err != nil {
			s.writeAppError(w, r, "save doctor profile failed", err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleDoctorDocument(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.parseMultipart(w, r) {
		return
	}
	upload, closeFile, ok := formUpload(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer closeFile()
	doc, err := s.app.UploadDoctorDocument(r.Context(), actor, *upload)
	if err != nil {
		s.writeAppError(w, r, "document upload failed", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleAdminDoctors(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docs, err := s.app.ListDoctorsForReview(r.Context(), actor, r.URL.Query().Get("status"))
	if err != nil {
		s.writeAppError(w, r, "list doctors for review failed", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleAdminDoctorByID(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	parts := pathParts(r, "/api/admin/doctors/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := parts[0]
	switch parts[1] {
	case "approve":
		doc, err := s.app.ApproveDoctor(r.Context(), actor, id)
		if err != nil {
			s.writeAppError(w, r, "approve doctor failed", err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case "reject":
		var req rejectRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doc, err := s.app.RejectDoctor(r.Context(), actor, id, req.Reason)
		if err != nil {
			s.writeAppError(w, r, "reject doctor failed", err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}
