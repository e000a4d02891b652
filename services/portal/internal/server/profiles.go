package server

import (
	"net/http"

	"healthconnect/services/portal/internal/app"
)

type profileRequest struct {
	FullName *string `json:"fullName"`
	Phone    *string `json:"phone"`
}

type institutionRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Phone   string `json:"phone"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	switch r.Method {
	case http.MethodGet:
		view, err := s.app.GetProfile(r.Context(), actor)
		if err != nil {
			s.writeAppError(w, r, "get profile failed", err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPatch:
		var req profileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		view, err := s.app.UpdateProfile(r.Context(), actor, app.ProfileUpdate{FullName: req.FullName, Phone: req.Phone})
		if err != nil {
			s.writeAppError(w, r, "update profile failed", err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProfilePhoto(w http.ResponseWriter, r *http.Request, actor app.Actor) {
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
	view, err := s.app.UploadAvatar(r.Context(), actor, *upload)
	if err != nil {
		s.writeAppError(w, r, "avatar upload failed", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleInstitutions(w http.ResponseWriter, r *http.Request, _ app.Actor) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	list, err := s.app.ListInstitutions()
	if err != nil {
		s.writeAppError(w, r, "list institutions failed", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAdminInstitutions(w http.ResponseWriter, r *http.Request, actor app.Actor) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req institutionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	inst, err := s.app.CreateInstitution(actor, app.InstitutionInput{
		Name:    req.Name,
		Address: req.Address,
		City:    req.City,
		Phone:   req.Phone,
	})
	if err != nil {
		s.writeAppError(w, r, "create institution failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}
