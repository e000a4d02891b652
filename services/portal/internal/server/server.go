package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"healthconnect/internal/usertoken"
	"healthconnect/internal/util"
	"healthconnect/pkg/domain"
	"healthconnect/services/portal/internal/app"
)

// TokenVerifier authenticates bearer tokens issued by the auth service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (usertoken.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Verifier TokenVerifier
	// MaxUploadBytes caps multipart request bodies.
	MaxUploadBytes int64
}

// Server exposes the portal API.
type Server struct {
	app            *app.App
	verifier       TokenVerifier
	maxUploadBytes int64
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("portal app required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("token verifier required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 11 << 20
	}
	s := &Server{
		app:            cfg.App,
		verifier:       cfg.Verifier,
		maxUploadBytes: cfg.MaxUploadBytes,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// profiles
	s.mux.Handle("/api/profile", s.withUser(s.handleProfile))
	s.mux.Handle("/api/profile/photo", s.withUser(s.handleProfilePhoto))
	s.mux.Handle("/api/institutions", s.withUser(s.handleInstitutions))

	// doctors
	s.mux.Handle("/api/doctors", s.withUser(s.handleDoctors))
	s.mux.Handle("/api/doctors/", s.withUser(s.handleDoctorByID))
	s.mux.Handle("/api/doctor/profile", s.withRole(domain.RoleDoctor, s.handleOwnDoctorProfile))
	s.mux.Handle("/api/doctor/documents", s.withRole(domain.RoleDoctor, s.handleDoctorDocument))

	// appointments and chat
	s.mux.Handle("/api/appointments", s.withUser(s.handleAppointments))
	s.mux.Handle("/api/appointments/", s.withUser(s.handleAppointmentByID))
	s.mux.Handle("/api/chats", s.withUser(s.handleChats))
	s.mux.Handle("/api/chats/", s.withUser(s.handleChatByID))

	// patient care
	s.mux.Handle("/api/complaints", s.withUser(s.handleComplaints))
	s.mux.Handle("/api/refills", s.withRole(domain.RolePatient, s.handleRefills))
	s.mux.Handle("/api/refills/", s.withRole(domain.RolePatient, s.handleRefillByID))
	s.mux.Handle("/api/notifications", s.withUser(s.handleNotifications))
	s.mux.Handle("/api/notifications/", s.withUser(s.handleNotificationByID))
	s.mux.Handle("/api/alerts", s.withUser(s.handleAlerts))

	// admin
	s.mux.Handle("/api/admin/institutions", s.withRole(domain.RoleAdmin, s.handleAdminInstitutions))
	s.mux.Handle("/api/admin/doctors", s.withRole(domain.RoleAdmin, s.handleAdminDoctors))
	s.mux.Handle("/api/admin/doctors/", s.withRole(domain.RoleAdmin, s.handleAdminDoctorByID))
	s.mux.Handle("/api/admin/complaints", s.withRole(domain.RoleAdmin, s.handleAdminComplaints))
	s.mux.Handle("/api/admin/complaints/", s.withRole(domain.RoleAdmin, s.handleAdminComplaintByID))
	s.mux.Handle("/api/admin/alerts", s.withRole(domain.RoleAdmin, s.handleAdminAlerts))
	s.mux.Handle("/api/admin/alerts/", s.withRole(domain.RoleAdmin, s.handleAdminAlertByID))
	s.mux.Handle("/api/admin/stats", s.withRole(domain.RoleAdmin, s.handleAdminStats))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, app.Actor)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		identity, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			logger := util.LoggerFromContext(r.Context())
			if errors.Is(err, usertoken.ErrInvalidToken) || errors.Is(err, usertoken.ErrTokenRevoked) {
				logger.Info("token_rejected", "path", r.URL.Path, "err", err)
			} else {
				logger.Error("token_check_failed", "path", r.URL.Path, "err", err)
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		logger := util.LoggerFromContext(r.Context()).With("user_id", identity.UserID)
		r = r.WithContext(util.ContextWithLogger(r.Context(), logger))
		next(w, r, app.Actor{UserID: identity.UserID, Role: identity.Role})
	})
}

func (s *Server) withRole(role domain.Role, next userHandler) http.Handler {
	return s.withUser(func(w http.ResponseWriter, r *http.Request, actor app.Actor) {
		if actor.Role != role {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, actor)
	})
}

// writeAppError maps application errors onto HTTP statuses.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var input *app.InputError
	switch {
	case errors.As(err, &input):
		writeError(w, http.StatusBadRequest, input.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrInvalidTransition),
		errors.Is(err, app.ErrChatClosed),
		errors.Is(err, app.ErrLicenseInUse),
		errors.Is(err, app.ErrInstitutionExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error(msg, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// pathParts splits the path below prefix, e.g. "/api/chats/" + "id/messages".
func pathParts(r *http.Request, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return false
	}
	return true
}

// formUpload returns the "file" part of a parsed multipart request. The
// returned func closes it.
func formUpload(r *http.Request) (*app.Upload, func(), bool) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, func() {}, false
	}
	return &app.Upload{Filename: header.Filename, Body: file}, func() { _ = file.Close() }, true
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		slog.Debug("missing bearer prefix", "path", r.URL.Path)
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		slog.Debug("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
