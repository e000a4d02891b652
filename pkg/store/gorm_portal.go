package store

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"healthconnect/pkg/domain"
)

func (s *GormStore) upsert(model any, columns ...string) error {
	return translateWriteErr(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(model).Error)
}

// SaveProfile stores or updates a profile.
func (s *GormStore) SaveProfile(p domain.Profile) error {
	model := profileToModel(p)
	return s.upsert(&model, "full_name", "phone", "avatar_key", "updated_at")
}

// GetProfile returns a profile by user ID.
func (s *GormStore) GetProfile(id string) (domain.Profile, bool, error) {
	var model ProfileModel
	ok, err := s.first(&model, "id = ?", id)
	if !ok || err != nil {
		return domain.Profile{}, false, err
	}
	return profileFromModel(model), true, nil
}

// CountProfilesByRole counts profiles with the role.
func (s *GormStore) CountProfilesByRole(role domain.Role) (int, error) {
	return s.count(&ProfileModel{}, "role = ?", string(role))
}

// SaveDoctorProfile stores or updates a doctor's professional profile.
func (s *GormStore) SaveDoctorProfile(d domain.DoctorProfile) error {
	model := doctorToModel(d)
	return translateWriteErr(s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"specialization", "license_number", "institution_id", "years_experience", "bio",
			"document_key", "verification_status", "rejection_reason", "reviewed_by", "reviewed_at", "updated_at",
		}),
	}).Create(&model).Error)
}

// GetDoctorProfile returns a doctor profile with the doctor's name attached.
func (s *GormStore) GetDoctorProfile(userID string) (domain.DoctorProfile, bool, error) {
	var model DoctorProfileModel
	ok, err := s.first(&model, "user_id = ?", userID)
	if !ok || err != nil {
		return domain.DoctorProfile{}, false, err
	}
	out, err := s.withDoctorNames([]DoctorProfileModel{model})
	if err != nil {
		return domain.DoctorProfile{}, false, err
	}
	return out[0], true, nil
}

// ListDoctorProfiles lists doctors matching filter ordered by creation time.
func (s *GormStore) ListDoctorProfiles(filter DoctorFilter) ([]domain.DoctorProfile, error) {
	tx := s.db.Order("created_at ASC")
	if filter.Status != "" {
		tx = tx.Where("verification_status = ?", string(filter.Status))
	}
	if spec := strings.TrimSpace(filter.Specialization); spec != "" {
		tx = tx.Where("LOWER(specialization) = ?", strings.ToLower(spec))
	}
	if inst := strings.TrimSpace(filter.InstitutionID); inst != "" {
		tx = tx.Where("institution_id = ?", inst)
	}
	var models []DoctorProfileModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return s.withDoctorNames(models)
}

// CountDoctorProfiles counts doctors with the status. Empty status counts all.
func (s *GormStore) CountDoctorProfiles(status domain.VerificationStatus) (int, error) {
	if status == "" {
		return s.count(&DoctorProfileModel{}, "")
	}
	return s.count(&DoctorProfileModel{}, "verification_status = ?", string(status))
}

func (s *GormStore) withDoctorNames(models []DoctorProfileModel) ([]domain.DoctorProfile, error) {
	if len(models) == 0 {
		return []domain.DoctorProfile{}, nil
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.UserID)
	}
	var profiles []ProfileModel
	if err := s.db.Select("id", "full_name").Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.FullName
	}
	out := make([]domain.DoctorProfile, 0, len(models))
	for _, m := range models {
		d := doctorFromModel(m)
		d.FullName = names[m.UserID]
		out = append(out, d)
	}
	return out, nil
}

// SaveInstitution stores or updates an institution.
func (s *GormStore) SaveInstitution(i domain.Institution) error {
	model := institutionToModel(i)
	return s.upsert(&model, "name", "address", "city", "phone")
}

// GetInstitution returns an institution by ID.
func (s *GormStore) GetInstitution(id string) (domain.Institution, bool, error) {
	var model InstitutionModel
	ok, err := s.first(&model, "id = ?", id)
	if !ok || err != nil {
		return domain.Institution{}, false, err
	}
	return institutionFromModel(model), true, nil
}

// ListInstitutions returns institutions ordered by name.
func (s *GormStore) ListInstitutions() ([]domain.Institution, error) {
	var models []InstitutionModel
	if err := s.db.Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Institution, 0, len(models))
	for _, m := range models {
		out = append(out, institutionFromModel(m))
	}
	return out, nil
}

// SaveAppointment stores or updates an appointment.
func (s *GormStore) SaveAppointment(a domain.Appointment) error {
	model := appointmentToModel(a)
	return s.upsert(&model, "scheduled_at", "reason", "status", "notes", "updated_at")
}

// GetAppointment returns an appointment by ID.
func (s *GormStore) GetAppointment(id string) (domain.Appointment, bool, error) {
	var model AppointmentModel
	ok, err := s.first(&model, "id = ?", id)
	if !ok || err != nil {
		return domain.Appointment{}, false, err
	}
	return appointmentFromModel(model), true, nil
}

// ListAppointmentsForUser returns appointments where the user is patient or
// doctor, ordered by schedule.
func (s *GormStore) ListAppointmentsForUser(userID string) ([]domain.Appointment, error) {
	var models []AppointmentModel
	if err := s.db.Where("patient_id = ? OR doctor_id = ?", userID, userID).
		Order("scheduled_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Appointment, 0, len(models))
	for _, m := range models {
		out = append(out, appointmentFromModel(m))
	}
	return out, nil
}

// CountUpcomingAppointments counts pending or confirmed appointments after now.
func (s *GormStore) CountUpcomingAppointments(now time.Time) (int, error) {
	return s.count(&AppointmentModel{}, "scheduled_at > ? AND status IN ?", now.UTC(),
		[]string{string(domain.AppointmentPending), string(domain.AppointmentConfirmed)})
}

// CreateChatSession inserts a session; the partial unique index on active
// pairs turns a concurrent second insert into ErrDuplicate.
func (s *GormStore) CreateChatSession(c domain.ChatSession) error {
	model := chatSessionToModel(c)
	return translateWriteErr(s.db.Create(&model).Error)
}

// SaveChatSession stores or updates a chat session.
func (s *GormStore) SaveChatSession(c domain.ChatSession) error {
	model := chatSessionToModel(c)
	return s.upsert(&model, "status", "last_message_at", "updated_at")
}

// GetChatSession returns a chat session by ID.
func (s *GormStore) GetChatSession(id string) (domain.ChatSession, bool, error) {
	var model ChatSessionModel
	ok, err := s.first(&model, "id = ?", id)
	if !ok || err != nil {
		return domain.ChatSession{}, false, err
	}
	return chatSessionFromModel(model), true, nil
}

// FindActiveChatSession returns the open session between the pair, if any.
func (s *GormStore) FindActiveChatSession(patientID, doctorID string) (domain.ChatSession, bool, error) {
	var model ChatSessionModel
	ok, err := s.first(&model, "patient_id = ? AND doctor_id = ? AND status = ?",
		patientID, doctorID, string(domain.ChatActive))
	if !ok || err != nil {
		return domain.ChatSession{}, false, err
	}
	return chatSessionFromModel(model), true, nil
}

// ListChatSessionsForUser returns the user's sessions, most recently updated first.
func (s *GormStore) ListChatSessionsForUser(userID string) ([]domain.ChatSession, error) {
	var models []ChatSessionModel
	if err := s.db.Where("patient_id = ? OR doctor_id = ?", userID, userID).
		Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ChatSession, 0, len(models))
	for _, m := range models {
		out = append(out, chatSessionFromModel(m))
	}
	return out, nil
}

// CountActiveChatSessions counts open chat sessions.
func (s *GormStore) CountActiveChatSessions() (int, error) {
	return s.count(&ChatSessionModel{}, "status = ?", string(domain.ChatActive))
}

// AppendChatMessage stores a message and bumps the session's activity time.
func (s *GormStore) AppendChatMessage(msg domain.ChatMessage) error {
	model := chatMessageToModel(msg)
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		res := tx.Model(&ChatSessionModel{}).Where("id = ?", msg.SessionID).Updates(map[string]any{
			"last_message_at": msg.CreatedAt,
			"updated_at":      msg.CreatedAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListChatMessages returns the latest messages of a session in chronological order.
func (s *GormStore) ListChatMessages(sessionID string, limit int) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	tx := s.db.Where("session_id = ?", sessionID).Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, len(models))
	for i, m := range models {
		out[len(models)-1-i] = chatMessageFromModel(m)
	}
	return out, nil
}

// MarkChatMessagesRead marks messages sent to readerID as read.
func (s *GormStore) MarkChatMessagesRead(sessionID, readerID string, at time.Time) (int, error) {
	res := s.db.Model(&ChatMessageModel{}).
		Where("session_id = ? AND sender_id <> ? AND read_at IS NULL", sessionID, readerID).
		Update("read_at", at.UTC())
	return int(res.RowsAffected), res.Error
}

// SaveComplaint stores or updates a complaint.
func (s *GormStore) SaveComplaint(c domain.Complaint) error {
	model := complaintToModel(c)
	return s.upsert(&model, "attachment_key", "status", "admin_response", "updated_at")
}

// GetComplaint returns a complaint by ID.
func (s *GormStore) GetComplaint(id string) (domain.Complaint, bool, error) {
	var model ComplaintModel
	ok, err := s.first(&model, "id = ?", id)
	if !ok || err != nil {
		return domain.Complaint{}, false, err
	}
	return complaintFromModel(model), true, nil
}

// ListComplaints returns complaints matching filter, newest first.
func (s *GormStore) ListComplaints(filter ComplaintFilter) ([]domain.Complaint, error) {
	tx := s.db.Order("created_at DESC")
	if filter.UserID != "" {
		tx = tx.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	var models []ComplaintModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Complaint, 0, len(models))
	for _, m := range models {
		out = append(out, complaintFromModel(m))
	}
	return out, nil
}

// CountComplaints counts complaints with the status. Empty status counts all.
func (s *GormStore) CountComplaints(status domain.ComplaintStatus) (int, error) {
	if status == "" {
		return s.count(&ComplaintModel{}, "")
	}
	return s.count(&ComplaintModel{}, "status = ?", string(status))
}

// SaveRefill stores or updates a medication refill schedule.
func (s *GormStore) SaveRefill(r domain.MedicationRefill) error {
	model := refillToModel(r)
	return s.upsert(&model, "medication_name", "dosage", "frequency_days", "next_refill_date",
		"remind_days_before", "last_reminded_at", "active", "updated_at")
}

// GetRefill returns a refill by ID.
func (s *GormStore) GetRefill(id string) (domain.MedicationRefill, bool, error) {
	var model MedicationRefillModel
	ok, err := s.first(&model, "id = ?", id)
	if !ok || err != nil {
		return domain.MedicationRefill{}, false, err
	}
	return refillFromModel(model), true, nil
}

// ListRefillsByPatient returns a patient's refills ordered by next refill date.
func (s *GormStore) ListRefillsByPatient(patientID string) ([]domain.MedicationRefill, error) {
	var models []MedicationRefillModel
	if err := s.db.Where("patient_id = ?", patientID).Order("next_refill_date ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.MedicationRefill, 0, len(models))
	for _, m := range models {
		out = append(out, refillFromModel(m))
	}
	return out, nil
}

// DeleteRefill removes a refill schedule.
func (s *GormStore) DeleteRefill(id string) error {
	return s.db.Where("id = ?", id).Delete(&MedicationRefillModel{}).Error
}

// ListDueRefills returns active refills whose reminder window is open at now
// and which have not been reminded since it opened.
func (s *GormStore) ListDueRefills(now time.Time) ([]domain.MedicationRefill, error) {
	var models []MedicationRefillModel
	if err := s.db.
		Where("active = ? AND next_refill_date - make_interval(days => remind_days_before) <= ?", true, now.UTC()).
		Order("next_refill_date ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.MedicationRefill, 0, len(models))
	for _, m := range models {
		r := refillFromModel(m)
		if dueForReminder(r, now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MarkRefillReminded records that a reminder went out.
func (s *GormStore) MarkRefillReminded(id string, at time.Time) error {
	return s.db.Model(&MedicationRefillModel{}).Where("id = ?", id).
		Update("last_reminded_at", at.UTC()).Error
}

// SaveNotification stores a notification.
func (s *GormStore) SaveNotification(n domain.Notification) error {
	model := notificationToModel(n)
	return translateWriteErr(s.db.Create(&model).Error)
}

// ListNotifications returns a user's notifications, newest first.
func (s *GormStore) ListNotifications(userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	tx := s.db.Where("user_id = ?", userID).Order("created_at DESC")
	if unreadOnly {
		tx = tx.Where("read_at IS NULL")
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var models []NotificationModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		out = append(out, notificationFromModel(m))
	}
	return out, nil
}

// MarkNotificationRead marks one of the user's notifications read.
func (s *GormStore) MarkNotificationRead(id, userID string, at time.Time) (bool, error) {
	var model NotificationModel
	ok, err := s.first(&model, "id = ? AND user_id = ?", id, userID)
	if !ok || err != nil {
		return false, err
	}
	if model.ReadAt != nil {
		return true, nil
	}
	err = s.db.Model(&NotificationModel{}).Where("id = ?", id).Update("read_at", at.UTC()).Error
	return err == nil, err
}

// MarkAllNotificationsRead marks every unread notification of the user read.
func (s *GormStore) MarkAllNotificationsRead(userID string, at time.Time) (int, error) {
	res := s.db.Model(&NotificationModel{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", at.UTC())
	return int(res.RowsAffected), res.Error
}

// SaveAlert stores or updates a healthcare alert.
func (s *GormStore) SaveAlert(a domain.HealthcareAlert) error {
	model := alertToModel(a)
	return s.upsert(&model, "title", "message", "severity", "regions", "active", "updated_at")
}

// GetAlert returns an alert by ID.
func (s *GormStore) GetAlert(id string) (domain.HealthcareAlert, bool, error) {
	var model HealthcareAlertModel
	ok, err := s.first(&model, "id = ?", id)
	if !ok || err != nil {
		return domain.HealthcareAlert{}, false, err
	}
	return alertFromModel(model), true, nil
}

// ListAlerts returns alerts newest first.
func (s *GormStore) ListAlerts(activeOnly bool) ([]domain.HealthcareAlert, error) {
	tx := s.db.Order("created_at DESC")
	if activeOnly {
		tx = tx.Where("active = ?", true)
	}
	var models []HealthcareAlertModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.HealthcareAlert, 0, len(models))
	for _, m := range models {
		out = append(out, alertFromModel(m))
	}
	return out, nil
}

// CountActiveAlerts counts alerts currently shown to users.
func (s *GormStore) CountActiveAlerts() (int, error) {
	return s.count(&HealthcareAlertModel{}, "active = ?", true)
}

func profileToModel(p domain.Profile) ProfileModel {
	return ProfileModel{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Role:      string(p.Role),
		AvatarKey: p.AvatarKey,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func profileFromModel(m ProfileModel) domain.Profile {
	return domain.Profile{
		ID:        m.ID,
		Email:     m.Email,
		FullName:  m.FullName,
		Phone:     m.Phone,
		Role:      domain.Role(m.Role),
		AvatarKey: m.AvatarKey,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func doctorToModel(d domain.DoctorProfile) DoctorProfileModel {
	var institutionID *string
	if v := strings.TrimSpace(d.InstitutionID); v != "" {
		institutionID = &v
	}
	return DoctorProfileModel{
		UserID:             d.UserID,
		Specialization:     d.Specialization,
		LicenseNumber:      d.LicenseNumber,
		InstitutionID:      institutionID,
		YearsExperience:    d.YearsExperience,
		Bio:                d.Bio,
		DocumentKey:        d.DocumentKey,
		VerificationStatus: string(d.VerificationStatus),
		RejectionReason:    d.RejectionReason,
		ReviewedBy:         d.ReviewedBy,
		ReviewedAt:         d.ReviewedAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func doctorFromModel(m DoctorProfileModel) domain.DoctorProfile {
	institutionID := ""
	if m.InstitutionID != nil {
		institutionID = *m.InstitutionID
	}
	return domain.DoctorProfile{
		UserID:             m.UserID,
		Specialization:     m.Specialization,
		LicenseNumber:      m.LicenseNumber,
		InstitutionID:      institutionID,
		YearsExperience:    m.YearsExperience,
		Bio:                m.Bio,
		DocumentKey:        m.DocumentKey,
		HasDocument:        m.DocumentKey != "",
		VerificationStatus: domain.VerificationStatus(m.VerificationStatus),
		RejectionReason:    m.RejectionReason,
		ReviewedBy:         m.ReviewedBy,
		ReviewedAt:         m.ReviewedAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func institutionToModel(i domain.Institution) InstitutionModel {
	return InstitutionModel{ID: i.ID, Name: i.Name, Address: i.Address, City: i.City, Phone: i.Phone, CreatedAt: i.CreatedAt}
}

func institutionFromModel(m InstitutionModel) domain.Institution {
	return domain.Institution{ID: m.ID, Name: m.Name, Address: m.Address, City: m.City, Phone: m.Phone, CreatedAt: m.CreatedAt}
}

func appointmentToModel(a domain.Appointment) AppointmentModel {
	return AppointmentModel{
		ID:          a.ID,
		PatientID:   a.PatientID,
		DoctorID:    a.DoctorID,
		ScheduledAt: a.ScheduledAt.UTC(),
		Reason:      a.Reason,
		Status:      string(a.Status),
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func appointmentFromModel(m AppointmentModel) domain.Appointment {
	return domain.Appointment{
		ID:          m.ID,
		PatientID:   m.PatientID,
		DoctorID:    m.DoctorID,
		ScheduledAt: m.ScheduledAt,
		Reason:      m.Reason,
		Status:      domain.AppointmentStatus(m.Status),
		Notes:       m.Notes,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func chatSessionToModel(c domain.ChatSession) ChatSessionModel {
	return ChatSessionModel{
		ID:            c.ID,
		PatientID:     c.PatientID,
		DoctorID:      c.DoctorID,
		Status:        string(c.Status),
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func chatSessionFromModel(m ChatSessionModel) domain.ChatSession {
	return domain.ChatSession{
		ID:            m.ID,
		PatientID:     m.PatientID,
		DoctorID:      m.DoctorID,
		Status:        domain.ChatStatus(m.Status),
		LastMessageAt: m.LastMessageAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func chatMessageToModel(msg domain.ChatMessage) ChatMessageModel {
	return ChatMessageModel{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		ReadAt:    msg.ReadAt,
		CreatedAt: msg.CreatedAt,
	}
}

func chatMessageFromModel(m ChatMessageModel) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        m.ID,
		SessionID: m.SessionID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}

func complaintToModel(c domain.Complaint) ComplaintModel {
	return ComplaintModel{
		ID:            c.ID,
		UserID:        c.UserID,
		Subject:       c.Subject,
		Description:   c.Description,
		Category:      c.Category,
		AttachmentKey: c.AttachmentKey,
		Status:        string(c.Status),
		AdminResponse: c.AdminResponse,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func complaintFromModel(m ComplaintModel) domain.Complaint {
	return domain.Complaint{
		ID:            m.ID,
		UserID:        m.UserID,
		Subject:       m.Subject,
		Description:   m.Description,
		Category:      m.Category,
		AttachmentKey: m.AttachmentKey,
		HasAttachment: m.AttachmentKey != "",
		Status:        domain.ComplaintStatus(m.Status),
		AdminResponse: m.AdminResponse,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func refillToModel(r domain.MedicationRefill) MedicationRefillModel {
	return MedicationRefillModel{
		ID:               r.ID,
		PatientID:        r.PatientID,
		MedicationName:   r.MedicationName,
		Dosage:           r.Dosage,
		FrequencyDays:    r.FrequencyDays,
		NextRefillDate:   r.NextRefillDate.UTC(),
		RemindDaysBefore: r.RemindDaysBefore,
		LastRemindedAt:   r.LastRemindedAt,
		Active:           r.Active,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func refillFromModel(m MedicationRefillModel) domain.MedicationRefill {
	return domain.MedicationRefill{
		ID:               m.ID,
		PatientID:        m.PatientID,
		MedicationName:   m.MedicationName,
		Dosage:           m.Dosage,
		FrequencyDays:    m.FrequencyDays,
		NextRefillDate:   m.NextRefillDate,
		RemindDaysBefore: m.RemindDaysBefore,
		LastRemindedAt:   m.LastRemindedAt,
		Active:           m.Active,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func notificationToModel(n domain.Notification) NotificationModel {
	var data []byte
	if len(n.Data) > 0 {
		data, _ = json.Marshal(n.Data)
	}
	return NotificationModel{
		ID:        n.ID,
		UserID:    n.UserID,
		Kind:      string(n.Kind),
		Title:     n.Title,
		Body:      n.Body,
		Data:      data,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

func notificationFromModel(m NotificationModel) domain.Notification {
	var data map[string]string
	if len(m.Data) > 0 {
		_ = json.Unmarshal(m.Data, &data)
	}
	return domain.Notification{
		ID:        m.ID,
		UserID:    m.UserID,
		Kind:      domain.NotificationKind(m.Kind),
		Title:     m.Title,
		Body:      m.Body,
		Data:      data,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}

func alertToModel(a domain.HealthcareAlert) HealthcareAlertModel {
	regions, _ := json.Marshal(a.Regions)
	return HealthcareAlertModel{
		ID:        a.ID,
		Title:     a.Title,
		Message:   a.Message,
		Severity:  string(a.Severity),
		Regions:   regions,
		Active:    a.Active,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func alertFromModel(m HealthcareAlertModel) domain.HealthcareAlert {
	var regions []string
	if len(m.Regions) > 0 {
		_ = json.Unmarshal(m.Regions, &regions)
	}
	return domain.HealthcareAlert{
		ID:        m.ID,
		Title:     m.Title,
		Message:   m.Message,
		Severity:  domain.AlertSeverity(m.Severity),
		Regions:   regions,
		Active:    m.Active,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
