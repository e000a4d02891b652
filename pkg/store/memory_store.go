package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"healthconnect/pkg/domain"
)

// MemoryStore implements AccountStore, ResetCodeStore and PortalStore in
// memory. It backs tests and single-process local runs.
type MemoryStore struct {
	mu sync.RWMutex

	accounts     map[string]domain.Account
	emailIndex   map[string]string
	admins       map[string]time.Time
	resetCodes   map[string]domain.ResetCode // keyed by user ID
	profiles     map[string]domain.Profile
	doctors      map[string]domain.DoctorProfile
	institutions map[string]domain.Institution
	appointments map[string]domain.Appointment
	chats        map[string]domain.ChatSession
	messages     map[string][]domain.ChatMessage
	complaints   map[string]domain.Complaint
	refills      map[string]domain.MedicationRefill
	notes        map[string]domain.Notification
	alerts       map[string]domain.HealthcareAlert
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]domain.Account),
		emailIndex:   make(map[string]string),
		admins:       make(map[string]time.Time),
		resetCodes:   make(map[string]domain.ResetCode),
		profiles:     make(map[string]domain.Profile),
		doctors:      make(map[string]domain.DoctorProfile),
		institutions: make(map[string]domain.Institution),
		appointments: make(map[string]domain.Appointment),
		chats:        make(map[string]domain.ChatSession),
		messages:     make(map[string][]domain.ChatMessage),
		complaints:   make(map[string]domain.Complaint),
		refills:      make(map[string]domain.MedicationRefill),
		notes:        make(map[string]domain.Notification),
		alerts:       make(map[string]domain.HealthcareAlert),
	}
}

func (s *MemoryStore) CreateAccount(a domain.Account, p domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := s.emailIndex[a.Email]; ok {
		return ErrDuplicate
	}
	s.accounts[a.ID] = a
	s.emailIndex[a.Email] = a.ID
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryStore) GetAccountByEmail(email string) (domain.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[email]
	if !ok {
		return domain.Account{}, false, nil
	}
	a, ok := s.accounts[id]
	return a, ok, nil
}

func (s *MemoryStore) GetAccountByID(id string) (domain.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	return a, ok, nil
}

func (s *MemoryStore) UpdatePassword(userID, passwordHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePasswordLocked(userID, passwordHash, at)
}

func (s *MemoryStore) updatePasswordLocked(userID, passwordHash string, at time.Time) error {
	a, ok := s.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = at.UTC()
	s.accounts[userID] = a
	return nil
}

func (s *MemoryStore) SetAccountStatus(userID string, status domain.AccountStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = at.UTC()
	s.accounts[userID] = a
	return nil
}

func (s *MemoryStore) IsAdmin(userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[userID]
	return ok, nil
}

func (s *MemoryStore) AddAdmin(userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[userID]; !ok {
		s.admins[userID] = at.UTC()
	}
	return nil
}

func (s *MemoryStore) RemoveAdmin(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.admins[userID]
	delete(s.admins, userID)
	return ok, nil
}

func (s *MemoryStore) ReplaceResetCode(userID, codeHash string, expiresAt time.Time) (domain.ResetCode, error) {
	code := domain.ResetCode{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  codeHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.resetCodes[userID] = code
	s.mu.Unlock()
	return code, nil
}

func (s *MemoryStore) FindResetCode(userID string, now time.Time) (domain.ResetCode, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.resetCodes[userID]
	if !ok || code.ExpiresAt.Before(now) {
		return domain.ResetCode{}, false, nil
	}
	return code, true, nil
}

func (s *MemoryStore) ConsumeResetCode(codeID, userID, passwordHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.resetCodes[userID]
	if !ok || code.ID != codeID {
		return false, nil
	}
	if err := s.updatePasswordLocked(userID, passwordHash, at); err != nil {
		return false, err
	}
	delete(s.resetCodes, userID)
	return true, nil
}

func (s *MemoryStore) DeleteResetCode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, code := range s.resetCodes {
		if code.ID == id {
			delete(s.resetCodes, userID)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteExpiredResetCodes(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for userID, code := range s.resetCodes {
		if code.ExpiresAt.Before(now) {
			delete(s.resetCodes, userID)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SaveProfile(p domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.profiles[p.ID]; ok {
		p.Email, p.Role, p.CreatedAt = prev.Email, prev.Role, prev.CreatedAt
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryStore) GetProfile(id string) (domain.Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	return p, ok, nil
}

func (s *MemoryStore) CountProfilesByRole(role domain.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.profiles {
		if p.Role == role {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SaveDoctorProfile(d domain.DoctorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.doctors {
		if id != d.UserID && other.LicenseNumber == d.LicenseNumber {
			return ErrDuplicate
		}
	}
	d.FullName = ""
	d.HasDocument = d.DocumentKey != ""
	if prev, ok := s.doctors[d.UserID]; ok {
		d.CreatedAt = prev.CreatedAt
	}
	s.doctors[d.UserID] = d
	return nil
}

func (s *MemoryStore) GetDoctorProfile(userID string) (domain.DoctorProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[userID]
	if !ok {
		return domain.DoctorProfile{}, false, nil
	}
	d.FullName = s.profiles[userID].FullName
	return d, true, nil
}

func (s *MemoryStore) ListDoctorProfiles(filter DoctorFilter) ([]domain.DoctorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DoctorProfile, 0, len(s.doctors))
	for _, d := range s.doctors {
		if filter.Status != "" && d.VerificationStatus != filter.Status {
			continue
		}
		if spec := strings.TrimSpace(filter.Specialization); spec != "" && !strings.EqualFold(d.Specialization, spec) {
			continue
		}
		if inst := strings.TrimSpace(filter.InstitutionID); inst != "" && d.InstitutionID != inst {
			continue
		}
		d.FullName = s.profiles[d.UserID].FullName
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountDoctorProfiles(status domain.VerificationStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.doctors {
		if status == "" || d.VerificationStatus == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SaveInstitution(i domain.Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.institutions {
		if id != i.ID && strings.EqualFold(other.Name, i.Name) {
			return ErrDuplicate
		}
	}
	s.institutions[i.ID] = i
	return nil
}

func (s *MemoryStore) GetInstitution(id string) (domain.Institution, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.institutions[id]
	return i, ok, nil
}

func (s *MemoryStore) ListInstitutions() ([]domain.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Institution, 0, len(s.institutions))
	for _, i := range s.institutions {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) SaveAppointment(a domain.Appointment) error {
	s.mu.Lock()
	s.appointments[a.ID] = a
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetAppointment(id string) (domain.Appointment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	return a, ok, nil
}

func (s *MemoryStore) ListAppointmentsForUser(userID string) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Appointment, 0)
	for _, a := range s.appointments {
		if a.PatientID == userID || a.DoctorID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *MemoryStore) CountUpcomingAppointments(now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.appointments {
		if a.ScheduledAt.After(now) && (a.Status == domain.AppointmentPending || a.Status == domain.AppointmentConfirmed) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateChatSession(c domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[c.ID]; ok {
		return ErrDuplicate
	}
	if c.Status == domain.ChatActive {
		for _, existing := range s.chats {
			if existing.PatientID == c.PatientID && existing.DoctorID == c.DoctorID && existing.Status == domain.ChatActive {
				return ErrDuplicate
			}
		}
	}
	s.chats[c.ID] = c
	return nil
}

func (s *MemoryStore) SaveChatSession(c domain.ChatSession) error {
	s.mu.Lock()
	s.chats[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetChatSession(id string) (domain.ChatSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	return c, ok, nil
}

func (s *MemoryStore) FindActiveChatSession(patientID, doctorID string) (domain.ChatSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chats {
		if c.PatientID == patientID && c.DoctorID == doctorID && c.Status == domain.ChatActive {
			return c, true, nil
		}
	}
	return domain.ChatSession{}, false, nil
}

func (s *MemoryStore) ListChatSessionsForUser(userID string) ([]domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChatSession, 0)
	for _, c := range s.chats {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) CountActiveChatSessions() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.chats {
		if c.Status == domain.ChatActive {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AppendChatMessage(msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[msg.SessionID]
	if !ok {
		return ErrNotFound
	}
	at := msg.CreatedAt
	c.LastMessageAt = &at
	c.UpdatedAt = at
	s.chats[c.ID] = c
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

func (s *MemoryStore) ListChatMessages(sessionID string, limit int) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) MarkChatMessagesRead(sessionID, readerID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	msgs := s.messages[sessionID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && msgs[i].ReadAt == nil {
			readAt := at.UTC()
			msgs[i].ReadAt = &readAt
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SaveComplaint(c domain.Complaint) error {
	c.HasAttachment = c.AttachmentKey != ""
	s.mu.Lock()
	s.complaints[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetComplaint(id string) (domain.Complaint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.complaints[id]
	return c, ok, nil
}

func (s *MemoryStore) ListComplaints(filter ComplaintFilter) ([]domain.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Complaint, 0)
	for _, c := range s.complaints {
		if filter.UserID != "" && c.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountComplaints(status domain.ComplaintStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.complaints {
		if status == "" || c.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SaveRefill(r domain.MedicationRefill) error {
	s.mu.Lock()
	s.refills[r.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetRefill(id string) (domain.MedicationRefill, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.refills[id]
	return r, ok, nil
}

func (s *MemoryStore) ListRefillsByPatient(patientID string) ([]domain.MedicationRefill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MedicationRefill, 0)
	for _, r := range s.refills {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRefillDate.Before(out[j].NextRefillDate) })
	return out, nil
}

func (s *MemoryStore) DeleteRefill(id string) error {
	s.mu.Lock()
	delete(s.refills, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListDueRefills(now time.Time) ([]domain.MedicationRefill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MedicationRefill, 0)
	for _, r := range s.refills {
		if dueForReminder(r, now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRefillDate.Before(out[j].NextRefillDate) })
	return out, nil
}

func (s *MemoryStore) MarkRefillReminded(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refills[id]
	if !ok {
		return ErrNotFound
	}
	remindedAt := at.UTC()
	r.LastRemindedAt = &remindedAt
	s.refills[id] = r
	return nil
}

func (s *MemoryStore) SaveNotification(n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[n.ID]; ok {
		return ErrDuplicate
	}
	s.notes[n.ID] = n
	return nil
}

func (s *MemoryStore) ListNotifications(userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, 0)
	for _, n := range s.notes {
		if n.UserID != userID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkNotificationRead(id, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	if n.ReadAt == nil {
		readAt := at.UTC()
		n.ReadAt = &readAt
		s.notes[id] = n
	}
	return true, nil
}

func (s *MemoryStore) MarkAllNotificationsRead(userID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, n := range s.notes {
		if n.UserID == userID && n.ReadAt == nil {
			readAt := at.UTC()
			n.ReadAt = &readAt
			s.notes[id] = n
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SaveAlert(a domain.HealthcareAlert) error {
	s.mu.Lock()
	s.alerts[a.ID] = a
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetAlert(id string) (domain.HealthcareAlert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	return a, ok, nil
}

func (s *MemoryStore) ListAlerts(activeOnly bool) ([]domain.HealthcareAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.HealthcareAlert, 0)
	for _, a := range s.alerts {
		if activeOnly && !a.Active {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountActiveAlerts() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if a.Active {
			n++
		}
	}
	return n, nil
}

var (
	_ AccountStore   = (*MemoryStore)(nil)
	_ ResetCodeStore = (*MemoryStore)(nil)
	_ PortalStore    = (*MemoryStore)(nil)
	_ AccountStore   = (*GormStore)(nil)
	_ ResetCodeStore = (*GormStore)(nil)
	_ PortalStore    = (*GormStore)(nil)
)
