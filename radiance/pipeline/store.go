// radiance/pipeline/store.go
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"radiance/radiance/sources/psql/dao"
	"radiance/radiance/sources/psql/models"
)

// SessionStore is the narrow persistence surface the orchestrator depends
// on. Create/Update failures are downgraded to warnings by the orchestrator:
// losing durability must never lose an already-computed diagnosis.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Update(ctx context.Context, sessionID string, ownerID int, fields map[string]interface{}) error
	GetByID(ctx context.Context, sessionID string) (*Session, error)
	ListByUser(ctx context.Context, userID int) ([]*Session, error)
}

// DBStore backs SessionStore with the gorm DAO. Reauth, when set, is invoked
// exactly once after an access-control rejection before the write is retried;
// a second rejection gives up and lets the orchestrator degrade.
type DBStore struct {
	DAO    *dao.DiagnosisSessionDAO
	Reauth func(ctx context.Context) error
}

func NewDBStore(sessionDAO *dao.DiagnosisSessionDAO, reauth func(ctx context.Context) error) *DBStore {
	return &DBStore{DAO: sessionDAO, Reauth: reauth}
}

func (st *DBStore) Create(ctx context.Context, s *Session) error {
	model, err := toModel(s)
	if err != nil {
		return err
	}
	return st.DAO.Create(ctx, model)
}

func (st *DBStore) Update(ctx context.Context, sessionID string, ownerID int, fields map[string]interface{}) error {
	err := st.DAO.UpdateFields(ctx, sessionID, ownerID, fields)
	if !errors.Is(err, dao.ErrAccessDenied) || st.Reauth == nil {
		return err
	}
	if reauthErr := st.Reauth(ctx); reauthErr != nil {
		return fmt.Errorf("re-authentication failed: %w", reauthErr)
	}
	return st.DAO.UpdateFields(ctx, sessionID, ownerID, fields)
}

func (st *DBStore) GetByID(ctx context.Context, sessionID string) (*Session, error) {
	model, err := st.DAO.GetByID(ctx, sessionID)
	if err != nil || model == nil {
		return nil, err
	}
	return fromModel(model)
}

func (st *DBStore) ListByUser(ctx context.Context, userID int) ([]*Session, error) {
	rows, err := st.DAO.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions := make([]*Session, 0, len(rows))
	for i := range rows {
		s, err := fromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func toModel(s *Session) (*models.DiagnosisSession, error) {
	input, err := json.Marshal(s.UserInput)
	if err != nil {
		return nil, err
	}
	m := &models.DiagnosisSession{
		ID:           s.ID,
		UserID:       s.UserID,
		CreatedAt:    s.CreatedAt,
		Status:       string(s.Status),
		CurrentStep:  s.CurrentStep,
		ErrorMessage: s.ErrorMessage,
		UserInput:    input,
	}
	if s.MedicalAnalyst != nil {
		m.MedicalAnalystResponse = mustJSON(s.MedicalAnalyst)
		m.RawMedicalAnalystResponse = s.RawMedicalAnalyst
	}
	if s.GeneralPhysician != nil {
		m.GeneralPhysicianResponse = mustJSON(s.GeneralPhysician)
		m.RawGeneralPhysicianResponse = s.RawGeneralPhysician
	}
	if s.SpecialistDoctor != nil {
		m.SpecialistDoctorResponse = mustJSON(s.SpecialistDoctor)
		m.RawSpecialistDoctorResponse = s.RawSpecialistDoctor
	}
	if s.Pathologist != nil {
		m.PathologistResponse = mustJSON(s.Pathologist)
		m.RawPathologistResponse = s.RawPathologist
	}
	if s.Nutritionist != nil {
		m.NutritionistResponse = mustJSON(s.Nutritionist)
		m.RawNutritionistResponse = s.RawNutritionist
	}
	if s.Pharmacist != nil {
		m.PharmacistResponse = mustJSON(s.Pharmacist)
		m.RawPharmacistResponse = s.RawPharmacist
	}
	if s.FollowUpSpecialist != nil {
		m.FollowUpSpecialistResponse = mustJSON(s.FollowUpSpecialist)
		m.RawFollowUpSpecialistResponse = s.RawFollowUpSpecialist
	}
	if s.Summarizer != nil {
		m.SummarizerResponse = mustJSON(s.Summarizer)
		m.RawSummarizerResponse = s.RawSummarizer
	}
	return m, nil
}

func fromModel(m *models.DiagnosisSession) (*Session, error) {
	s := &Session{
		ID:           m.ID,
		UserID:       m.UserID,
		CreatedAt:    m.CreatedAt,
		Status:       Status(m.Status),
		CurrentStep:  m.CurrentStep,
		ErrorMessage: m.ErrorMessage,
		Persisted:    true,
	}
	if len(m.UserInput) > 0 {
		if err := json.Unmarshal(m.UserInput, &s.UserInput); err != nil {
			return nil, fmt.Errorf("corrupt user_input on session %s: %w", m.ID, err)
		}
	}
	decode := func(raw json.RawMessage, out interface{}) bool {
		if len(raw) == 0 || string(raw) == "null" {
			return false
		}
		return json.Unmarshal(raw, out) == nil
	}
	if v := new(MedicalAnalystResponse); decode(m.MedicalAnalystResponse, v) {
		s.MedicalAnalyst = v
		s.RawMedicalAnalyst = m.RawMedicalAnalystResponse
	}
	if v := adaptGeneralPhysician(m.GeneralPhysicianResponse); v != nil {
		s.GeneralPhysician = v
		s.RawGeneralPhysician = m.RawGeneralPhysicianResponse
	}
	if v := new(SpecialistDoctorResponse); decode(m.SpecialistDoctorResponse, v) {
		s.SpecialistDoctor = v
		s.RawSpecialistDoctor = m.RawSpecialistDoctorResponse
	}
	if v := new(PathologistResponse); decode(m.PathologistResponse, v) {
		s.Pathologist = v
		s.RawPathologist = m.RawPathologistResponse
	}
	if v := new(NutritionistResponse); decode(m.NutritionistResponse, v) {
		s.Nutritionist = v
		s.RawNutritionist = m.RawNutritionistResponse
	}
	if v := new(PharmacistResponse); decode(m.PharmacistResponse, v) {
		s.Pharmacist = v
		s.RawPharmacist = m.RawPharmacistResponse
	}
	if v := new(FollowUpSpecialistResponse); decode(m.FollowUpSpecialistResponse, v) {
		s.FollowUpSpecialist = v
		s.RawFollowUpSpecialist = m.RawFollowUpSpecialistResponse
	}
	if v := new(SummarizerResponse); decode(m.SummarizerResponse, v) {
		s.Summarizer = v
		s.RawSummarizer = m.RawSummarizerResponse
	}
	return s, nil
}

// adaptGeneralPhysician decodes a stored physician response, adapting rows
// written before recommended_specialist_type replaced the old
// suggested_specialist key. Legacy adaptation happens only here, at the
// store boundary.
func adaptGeneralPhysician(raw json.RawMessage) *GeneralPhysicianResponse {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v GeneralPhysicianResponse
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	if v.RecommendedSpecialistType == "" {
		var legacy struct {
			SuggestedSpecialist string `json:"suggested_specialist"`
		}
		if err := json.Unmarshal(raw, &legacy); err == nil && legacy.SuggestedSpecialist != "" {
			v.RecommendedSpecialistType = legacy.SuggestedSpecialist
			if v.ReferenceData.RecommendedSpecialistType == "" {
				v.ReferenceData.RecommendedSpecialistType = legacy.SuggestedSpecialist
			}
		}
	}
	return &v
}
