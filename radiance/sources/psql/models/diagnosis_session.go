package models

import (
	"encoding/json"
	"time"
)

// DiagnosisSession is the durable record for one multi-agent diagnosis run.
// Each stage owns exactly one response pair (parsed jsonb + verbatim text);
// a NULL pair means the stage has not run yet (or was skipped, for the
// medical analyst only).
type DiagnosisSession struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       int       `json:"user_id" gorm:"index;not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `json:"updated_at"`
	Status       string    `json:"status" gorm:"type:varchar(32);not null"`
	CurrentStep  int       `json:"current_step" gorm:"not null;default:0"`
	ErrorMessage string    `json:"error_message,omitempty" gorm:"type:text"`

	UserInput json.RawMessage `json:"user_input" gorm:"type:jsonb"`

	MedicalAnalystResponse        json.RawMessage `json:"medical_analyst_response,omitempty" gorm:"type:jsonb"`
	RawMedicalAnalystResponse     string          `json:"raw_medical_analyst_response,omitempty" gorm:"type:text"`
	GeneralPhysicianResponse      json.RawMessage `json:"general_physician_response,omitempty" gorm:"type:jsonb"`
	RawGeneralPhysicianResponse   string          `json:"raw_general_physician_response,omitempty" gorm:"type:text"`
	SpecialistDoctorResponse      json.RawMessage `json:"specialist_doctor_response,omitempty" gorm:"type:jsonb"`
	RawSpecialistDoctorResponse   string          `json:"raw_specialist_doctor_response,omitempty" gorm:"type:text"`
	PathologistResponse           json.RawMessage `json:"pathologist_response,omitempty" gorm:"type:jsonb"`
	RawPathologistResponse        string          `json:"raw_pathologist_response,omitempty" gorm:"type:text"`
	NutritionistResponse          json.RawMessage `json:"nutritionist_response,omitempty" gorm:"type:jsonb"`
	RawNutritionistResponse       string          `json:"raw_nutritionist_response,omitempty" gorm:"type:text"`
	PharmacistResponse            json.RawMessage `json:"pharmacist_response,omitempty" gorm:"type:jsonb"`
	RawPharmacistResponse         string          `json:"raw_pharmacist_response,omitempty" gorm:"type:text"`
	FollowUpSpecialistResponse    json.RawMessage `json:"follow_up_specialist_response,omitempty" gorm:"type:jsonb"`
	RawFollowUpSpecialistResponse string          `json:"raw_follow_up_specialist_response,omitempty" gorm:"type:text"`
	SummarizerResponse            json.RawMessage `json:"summarizer_response,omitempty" gorm:"type:jsonb"`
	RawSummarizerResponse         string          `json:"raw_summarizer_response,omitempty" gorm:"type:text"`
}
