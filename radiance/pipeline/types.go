// radiance/pipeline/types.go
package pipeline

import (
	"strings"
	"time"

	"radiance/radiance/prompts"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// TotalStages is the number of stages in the diagnosis chain.
const TotalStages = 8

// Chain is the fixed stage order; chain index i runs when CurrentStep == i.
var Chain = [TotalStages]prompts.Role{
	prompts.MedicalAnalyst,
	prompts.GeneralPhysician,
	prompts.SpecialistDoctor,
	prompts.Pathologist,
	prompts.Nutritionist,
	prompts.Pharmacist,
	prompts.FollowUpSpecialist,
	prompts.Summarizer,
}

type Duration struct {
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// ReportArtifact is the optional medical report the patient uploads: free
// text, an image reference, or both. Its presence decides whether the
// Medical Analyst stage runs at all.
type ReportArtifact struct {
	Type     string `json:"type,omitempty"`
	Name     string `json:"name,omitempty"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

func (r *ReportArtifact) Present() bool {
	return r != nil && (strings.TrimSpace(r.Text) != "" || strings.TrimSpace(r.ImageURL) != "")
}

func (r *ReportArtifact) HasImage() bool {
	return r != nil && strings.TrimSpace(r.ImageURL) != ""
}

// UserInput is the caller-supplied patient payload; immutable once the
// session is created.
type UserInput struct {
	Age      int     `json:"age"`
	Gender   string  `json:"gender"`
	HeightCM float64 `json:"height_cm"`
	WeightKG float64 `json:"weight_kg"`

	SymptomDescription string   `json:"symptom_description"`
	Symptoms           []string `json:"symptoms"`
	Duration           Duration `json:"duration"`

	ExistingConditions []string `json:"existing_conditions"`
	Medications        []string `json:"medications"`
	Allergies          []string `json:"allergies"`

	Report *ReportArtifact `json:"report,omitempty"`
}

// Session is the unit of work. Response pairs are written exactly once, by
// their stage; a nil response means the stage has not run (or, for the
// Medical Analyst only, was skipped).
type Session struct {
	ID           string    `json:"id"`
	UserID       int       `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UserInput    UserInput `json:"user_input"`
	Status       Status    `json:"status"`
	CurrentStep  int       `json:"current_step"`
	ErrorMessage string    `json:"error_message,omitempty"`

	MedicalAnalyst        *MedicalAnalystResponse `json:"medical_analyst_response,omitempty"`
	RawMedicalAnalyst     string                  `json:"raw_medical_analyst_response,omitempty"`
	GeneralPhysician      *GeneralPhysicianResponse `json:"general_physician_response,omitempty"`
	RawGeneralPhysician   string                    `json:"raw_general_physician_response,omitempty"`
	SpecialistDoctor      *SpecialistDoctorResponse `json:"specialist_doctor_response,omitempty"`
	RawSpecialistDoctor   string                    `json:"raw_specialist_doctor_response,omitempty"`
	Pathologist           *PathologistResponse      `json:"pathologist_response,omitempty"`
	RawPathologist        string                    `json:"raw_pathologist_response,omitempty"`
	Nutritionist          *NutritionistResponse     `json:"nutritionist_response,omitempty"`
	RawNutritionist       string                    `json:"raw_nutritionist_response,omitempty"`
	Pharmacist            *PharmacistResponse       `json:"pharmacist_response,omitempty"`
	RawPharmacist         string                    `json:"raw_pharmacist_response,omitempty"`
	FollowUpSpecialist    *FollowUpSpecialistResponse `json:"follow_up_specialist_response,omitempty"`
	RawFollowUpSpecialist string                      `json:"raw_follow_up_specialist_response,omitempty"`
	Summarizer            *SummarizerResponse `json:"summarizer_response,omitempty"`
	RawSummarizer         string              `json:"raw_summarizer_response,omitempty"`

	// Persisted flips to false when the store degrades; the session then
	// lives only in memory.
	Persisted bool `json:"-"`
}

const defaultDisclaimer = "This is an AI-generated analysis and does not replace consultation with a qualified medical professional."

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func orEmptyList(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}

// --- Medical Analyst ---

type MedicalAnalystReference struct {
	KeyFindings    []string `json:"key_findings"`
	AbnormalValues []string `json:"abnormal_values"`
	ReportSummary  string   `json:"report_summary"`
}

type MedicalAnalystResponse struct {
	Role           string                  `json:"role"`
	Findings       []string                `json:"findings"`
	Abnormalities  []string                `json:"abnormalities"`
	Interpretation string                  `json:"interpretation"`
	Disclaimer     string                  `json:"disclaimer"`
	ReferenceText  string                  `json:"reference_text,omitempty"`
	ReferenceData  MedicalAnalystReference `json:"reference_data_for_next_role"`
}

func (r *MedicalAnalystResponse) fillDefaults() {
	r.Role = orDefault(r.Role, "Medical Analyst")
	r.Findings = orEmptyList(r.Findings)
	r.Abnormalities = orEmptyList(r.Abnormalities)
	r.Interpretation = orDefault(r.Interpretation, "The report could not be interpreted automatically; see reference text.")
	r.Disclaimer = orDefault(r.Disclaimer, defaultDisclaimer)
	r.ReferenceData.KeyFindings = orEmptyList(r.ReferenceData.KeyFindings)
	r.ReferenceData.AbnormalValues = orEmptyList(r.ReferenceData.AbnormalValues)
	r.ReferenceData.ReportSummary = orDefault(r.ReferenceData.ReportSummary, orDefault(r.ReferenceText, r.Interpretation))
}

// --- General Physician ---

type GeneralPhysicianReference struct {
	LikelyDiagnoses           []string `json:"likely_diagnoses"`
	RecommendedSpecialistType string   `json:"recommended_specialist_type"`
	KeyConcerns               []string `json:"key_concerns"`
	UrgentFlags               []string `json:"urgent_flags"`
}

type GeneralPhysicianResponse struct {
	Role                      string                    `json:"role"`
	Assessment                string                    `json:"assessment"`
	DifferentialDiagnoses     []string                  `json:"differential_diagnoses"`
	RecommendedSpecialistType string                    `json:"recommended_specialist_type"`
	RecommendedTests          []string                  `json:"recommended_tests"`
	Disclaimer                string                    `json:"disclaimer"`
	ReferenceText             string                    `json:"reference_text,omitempty"`
	ReferenceData             GeneralPhysicianReference `json:"reference_data_for_next_role"`
}

func (r *GeneralPhysicianResponse) fillDefaults() {
	r.Role = orDefault(r.Role, "General Physician")
	r.Assessment = orDefault(r.Assessment, "No structured assessment was produced; see reference text.")
	r.DifferentialDiagnoses = orEmptyList(r.DifferentialDiagnoses)
	r.RecommendedTests = orEmptyList(r.RecommendedTests)
	r.Disclaimer = orDefault(r.Disclaimer, defaultDisclaimer)
	r.ReferenceData.LikelyDiagnoses = orEmptyList(r.ReferenceData.LikelyDiagnoses)
	r.ReferenceData.KeyConcerns = orEmptyList(r.ReferenceData.KeyConcerns)
	r.ReferenceData.UrgentFlags = orEmptyList(r.ReferenceData.UrgentFlags)
	// The specialist type is deliberately NOT defaulted: stage 3 must halt
	// when the physician produced none. Only mirror between the two spots.
	if r.ReferenceData.RecommendedSpecialistType == "" {
		r.ReferenceData.RecommendedSpecialistType = r.RecommendedSpecialistType
	}
	if r.RecommendedSpecialistType == "" {
		r.RecommendedSpecialistType = r.ReferenceData.RecommendedSpecialistType
	}
}

// --- Specialist Doctor ---

type SpecialistDoctorReference struct {
	PossibleConditions  []string `json:"possible_conditions"`
	RecommendedTests    []string `json:"recommended_tests"`
	TreatmentDirections []string `json:"treatment_directions"`
}

type SpecialistDoctorResponse struct {
	Role                string                    `json:"role"`
	Specialty           string                    `json:"specialty"`
	DetailedAnalysis    string                    `json:"detailed_analysis"`
	PossibleConditions  []string                  `json:"possible_conditions"`
	RecommendedTests    []string                  `json:"recommended_tests"`
	TreatmentDirections []string                  `json:"treatment_directions"`
	Disclaimer          string                    `json:"disclaimer"`
	ReferenceText       string                    `json:"reference_text,omitempty"`
	ReferenceData       SpecialistDoctorReference `json:"reference_data_for_next_role"`
}

func (r *SpecialistDoctorResponse) fillDefaults() {
	r.Role = orDefault(r.Role, "Specialist Doctor")
	r.DetailedAnalysis = orDefault(r.DetailedAnalysis, "No structured analysis was produced; see reference text.")
	r.PossibleConditions = orEmptyList(r.PossibleConditions)
	r.RecommendedTests = orEmptyList(r.RecommendedTests)
	r.TreatmentDirections = orEmptyList(r.TreatmentDirections)
	r.Disclaimer = orDefault(r.Disclaimer, defaultDisclaimer)
	if len(r.ReferenceData.PossibleConditions) == 0 {
		r.ReferenceData.PossibleConditions = r.PossibleConditions
	}
	r.ReferenceData.PossibleConditions = orEmptyList(r.ReferenceData.PossibleConditions)
	r.ReferenceData.RecommendedTests = orEmptyList(r.ReferenceData.RecommendedTests)
	r.ReferenceData.TreatmentDirections = orEmptyList(r.ReferenceData.TreatmentDirections)
}

// --- Pathologist ---

type PathologistReference struct {
	RecommendedLabTests []string `json:"recommended_lab_tests"`
	ExpectedFindings    []string `json:"expected_findings"`
}

type PathologistResponse struct {
	Role                string               `json:"role"`
	LabInterpretation   string               `json:"lab_interpretation"`
	RecommendedLabTests []string             `json:"recommended_lab_tests"`
	TestRationale       string               `json:"test_rationale"`
	Disclaimer          string               `json:"disclaimer"`
	ReferenceText       string               `json:"reference_text,omitempty"`
	ReferenceData       PathologistReference `json:"reference_data_for_next_role"`
}

func (r *PathologistResponse) fillDefaults() {
	r.Role = orDefault(r.Role, "Pathologist")
	r.LabInterpretation = orDefault(r.LabInterpretation, "No structured interpretation was produced; see reference text.")
	r.RecommendedLabTests = orEmptyList(r.RecommendedLabTests)
	r.TestRationale = orDefault(r.TestRationale, "Not specified.")
	r.Disclaimer = orDefault(r.Disclaimer, defaultDisclaimer)
	if len(r.ReferenceData.RecommendedLabTests) == 0 {
		r.ReferenceData.RecommendedLabTests = r.RecommendedLabTests
	}
	r.ReferenceData.RecommendedLabTests = orEmptyList(r.ReferenceData.RecommendedLabTests)
	r.ReferenceData.ExpectedFindings = orEmptyList(r.ReferenceData.ExpectedFindings)
}

// --- Nutritionist ---

type NutritionistReference struct {
	DietaryPriorities []string `json:"dietary_priorities"`
	Restrictions      []string `json:"restrictions"`
}

type NutritionistResponse struct {
	Role              string                `json:"role"`
	DietaryAssessment string                `json:"dietary_assessment"`
	FoodsToInclude    []string              `json:"foods_to_include"`
	FoodsToAvoid      []string              `json:"foods_to_avoid"`
	MealPlanSummary   string                `json:"meal_plan_summary"`
	Disclaimer        string                `json:"disclaimer"`
	ReferenceText     string                `json:"reference_text,omitempty"`
	ReferenceData     NutritionistReference `json:"reference_data_for_next_role"`
}

func (r *NutritionistResponse) fillDefaults() {
	r.Role = orDefault(r.Role, "Nutritionist")
	r.DietaryAssessment = orDefault(r.DietaryAssessment, "No structured assessment was produced; see reference text.")
	r.FoodsToInclude = orEmptyList(r.FoodsToInclude)
	r.FoodsToAvoid = orEmptyList(r.FoodsToAvoid)
	r.MealPlanSummary = orDefault(r.MealPlanSummary, "Not specified.")
	r.Disclaimer = orDefault(r.Disclaimer, defaultDisclaimer)
	r.ReferenceData.DietaryPriorities = orEmptyList(r.ReferenceData.DietaryPriorities)
	r.ReferenceData.Restrictions = orEmptyList(r.ReferenceData.Restrictions)
}

// --- Pharmacist ---

type PharmacistReference struct {
	MedicationNotes     []string `json:"medication_notes"`
	InteractionWarnings []string `json:"interaction_warnings"`
}

type PharmacistResponse struct {
	Role                string              `json:"role"`
	MedicationReview    string              `json:"medication_review"`
	OTCSuggestions      []string            `json:"otc_suggestions"`
	InteractionWarnings []string            `json:"interaction_warnings"`
	Disclaimer          string              `json:"disclaimer"`
	ReferenceText       string              `json:"reference_text,omitempty"`
	ReferenceData       PharmacistReference `json:"reference_data_for_next_role"`
}

func (r *PharmacistResponse) fillDefaults() {
	r.Role = orDefault(r.Role, "Pharmacist")
	r.MedicationReview = orDefault(r.MedicationReview, "No structured review was produced; see reference text.")
	r.OTCSuggestions = orEmptyList(r.OTCSuggestions)
	r.InteractionWarnings = orEmptyList(r.InteractionWarnings)
	r.Disclaimer = orDefault(r.Disclaimer, defaultDisclaimer)
	r.ReferenceData.MedicationNotes = orEmptyList(r.ReferenceData.MedicationNotes)
	if len(r.ReferenceData.InteractionWarnings) == 0 {
		r.ReferenceData.InteractionWarnings = r.InteractionWarnings
	}
	r.ReferenceData.InteractionWarnings = orEmptyList(r.ReferenceData.InteractionWarnings)
}

// --- Follow-up Specialist ---

type FollowUpSpecialistReference struct {
	FollowUpActions []string `json:"follow_up_actions"`
	WarningSigns    []string `json:"warning_signs"`
}

type FollowUpSpecialistResponse struct {
	Role                  string                      `json:"role"`
	FollowUpPlan          string                      `json:"follow_up_plan"`
	MonitoringPoints      []string                    `json:"monitoring_points"`
	WarningSigns          []string                    `json:"warning_signs"`
	NextAppointmentWindow string                      `json:"next_appointment_window"`
	Disclaimer            string                      `json:"disclaimer"`
	ReferenceText         string                      `json:"reference_text,omitempty"`
	ReferenceData         FollowUpSpecialistReference `json:"reference_data_for_next_role"`
}

func (r *FollowUpSpecialistResponse) fillDefaults() {
	r.Role = orDefault(r.Role, "Follow-up Specialist")
	r.FollowUpPlan = orDefault(r.FollowUpPlan, "No structured plan was produced; see reference text.")
	r.MonitoringPoints = orEmptyList(r.MonitoringPoints)
	r.WarningSigns = orEmptyList(r.WarningSigns)
	r.NextAppointmentWindow = orDefault(r.NextAppointmentWindow, "as soon as practical")
	r.Disclaimer = orDefault(r.Disclaimer, defaultDisclaimer)
	if len(r.ReferenceData.WarningSigns) == 0 {
		r.ReferenceData.WarningSigns = r.WarningSigns
	}
	r.ReferenceData.FollowUpActions = orEmptyList(r.ReferenceData.FollowUpActions)
	r.ReferenceData.WarningSigns = orEmptyList(r.ReferenceData.WarningSigns)
}

// --- Summarizer ---

type SummarizerReference struct {
	Headline     string `json:"headline"`
	UrgencyLevel string `json:"urgency_level"`
}

type SummarizerResponse struct {
	Role          string              `json:"role"`
	Summary       string              `json:"summary"`
	KeyFindings   []string            `json:"key_findings"`
	ActionPlan    []string            `json:"action_plan"`
	UrgencyLevel  string              `json:"urgency_level"`
	Disclaimer    string              `json:"disclaimer"`
	ReferenceText string              `json:"reference_text,omitempty"`
	ReferenceData SummarizerReference `json:"reference_data_for_next_role"`
}

func (r *SummarizerResponse) fillDefaults() {
	r.Role = orDefault(r.Role, "Summarizer")
	r.Summary = orDefault(r.Summary, orDefault(r.ReferenceText, "No summary was produced."))
	r.KeyFindings = orEmptyList(r.KeyFindings)
	r.ActionPlan = orEmptyList(r.ActionPlan)
	r.UrgencyLevel = orDefault(r.UrgencyLevel, "routine")
	r.Disclaimer = orDefault(r.Disclaimer, defaultDisclaimer)
	r.ReferenceData.Headline = orDefault(r.ReferenceData.Headline, r.UrgencyLevel)
	r.ReferenceData.UrgencyLevel = orDefault(r.ReferenceData.UrgencyLevel, r.UrgencyLevel)
}
