package pipeline

import (
	"strings"
	"testing"

	"radiance/radiance/prompts"
)

func TestApplyStageResultSummarizerDefaults(t *testing.T) {
	s := &Session{}
	fields := applyStageResult(s, prompts.Summarizer, "complete nonsense, no json at all 123")

	if s.Summarizer == nil {
		t.Fatal("expected a summarizer response")
	}
	if s.Summarizer.Summary == "" {
		t.Error("expected summary to be backfilled")
	}
	if s.Summarizer.UrgencyLevel != "routine" {
		t.Errorf("expected default urgency routine, got %q", s.Summarizer.UrgencyLevel)
	}
	if s.Summarizer.KeyFindings == nil || s.Summarizer.ActionPlan == nil {
		t.Error("list fields must be empty slices, not nil")
	}
	if _, ok := fields["summarizer_response"]; !ok {
		t.Error("expected summarizer_response column update")
	}
	if fields["raw_summarizer_response"] != "complete nonsense, no json at all 123" {
		t.Error("expected raw reply preserved verbatim in the column update")
	}
}

func TestApplyStageResultSpecialistInheritsSpecialty(t *testing.T) {
	s := &Session{
		GeneralPhysician: &GeneralPhysicianResponse{RecommendedSpecialistType: "Cardiologist"},
	}
	applyStageResult(s, prompts.SpecialistDoctor, `{"detailed_analysis": "reviewed"}`)

	if s.SpecialistDoctor == nil {
		t.Fatal("expected a specialist response")
	}
	if s.SpecialistDoctor.Specialty != "Cardiologist" {
		t.Errorf("expected specialty inherited from the physician, got %q", s.SpecialistDoctor.Specialty)
	}
}

func TestGeneralPhysicianDefaultsMirrorSpecialty(t *testing.T) {
	r := &GeneralPhysicianResponse{
		ReferenceData: GeneralPhysicianReference{RecommendedSpecialistType: "Dermatologist"},
	}
	r.fillDefaults()
	if r.RecommendedSpecialistType != "Dermatologist" {
		t.Errorf("expected top-level specialty mirrored from reference data, got %q", r.RecommendedSpecialistType)
	}

	none := &GeneralPhysicianResponse{}
	none.fillDefaults()
	if none.RecommendedSpecialistType != "" {
		t.Errorf("specialty must never be invented, got %q", none.RecommendedSpecialistType)
	}
}

func TestStagePlanThreadsReferenceData(t *testing.T) {
	o := newTestOrchestrator(&fakeLLM{}, nil)
	s := &Session{
		UserInput: sampleInput(),
		GeneralPhysician: &GeneralPhysicianResponse{
			Assessment:                "probable migraine assessment body",
			RecommendedSpecialistType: "Neurologist",
			ReferenceData: GeneralPhysicianReference{
				LikelyDiagnoses:           []string{"migraine"},
				RecommendedSpecialistType: "Neurologist",
			},
		},
		Nutritionist: &NutritionistResponse{
			ReferenceData: NutritionistReference{DietaryPriorities: []string{"hydration"}},
		},
	}

	system, msg, multimodal, err := o.stagePlan(s, prompts.Pharmacist)
	if err != nil {
		t.Fatalf("stagePlan failed: %v", err)
	}
	if multimodal {
		t.Error("pharmacist stage must be text-only")
	}
	if !strings.Contains(system, "Clinical Pharmacist") {
		t.Error("unexpected system prompt")
	}
	prompt, _ := msg.Content.(string)
	if !strings.Contains(prompt, "cetirizine") {
		t.Error("pharmacist prompt should list current medications")
	}
	if !strings.Contains(prompt, "migraine") {
		t.Error("pharmacist prompt should carry the physician reference data")
	}
	if !strings.Contains(prompt, "hydration") {
		t.Error("pharmacist prompt should carry the nutrition reference data")
	}
	if strings.Contains(prompt, "probable migraine assessment body") {
		t.Error("only reference data, not full responses, should be threaded")
	}
}

func TestStagePlanSummarizerAggregatesEverything(t *testing.T) {
	o := newTestOrchestrator(&fakeLLM{}, nil)
	s := &Session{
		UserInput: sampleInput(),
		MedicalAnalyst: &MedicalAnalystResponse{
			ReferenceData: MedicalAnalystReference{ReportSummary: "mild anemia"},
		},
		GeneralPhysician: &GeneralPhysicianResponse{
			ReferenceData: GeneralPhysicianReference{LikelyDiagnoses: []string{"migraine"}},
		},
		FollowUpSpecialist: &FollowUpSpecialistResponse{
			ReferenceData: FollowUpSpecialistReference{FollowUpActions: []string{"headache diary"}},
		},
	}

	_, msg, _, err := o.stagePlan(s, prompts.Summarizer)
	if err != nil {
		t.Fatalf("stagePlan failed: %v", err)
	}
	prompt, _ := msg.Content.(string)
	for _, want := range []string{"mild anemia", "migraine", "headache diary"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("summarizer prompt missing %q", want)
		}
	}
}
