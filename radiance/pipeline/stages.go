// radiance/pipeline/stages.go
//
// One stage run is always the same five moves: compose the system prompt via
// the registry, compose the user prompt from the patient input plus the
// prior stages' reference data, call the completion backend, run the raw
// reply through the tolerant extractor, and backfill defaults so the result
// is always renderable. Only the prompt content and the typed shape differ
// per role.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"radiance/radiance/prompts"
	"radiance/radiance/services/llm"
	"radiance/radiance/utils/jsonutils"
)

// ErrMissingSpecialty halts the chain when the General Physician produced no
// recommended_specialist_type. There is no silent default specialty.
var ErrMissingSpecialty = errors.New("general physician output has no recommended_specialist_type; cannot dispatch specialist stage")

func (in UserInput) profile() map[string]interface{} {
	return map[string]interface{}{
		"age":                 in.Age,
		"gender":              in.Gender,
		"height_cm":           in.HeightCM,
		"weight_kg":           in.WeightKG,
		"symptom_description": in.SymptomDescription,
		"symptoms":            in.Symptoms,
		"symptom_duration":    fmt.Sprintf("%s %s", in.Duration.Value, in.Duration.Unit),
		"existing_conditions": in.ExistingConditions,
		"medications":         in.Medications,
		"allergies":           in.Allergies,
	}
}

func section(title string, v interface{}) string {
	return fmt.Sprintf("%s:\n%s\n\n", title, jsonutils.ToJSON(v))
}

// stagePlan resolves everything needed to invoke one stage: the system
// prompt, the user message (possibly multimodal), and whether the request
// carries image content. Fails only for the missing-specialty case.
func (o *Orchestrator) stagePlan(s *Session, role prompts.Role) (system string, userMsg llm.Message, multimodal bool, err error) {
	specialty := ""
	if role == prompts.SpecialistDoctor {
		if s.GeneralPhysician == nil || s.GeneralPhysician.RecommendedSpecialistType == "" {
			return "", llm.Message{}, false, ErrMissingSpecialty
		}
		specialty = s.GeneralPhysician.RecommendedSpecialistType
	}

	system, err = prompts.For(role, specialty)
	if err != nil {
		return "", llm.Message{}, false, err
	}

	var prompt string
	switch role {
	case prompts.MedicalAnalyst:
		prompt = section("Patient profile", s.UserInput.profile())
		report := s.UserInput.Report
		if report != nil {
			label := report.Type
			if report.Name != "" {
				label = fmt.Sprintf("%s (%s)", label, report.Name)
			}
			if report.Text != "" {
				prompt += fmt.Sprintf("Medical report %s:\n%s\n\n", label, report.Text)
			}
			if report.HasImage() {
				prompt += fmt.Sprintf("A scanned image of the report %s is attached.\n", label)
				parts := []llm.ContentPart{
					llm.TextPart(prompt),
					llm.ImagePart(report.ImageURL),
				}
				return system, llm.MultimodalMessage("user", parts), true, nil
			}
		}

	case prompts.GeneralPhysician:
		prompt = section("Patient profile", s.UserInput.profile())
		if s.MedicalAnalyst != nil {
			prompt += section("Medical report analysis (from Medical Analyst)", s.MedicalAnalyst.ReferenceData)
		} else {
			prompt += "No medical report was provided for this patient.\n"
		}

	case prompts.SpecialistDoctor:
		prompt = section("Patient profile", s.UserInput.profile())
		if s.MedicalAnalyst != nil {
			prompt += section("Medical report analysis (from Medical Analyst)", s.MedicalAnalyst.ReferenceData)
		}
		prompt += section("General Physician assessment", s.GeneralPhysician.ReferenceData)

	case prompts.Pathologist:
		prompt = section("Patient profile", s.UserInput.profile())
		prompt += section("General Physician assessment", s.GeneralPhysician.ReferenceData)
		if s.SpecialistDoctor != nil {
			prompt += section("Specialist consultation", s.SpecialistDoctor.ReferenceData)
		}

	case prompts.Nutritionist:
		prompt = section("Patient profile", s.UserInput.profile())
		prompt += section("General Physician assessment", s.GeneralPhysician.ReferenceData)
		if s.SpecialistDoctor != nil {
			prompt += section("Specialist consultation", s.SpecialistDoctor.ReferenceData)
		}
		if s.Pathologist != nil {
			prompt += section("Pathology guidance", s.Pathologist.ReferenceData)
		}

	case prompts.Pharmacist:
		prompt = section("Patient medications and allergies", map[string]interface{}{
			"medications":         s.UserInput.Medications,
			"allergies":           s.UserInput.Allergies,
			"existing_conditions": s.UserInput.ExistingConditions,
		})
		prompt += section("General Physician assessment", s.GeneralPhysician.ReferenceData)
		if s.SpecialistDoctor != nil {
			prompt += section("Specialist consultation", s.SpecialistDoctor.ReferenceData)
		}
		if s.Nutritionist != nil {
			prompt += section("Nutrition guidance", s.Nutritionist.ReferenceData)
		}

	case prompts.FollowUpSpecialist:
		prompt = section("General Physician assessment", s.GeneralPhysician.ReferenceData)
		if s.SpecialistDoctor != nil {
			prompt += section("Specialist consultation", s.SpecialistDoctor.ReferenceData)
		}
		if s.Pathologist != nil {
			prompt += section("Pathology guidance", s.Pathologist.ReferenceData)
		}
		if s.Pharmacist != nil {
			prompt += section("Pharmacy review", s.Pharmacist.ReferenceData)
		}

	case prompts.Summarizer:
		prompt = section("Patient profile", s.UserInput.profile())
		if s.MedicalAnalyst != nil {
			prompt += section("Medical report analysis", s.MedicalAnalyst.ReferenceData)
		}
		if s.GeneralPhysician != nil {
			prompt += section("General Physician assessment", s.GeneralPhysician.ReferenceData)
		}
		if s.SpecialistDoctor != nil {
			prompt += section("Specialist consultation", s.SpecialistDoctor.ReferenceData)
		}
		if s.Pathologist != nil {
			prompt += section("Pathology guidance", s.Pathologist.ReferenceData)
		}
		if s.Nutritionist != nil {
			prompt += section("Nutrition guidance", s.Nutritionist.ReferenceData)
		}
		if s.Pharmacist != nil {
			prompt += section("Pharmacy review", s.Pharmacist.ReferenceData)
		}
		if s.FollowUpSpecialist != nil {
			prompt += section("Follow-up plan", s.FollowUpSpecialist.ReferenceData)
		}
	}

	return system, llm.TextMessage("user", prompt), false, nil
}

// applyStageResult extracts the typed response for role from the raw model
// text, backfills defaults, writes the pair onto the session, and returns
// the column updates to persist. Extraction never fails, so neither does
// this.
func applyStageResult(s *Session, role prompts.Role, raw string) map[string]interface{} {
	switch role {
	case prompts.MedicalAnalyst:
		resp := jsonutils.Extract[MedicalAnalystResponse](raw)
		resp.fillDefaults()
		s.MedicalAnalyst = &resp
		s.RawMedicalAnalyst = raw
		return map[string]interface{}{
			"medical_analyst_response":     mustJSON(&resp),
			"raw_medical_analyst_response": raw,
		}
	case prompts.GeneralPhysician:
		resp := jsonutils.Extract[GeneralPhysicianResponse](raw)
		resp.fillDefaults()
		s.GeneralPhysician = &resp
		s.RawGeneralPhysician = raw
		return map[string]interface{}{
			"general_physician_response":     mustJSON(&resp),
			"raw_general_physician_response": raw,
		}
	case prompts.SpecialistDoctor:
		resp := jsonutils.Extract[SpecialistDoctorResponse](raw)
		if resp.Specialty == "" && s.GeneralPhysician != nil {
			resp.Specialty = s.GeneralPhysician.RecommendedSpecialistType
		}
		resp.fillDefaults()
		s.SpecialistDoctor = &resp
		s.RawSpecialistDoctor = raw
		return map[string]interface{}{
			"specialist_doctor_response":     mustJSON(&resp),
			"raw_specialist_doctor_response": raw,
		}
	case prompts.Pathologist:
		resp := jsonutils.Extract[PathologistResponse](raw)
		resp.fillDefaults()
		s.Pathologist = &resp
		s.RawPathologist = raw
		return map[string]interface{}{
			"pathologist_response":     mustJSON(&resp),
			"raw_pathologist_response": raw,
		}
	case prompts.Nutritionist:
		resp := jsonutils.Extract[NutritionistResponse](raw)
		resp.fillDefaults()
		s.Nutritionist = &resp
		s.RawNutritionist = raw
		return map[string]interface{}{
			"nutritionist_response":     mustJSON(&resp),
			"raw_nutritionist_response": raw,
		}
	case prompts.Pharmacist:
		resp := jsonutils.Extract[PharmacistResponse](raw)
		resp.fillDefaults()
		s.Pharmacist = &resp
		s.RawPharmacist = raw
		return map[string]interface{}{
			"pharmacist_response":     mustJSON(&resp),
			"raw_pharmacist_response": raw,
		}
	case prompts.FollowUpSpecialist:
		resp := jsonutils.Extract[FollowUpSpecialistResponse](raw)
		resp.fillDefaults()
		s.FollowUpSpecialist = &resp
		s.RawFollowUpSpecialist = raw
		return map[string]interface{}{
			"follow_up_specialist_response":     mustJSON(&resp),
			"raw_follow_up_specialist_response": raw,
		}
	case prompts.Summarizer:
		resp := jsonutils.Extract[SummarizerResponse](raw)
		resp.fillDefaults()
		s.Summarizer = &resp
		s.RawSummarizer = raw
		return map[string]interface{}{
			"summarizer_response":     mustJSON(&resp),
			"raw_summarizer_response": raw,
		}
	}
	return map[string]interface{}{}
}

// complete issues the stage's completion call. Streaming is attempted once
// when a sink is present; a stream setup failure or a severed transport falls
// back to exactly one non-streaming retry, discarding any truncated partial
// text. A cancelled or timed-out context is a completion failure, never a
// retry. Image-bearing requests are always sent non-streaming (a deliberate
// policy of the chain, not an oversight).
func (o *Orchestrator) complete(ctx context.Context, model, system string, userMsg llm.Message, multimodal bool, sink chan<- llm.StreamChunk) (string, error) {
	req := llm.ChatRequest{
		Model:       model,
		Messages:    []llm.Message{llm.TextMessage("system", system), userMsg},
		Temperature: 0.2,
		MaxTokens:   4096,
	}

	if sink != nil && !multimodal {
		ch, err := o.LLM.RunStream(ctx, req)
		if err == nil {
			var content string
			var termErr error
			for chunk := range ch {
				if chunk.Err != nil {
					// terminal error chunk; not forwarded downstream so the
					// retry below still owns the single Final chunk
					termErr = chunk.Err
					continue
				}
				if chunk.Delta != "" {
					content += chunk.Delta
				}
				select {
				case sink <- chunk:
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			if termErr == nil {
				return content, nil
			}
			if errors.Is(termErr, context.Canceled) || errors.Is(termErr, context.DeadlineExceeded) || ctx.Err() != nil {
				return "", termErr
			}
			// severed mid-stream: drop the truncated text, retry in batch mode
		}
		// one non-streaming retry of the same stage
	}

	result, err := o.LLM.Run(ctx, req)
	if err != nil {
		return "", err
	}
	if sink != nil {
		select {
		case sink <- llm.StreamChunk{Delta: result.Content}:
		case <-ctx.Done():
		}
		select {
		case sink <- llm.StreamChunk{Final: true}:
		case <-ctx.Done():
		}
	}
	return result.Content, nil
}
