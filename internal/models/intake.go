package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CreatedBy enumerates who produced an intake record.
const (
	CreatedByBot   = "bot"
	CreatedByStaff = "staff"
)

// NotAvailable is the placeholder accepted wherever the patient's answer is
// unknown.
const NotAvailable = "N/A"

// SymptomKeys is the fixed enumerated symptom set. Every key must be present
// in a stored record; "other" additionally carries a free-text description.
var SymptomKeys = []string{
	"fever",
	"vomit",
	"diarrhea",
	"nausea",
	"chills",
	"cough",
	"bleeding",
	"shortness_of_breath",
	"chest_pain",
	"headache",
	"dizziness",
	"other",
}

// FlexValue accepts either a JSON string or a JSON number; the realtime
// model emits severity and day counts in both shapes.
type FlexValue string

func (f *FlexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexValue(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = FlexValue(b)
	return nil
}

func (f FlexValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// IsNA reports whether the value is the unknown-answer placeholder.
func (f FlexValue) IsNA() bool {
	return strings.EqualFold(string(f), NotAvailable)
}

// IntakeRecord is the structured medical-intake document produced exactly
// once per completed session. Immutable once stored.
type IntakeRecord struct {
	AdmissionID string                `json:"admissionId"`
	PII         PII                   `json:"PII"`
	PHI         PHI                   `json:"PHI"`
	Contextual  ContextualInformation `json:"contextual_information"`
	Metadata    RecordMetadata        `json:"metadata"`
}

type PII struct {
	Name        string      `json:"name"`
	DateOfBirth string      `json:"date_of_birth"`
	ContactInfo ContactInfo `json:"contact_info"`
	Address     string      `json:"address"`
}

type ContactInfo struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type PHI struct {
	Pregnant           Pregnancy          `json:"pregnant"`
	Symptoms           map[string]Symptom `json:"symptoms"`
	MedicalConditions  MedicalConditions  `json:"medical_conditions"`
	Medications        []Medication       `json:"medications"`
	MentalHealth       MentalHealth       `json:"mental_health"`
	SubstanceUse       SubstanceUse       `json:"substance_use"`
	NumbnessOrTingling NumbnessOrTingling `json:"numbness_or_tingling"`
}

type Pregnancy struct {
	IsPregnant          string    `json:"is_pregnant"`
	WeeksPregnant       FlexValue `json:"weeks_pregnant"`
	PreviousPregnancies FlexValue `json:"previous_pregnancies"`
	PregnancyProblems   string    `json:"pregnancy_problems"`
}

type Symptom struct {
	HasSymptom     string    `json:"has_symptom,omitempty"`
	Description    string    `json:"description,omitempty"` // "other" only
	Severity       FlexValue `json:"severity"`
	Frequency      string    `json:"frequency"`
	DaysAgoStarted FlexValue `json:"days_ago_started"`
}

type MedicalConditions struct {
	Asthma            string `json:"asthma"`
	Diabetes          string `json:"diabetes"`
	HighBloodPressure string `json:"high_blood_pressure"`
	HeartDisease      string `json:"heart_disease"`
	KidneyDisease     string `json:"kidney_disease"`
	OtherConditions   string `json:"other_conditions"`
}

type Medication struct {
	Name      string `json:"name"`
	Dose      string `json:"dose"`
	Frequency string `json:"frequency"`
	StartDate string `json:"start_date"`
}

type MentalHealth struct {
	DepressionQuestions DepressionQuestions `json:"depression_questions"`
}

type DepressionQuestions struct {
	SuicidalThoughts        string `json:"suicidal_thoughts"`
	ThoughtsOfHarmingOthers string `json:"thoughts_of_harming_others"`
}

type SubstanceUse struct {
	DrugUse    DrugUse    `json:"drug_use"`
	AlcoholUse AlcoholUse `json:"alcohol_use"`
	TobaccoUse TobaccoUse `json:"tobacco_use"`
}

type DrugUse struct {
	UsesDrugs   string `json:"uses_drugs"`
	Frequency   string `json:"frequency"`
	TypeOfDrugs string `json:"type_of_drugs"`
}

type AlcoholUse struct {
	UsesAlcohol string `json:"uses_alcohol"`
	Frequency   string `json:"frequency"`
}

type TobaccoUse struct {
	UsesTobacco   string `json:"uses_tobacco"`
	Frequency     string `json:"frequency"`
	TypeOfTobacco string `json:"type_of_tobacco"`
}

type NumbnessOrTingling struct {
	HasSymptom string    `json:"has_symptom"`
	Location   string    `json:"location"`
	Severity   FlexValue `json:"severity"`
	Frequency  string    `json:"frequency"`
}

type ContextualInformation struct {
	LanguagePreference string `json:"language_preference"`
	VisitType          string `json:"visit_type"`
	ReferralSource     string `json:"referral_source"`
}

type RecordMetadata struct {
	CreatedAt string `json:"created_at"`
	CreatedBy string `json:"created_by"`
	PatientID string `json:"patient_id"`
}

// IsPlaceholder reports whether a value is still the unpopulated template
// placeholder ("[...]"), empty, or the unknown-answer marker.
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, NotAvailable) {
		return true
	}
	return strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]")
}
