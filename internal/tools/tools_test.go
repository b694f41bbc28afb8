package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crissins/admit-care/internal/common/logger"
	"github.com/crissins/admit-care/internal/models"
	"github.com/crissins/admit-care/internal/search"
)

type fakeSearcher struct {
	docs    []search.Document
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]search.Document, error) {
	f.queries = append(f.queries, query)
	return f.docs, f.err
}

type memorySink struct {
	records []*models.IntakeRecord
	err     error
}

func (m *memorySink) Store(_ context.Context, record *models.IntakeRecord, _ json.RawMessage) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

type recordingNotifier struct {
	notified []string
}

func (n *recordingNotifier) AdmissionStored(_ context.Context, record *models.IntakeRecord) {
	n.notified = append(n.notified, record.AdmissionID)
}

func TestSet_DefinitionsPreserveRegistrationOrder(t *testing.T) {
	set := NewSet(
		NewSearchTool(&fakeSearcher{}, logger.NewNoOpLogger()),
		NewStoreTool(&memorySink{}, nil, logger.NewNoOpLogger()),
	)

	defs := set.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "search", defs[0]["name"])
	assert.Equal(t, "store", defs[1]["name"])
	assert.Equal(t, "function", defs[0]["type"])
}

func TestSet_UnknownToolRejected(t *testing.T) {
	set := NewSet(NewSearchTool(&fakeSearcher{}, logger.NewNoOpLogger()))

	_, err := set.Get("report_grounding")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNKNOWN_TOOL")
}

func TestSearchTool_FormatsHitsAsSourceBlocks(t *testing.T) {
	backend := &fakeSearcher{docs: []search.Document{
		{ID: "doc-1", Title: "Triage", Content: "Triage levels explained"},
		{ID: "doc-2", Title: "Visits", Content: "Visiting hours are 8am to 8pm"},
	}}
	tool := NewSearchTool(backend, logger.NewTestLogger(t))

	result, err := tool.Handler(context.Background(), json.RawMessage(`{"query": "triage"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"triage"}, backend.queries)
	assert.Contains(t, result.Body, "[doc-1]: Triage levels explained")
	assert.Contains(t, result.Body, "[doc-2]: Visiting hours are 8am to 8pm")
	assert.Contains(t, result.Body, "-----")
	assert.False(t, result.ObjectiveComplete)
}

func TestSearchTool_EmptyBackendResultIsValid(t *testing.T) {
	tool := NewSearchTool(&fakeSearcher{}, logger.NewTestLogger(t))

	result, err := tool.Handler(context.Background(), json.RawMessage(`{"query": "nothing"}`))
	require.NoError(t, err)
	assert.Empty(t, result.Body)
	assert.False(t, result.ObjectiveComplete)
}

func TestSearchTool_BackendErrorSurfaces(t *testing.T) {
	tool := NewSearchTool(&fakeSearcher{err: assert.AnError}, logger.NewTestLogger(t))

	_, err := tool.Handler(context.Background(), json.RawMessage(`{"query": "triage"}`))
	require.Error(t, err)
}

func storeArgumentsFor(t *testing.T, record *models.IntakeRecord) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"record": record})
	require.NoError(t, err)
	return raw
}

func completeRecord() *models.IntakeRecord {
	symptoms := make(map[string]models.Symptom, len(models.SymptomKeys))
	for _, key := range models.SymptomKeys {
		symptoms[key] = models.Symptom{HasSymptom: "no", Severity: "N/A", Frequency: "N/A", DaysAgoStarted: "N/A"}
	}
	return &models.IntakeRecord{
		PII: models.PII{
			Name:        "Jose Ramirez",
			DateOfBirth: "1975-09-30",
			ContactInfo: models.ContactInfo{Phone: "555-0111", Email: "N/A"},
			Address:     "N/A",
		},
		PHI: models.PHI{
			Pregnant:          models.Pregnancy{IsPregnant: "N/A", WeeksPregnant: "N/A", PreviousPregnancies: "N/A", PregnancyProblems: "N/A"},
			Symptoms:          symptoms,
			MedicalConditions: models.MedicalConditions{Asthma: "no", Diabetes: "no", HighBloodPressure: "no", HeartDisease: "no", KidneyDisease: "no", OtherConditions: "N/A"},
			Medications:       []models.Medication{},
			MentalHealth: models.MentalHealth{
				DepressionQuestions: models.DepressionQuestions{SuicidalThoughts: "no", ThoughtsOfHarmingOthers: "no"},
			},
			SubstanceUse: models.SubstanceUse{
				DrugUse:    models.DrugUse{UsesDrugs: "no", Frequency: "N/A", TypeOfDrugs: "N/A"},
				AlcoholUse: models.AlcoholUse{UsesAlcohol: "no", Frequency: "N/A"},
				TobaccoUse: models.TobaccoUse{UsesTobacco: "no", Frequency: "N/A", TypeOfTobacco: "N/A"},
			},
			NumbnessOrTingling: models.NumbnessOrTingling{HasSymptom: "no", Location: "N/A", Severity: "N/A", Frequency: "N/A"},
		},
		Contextual: models.ContextualInformation{LanguagePreference: "es", VisitType: "emergency", ReferralSource: "ambulance"},
	}
}

func TestStoreTool_PersistsValidRecordAndSignalsCompletion(t *testing.T) {
	sink := &memorySink{}
	notifier := &recordingNotifier{}
	tool := NewStoreTool(sink, notifier, logger.NewTestLogger(t))

	result, err := tool.Handler(context.Background(), storeArgumentsFor(t, completeRecord()))
	require.NoError(t, err)
	assert.True(t, result.ObjectiveComplete)

	require.Len(t, sink.records, 1)
	stored := sink.records[0]
	assert.NotEmpty(t, stored.AdmissionID)
	assert.Equal(t, "bot", stored.Metadata.CreatedBy)
	assert.Equal(t, []string{stored.AdmissionID}, notifier.notified)

	var ack map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Body), &ack))
	assert.Equal(t, "stored", ack["status"])
	assert.Equal(t, stored.AdmissionID, ack["admissionId"])
}

func TestStoreTool_AcceptsBareRecordArguments(t *testing.T) {
	sink := &memorySink{}
	tool := NewStoreTool(sink, nil, logger.NewTestLogger(t))

	raw, err := json.Marshal(completeRecord())
	require.NoError(t, err)

	result, err := tool.Handler(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, result.ObjectiveComplete)
	assert.Len(t, sink.records, 1)
}

func TestStoreTool_RejectsRecordMissingGroup(t *testing.T) {
	sink := &memorySink{}
	tool := NewStoreTool(sink, nil, logger.NewTestLogger(t))

	var doc map[string]json.RawMessage
	raw, err := json.Marshal(completeRecord())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	delete(doc, "PHI")
	trimmed, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = tool.Handler(context.Background(), trimmed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INTAKE_VALIDATION_FAILED")
	assert.Empty(t, sink.records)
}

func TestStoreTool_SinkFailureDoesNotSignalCompletion(t *testing.T) {
	tool := NewStoreTool(&memorySink{err: assert.AnError}, nil, logger.NewTestLogger(t))

	result, err := tool.Handler(context.Background(), storeArgumentsFor(t, completeRecord()))
	require.Error(t, err)
	assert.Nil(t, result)
}
