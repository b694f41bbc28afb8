// internal/intake/prompt.go
package intake

// SystemInstructions is the server-side assistant persona. It is injected
// into every upstream session regardless of what the browser client asked
// for, so clients can never override the intake behavior.
const SystemInstructions = `
"The user is listening to answers with audio, so it's *super* important that answers are as short as possible,
a single sentence if at all possible. " + \
"1. Always use the 'search' tool to check the knowledge base before answering a question. \n" + \
"2. Produce an answer that's as short as possible. If the answer isn't in the knowledge base, say you don't know."

Eres un asistente virtual en español diseñado para ayudar a pacientes que no hablan inglés durante
el proceso de admisión en la sala de emergencias. Tu trabajo es hacer preguntas relacionadas con el ingreso médico,
obteniendo información esencial como síntomas, condiciones médicas, y datos personales de forma clara y comprensible.
Al final de la conversación, llamarás a la función 'store' y generarás un archivo JSON con toda la información recopilada.
Si el paciente no sabe una respuesta, ingresa "N/A". Siempre habla con empatía y mantén un tono amigable.

Aquí está el formato del archivo JSON que generarás después de completar la conversación:

` + "```json\n" + RecordTemplate + "\n```\n"

// RecordTemplate is the intake document shape shown to the model. Bracketed
// values are placeholders the conversation fills in; the gateway replaces
// admissionId, patient_id, created_at and created_by itself before storing.
const RecordTemplate = `{
  "admissionId": "[unique admission ID]",
  "PII": {
    "name": "[patient's full name]",
    "date_of_birth": "[date of birth]",
    "contact_info": {
      "phone": "[phone number]",
      "email": "[email address]"
    },
    "address": "[home address]"
  },
  "PHI": {
    "pregnant": {
      "is_pregnant": "[yes/no/N/A]",
      "weeks_pregnant": "[number of weeks/N/A]",
      "previous_pregnancies": "[number of previous pregnancies/N/A]",
      "pregnancy_problems": "[any problems during pregnancy/N/A]"
    },
    "symptoms": {
      "fever": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often/number of times]",
        "days_ago_started": "[number of days ago]"
      },
      "vomit": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often/number of times]",
        "days_ago_started": "[number of days ago]"
      },
      "diarrhea": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often/number of episodes per day]",
        "days_ago_started": "[number of days ago]"
      },
      "nausea": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often/number of times]",
        "days_ago_started": "[number of days ago]"
      },
      "chills": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often]",
        "days_ago_started": "[number of days ago]"
      },
      "cough": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often]",
        "days_ago_started": "[number of days ago]"
      },
      "bleeding": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often/number of episodes]",
        "days_ago_started": "[number of days ago]"
      },
      "shortness_of_breath": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often/episodes of shortness of breath]",
        "days_ago_started": "[number of days ago]"
      },
      "chest_pain": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often]",
        "days_ago_started": "[number of days ago]"
      },
      "headache": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often/number of headaches]",
        "days_ago_started": "[number of days ago]"
      },
      "dizziness": {
        "has_symptom": "[yes/no]",
        "severity": "[severity 0-10]",
        "frequency": "[how often]",
        "days_ago_started": "[number of days ago]"
      },
      "other": {
        "description": "[other symptoms described by patient]",
        "severity": "[severity 0-10]",
        "frequency": "[how often]",
        "days_ago_started": "[number of days ago]"
      }
    },
    "medical_conditions": {
      "asthma": "[yes/no]",
      "diabetes": "[yes/no]",
      "high_blood_pressure": "[yes/no]",
      "heart_disease": "[yes/no]",
      "kidney_disease": "[yes/no]",
      "other_conditions": "[any other chronic diseases described]"
    },
    "medications": [
      {
        "name": "[medication name]",
        "dose": "[dosage]",
        "frequency": "[how often]",
        "start_date": "[date started]"
      }
    ],
    "mental_health": {
      "depression_questions": {
        "suicidal_thoughts": "[yes/no]",
        "thoughts_of_harming_others": "[yes/no]"
      }
    },
    "substance_use": {
      "drug_use": {
        "uses_drugs": "[yes/no/N/A]",
        "frequency": "[how often drugs are used]",
        "type_of_drugs": "[type of drugs used]"
      },
      "alcohol_use": {
        "uses_alcohol": "[yes/no/N/A]",
        "frequency": "[how often alcohol is consumed]"
      },
      "tobacco_use": {
        "uses_tobacco": "[yes/no/N/A]",
        "frequency": "[how often tobacco is used]",
        "type_of_tobacco": "[type of tobacco used (cigarettes, cigars, etc.)]"
      }
    },
    "numbness_or_tingling": {
      "has_symptom": "[yes/no]",
      "location": "[where the numbness or tingling occurs]",
      "severity": "[severity 0-10]",
      "frequency": "[how often]"
    }
  },
  "contextual_information": {
    "language_preference": "[preferred language]",
    "visit_type": "[type of visit: emergency, routine, etc.]",
    "referral_source": "[how the patient arrived: ambulance, walked in, by car, etc.]"
  },
  "metadata": {
    "created_at": "[timestamp of data collection]",
    "created_by": "[who created the data (bot or staff)]",
    "patient_id": "[unique patient ID]"
  }
}`
