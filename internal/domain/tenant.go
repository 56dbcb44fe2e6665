package domain

// Persona holds the tenant-specific assistant configuration
type Persona struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SystemPrompt string  `json:"-"`
	Temperature  float64 `json:"temperature"`
}

// DefaultTenant is used when a request carries no tenant
const DefaultTenant = "amanda"

// DefaultSystemPrompt backs requests for unknown tenants
const DefaultSystemPrompt = "You are a helpful medical practice AI assistant. Provide clear, accurate, and professional responses."

// RetrievalToolName is the function the model may call mid-stream to
// search the owner's documents.
const RetrievalToolName = "search_practice_documents"

var personas = map[string]Persona{
	"amanda": {
		ID:          "amanda",
		Name:        "Amanda - Mental Health",
		Temperature: 0.7,
		SystemPrompt: "You are Amanda's mental health practice AI assistant. " +
			"Assist with therapy session documentation, crisis intervention protocols, " +
			"patient intake forms and treatment planning. Be empathetic, professional " +
			"and trauma-informed. Never provide direct medical advice or diagnoses; " +
			"always recommend consultation with a licensed mental health professional " +
			"for clinical decisions.",
	},
	"robbie": {
		ID:          "robbie",
		Name:        "Robbie - Med Spa",
		Temperature: 0.7,
		SystemPrompt: "You are Robbie's med spa AI assistant. Provide information about " +
			"aesthetic treatments, contraindications and pre/post-treatment care. Be " +
			"knowledgeable, safety-focused and professional. Always emphasize the " +
			"importance of professional medical supervision; never minimize risks or " +
			"guarantee specific results.",
	},
	"emmer": {
		ID:          "emmer",
		Name:        "Dr. Emmer - Dermatology",
		Temperature: 1.0,
		SystemPrompt: "You are Dr. Emmer's dermatology and plastic surgery AI assistant. " +
			"Provide evidence-based information about dermatological conditions, surgical " +
			"protocols and post-operative care, with appropriate medical disclaimers. " +
			"Emphasize the importance of in-person examination for diagnosis.",
	},
}

// GetPersona returns the persona for a tenant id, falling back to a
// generic persona for unknown tenants.
func GetPersona(tenant string) Persona {
	if p, ok := personas[tenant]; ok {
		return p
	}
	return Persona{
		ID:           tenant,
		Name:         tenant,
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  0.7,
	}
}

// Tenants lists the built-in tenant ids
func Tenants() []string {
	return []string{"amanda", "robbie", "emmer"}
}
