package model

// Personalization carries the stage-specific strings substituted into the
// outreach templates.
type Personalization struct {
	PositiveObservation string `json:"positive_observation"`
	ValueProposition    string `json:"value_proposition"`
	FollowUp            string `json:"follow_up"`
	FinalOffer          string `json:"final_offer"`
}

// AnalysisResult is the structured communication-style assessment for a lead.
type AnalysisResult struct {
	Style               string          `json:"style"`
	Tone                string          `json:"tone"`
	Interests           []string        `json:"interests"`
	PainPoints          []string        `json:"pain_points"`
	Approach            string          `json:"approach"`
	PersonalizedMessage string          `json:"personalized_message"`
	Status              LeadStatus      `json:"status,omitempty"`
	Personalization     Personalization `json:"personalization"`
	Fallback            bool            `json:"fallback,omitempty"`
}

// DefaultPersonalization is used when the model does not supply one.
func DefaultPersonalization() Personalization {
	return Personalization{
		PositiveObservation: "your company and your profile",
		ValueProposition:    "our solution",
		FollowUp:            "our offer",
		FinalOffer:          "our service",
	}
}
