package analysis

import (
	"encoding/json"
	"strings"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

const systemPrompt = `You are a B2B sales communication analyst. From a prospect's contact
details, a summary of their company website and a summary of their professional profile,
determine how to approach them and draft a first outreach message.

Respond with a single JSON object and nothing else, using exactly these keys:
- style: main communication style (for example "formal", "informal", "direct")
- tone: preferred tone
- interests: list of likely interest areas
- pain_points: list of likely pain points
- approach: recommended approach in a few words
- personalized_message: a short personalized first message
- status: "active" if the prospect is worth contacting, "inactive" otherwise
- personalization: object with
  - positive_observation: a positive observation about the company or profile
  - value_proposition: a personalized value proposition
  - follow_up: a personalized reminder for follow-up emails
  - final_offer: a personalized final offer

Summaries starting with "error:" or "no ... available" carry no information.`

// leadPayload is the user message body sent for one lead.
type leadPayload struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Company        string `json:"company"`
	Position       string `json:"position,omitempty"`
	WebsiteURL     string `json:"website_url,omitempty"`
	ProfileURL     string `json:"profile_url,omitempty"`
	WebsiteSummary string `json:"website_summary"`
	ProfileSummary string `json:"profile_summary"`
	SenderName     string `json:"sender_name,omitempty"`
	SenderCompany  string `json:"sender_company,omitempty"`
}

func buildUserMessage(el model.EnrichedLead, sender config.SenderConfig) (string, error) {
	p := leadPayload{
		Name:           el.Lead.Name,
		Email:          el.Lead.Email,
		Company:        el.Lead.Company,
		Position:       el.Lead.Position,
		WebsiteURL:     el.Lead.WebsiteURL,
		ProfileURL:     el.Lead.ProfileURL,
		WebsiteSummary: el.WebsiteSummary,
		ProfileSummary: el.ProfileSummary,
		SenderName:     sender.Name,
		SenderCompany:  sender.Company,
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}
	return "Lead data:\n" + string(b), nil
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
