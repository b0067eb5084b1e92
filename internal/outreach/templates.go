// Package outreach renders the outreach emails and hands them to a mail
// transport.
package outreach

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Message is a rendered email ready for a Sender.
type Message struct {
	To      string
	Subject string
	Body    string
	Kind    model.EmailKind
}

// templateData is the substitution set shared by all kinds.
type templateData struct {
	Name     string
	Company  string
	Position string
	Days     int
	model.Personalization
	Sender config.SenderConfig
}

const signature = `
Best regards,
{{.Sender.Name}}
{{- with .Sender.Position}}
{{.}}{{end}}
{{- with .Sender.Company}}
{{.}}{{end}}
`

var bodies = map[model.EmailKind]string{
	model.EmailInitial: `Dear {{.Name}},

I visited your profile and the website of {{.Company}} and was impressed by {{.PositiveObservation}}.

{{if .Position}}As {{.Position}} at {{.Company}} you{{else}}You{{end}} know the challenges your team faces. Based on what I found, I thought you might be interested in {{.ValueProposition}}.

I would be glad to set up a short call to discuss how we can help.
` + signature,

	model.EmailFollowUp: `Dear {{.Name}},

I reached out {{.Days}} days ago and wanted to ask whether you would be open to a short conversation.

I wanted to bring {{.FollowUp}} back to your attention.

I am happy to share more information at any time.
` + signature,

	model.EmailFinal: `Dear {{.Name}},

since I have not heard back from you, this is my last message for now.

I would still like to offer you {{.FinalOffer}}.

If you become interested in the future, feel free to contact me at any time.
` + signature,
}

var subjects = map[model.EmailKind]string{
	model.EmailInitial:  "Personalized offer for {{.Name}}",
	model.EmailFollowUp: "Follow-up: personalized offer for {{.Name}}",
	model.EmailFinal:    "Final message: personalized offer for {{.Name}}",
}

// Renderer renders the three outreach kinds with a fixed sender signature.
type Renderer struct {
	sender   config.SenderConfig
	bodies   map[model.EmailKind]*template.Template
	subjects map[model.EmailKind]*template.Template
}

// NewRenderer parses the built-in templates.
func NewRenderer(sender config.SenderConfig) *Renderer {
	r := &Renderer{
		sender:   sender,
		bodies:   make(map[model.EmailKind]*template.Template, len(bodies)),
		subjects: make(map[model.EmailKind]*template.Template, len(subjects)),
	}
	for kind, src := range bodies {
		r.bodies[kind] = template.Must(template.New(string(kind)).Option("missingkey=error").Parse(src))
	}
	for kind, src := range subjects {
		r.subjects[kind] = template.Must(template.New(string(kind) + "_subject").Parse(src))
	}
	return r
}

// Render builds the message of the given kind for lead. days is only used
// by follow_up. An unknown kind is an error.
func (r *Renderer) Render(kind model.EmailKind, lead model.Lead, p model.Personalization, days int) (Message, error) {
	body, ok := r.bodies[kind]
	if !ok {
		return Message{}, eris.Errorf("outreach: unknown email kind %q", kind)
	}
	data := templateData{
		Name:            lead.Name,
		Company:         lead.Company,
		Position:        lead.Position,
		Days:            days,
		Personalization: fillDefaults(p),
		Sender:          r.sender,
	}

	var subj, text bytes.Buffer
	if err := r.subjects[kind].Execute(&subj, data); err != nil {
		return Message{}, eris.Wrapf(err, "outreach: render %s subject", kind)
	}
	if err := body.Execute(&text, data); err != nil {
		return Message{}, eris.Wrapf(err, "outreach: render %s body", kind)
	}
	return Message{
		To:      lead.Email,
		Subject: subj.String(),
		Body:    strings.TrimSpace(text.String()) + "\n",
		Kind:    kind,
	}, nil
}

func fillDefaults(p model.Personalization) model.Personalization {
	def := model.DefaultPersonalization()
	if p.PositiveObservation == "" {
		p.PositiveObservation = def.PositiveObservation
	}
	if p.ValueProposition == "" {
		p.ValueProposition = def.ValueProposition
	}
	if p.FollowUp == "" {
		p.FollowUp = def.FollowUp
	}
	if p.FinalOffer == "" {
		p.FinalOffer = def.FinalOffer
	}
	return p
}
