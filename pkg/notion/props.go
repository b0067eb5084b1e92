package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// Title builds a title property.
func Title(v string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Type:  notionapi.PropertyTypeTitle,
		Title: richText(v),
	}
}

// Text builds a rich_text property.
func Text(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: richText(v),
	}
}

// URL builds a url property.
func URL(v string) notionapi.URLProperty {
	return notionapi.URLProperty{
		Type: notionapi.PropertyTypeURL,
		URL:  v,
	}
}

// Notion caps a rich text object at 2000 characters.
const maxTextLen = 2000

func richText(v string) []notionapi.RichText {
	runes := []rune(v)
	if len(runes) > maxTextLen {
		v = string(runes[:maxTextLen])
	}
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
	}
}

// PlainText returns the text of a title, rich_text or url property. Pages
// decoded from the API carry pointer properties; built ones carry values.
func PlainText(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return joinText(v.Title)
	case notionapi.TitleProperty:
		return joinText(v.Title)
	case *notionapi.RichTextProperty:
		return joinText(v.RichText)
	case notionapi.RichTextProperty:
		return joinText(v.RichText)
	case *notionapi.URLProperty:
		return v.URL
	case notionapi.URLProperty:
		return v.URL
	default:
		return ""
	}
}

func joinText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		if r.Text != nil {
			b.WriteString(r.Text.Content)
		} else {
			b.WriteString(r.PlainText)
		}
	}
	return b.String()
}
