package notion

import "time"

// Typed subset of the Notion property model. Only the property kinds the sync
// schema uses are represented; anything else stays on the wire.
type TextContent struct {
	Content string `json:"content"`
}

type RichText struct {
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

type Date struct {
	Start string `json:"start"`
}

type Option struct {
	Name string `json:"name"`
}

type Property struct {
	Title    []RichText `json:"title,omitempty"`
	RichText []RichText `json:"rich_text,omitempty"`
	Date     *Date      `json:"date,omitempty"`
	Select   *Option    `json:"select,omitempty"`
	Status   *Option    `json:"status,omitempty"`
}

type Properties map[string]Property

type Page struct {
	ID             string     `json:"id"`
	LastEditedTime time.Time  `json:"last_edited_time"`
	Properties     Properties `json:"properties"`
}

func TitleProperty(text string) Property {
	return Property{Title: []RichText{{Text: &TextContent{Content: text}}}}
}

func RichTextProperty(text string) Property {
	return Property{RichText: []RichText{{Text: &TextContent{Content: text}}}}
}

func DateProperty(start string) Property {
	return Property{Date: &Date{Start: start}}
}

func SelectProperty(name string) Property {
	return Property{Select: &Option{Name: name}}
}

func StatusProperty(name string) Property {
	return Property{Status: &Option{Name: name}}
}

// plainText joins the text fragments of a title or rich_text property.
// Query results carry plain_text; locally built properties only have text.
func plainText(parts []RichText) string {
	var out string
	for _, rt := range parts {
		if rt.PlainText != "" {
			out += rt.PlainText
		} else if rt.Text != nil {
			out += rt.Text.Content
		}
	}
	return out
}

func (p Property) TitleText() string    { return plainText(p.Title) }
func (p Property) RichTextText() string { return plainText(p.RichText) }

func (p Property) DateStart() string {
	if p.Date == nil {
		return ""
	}
	return p.Date.Start
}

func (p Property) SelectName() string {
	if p.Select == nil {
		return ""
	}
	return p.Select.Name
}

func (p Property) StatusName() string {
	if p.Status == nil {
		return ""
	}
	return p.Status.Name
}
