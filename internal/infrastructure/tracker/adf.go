package tracker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// adfNode is one node of an Atlassian Document Format tree
type adfNode struct {
	Type    string    `json:"type"`
	Version int       `json:"version,omitempty"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

// PlainTextToADF converts text to an ADF document with one paragraph per line.
// Empty lines become empty paragraphs so that the text round-trips exactly.
func PlainTextToADF(text string) (json.RawMessage, error) {
	lines := strings.Split(text, "\n")
	doc := adfNode{Type: "doc", Version: 1, Content: make([]adfNode, 0, len(lines))}
	for _, line := range lines {
		para := adfNode{Type: "paragraph"}
		if line != "" {
			para.Content = []adfNode{{Type: "text", Text: line}}
		}
		doc.Content = append(doc.Content, para)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("jira: encode adf: %w", err)
	}
	return data, nil
}

// ADFToPlainText extracts text from an ADF document, joining paragraphs with
// newlines. Non-ADF input is returned as a JSON string or raw text.
func ADFToPlainText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Type != "doc" {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return string(raw)
	}

	parts := make([]string, 0, len(doc.Content))
	for _, block := range doc.Content {
		parts = append(parts, collectText(block))
	}
	return strings.Join(parts, "\n")
}

func collectText(n adfNode) string {
	if n.Type == "text" {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Content {
		b.WriteString(collectText(c))
	}
	return b.String()
}
