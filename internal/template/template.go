// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package template renders the configured text and tooltip templates and defines the
// waybar custom-module output protocol.
package template

import (
	"bytes"
	"fmt"
	"text/template"
)

// Output is a single line of the waybar custom-module JSON protocol, written to STDOUT.
type Output struct {
	Text       string `json:"text"`
	Alt        string `json:"alt,omitempty"`
	Class      string `json:"class"`
	Tooltip    string `json:"tooltip,omitempty"`
	Percentage int    `json:"percentage"`
}

// Templates holds the parsed text and tooltip templates.
type Templates struct {
	text    *template.Template
	tooltip *template.Template
}

// New parses the given text and tooltip templates with the provided function map.
func New(textTpl, tooltipTpl string, funcs template.FuncMap) (*Templates, error) {
	text, err := template.New("text").Funcs(funcs).Parse(textTpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	tooltip, err := template.New("tooltip").Funcs(funcs).Parse(tooltipTpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tooltip template: %w", err)
	}
	return &Templates{text: text, tooltip: tooltip}, nil
}

// Render executes both templates against the given data and returns the rendered text
// and tooltip.
func (t *Templates) Render(data any) (string, string, error) {
	textBuf := bytes.NewBuffer(nil)
	if err := t.text.Execute(textBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to render text template: %w", err)
	}
	tooltipBuf := bytes.NewBuffer(nil)
	if err := t.tooltip.Execute(tooltipBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to render tooltip template: %w", err)
	}
	return textBuf.String(), tooltipBuf.String(), nil
}
