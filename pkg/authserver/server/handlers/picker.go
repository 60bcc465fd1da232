// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"regexp"

	"github.com/stacklok/edgeauth/pkg/authserver/upstream"
)

//go:embed templates/picker.html
var templateFS embed.FS

var pickerTemplate = template.Must(template.ParseFS(templateFS, "templates/picker.html"))

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)

const (
	defaultButtonColor      = "#444444"
	defaultButtonHoverColor = "#222222"
)

type pickerButton struct {
	Name        string
	DisplayName string
	Href        string
	Color       template.CSS
	HoverColor  template.CSS
}

// renderPicker writes the provider choice page. Each button re-issues the
// current authorize request with connection set.
func (h *Handler) renderPicker(w http.ResponseWriter, req *http.Request) error {
	entries := h.connectors.Entries()
	buttons := make([]pickerButton, 0, len(entries))
	for _, e := range entries {
		q := req.URL.Query()
		q.Set("connection", e.Name)
		buttons = append(buttons, pickerButton{
			Name:        e.Name,
			DisplayName: e.DisplayName,
			Href:        "/oauth/authorize?" + q.Encode(),
			Color:       cssColor(e.BackgroundColor, defaultButtonColor),
			HoverColor:  cssColor(e.BackgroundColorHover, defaultButtonHoverColor),
		})
	}

	var buf bytes.Buffer
	if err := pickerTemplate.Execute(&buf, struct{ Buttons []pickerButton }{buttons}); err != nil {
		return fmt.Errorf("failed to render picker: %w", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	return nil
}

func cssColor(value, fallback string) template.CSS {
	if hexColor.MatchString(value) {
		return template.CSS(value) //nolint:gosec // validated as a hex color
	}
	return template.CSS(fallback) //nolint:gosec // constant
}

// compile-time check that the registry satisfies Connectors
var _ Connectors = (*upstream.Registry)(nil)
