//go:build !ui_embed

// Package ui serves the command panel frontend.
package ui

import "net/http"

// Handler sends browsers to the API docs when the panel is not embedded.
func Handler() (http.Handler, error) {
	return http.RedirectHandler("/docs", http.StatusFound), nil
}
