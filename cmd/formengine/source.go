package main

import (
	"net/http"
	"strings"

	formengine "github.com/goliatone/go-formengine"
	"github.com/goliatone/go-formengine/pkg/schema"
)

func isURL(value string) bool {
	lower := strings.ToLower(strings.TrimSpace(value))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func sourceFor(raw string) schema.Source {
	if isURL(raw) {
		return schema.SourceFromURL(raw)
	}
	return schema.SourceFromFile(raw)
}

func (a *app) loader() *schema.Loader {
	return formengine.NewLoader(
		schema.WithHTTPClient(&http.Client{}),
		schema.WithTimeout(a.cfg.Timeout()),
	)
}
