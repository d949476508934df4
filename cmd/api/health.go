package main

import (
	"net/http"
	"sort"
	"time"
)

func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	entries := app.channels.Entries()
	ways := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		ways[e.Channel+"/"+e.PayWay] = struct{}{}
	}
	configured := make([]string, 0, len(ways))
	for k := range ways {
		configured = append(configured, k)
	}
	sort.Strings(configured)

	var loadedAt string
	if t := app.channels.LoadedAt(); !t.IsZero() {
		loadedAt = t.UTC().Format(time.RFC3339)
	}

	data := map[string]any{
		"status":             "ok",
		"env":                app.config.env,
		"version":            version,
		"storage":            app.config.storage,
		"channels_loaded_at": loadedAt,
		"channel_entries":    len(entries),
		"pay_ways":           configured,
	}

	if err := app.jsonResponse(w, http.StatusOK, data); err != nil {
		app.internalServerError(w, r, err)
	}
}
