package api

import (
	"net/http"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Inspector == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GATEWAY_NOT_CONFIGURED", "database gateway is not configured", false, nil)
		return
	}

	descriptor, err := deps.Inspector.Describe(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load database schema", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tables": descriptor,
		"schema": descriptor.Text(),
	})
}
