package handlers

import (
	"net/http"

	"github.com/capifyhq/capify/utils"
)

const version = "1.0.0"

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"message": "Capify backend is running",
			"version": version,
		})
	}
}
