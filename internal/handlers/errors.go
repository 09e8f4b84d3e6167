package handlers

import (
	"errors"
	"log"
	"net/http"

	"memberdir/internal/service"
)

// respondWithError logs err under logMsg (userMsg when empty) and writes userMsg to the client
func respondWithError(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		log.Printf("%s: %v", logMsg, err)
	}

	http.Error(w, userMsg, status)
}

func respondMemberNotFound(w http.ResponseWriter) {
	http.Error(w, ErrMemberNotFound, http.StatusNotFound)
}

// respondWithMemberError answers a failed member lookup or change.
// Unknown members get a 404 without logging; anything else is a logged 500.
func respondWithMemberError(w http.ResponseWriter, userMsg, logMsg string, err error) {
	if errors.Is(err, service.ErrMemberNotFound) {
		respondMemberNotFound(w)
		return
	}
	respondWithError(w, http.StatusInternalServerError, userMsg, logMsg, err)
}
