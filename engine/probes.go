package engine

import (
	"database/sql"
	"net/http"
)

func ServeHealthProbe(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txn, err := db.BeginTx(r.Context(), nil)
		if err != nil {
			w.WriteHeader(500)
			return
		}
		if err := txn.Rollback(); err != nil {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}
}
