package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"handraise/internal/app"
	"handraise/internal/transport/rest/handler"
	"handraise/internal/transport/ws"
)

// NewRouter builds the API router over the app container.
func NewRouter(a *app.App) http.Handler {
	r := mux.NewRouter()

	roomHandler := handler.NewRoomHandler(a.Rooms)
	sessionHandler := handler.NewSessionHandler(a.Sessions)
	wsHandler := ws.NewHandler(a.Hub)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/rooms", roomHandler.Create).Methods("POST")
	v1.HandleFunc("/rooms/{code}", roomHandler.Get).Methods("GET")
	v1.HandleFunc("/rooms/{code}", roomHandler.Delete).Methods("DELETE")
	v1.HandleFunc("/rooms/{code}/join", roomHandler.Join).Methods("POST")
	v1.HandleFunc("/rooms/{code}/leave", roomHandler.Leave).Methods("POST")
	v1.HandleFunc("/rooms/{code}/participants/{id}/hand", roomHandler.SetHand).Methods("PUT")
	v1.HandleFunc("/rooms/{code}/queue/{participantId}", roomHandler.RemoveFromQueue).Methods("DELETE")

	v1.HandleFunc("/sessions/reconcile", sessionHandler.Reconcile).Methods("POST")

	v1.HandleFunc("/ws/rooms/{code}", wsHandler.RoomStream).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: a.Config.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}
