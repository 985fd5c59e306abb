// radiance/routes/diagnosis.go
package routes

import (
	"encoding/json"
	"net/http"

	"radiance/radiance/config"
	"radiance/radiance/controllers"
	"radiance/radiance/middlewares"
	"radiance/radiance/pipeline"
	"radiance/radiance/services/llm"
	"radiance/radiance/types"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

func DiagnosisRoutes(ctrl *controllers.DiagnosisController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(cfg))

		// POST /diagnosis/ : create a session from patient input
		gr.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req types.StartDiagnosisRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			userID := r.Context().Value(middlewares.UserIDKey).(int)
			s, err := ctrl.Start(r.Context(), userID, req)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(s)
		})

		// POST /diagnosis/{session_id}/next : run one stage
		gr.Post("/{session_id}/next", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(int)
			sessionID := chi.URLParam(r, "session_id")
			s, err := ctrl.RunNext(r.Context(), userID, sessionID, nil)
			if err != nil {
				if err == controllers.ErrSessionForbidden {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				if s == nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				// Stage failed: the session carries status=error plus every
				// prior stage's result; hand it back for rendering/retry.
			}
			json.NewEncoder(w).Encode(s)
		})

		// GET /diagnosis/{session_id}
		gr.Get("/{session_id}", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(int)
			sessionID := chi.URLParam(r, "session_id")
			s, err := ctrl.Get(r.Context(), userID, sessionID)
			if err != nil {
				if err == controllers.ErrSessionForbidden {
					http.Error(w, err.Error(), http.StatusNotFound)
				} else {
					http.Error(w, err.Error(), http.StatusInternalServerError)
				}
				return
			}
			json.NewEncoder(w).Encode(s)
		})

		// GET /diagnosis/ : list the user's sessions
		gr.Get("/", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(int)
			sessions, err := ctrl.List(r.Context(), userID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(sessions)
		})

		// POST /diagnosis/report : upload a report image, returns object key
		gr.Post("/report", func(w http.ResponseWriter, r *http.Request) {
			userID := r.Context().Value(middlewares.UserIDKey).(int)
			file, header, err := r.FormFile("report")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer file.Close()
			key, err := ctrl.UploadReport(r.Context(), userID, header.Filename,
				header.Header.Get("Content-Type"), file, header.Size)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"report_key": key})
		})
	})

	// GET /diagnosis/ws : run the chain stage by stage, streaming chunks so
	// the user can watch each role think.
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "internal error")

		ctx := r.Context()
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "unsupported data")
			return
		}
		var input types.DiagnosisStreamInput
		if err := json.Unmarshal(data, &input); err != nil {
			conn.Write(ctx, websocket.MessageText, []byte(`{"error":"invalid json"}`))
			return
		}

		userID, ok := middlewares.ParseUserID(input.Token, cfg.JWTSecret)
		if !ok {
			conn.Write(ctx, websocket.MessageText, []byte(`{"error":"invalid token"}`))
			conn.Close(websocket.StatusPolicyViolation, "invalid token")
			return
		}

		var s *pipeline.Session
		if input.SessionID != "" {
			s, err = ctrl.Get(ctx, userID, input.SessionID)
		} else if input.UserInput != nil {
			s, err = ctrl.Start(ctx, userID, types.StartDiagnosisRequest{UserInput: *input.UserInput})
		} else {
			err = controllers.ErrSessionForbidden
		}
		if err != nil || s == nil {
			conn.Write(ctx, websocket.MessageText, []byte(`{"error":"session unavailable"}`))
			return
		}

		writeFrame := func(v interface{}) bool {
			b, err := json.Marshal(v)
			if err != nil {
				return false
			}
			return conn.Write(ctx, websocket.MessageText, b) == nil
		}

		for s.Status == pipeline.StatusInProgress {
			sink := make(chan llm.StreamChunk, 16)
			errCh := make(chan error, 1)
			go func() {
				errCh <- ctrl.RunSession(ctx, s, sink)
				close(sink)
			}()
			for chunk := range sink {
				if chunk.Delta == "" && !chunk.Final {
					continue
				}
				if !writeFrame(map[string]interface{}{"type": "chunk", "payload": chunk}) {
					return
				}
			}
			if err := <-errCh; err != nil {
				writeFrame(map[string]interface{}{
					"type":    "error",
					"message": err.Error(),
					"session": s,
				})
				break
			}
			if !writeFrame(map[string]interface{}{
				"type":         "stage_complete",
				"current_step": s.CurrentStep,
				"status":       s.Status,
			}) {
				return
			}
		}

		writeFrame(map[string]interface{}{"type": "done", "session": s})
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return r
}
