package control

import (
	"net/http"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/internal/service"
)

// maxCommandBody bounds POST /api/v1/command payloads.
const maxCommandBody = 1 << 20

// handleHealthCheck is a simple handler to confirm the server is responsive.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, service.OK(s.exec.Commands()))
}

// handleCommand runs one {command, params} request. Command failures are
// reported in the envelope with status 200; only unreadable requests get a
// 4xx.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd service.Command
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err := dec.Decode(&cmd); err != nil {
		s.respond(w, http.StatusBadRequest, service.Result{Error: "invalid request body: " + err.Error()})
		return
	}
	if cmd.Name == "" {
		s.respond(w, http.StatusBadRequest, service.Result{Error: "command is required"})
		return
	}

	s.logger.Debug("Received command.", zap.String("command", cmd.Name))
	s.respond(w, http.StatusOK, s.exec.Execute(r.Context(), cmd))
}

func (s *Server) respond(w http.ResponseWriter, status int, res service.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
	}
}
