package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"camcontrol/internal/dto"
	"camcontrol/internal/logger"
	"camcontrol/internal/service"
	ws "camcontrol/internal/service/websocket"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket. The default origin check
// refuses upgrades requested by pages served from another host.
var Upgrader = websocket.Upgrader{}

// ControlHandler accepts a drive/suction command as a form value or a JSON
// body and forwards it to the microcontroller.
func ControlHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd dto.Command
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
				http.Error(w, "Invalid JSON body", http.StatusBadRequest)
				return
			}
		} else {
			cmd.Command = r.FormValue("command")
		}

		if _, err := cmd.Byte(); err != nil {
			http.Error(w, "Unknown command, expected one of: "+strings.Join(dto.Commands(), ", "), http.StatusBadRequest)
			return
		}

		res, err := manager.SendCommand(cmd)
		status := http.StatusOK
		if err != nil {
			status = http.StatusBadGateway
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(res); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// ControlWebsocketHandler registers the connection for event pushes and
// treats every text frame it receives as a command name.
func ControlWebsocketHandler(manager *service.Manager, hub *ws.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		logger.Info("Control client connected from %s", r.RemoteAddr)

		for {
			_, message, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Control client disconnected normally")
				} else {
					logger.Warning("Control client disconnected with error: %v", err)
				}
				break
			}

			cmd := dto.Command{Command: strings.TrimSpace(string(message))}
			if _, err := manager.SendCommand(cmd); err != nil {
				logger.Warning("Control command %q rejected: %v", cmd.Command, err)
			}
		}
	}
}
