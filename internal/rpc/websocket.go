package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/logging"
)

const (
	// writeWait bounds one socket write.
	writeWait = 10 * time.Second
	// pongWait is how long a silent client stays connected.
	pongWait = 60 * time.Second
	// pingPeriod must beat pongWait to keep healthy clients alive.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize caps inbound frames.
	maxMessageSize = 512 * 1024
)

// WebSocketServer serves /ws: the stream subscription protocol plus the
// regular method table over a persistent socket.
type WebSocketServer struct {
	rpc      *Server
	subs     *SubscriptionManager
	log      *logging.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketServer(rpc *Server, subs *SubscriptionManager, log *logging.Logger) *WebSocketServer {
	if log == nil {
		log = logging.NewNop()
	}
	return &WebSocketServer{
		rpc:  rpc,
		subs: subs,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// wsCommand is one client request frame.
type wsCommand struct {
	Command  string   `json:"command"`
	ID       any      `json:"id,omitempty"`
	Streams  []string `json:"streams,omitempty"`
	Accounts []string `json:"accounts,omitempty"`
}

// ServeHTTP upgrades the connection and runs the read loop until the
// client goes away.
func (ws *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientIP := clientIPOf(r)
	conn := newConnection(uuid.NewString())
	ws.subs.Add(conn)

	go ws.writePump(socket, conn)
	ws.readPump(socket, conn, ws.rpc.roleFor(clientIP), clientIP)
}

func (ws *WebSocketServer) readPump(socket *websocket.Conn, conn *Connection, role Role, clientIP string) {
	defer func() {
		ws.subs.Remove(conn.ID)
		socket.Close()
	}()

	socket.SetReadLimit(maxMessageSize)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.log.Debug("websocket read failed",
					zap.String("connId", conn.ID), zap.Error(err))
			}
			return
		}
		response := ws.dispatch(conn, role, clientIP, raw)
		if response != nil && !conn.enqueue(response) {
			return
		}
	}
}

func (ws *WebSocketServer) writePump(socket *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		socket.Close()
	}()

	for {
		select {
		case payload := <-conn.Outbound():
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				ws.subs.Remove(conn.ID)
				return
			}
		case <-ticker.C:
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				ws.subs.Remove(conn.ID)
				return
			}
		case <-conn.Done():
			_ = socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// dispatch answers one frame. subscribe, unsubscribe and ping are
// native socket commands; everything else goes through the method
// table with the whole frame as params.
func (ws *WebSocketServer) dispatch(conn *Connection, role Role, clientIP string, raw []byte) []byte {
	var cmd wsCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return ws.errorFrame(nil, NewError(CodeParse, "jsonInvalid", "invalid JSON: "+err.Error()))
	}

	switch cmd.Command {
	case "":
		return ws.errorFrame(cmd.ID, ErrorMissingCommand())
	case "subscribe":
		if err := conn.Subscribe(cmd.Streams, cmd.Accounts); err != nil {
			return ws.errorFrame(cmd.ID, ErrorInvalidParams(err.Error()))
		}
		return ws.successFrame(cmd.ID, map[string]any{
			"streams":  cmd.Streams,
			"accounts": cmd.Accounts,
		})
	case "unsubscribe":
		conn.Unsubscribe(cmd.Streams, cmd.Accounts)
		return ws.successFrame(cmd.ID, map[string]any{})
	case "ping":
		return ws.successFrame(cmd.ID, map[string]any{})
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.rpc.timeout)
	defer cancel()

	result, rpcErr := ws.rpc.execute(&Context{Context: ctx, Role: role, ClientIP: clientIP}, cmd.Command, raw)
	if rpcErr != nil {
		return ws.errorFrame(cmd.ID, rpcErr)
	}
	return ws.successFrame(cmd.ID, result)
}

func (ws *WebSocketServer) successFrame(id any, result any) []byte {
	frame := map[string]any{
		"status": "success",
		"result": result,
	}
	if id != nil {
		frame["id"] = id
	}
	return ws.marshalFrame(frame)
}

func (ws *WebSocketServer) errorFrame(id any, rpcErr *Error) []byte {
	frame := map[string]any{
		"status":        "error",
		"error":         rpcErr.ErrorString,
		"error_code":    rpcErr.Code,
		"error_message": rpcErr.Message,
	}
	if id != nil {
		frame["id"] = id
	}
	return ws.marshalFrame(frame)
}

func (ws *WebSocketServer) marshalFrame(frame map[string]any) []byte {
	payload, err := json.Marshal(frame)
	if err != nil {
		ws.log.Error("failed to marshal websocket frame", zap.Error(err))
		return nil
	}
	return payload
}
