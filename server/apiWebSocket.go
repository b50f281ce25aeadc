package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/linecount/pkg/gen"
	"github.com/cyclopcam/linecount/server/monitor"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const webSocketWriteTimeout = 10 * time.Second

// Sent by client over websocket
// SYNC-WEBSOCKET-JSON-MSG
type webSocketJSON struct {
	Command string `json:"command"`
}

// Every message that we send is a TEXT frame containing one of these.
// Type is "info" (sent once on connect), "frame" (after every processed frame), or
// "end" (when the session's frame loop has stopped, just before we close the socket).
// SYNC-SESSION-WEBSOCKET-MSG
type webSocketSendMsg struct {
	Type  string               `json:"type"`
	Info  *monitor.SessionInfo `json:"info,omitempty"`
	Frame *monitor.FrameEvent  `json:"frame,omitempty"`
}

// Stream the per-frame results of a session, so that a client can draw the overlay
// (line, boxes, labels, counts) on top of the video.
func (s *Server) httpSessionWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := s.getSession(params)
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("Websocket upgrade failed: %v", err)
		return
	}
	runSessionStreamer(s.Log, conn, sess)
}

func runSessionStreamer(log logs.Log, conn *websocket.Conn, sess *monitor.Session) {
	defer conn.Close()

	events := sess.AddWatcher()
	defer sess.RemoveWatcher(events)

	var paused atomic.Bool
	readerClosed := make(chan bool)
	go webSocketReader(log, conn, &paused, readerClosed)

	send := func(msg *webSocketSendMsg) bool {
		conn.SetWriteDeadline(time.Now().Add(webSocketWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Infof("Session %v websocket write failed: %v", sess.ID, err)
			return false
		}
		return true
	}

	info := sess.Info()
	if !send(&webSocketSendMsg{Type: "info", Info: &info}) {
		return
	}

	for {
		select {
		case ev := <-events:
			if !paused.Load() && !send(&webSocketSendMsg{Type: "frame", Frame: ev}) {
				return
			}
		case <-readerClosed:
			return
		case <-sess.Done():
			// Flush whatever the frame loop produced before it stopped
			for _, ev := range gen.DrainChannelIntoSlice(events) {
				if !paused.Load() && !send(&webSocketSendMsg{Type: "frame", Frame: ev}) {
					return
				}
			}
			info := sess.Info()
			if !send(&webSocketSendMsg{Type: "end", Info: &info}) {
				return
			}
			conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), time.Now().Add(time.Second))
			return
		}
	}
}

// Read commands from the client until the connection closes
func webSocketReader(log logs.Log, conn *websocket.Conn, paused *atomic.Bool, closed chan bool) {
	defer close(closed)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg := webSocketJSON{}
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Infof("webSocketReader failed to decode JSON: %v", err)
			continue
		}
		// SYNC-WEBSOCKET-COMMANDS
		switch msg.Command {
		case "pause":
			paused.Store(true)
		case "resume":
			paused.Store(false)
		default:
			log.Infof("Unknown websocket message from client: '%v'", msg.Command)
		}
	}
}
