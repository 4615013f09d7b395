// Package websocket carries the interactive drawing channel. Pointer and
// brush events stream in over socket.io and drive the session's mask overlay;
// the server answers with mask presence updates so the client can keep its
// controls in sync.
package websocket

import (
	"image/color"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"retouch-server/canvas"
	"retouch-server/session"
)

var (
	activeSessions = make(map[string]int)
	sessionsMutex  sync.RWMutex
)

// GetActiveSessions returns a copy of the connection count per session.
func GetActiveSessions() map[string]int {
	sessionsMutex.RLock()
	defer sessionsMutex.RUnlock()

	sessions := make(map[string]int, len(activeSessions))
	for k, v := range activeSessions {
		sessions[k] = v
	}
	return sessions
}

// SetupSocketIO builds the socket.io server for the drawing channel. Each
// connection names its session in the handshake query; all drawing events on
// that connection operate on that session's overlay.
func SetupSocketIO(manager *session.Manager) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	ioo := socketio.NewServer(nil, opts)

	ioo.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		sessionID := handshakeSessionID(socket)
		if sessionID == "" {
			logrus.WithField("socket", socket.Id()).Warn("Drawing connection without session id")
			socket.Disconnect(true)
			return
		}
		sess := manager.GetSession(sessionID)

		sessionsMutex.Lock()
		activeSessions[sessionID]++
		sessionsMutex.Unlock()

		logrus.WithFields(logrus.Fields{
			"socket":  socket.Id(),
			"session": sessionID,
		}).Info("Drawing connection opened")

		emitMask := func(present bool) {
			_ = socket.Emit("mask-changed", map[string]any{"present": present})
		}

		socket.On("viewport", func(datas ...any) {
			m, ok := payload(datas)
			if !ok {
				return
			}
			geom := canvas.Geometry{
				Left:   floatField(m, "left"),
				Top:    floatField(m, "top"),
				Width:  int(floatField(m, "width")),
				Height: int(floatField(m, "height")),
			}
			sess.Draw(func(o *canvas.Overlay) { o.SetViewport(geom) })
		})

		socket.On("brush-mode", func(datas ...any) {
			m, ok := payload(datas)
			if !ok {
				return
			}
			active, _ := m["active"].(bool)
			sess.Draw(func(o *canvas.Overlay) {
				if active {
					o.EnterBrushMode()
				} else {
					o.ExitBrushMode()
				}
			})
			if !active {
				// Leaving brush mode closes any open stroke.
				emitMask(sess.FinishStroke() != nil)
			}
		})

		socket.On("brush-size", func(datas ...any) {
			m, ok := payload(datas)
			if !ok {
				return
			}
			size := floatField(m, "size")
			sess.Draw(func(o *canvas.Overlay) { o.SetBrushSize(size) })
		})

		socket.On("brush-color", func(datas ...any) {
			m, ok := payload(datas)
			if !ok {
				return
			}
			c := colorFromPayload(m)
			sess.Draw(func(o *canvas.Overlay) { o.SelectColor(c) })
		})

		socket.On("brush-erase", func(datas ...any) {
			sess.Draw(func(o *canvas.Overlay) { o.EnableErase() })
		})

		socket.On("pointer-down", func(datas ...any) {
			m, ok := payload(datas)
			if !ok {
				return
			}
			x, y := floatField(m, "x"), floatField(m, "y")
			sess.Draw(func(o *canvas.Overlay) { o.BeginStroke(x, y) })
		})

		socket.On("pointer-move", func(datas ...any) {
			m, ok := payload(datas)
			if !ok {
				return
			}
			x, y := floatField(m, "x"), floatField(m, "y")
			sess.Draw(func(o *canvas.Overlay) { o.ContinueStroke(x, y) })
		})

		socket.On("pointer-up", func(datas ...any) {
			emitMask(sess.FinishStroke() != nil)
		})

		socket.On("clear-mask", func(datas ...any) {
			sess.ClearMask()
			emitMask(false)
		})

		socket.On("disconnecting", func(datas ...any) {
			sessionsMutex.Lock()
			if activeSessions[sessionID] <= 1 {
				delete(activeSessions, sessionID)
			} else {
				activeSessions[sessionID]--
			}
			sessionsMutex.Unlock()
			logrus.WithFields(logrus.Fields{
				"socket":  socket.Id(),
				"session": sessionID,
			}).Info("Drawing connection closed")
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return ioo
}

// handshakeSessionID pulls the session id out of the connection's handshake
// query.
func handshakeSessionID(socket *socketio.Socket) string {
	handshake := socket.Handshake()
	if handshake == nil {
		return ""
	}
	if values, ok := handshake.Query["session"]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// payload returns the first event argument as a JSON object.
func payload(datas []any) (map[string]any, bool) {
	if len(datas) == 0 {
		return nil, false
	}
	m, ok := datas[0].(map[string]any)
	return m, ok
}

// floatField reads a numeric field from a decoded JSON object. JSON numbers
// decode as float64; integer-typed values from other encoders are accepted
// too.
func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// colorFromPayload reads an {r,g,b,a} object, defaulting alpha to opaque.
func colorFromPayload(m map[string]any) color.RGBA {
	a := 255.0
	if _, ok := m["a"]; ok {
		a = floatField(m, "a")
	}
	return color.RGBA{
		R: clampByte(floatField(m, "r")),
		G: clampByte(floatField(m, "g")),
		B: clampByte(floatField(m, "b")),
		A: clampByte(a),
	}
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
