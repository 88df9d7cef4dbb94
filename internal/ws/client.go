// client.go upgrades one HTTP connection to a websocket and pumps
// frames between the wire and a session.Session. It is the only place
// gorilla/websocket.Conn is touched; everything upstream of it only
// ever sees []byte frames.
package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/whiteboard/realtime/internal/idgen"
	"github.com/whiteboard/realtime/internal/ratelimit"
	"github.com/whiteboard/realtime/internal/router"
	"github.com/whiteboard/realtime/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024

	// rateLimitLogEvery throttles our own logging about a noisy session
	// so one abusive client can't also flood the server's own logs.
	rateLimitLogEvery = 100
)

// Server bundles what ServeWs needs to bring up a new connection.
type Server struct {
	Hub           *Hub
	Router        *router.Router
	QueueSize     int
	Limiters      *ratelimit.ClientLimiters
	AllowedOrigin string
	Logger        *log.Logger
}

// upgrader returns the websocket.Upgrader for this Server, enforcing
// AllowedOrigin on the upgrade itself rather than leaving that check to
// a downstream HTTP middleware. "*" (or unset) accepts any origin.
func (srv *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if srv.AllowedOrigin == "" || srv.AllowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == srv.AllowedOrigin
		},
	}
}

// ServeWs upgrades the request, creates a Session for it, and starts its
// read and write pumps. Identity, if present, comes from the ?identity=
// query parameter; an empty identity is allowed (anonymous session).
func (srv *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader().Upgrade(w, r, nil)
	if err != nil {
		srv.Logger.Printf("ws: upgrade error: %v", err)
		return
	}

	identity := session.Identity(r.URL.Query().Get("identity"))
	sess := session.New(idgen.New(), identity, srv.QueueSize)
	srv.Hub.Register(sess.ID())

	c := &client{
		server:      srv,
		conn:        conn,
		session:     sess,
		rateLimiter: srv.Limiters.Get(sess.ID()),
	}

	go c.writePump()
	go c.readPump()
}

// client pairs a websocket connection with its Session. The Session owns
// identity and the outbound queue; client owns only the wire mechanics.
type client struct {
	server      *Server
	conn        *websocket.Conn
	session     *session.Session
	rateLimiter *ratelimit.Limiter

	rateLimitHits int
}

func (c *client) readPump() {
	ctx := context.Background()
	defer func() {
		c.server.Router.Disconnect(ctx, c.session)
		c.server.Hub.Unregister(c.session.ID())
		c.server.Limiters.Remove(c.session.ID())
		c.session.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.Logger.Printf("ws: session %s read error: %v", c.session.ID(), err)
			}
			return
		}

		if !c.rateLimiter.Allow() {
			c.rateLimitHits++
			if c.rateLimitHits%rateLimitLogEvery == 1 {
				c.server.Logger.Printf("ws: session %s over rate limit (%d drops so far)", c.session.ID(), c.rateLimitHits)
			}
			continue
		}

		c.server.Router.Dispatch(ctx, c.session, message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.session.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-c.session.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
