package echoapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/group"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/services/metrics"
	"github.com/trezcool/examtrack/services/realtime"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxTopics  = 50
)

type websocketApi struct {
	broker   realtime.Broker
	groupSvc group.Service
	logger   core.Logger
	upgrader websocket.Upgrader
}

func registerWebsocketAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	frontend := strings.TrimRight(deps.Conf.FrontendBaseURL, "/")
	api := websocketApi{
		broker:   deps.Broker,
		groupSvc: deps.GroupSvc,
		logger:   deps.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || deps.Conf.Debug || origin == frontend
			},
		},
	}

	g.GET("/ws", api.stream, authed...)
}

// topics returns the requested topics (the user's own topic by default) once the user is allowed to see them all.
func (api *websocketApi) topics(ctx echo.Context, usr user.User) ([]string, error) {
	requested := ctx.QueryParams()["topic"]
	if len(requested) == 0 {
		return []string{core.UserTopic(usr.ID)}, nil
	}
	if len(requested) > wsMaxTopics {
		return nil, errTopicNotAllowed
	}

	topics := make([]string, 0, len(requested))
	for _, topic := range requested {
		switch {
		case topic == core.UserTopic(usr.ID):
		case strings.HasPrefix(topic, core.GroupTopic("")):
			ok, err := api.groupSvc.IsMember(ctx.Request().Context(), usr.ID, strings.TrimPrefix(topic, core.GroupTopic("")))
			if err != nil {
				return nil, errors.Wrap(err, "checking group membership")
			}
			if !ok {
				return nil, errTopicNotAllowed
			}
		default:
			return nil, errTopicNotAllowed
		}
		topics = append(topics, topic)
	}
	return topics, nil
}

// membershipGuard drops the group events a connection is no longer allowed to see.
// Membership is checked at upgrade, so a removal or a group deletion seen on the stream revokes the group topic.
type membershipGuard struct {
	userID  string
	revoked map[string]bool
}

func newMembershipGuard(userID string) *membershipGuard {
	return &membershipGuard{userID: userID, revoked: make(map[string]bool)}
}

// allow reports whether payload may be forwarded, revoking group topics as membership changes go by.
func (g *membershipGuard) allow(payload []byte) bool {
	var evt struct {
		Type  string `json:"type"`
		Topic string `json:"topic"`
		Data  struct {
			GroupID string `json:"group_id"`
			UserID  string `json:"user_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return true
	}
	if g.revoked[evt.Topic] {
		return false
	}

	switch {
	case evt.Type == core.EventGroupDeleted && evt.Data.GroupID != "":
		g.revoked[core.GroupTopic(evt.Data.GroupID)] = true
	case evt.Type == core.EventMemberRemoved && evt.Data.UserID == g.userID && evt.Data.GroupID != "":
		g.revoked[core.GroupTopic(evt.Data.GroupID)] = true
	}
	return true
}

// stream upgrades the connection to a websocket and pushes the events of the requested topics until the client leaves.
func (api *websocketApi) stream(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	topics, err := api.topics(ctx, usr)
	if err != nil {
		return err
	}

	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already replied to the client
	}
	defer conn.Close()
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	sctx, cancel := context.WithCancel(ctx.Request().Context())
	defer cancel()

	sub, err := api.broker.Subscribe(sctx, topics...)
	if err != nil {
		api.logger.Error("subscribing to realtime topics", err, usr)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
			time.Now().Add(wsWriteWait),
		)
		return nil
	}
	defer sub.Close()

	// incoming messages are ignored: reading only keeps track of pongs and of the client leaving
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	guard := newMembershipGuard(usr.ID)
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return nil
			}
			if !guard.allow(payload) {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-sctx.Done():
			return nil
		}
	}
}
