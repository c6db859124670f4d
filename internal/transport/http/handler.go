package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

// Inbound message types.
const (
	MsgCreate         = "room.create"
	MsgJoin           = "room.join"
	MsgLeave          = "room.leave"
	MsgSetState       = "room.setState"
	MsgNext           = "room.next"
	MsgToggleSetting  = "room.toggleSetting"
	MsgSubmitResponse = "room.submitResponse"
	MsgDisputeResolve = "room.disputeResolve"
	MsgGradeResponse  = "room.gradeResponse"
)

// Handler is the websocket gateway for the room engine.
type Handler struct {
	service  *app.RoomService
	cfg      ConnectionConfig
	upgrader websocket.Upgrader
}

func NewHandler(service *app.RoomService, cfg ConnectionConfig) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConnectionConfig().SendBuffer
	}
	return &Handler{
		service: service,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

type inboundMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type errorPayload struct {
	Message   string      `json:"message"`
	Code      domain.Kind `json:"code"`
	Command   string      `json:"command,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

type createPayload struct {
	PackID   string         `json:"packId"`
	Pack     *domain.Pack   `json:"pack"`
	Settings map[string]any `json:"settings"`
}

type joinPayload struct {
	RoomID      string      `json:"roomId"`
	Role        domain.Role `json:"role"`
	PlayerID    string      `json:"playerId"`
	DisplayName string      `json:"displayName"`
	IsAnonymous bool        `json:"isAnonymous"`
	HostToken   string      `json:"hostToken"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type setStatePayload struct {
	RoomID    string           `json:"roomId"`
	NextState domain.RoomState `json:"nextState"`
}

type toggleSettingPayload struct {
	RoomID string `json:"roomId"`
	Key    string `json:"key"`
	Value  any    `json:"value"`
}

type submitResponsePayload struct {
	RoomID     string                 `json:"roomId"`
	QuestionID string                 `json:"questionId"`
	PlayerID   string                 `json:"playerId"`
	Payload    domain.ResponsePayload `json:"payload"`
	Wager      *int                   `json:"wager"`
}

type disputePayload struct {
	RoomID      string            `json:"roomId"`
	QuestionID  string            `json:"questionId"`
	Action      app.DisputeAction `json:"action"`
	VariantText string            `json:"variantText"`
}

type gradePayload struct {
	RoomID     string `json:"roomId"`
	QuestionID string `json:"questionId"`
	PlayerID   string `json:"playerId"`
	Correct    bool   `json:"correct"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the room use cases.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	c := newClient(uuid.NewString(), conn, h.cfg)
	log.Debug().Str("connection_id", c.id).Str("remote", r.RemoteAddr).Msg("websocket connection established")

	ctx := r.Context()
	go c.writePump()
	c.readLoop(func(data []byte) {
		h.dispatch(ctx, c, data)
	})

	h.service.Disconnect(ctx, c.id)
	c.Close()
	log.Debug().Str("connection_id", c.id).Msg("websocket connection closed")
}

func (h *Handler) dispatch(ctx context.Context, c *client, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reject(c, msg, domain.Invalidf("malformed message"))
		return
	}
	if err := h.handle(ctx, c, msg); err != nil {
		h.reject(c, msg, err)
	}
}

func (h *Handler) handle(ctx context.Context, c *client, msg inboundMessage) error {
	switch msg.Type {
	case MsgCreate:
		var p createPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		_, err := h.service.Create(ctx, c, app.CreateRequest{PackID: p.PackID, Pack: p.Pack, Settings: p.Settings})
		return err
	case MsgJoin:
		var p joinPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return h.service.Join(ctx, c, app.JoinRequest{
			RoomID:      p.RoomID,
			Role:        p.Role,
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			IsAnonymous: p.IsAnonymous,
			HostToken:   p.HostToken,
		})
	case MsgLeave:
		var p roomPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return h.service.Leave(ctx, c.id, p.RoomID)
	case MsgSetState:
		var p setStatePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return h.service.SetState(ctx, c.id, p.RoomID, p.NextState)
	case MsgNext:
		var p roomPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return h.service.Next(ctx, c.id, p.RoomID)
	case MsgToggleSetting:
		var p toggleSettingPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return h.service.ToggleSetting(ctx, c.id, p.RoomID, p.Key, p.Value)
	case MsgSubmitResponse:
		var p submitResponsePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return h.service.SubmitResponse(ctx, c.id, app.SubmitRequest{
			RoomID:     p.RoomID,
			QuestionID: p.QuestionID,
			PlayerID:   p.PlayerID,
			Payload:    p.Payload,
			Wager:      p.Wager,
		})
	case MsgDisputeResolve:
		var p disputePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return h.service.ResolveDispute(ctx, c.id, app.DisputeRequest{
			RoomID:      p.RoomID,
			QuestionID:  p.QuestionID,
			Action:      p.Action,
			VariantText: p.VariantText,
		})
	case MsgGradeResponse:
		var p gradePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return h.service.GradeResponse(ctx, c.id, app.GradeRequest{
			RoomID:     p.RoomID,
			QuestionID: p.QuestionID,
			PlayerID:   p.PlayerID,
			Correct:    p.Correct,
		})
	default:
		return domain.Invalidf("unsupported message type %q", msg.Type)
	}
}

func decode(msg inboundMessage, v any) error {
	if len(msg.Payload) == 0 {
		return domain.Invalidf("missing %s payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return domain.Invalidf("malformed %s payload: field %s", msg.Type, typeErr.Field)
		}
		return domain.Invalidf("malformed %s payload", msg.Type)
	}
	return nil
}

// reject reports a failed command to the issuing connection only.
func (h *Handler) reject(c *client, msg inboundMessage, err error) {
	kind := domain.KindOf(err)
	text := err.Error()
	if kind == domain.KindInternal {
		log.Error().Err(err).Str("connection_id", c.id).Str("command", msg.Type).Msg("command failed")
		text = "internal error"
	} else {
		log.Debug().Err(err).Str("connection_id", c.id).Str("command", msg.Type).Msg("command rejected")
	}
	c.Deliver(app.Event{Type: app.EventError, Payload: errorPayload{
		Message:   text,
		Code:      kind,
		Command:   msg.Type,
		RequestID: msg.ID,
	}})
}
