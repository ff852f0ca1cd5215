package protocol

import (
	"context"
	"fmt"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger/log"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/util"
)

// presence_update is accepted as an alias of user_update.
const framePresenceAlias models.FrameKind = "presence_update"

const maxLoggedFrame = 512

var framesDispatched = util.MustCounterVec(
	"chat_frames_dispatched_total",
	"Inbound frames by kind; malformed and unknown frames are counted as dropped.",
	"kind",
)

// Handlers receives decoded frames, one callback per kind. A nil callback
// discards frames of that kind.
type Handlers struct {
	Message  func(models.Message)
	Presence func(models.Presence)
	Typing   func(models.TypingSignal)
	Error    func(string)
}

// Dispatcher routes raw frames to Handlers in arrival order. It neither
// buffers nor reorders, and never fails the connection on a bad frame.
type Dispatcher struct {
	handlers Handlers
	frames   *prometheus.CounterVec
}

func NewDispatcher(handlers Handlers) *Dispatcher {
	return &Dispatcher{
		handlers: handlers,
		frames:   framesDispatched,
	}
}

// OnFrame decodes and dispatches one raw frame. Undecodable frames and
// handler panics are logged and dropped.
func (d *Dispatcher) OnFrame(ctx context.Context, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			length := runtime.Stack(stack, false)
			log.Errorw(ctx, "PANIC RECOVER in frame handler", "error", r, "stack", string(stack[:length]))
		}
	}()

	frame, err := Decode(raw)
	if err != nil {
		d.frames.WithLabelValues("dropped").Inc()
		log.Warnw(ctx, "dropping inbound frame", "error", err, "frame", truncate(raw))
		return
	}

	d.frames.WithLabelValues(string(frame.Kind())).Inc()
	d.Dispatch(frame)
}

func (d *Dispatcher) Dispatch(frame models.InboundFrame) {
	switch f := frame.(type) {
	case models.MessageFrame:
		if d.handlers.Message != nil {
			d.handlers.Message(f.Message)
		}
	case models.PresenceFrame:
		if d.handlers.Presence != nil {
			d.handlers.Presence(f.User)
		}
	case models.TypingFrame:
		if d.handlers.Typing != nil {
			d.handlers.Typing(f.Typing)
		}
	case models.ErrorFrame:
		if d.handlers.Error != nil {
			d.handlers.Error(f.Error)
		}
	default:
		panic(fmt.Sprintf("unhandled frame type %T", frame))
	}
}

// Decode classifies a raw frame by its "type" discriminator and decodes the
// matching payload.
func Decode(raw []byte) (models.InboundFrame, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid json", models.ErrMalformedFrame)
	}
	kind := gjson.GetBytes(raw, "type")
	if kind.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing type", models.ErrMalformedFrame)
	}

	switch k := models.FrameKind(kind.String()); k {
	case models.FrameMessage:
		var f models.MessageFrame
		if err := decodeInto(raw, &f); err != nil {
			return nil, err
		}
		if f.Message.ID == "" || f.Message.ChannelID == "" {
			return nil, fmt.Errorf("%w: message without id or channelId", models.ErrMalformedFrame)
		}
		return f, nil
	case models.FramePresence, framePresenceAlias:
		var f models.PresenceFrame
		if err := decodeInto(raw, &f); err != nil {
			return nil, err
		}
		if f.User.UserID == "" {
			return nil, fmt.Errorf("%w: presence without user id", models.ErrMalformedFrame)
		}
		return f, nil
	case models.FrameTyping:
		var f models.TypingFrame
		if err := decodeInto(raw, &f); err != nil {
			return nil, err
		}
		if f.Typing.UserID == "" {
			return nil, fmt.Errorf("%w: typing without user id", models.ErrMalformedFrame)
		}
		return f, nil
	case models.FrameError:
		var f models.ErrorFrame
		if err := decodeInto(raw, &f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownFrame, k)
	}
}

func decodeInto(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedFrame, err)
	}
	return nil
}

func truncate(raw []byte) string {
	if len(raw) > maxLoggedFrame {
		return string(raw[:maxLoggedFrame]) + "..."
	}
	return string(raw)
}
