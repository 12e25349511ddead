// Package router maps inbound robot topics to typed telemetry handlers.
package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/autopeer-io/robofleet/internal/fleet/core/model"
	"github.com/autopeer-io/robofleet/internal/fleet/pickup"
	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/mqtt/topic"
)

// Telemetry receives decoded robot telemetry.
type Telemetry interface {
	UpdateLocation(robotID string, v model.Location)
	UpdateBattery(robotID string, v model.Battery)
	UpdateStatus(robotID string, v model.Status)
	UpdateContainer(robotID string, v model.ContainerStatus)
	UpdateTrip(robotID string, v model.TripState)
	UpdateTripStatus(robotID, tripID, status string)
	UpdateQRCode(robotID string, v model.QRCode)
	UpdateWarning(robotID string, v model.Warning)
	Heartbeat(robotID string, alive bool)
}

// Completer closes a pickup once the robot confirms the container was emptied.
type Completer interface {
	Complete(ctx context.Context, orderCode, tripCode string) pickup.Status
}

// ContainerClosed is the container status that confirms a pickup.
const ContainerClosed = "CLOSED"

const (
	resultHandled   = "handled"
	resultMalformed = "malformed"
	resultUnmatched = "unmatched"
	resultFailed    = "failed"
	resultPanic     = "panic"
)

type route struct {
	kind    string
	pattern *regexp.Regexp
	handler HandlerFunc
}

// Router owns no state: it parses a topic, decodes the payload and forwards it.
type Router struct {
	routes    []route
	telemetry Telemetry
	completer Completer
	log       log.Logger
}

// New builds a router for topics under root. completer may be nil.
func New(root string, telemetry Telemetry, completer Completer) *Router {
	r := &Router{
		telemetry: telemetry,
		completer: completer,
		log:       log.WithName("router"),
	}

	handlers := map[string]HandlerFunc{
		topic.KindLocation:  JSONAdapter(r.handleLocation),
		topic.KindBattery:   JSONAdapter(r.handleBattery),
		topic.KindStatus:    JSONAdapter(r.handleStatus),
		topic.KindContainer: JSONAdapter(r.handleContainer),
		topic.KindTrip:      JSONAdapter(r.handleTrip),
		topic.KindTripState: JSONAdapter(r.handleTripState),
		topic.KindQRCode:    JSONAdapter(r.handleQRCode),
		topic.KindForceMove: JSONAdapter(r.handleForceMove),
		topic.KindWarning:   JSONAdapter(r.handleWarning),
		topic.KindHeartbeat: JSONAdapter(r.handleHeartbeat),
	}

	root = regexp.QuoteMeta(topic.NewBuilder(root).Root())
	for kind, h := range handlers {
		r.routes = append(r.routes, route{
			kind:    kind,
			pattern: regexp.MustCompile(fmt.Sprintf(`^%s/([^/]+)/%s$`, root, regexp.QuoteMeta(kind))),
			handler: h,
		})
	}

	// Most specific first: trip/state must be tried before trip.
	sort.Slice(r.routes, func(i, j int) bool {
		di, dj := strings.Count(r.routes[i].kind, "/"), strings.Count(r.routes[j].kind, "/")
		if di != dj {
			return di > dj
		}
		return r.routes[i].kind < r.routes[j].kind
	})
	return r
}

// Kinds returns the routed kinds in match order.
func (r *Router) Kinds() []string {
	kinds := make([]string, len(r.routes))
	for i, rt := range r.routes {
		kinds[i] = rt.kind
	}
	return kinds
}

// Route dispatches one inbound message. It never panics and never returns an
// error: unmatched topics and bad payloads are logged and dropped.
func (r *Router) Route(ctx context.Context, t string, payload []byte) {
	rt, robotID, ok := r.match(t)
	if !ok {
		metrics.MessagesTotal.WithLabelValues("unknown", resultUnmatched).Inc()
		r.log.Debug("Dropping message on unrouted topic", "topic", t)
		return
	}

	result := resultHandled
	defer func() {
		if rec := recover(); rec != nil {
			result = resultPanic
			r.log.Error(nil, "Handler panicked", "topic", t, "panic", rec, "stack", string(debug.Stack()))
		}
		metrics.MessagesTotal.WithLabelValues(rt.kind, result).Inc()
	}()

	if err := rt.handler(ctx, robotID, payload); err != nil {
		var malformed *MalformedError
		if errors.As(err, &malformed) {
			result = resultMalformed
			r.log.Warn("Dropping malformed message", "topic", t, "robot", robotID, "error", err)
			return
		}
		result = resultFailed
		r.log.Error(err, "Handler execution failed", "topic", t, "robot", robotID)
	}
}

// match returns the first route whose pattern matches t and the robot id it captured.
func (r *Router) match(t string) (*route, string, bool) {
	for i := range r.routes {
		if m := r.routes[i].pattern.FindStringSubmatch(t); m != nil {
			return &r.routes[i], m[1], true
		}
	}
	return nil, "", false
}

func (r *Router) handleLocation(_ context.Context, robotID string, m *locationMessage) error {
	r.telemetry.UpdateLocation(robotID, model.Location{Lat: *m.Lat, Lon: *m.Lon, RoomCode: m.RoomCode})
	return nil
}

func (r *Router) handleBattery(_ context.Context, robotID string, m *batteryMessage) error {
	r.telemetry.UpdateBattery(robotID, model.Battery{Percentage: *m.Battery})
	return nil
}

func (r *Router) handleStatus(_ context.Context, robotID string, m *statusMessage) error {
	r.telemetry.UpdateStatus(robotID, model.Status{Value: m.Status})
	return nil
}

// handleContainer caches the container state. A CLOSED report naming an
// order and trip is the robot's confirmation that the pickup happened.
func (r *Router) handleContainer(ctx context.Context, robotID string, m *containerMessage) error {
	r.telemetry.UpdateContainer(robotID, model.ContainerStatus{ContainerCode: m.ContainerCode, Status: m.Status})

	if r.completer == nil || !strings.EqualFold(m.Status, ContainerClosed) || m.OrderCode == "" || m.TripCode == "" {
		return nil
	}
	st := r.completer.Complete(ctx, m.OrderCode, m.TripCode)
	switch st {
	case pickup.StatusPickupCompleted:
		r.log.Info("Pickup completed", "robot", robotID, "order", m.OrderCode, "trip", m.TripCode)
	case pickup.StatusServerError:
		return fmt.Errorf("complete pickup for order %s: %s", m.OrderCode, st)
	default:
		r.log.Debug("Container closed without completing pickup", "robot", robotID, "order", m.OrderCode, "status", st)
	}
	return nil
}

func (r *Router) handleTrip(_ context.Context, robotID string, m *tripMessage) error {
	r.telemetry.UpdateTrip(robotID, model.TripState{
		TripID:     m.TripID,
		Progress:   m.Progress,
		Status:     m.Status,
		StartPoint: m.StartPoint,
		EndPoint:   m.EndPoint,
	})
	return nil
}

func (r *Router) handleTripState(_ context.Context, robotID string, m *tripStateMessage) error {
	r.telemetry.UpdateTripStatus(robotID, m.TripID, m.Status)
	return nil
}

func (r *Router) handleQRCode(_ context.Context, robotID string, m *qrCodeMessage) error {
	r.telemetry.UpdateQRCode(robotID, model.QRCode{Code: m.QRCode, Status: m.Status})
	return nil
}

func (r *Router) handleForceMove(_ context.Context, robotID string, m *forceMoveMessage) error {
	r.log.Warn("Robot reported a forced move", "robot", robotID, "reason", m.Reason)
	r.telemetry.UpdateWarning(robotID, model.Warning{Code: model.WarningForceMove, Message: m.Reason})
	return nil
}

func (r *Router) handleWarning(_ context.Context, robotID string, m *warningMessage) error {
	r.telemetry.UpdateWarning(robotID, model.Warning{Code: m.Code, Message: m.Message})
	return nil
}

func (r *Router) handleHeartbeat(_ context.Context, robotID string, m *heartbeatMessage) error {
	r.telemetry.Heartbeat(robotID, m.alive())
	return nil
}
