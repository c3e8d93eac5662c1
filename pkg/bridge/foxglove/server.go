// Package foxglove serves decoded packets to Foxglove Studio over its
// websocket protocol.
package foxglove

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pulsera/pkg/crossing"
	"pulsera/pkg/engine"
	"pulsera/pkg/protocol"
)

const (
	markerTypeCube  = 1
	markerActionAdd = 0
	logLevelInfo    = 2
)

type PacketRecord struct {
	Kind       string `json:"kind"`
	TS         string `json:"ts,omitempty"`
	PayloadHex string `json:"payload_hex"`
	Data       any    `json:"data,omitempty"`
	Text       string `json:"text,omitempty"`
}

type SignalRecord struct {
	State          string `json:"state"`
	Angle          int    `json:"angle"`
	SignalQuadrant string `json:"signal_quadrant"`
	UserQuadrant   string `json:"user_quadrant"`
	Aligned        bool   `json:"aligned"`
	Command        string `json:"command"`
}

type MarkerMessage struct {
	Header MarkerHeader `json:"header"`
	NS     string       `json:"ns"`
	ID     int32        `json:"id"`
	Type   int32        `json:"type"`
	Action int32        `json:"action"`
	Pose   MarkerPose   `json:"pose"`
	Scale  Vector3      `json:"scale"`
	Color  ColorRGBA    `json:"color"`
}

type MarkerHeader struct {
	FrameID string      `json:"frame_id"`
	Stamp   MarkerStamp `json:"stamp"`
}

type MarkerStamp struct {
	Sec  int64 `json:"sec"`
	Nsec int64 `json:"nsec"`
}

type MarkerPose struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type ColorRGBA struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

type FrameTime struct {
	Sec  uint32 `json:"sec"`
	Nsec uint32 `json:"nsec"`
}

type LogMessage struct {
	Timestamp FrameTime `json:"timestamp"`
	Level     uint8     `json:"level"`
	Message   string    `json:"message"`
	Name      string    `json:"name"`
	File      string    `json:"file"`
	Line      uint32    `json:"line"`
}

type Server struct {
	cfg     Config
	hub     *engine.Hub
	logger  zerolog.Logger
	clients map[*client]struct{}
	mu      sync.RWMutex
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	subs map[uint32]uint64
	mu   sync.RWMutex
	once sync.Once
}

func NewServer(cfg Config, hub *engine.Hub, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg.normalize(),
		hub:     hub,
		logger:  zerolog.Nop(),
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Config() Config {
	return s.cfg
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.WSAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener, which it closes on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sub := s.hub.SubscribeAs("foxglove", 0)
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("foxglove bridge listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(conn, s.cfg.SendBuf)
	s.addClient(c)
	defer func() {
		c.close()
		s.removeClient(c)
	}()

	if err := conn.WriteJSON(s.serverInfo()); err != nil {
		return
	}
	if err := conn.WriteJSON(s.advertise()); err != nil {
		return
	}

	go c.writeLoop()
	c.readLoop(s.supportedChannels())
}

func (s *Server) channels() []ChannelConfig {
	return []ChannelConfig{s.cfg.Packet, s.cfg.Signal, s.cfg.Marker, s.cfg.Log}
}

func (s *Server) supportedChannels() map[uint64]struct{} {
	ids := make(map[uint64]struct{}, 4)
	for _, ch := range s.channels() {
		ids[ch.ID] = struct{}{}
	}
	return ids
}

func (s *Server) serverInfo() ServerInfoMsg {
	return ServerInfoMsg{
		Op:                 OpServerInfo,
		Name:               s.cfg.Name,
		Capabilities:       []string{},
		SupportedEncodings: []string{},
		SessionID:          strconv.FormatInt(time.Now().UTC().UnixNano(), 10),
	}
}

func (s *Server) advertise() AdvertiseMsg {
	cfgs := s.channels()
	channels := make([]Channel, 0, len(cfgs))
	for _, ch := range cfgs {
		channels = append(channels, ch.channel())
	}
	return AdvertiseMsg{Op: OpAdvertise, Channels: channels}
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan protocol.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-sub:
			if !ok {
				return
			}
			s.broadcastPacket(pkt)
		}
	}
}

func (s *Server) broadcastPacket(pkt protocol.Packet) {
	ts := pkt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	s.publishJSONToChannel(s.cfg.Packet.ID, ts, packetRecord(pkt, ts))

	if advice, ok := pkt.Data.(crossing.Advice); ok {
		s.publishJSONToChannel(s.cfg.Signal.ID, ts, signalRecord(advice))
		s.publishJSONToChannel(s.cfg.Marker.ID, ts, s.markerFromAdvice(advice, ts))
	}
	if msg, ok := s.logFromPacket(pkt, ts); ok {
		s.publishJSONToChannel(s.cfg.Log.ID, ts, msg)
	}
}

func (s *Server) publishJSONToChannel(channelID uint64, ts time.Time, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn().Err(err).Uint64("channel", channelID).Msg("marshal foxglove message")
		return
	}

	logTime := uint64(ts.UnixNano())
	for _, c := range s.snapshotClients() {
		for _, subID := range c.subIDsForChannel(channelID) {
			c.trySend(EncodeMessageData(subID, logTime, payload))
		}
	}
}

func packetRecord(pkt protocol.Packet, ts time.Time) PacketRecord {
	rec := PacketRecord{
		Kind:       pkt.Kind.String(),
		TS:         ts.UTC().Format(time.RFC3339Nano),
		PayloadHex: hex.EncodeToString(pkt.Payload),
		Data:       pkt.Data,
	}
	if text, ok := pkt.Data.(string); ok {
		rec.Text = text
		rec.Data = nil
	}
	return rec
}

func signalRecord(a crossing.Advice) SignalRecord {
	return SignalRecord{
		State:          a.Report.State().String(),
		Angle:          a.Report.Angle().Degrees(),
		SignalQuadrant: a.SignalQuadrant.String(),
		UserQuadrant:   a.UserQuadrant.String(),
		Aligned:        a.Aligned,
		Command:        string(a.Command),
	}
}

// markerFromAdvice draws the signal housing as a cube yawed to its mounting
// angle: green while pedestrians may cross, red otherwise.
func (s *Server) markerFromAdvice(a crossing.Advice, ts time.Time) MarkerMessage {
	color := ColorRGBA{R: 1, G: 0, B: 0, A: 1}
	if a.Report.State().IsActive() {
		color = ColorRGBA{R: 0, G: 1, B: 0, A: 1}
	}
	return MarkerMessage{
		Header: MarkerHeader{
			FrameID: s.cfg.FrameID,
			Stamp: MarkerStamp{
				Sec:  ts.Unix(),
				Nsec: int64(ts.Nanosecond()),
			},
		},
		NS:     "pulsera.signal",
		ID:     1,
		Type:   markerTypeCube,
		Action: markerActionAdd,
		Pose: MarkerPose{
			Position:    Vector3{},
			Orientation: yawQuaternion(float64(a.Report.Angle().Degrees())),
		},
		Scale: Vector3{X: 0.3, Y: 0.3, Z: 0.3},
		Color: color,
	}
}

// yawQuaternion rotates about +Z by a compass angle measured clockwise
// from north.
func yawQuaternion(deg float64) Quaternion {
	half := -deg * math.Pi / 360
	return Quaternion{Z: math.Sin(half), W: math.Cos(half)}
}

func (s *Server) logFromPacket(pkt protocol.Packet, ts time.Time) (LogMessage, bool) {
	if pkt.Kind != protocol.KindLog {
		return LogMessage{}, false
	}
	text, ok := pkt.Data.(string)
	if !ok {
		text = protocol.ParseLog(pkt.Payload)
	}
	return LogMessage{
		Timestamp: FrameTime{Sec: uint32(ts.Unix()), Nsec: uint32(ts.Nanosecond())},
		Level:     logLevelInfo,
		Message:   text,
		Name:      s.cfg.LogName,
	}, true
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuf),
		subs: make(map[uint32]uint64),
	}
}

func (c *client) readLoop(supported map[uint64]struct{}) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := ParseClientMessage(data)
		if err != nil {
			continue
		}
		switch msg := msg.(type) {
		case SubscribeMsg:
			for _, sub := range msg.Subscriptions {
				if _, ok := supported[sub.ChannelID]; ok {
					c.addSub(sub.ID, sub.ChannelID)
				}
			}
		case UnsubscribeMsg:
			for _, id := range msg.SubscriptionIDs {
				c.removeSub(id)
			}
		}
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

// trySend drops msg when the client is slow. The recover covers a send
// racing with close.
func (c *client) trySend(msg []byte) {
	defer func() {
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) addSub(id uint32, channelID uint64) {
	c.mu.Lock()
	c.subs[id] = channelID
	c.mu.Unlock()
}

func (c *client) removeSub(id uint32) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *client) subIDsForChannel(channelID uint64) []uint32 {
	c.mu.RLock()
	ids := make([]uint32, 0, len(c.subs))
	for id, ch := range c.subs {
		if ch == channelID {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	return ids
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
