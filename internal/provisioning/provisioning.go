package provisioning

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/connectivity"
	"github.com/pandora-iot/pot-controller/internal/datadog"
	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

const (
	ListenInterval  = 500 * time.Millisecond
	SessionInterval = 500 * time.Millisecond

	// RecordSize is the fixed-width configuration record: ssid[32],
	// psk[64], account[32], device_id u32, display_name[32],
	// ntp_host[64], gmt_offset i32, dst_offset i32.
	RecordSize = 236

	readDeadline = 5 * time.Millisecond
)

// Server owns the fallback TCP transport. Accepting happens on its own
// goroutine and only hands connections over through a channel; everything
// else runs inside scheduler tasks, so the single-client and read-buffer
// state needs no locks.
type Server struct {
	listener net.Listener
	pending  chan net.Conn
	conn     net.Conn
	buf      []byte
}

func NewServer(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{listener: ln, pending: make(chan net.Conn, 4)}
	go s.acceptLoop()
	log.Info().Str("addr", addr).Msg("Provisioning listener started")
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			log.Info().Err(err).Msg("Provisioning accept loop stopped")
			return
		}
		select {
		case s.pending <- conn:
		default:
			conn.Close()
		}
	}
}

// ListenTask adopts at most one pending connection per tick, and only
// when no client is tracked. Extra pending connections are closed; this
// transport is strictly one client at a time.
func (s *Server) ListenTask(report func(connectivity.Event)) *scheduler.Task {
	return scheduler.NewTask("provisioning-listener", ListenInterval, func(now time.Time) {
		select {
		case conn := <-s.pending:
			if s.conn != nil {
				log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("Second provisioning client rejected")
				conn.Close()
				return
			}
			s.conn = conn
			s.buf = s.buf[:0]
			log.Info().Str("remote", conn.RemoteAddr().String()).Msg("Provisioning client connected")
			report(connectivity.EventClientAccepted)
		default:
		}
	})
}

// SessionTask reads whatever bytes the client has sent, buffering across
// ticks until a whole record is in hand. It must never wait for data;
// reads carry a short deadline so a silent client costs one timeout per
// tick and nothing more.
func (s *Server) SessionTask(st *model.DeviceState, report func(connectivity.Event)) *scheduler.Task {
	tmp := make([]byte, RecordSize)
	return scheduler.NewTask("provisioning-session", SessionInterval, func(now time.Time) {
		if s.conn == nil {
			return
		}

		s.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, err := s.conn.Read(tmp)
		if n > 0 {
			s.buf = append(s.buf, tmp[:n]...)
		}
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			log.Warn().Err(err).Msg("Provisioning client read failed, dropping client")
			s.DropClient()
			return
		}

		if len(s.buf) < RecordSize {
			return
		}

		st.Init = parseRecord(s.buf[:RecordSize])
		log.Info().
			Str("ssid", st.Init.SSID).
			Str("account", st.Init.Account).
			Uint32("device_id", st.Init.DeviceID).
			Str("display_name", st.Init.DisplayName).
			Msg("Configuration record received")
		datadog.Incr("provisioning.config_received")
		report(connectivity.EventConfigReceived)
	})
}

// DropClient closes and forgets the tracked client. Safe to call with no
// client tracked.
func (s *Server) DropClient() {
	if s.conn == nil {
		return
	}
	s.conn.Close()
	s.conn = nil
	s.buf = nil
}

func (s *Server) Close() {
	s.DropClient()
	s.listener.Close()
}

func parseRecord(b []byte) model.InitConfig {
	return model.InitConfig{
		SSID:        cstr(b[0:32]),
		Passphrase:  cstr(b[32:96]),
		Account:     cstr(b[96:128]),
		DeviceID:    binary.LittleEndian.Uint32(b[128:132]),
		DisplayName: cstr(b[132:164]),
		NTPHost:     cstr(b[164:228]),
		GMTOffset:   int32(binary.LittleEndian.Uint32(b[228:232])),
		DSTOffset:   int32(binary.LittleEndian.Uint32(b[232:236])),
	}
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
