package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/pandora-iot/pot-controller/internal/model"
)

// Wire format: a 4-byte header {tag u8, pad[3]} plus a u32 device id,
// followed by a tag-specific fixed-size payload. Everything is little
// endian; time values travel as unix seconds in an i64. The layout must
// stay bit-for-bit stable for the remote controllers already speaking it.

type Tag uint8

const (
	TagUpdate Tag = iota
	TagLight
	TagDrain
	TagAutopilot
	TagForceUpdate
)

func (t Tag) String() string {
	switch t {
	case TagUpdate:
		return "update"
	case TagLight:
		return "light"
	case TagDrain:
		return "drain"
	case TagAutopilot:
		return "autopilot"
	case TagForceUpdate:
		return "force_update"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

const (
	HeaderSize = 8

	UpdatePayloadSize      = 24
	LightPayloadSize       = 16
	DrainPayloadSize       = 16
	AutopilotPayloadSize   = 28
	ForceUpdatePayloadSize = 12

	pilotRecordSize = 8
)

type Header struct {
	Tag      Tag
	DeviceID uint32
}

// Command is one decoded inbound variant. Apply overwrites the matching
// Command History slot verbatim, origin timestamp included; the origin is
// what actuator controllers edge-detect on.
type Command interface {
	Apply(h *model.CommandHistory)
}

type LightMessage model.LightCommand

func (m LightMessage) Apply(h *model.CommandHistory) {
	h.Light = model.LightCommand(m)
}

type DrainMessage model.DrainCommand

func (m DrainMessage) Apply(h *model.CommandHistory) {
	h.Drain = model.DrainCommand(m)
}

type AutopilotMessage model.AutopilotCommand

func (m AutopilotMessage) Apply(h *model.CommandHistory) {
	h.Autopilot = model.AutopilotCommand(m)
}

type ForceUpdateMessage model.ForceUpdateCommand

func (m ForceUpdateMessage) Apply(h *model.CommandHistory) {
	h.ForceUpdate = model.ForceUpdateCommand(m)
}

// Decode validates and parses one inbound message. The payload length must
// match the tag's expected size exactly or the whole message is rejected;
// no fields are extracted from an invalid buffer. Update messages return a
// nil Command: the device subscribes to the topic it publishes telemetry
// on and must ignore its own updates, whatever their size.
func Decode(buf []byte) (Header, Command, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, fmt.Errorf("message too short: %d bytes", len(buf))
	}

	hdr := Header{
		Tag:      Tag(buf[0]),
		DeviceID: binary.LittleEndian.Uint32(buf[4:8]),
	}
	payload := buf[HeaderSize:]

	switch hdr.Tag {
	case TagUpdate:
		return hdr, nil, nil

	case TagLight:
		if len(payload) != LightPayloadSize {
			return hdr, nil, sizeError(hdr.Tag, LightPayloadSize, len(payload))
		}
		return hdr, LightMessage{
			RGB:    payload[0],
			Limit:  binary.LittleEndian.Uint32(payload[4:8]),
			Origin: decodeTime(payload[8:16]),
		}, nil

	case TagDrain:
		if len(payload) != DrainPayloadSize {
			return hdr, nil, sizeError(hdr.Tag, DrainPayloadSize, len(payload))
		}
		return hdr, DrainMessage{
			On:     payload[0] != 0,
			Limit:  binary.LittleEndian.Uint32(payload[4:8]),
			Origin: decodeTime(payload[8:16]),
		}, nil

	case TagAutopilot:
		if len(payload) != AutopilotPayloadSize {
			return hdr, nil, sizeError(hdr.Tag, AutopilotPayloadSize, len(payload))
		}
		return hdr, AutopilotMessage{
			On:     payload[0] != 0,
			Drain:  decodePilot(payload[4:12]),
			Light:  decodePilot(payload[12:20]),
			Origin: decodeTime(payload[20:28]),
		}, nil

	case TagForceUpdate:
		if len(payload) != ForceUpdatePayloadSize {
			return hdr, nil, sizeError(hdr.Tag, ForceUpdatePayloadSize, len(payload))
		}
		return hdr, ForceUpdateMessage{
			On:     payload[0] != 0,
			Origin: decodeTime(payload[4:12]),
		}, nil

	default:
		return hdr, nil, fmt.Errorf("unknown message tag %d", buf[0])
	}
}

// EncodeUpdate serializes the outbound telemetry message.
func EncodeUpdate(deviceID uint32, t model.Telemetry) []byte {
	buf := make([]byte, HeaderSize+UpdatePayloadSize)
	putHeader(buf, TagUpdate, deviceID)

	p := buf[HeaderSize:]
	binary.LittleEndian.PutUint16(p[0:2], t.SoilDryness)
	binary.LittleEndian.PutUint16(p[2:4], t.Brightness)
	binary.LittleEndian.PutUint32(p[4:8], floatBits(t.Humidity))
	binary.LittleEndian.PutUint32(p[8:12], floatBits(t.Temperature))
	if t.ReservoirFull {
		p[12] = 1
	}
	encodeTime(p[16:24], t.SampledAt)
	return buf
}

func EncodeLight(deviceID uint32, cmd model.LightCommand) []byte {
	buf := make([]byte, HeaderSize+LightPayloadSize)
	putHeader(buf, TagLight, deviceID)

	p := buf[HeaderSize:]
	p[0] = cmd.RGB
	binary.LittleEndian.PutUint32(p[4:8], cmd.Limit)
	encodeTime(p[8:16], cmd.Origin)
	return buf
}

func EncodeDrain(deviceID uint32, cmd model.DrainCommand) []byte {
	buf := make([]byte, HeaderSize+DrainPayloadSize)
	putHeader(buf, TagDrain, deviceID)

	p := buf[HeaderSize:]
	if cmd.On {
		p[0] = 1
	}
	binary.LittleEndian.PutUint32(p[4:8], cmd.Limit)
	encodeTime(p[8:16], cmd.Origin)
	return buf
}

func EncodeAutopilot(deviceID uint32, cmd model.AutopilotCommand) []byte {
	buf := make([]byte, HeaderSize+AutopilotPayloadSize)
	putHeader(buf, TagAutopilot, deviceID)

	p := buf[HeaderSize:]
	if cmd.On {
		p[0] = 1
	}
	encodePilot(p[4:12], cmd.Drain)
	encodePilot(p[12:20], cmd.Light)
	encodeTime(p[20:28], cmd.Origin)
	return buf
}

func EncodeForceUpdate(deviceID uint32, cmd model.ForceUpdateCommand) []byte {
	buf := make([]byte, HeaderSize+ForceUpdatePayloadSize)
	putHeader(buf, TagForceUpdate, deviceID)

	p := buf[HeaderSize:]
	if cmd.On {
		p[0] = 1
	}
	encodeTime(p[4:12], cmd.Origin)
	return buf
}

func putHeader(buf []byte, tag Tag, deviceID uint32) {
	buf[0] = uint8(tag)
	binary.LittleEndian.PutUint32(buf[4:8], deviceID)
}

func decodePilot(b []byte) model.PilotRule {
	return model.PilotRule{
		Threshold: binary.LittleEndian.Uint16(b[0:2]),
		Window: model.PilotWindow{
			StartHour:   b[2],
			StartMinute: b[3],
			EndHour:     b[4],
			EndMinute:   b[5],
		},
	}
}

func encodePilot(b []byte, r model.PilotRule) {
	binary.LittleEndian.PutUint16(b[0:2], r.Threshold)
	b[2] = r.Window.StartHour
	b[3] = r.Window.StartMinute
	b[4] = r.Window.EndHour
	b[5] = r.Window.EndMinute
}

func decodeTime(b []byte) time.Time {
	return time.Unix(int64(binary.LittleEndian.Uint64(b)), 0)
}

func encodeTime(b []byte, t time.Time) {
	binary.LittleEndian.PutUint64(b, uint64(t.Unix()))
}

func floatBits(f float64) uint32 {
	return math.Float32bits(float32(f))
}

func sizeError(tag Tag, want, got int) error {
	return fmt.Errorf("%s payload length mismatch: want %d, got %d", tag, want, got)
}
