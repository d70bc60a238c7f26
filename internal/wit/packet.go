// Package wit decodes the binary telemetry stream of WIT-Motion HWT905 style
// IMU modules and builds the command frames they accept.
package wit

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cjeanneret/SolGo/internal/logic/angle"
)

// Framing
const (
	Header     = 0x55
	PacketSize = 11
)

// PacketType is the second byte of a frame.
type PacketType byte

// Packet types sent by the module. Only accel, gyro and angle are decoded.
const (
	TypeTime       PacketType = 0x50
	TypeAccel      PacketType = 0x51
	TypeGyro       PacketType = 0x52
	TypeAngle      PacketType = 0x53
	TypeMagnetic   PacketType = 0x54
	TypePressure   PacketType = 0x56
	TypeQuaternion PacketType = 0x59
)

func (t PacketType) String() string {
	switch t {
	case TypeTime:
		return "time"
	case TypeAccel:
		return "accel"
	case TypeGyro:
		return "gyro"
	case TypeAngle:
		return "angle"
	case TypeMagnetic:
		return "magnetic"
	case TypePressure:
		return "pressure"
	case TypeQuaternion:
		return "quaternion"
	default:
		return fmt.Sprintf("0x%02X", byte(t))
	}
}

// Scale factors (datasheet full-scale ranges).
const (
	rawFullScale  = 32768.0
	angleRange    = 180.0  // degrees
	accelRangeG   = 16.0   // g
	gravity       = 9.81   // m/s² per g
	gyroRange     = 2000.0 // °/s
	tempDivisor   = 340.0
	tempOffsetDeg = 36.25
)

// Reading is one decoded packet. Only the fields belonging to Type are set;
// use Merge to fold successive packets into a full attitude snapshot.
type Reading struct {
	Type PacketType

	Roll    float64 // degrees [-180, 180)
	Pitch   float64 // degrees [-180, 180)
	Heading float64 // degrees [0, 360)

	AccelX, AccelY, AccelZ float64 // m/s²
	GyroX, GyroY, GyroZ    float64 // °/s

	Temperature float64 // °C

	Valid bool
}

// Merge returns r updated with the fields carried by next.
// Invalid readings leave r untouched.
func (r Reading) Merge(next Reading) Reading {
	if !next.Valid {
		return r
	}
	switch next.Type {
	case TypeAngle:
		r.Roll, r.Pitch, r.Heading = next.Roll, next.Pitch, next.Heading
		r.Temperature = next.Temperature
	case TypeAccel:
		r.AccelX, r.AccelY, r.AccelZ = next.AccelX, next.AccelY, next.AccelZ
	case TypeGyro:
		r.GyroX, r.GyroY, r.GyroZ = next.GyroX, next.GyroY, next.GyroZ
	default:
		return r
	}
	r.Type = next.Type
	r.Valid = true
	return r
}

// Checksum is the low byte of the sum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// Decode parses one frame from the start of buf. buf must hold at least
// PacketSize bytes; extra bytes are ignored. A failed decode never returns
// a valid Reading.
func Decode(buf []byte) (Reading, error) {
	if len(buf) < PacketSize {
		return Reading{}, &DecodeError{Kind: ErrTruncated, Got: len(buf), Want: PacketSize}
	}
	if buf[0] != Header {
		return Reading{}, &DecodeError{Kind: ErrBadHeader, Got: int(buf[0]), Want: Header}
	}
	typ := PacketType(buf[1])
	if sum := Checksum(buf[:PacketSize-1]); sum != buf[PacketSize-1] {
		return Reading{}, &DecodeError{Kind: ErrChecksumMismatch, Type: typ, Got: int(buf[PacketSize-1]), Want: int(sum)}
	}

	f0, f1, f2, f3 := field(buf, 0), field(buf, 1), field(buf, 2), field(buf, 3)
	r := Reading{Type: typ, Valid: true}
	switch typ {
	case TypeAngle:
		r.Roll = scale(f0, angleRange)
		r.Pitch = scale(f1, angleRange)
		r.Heading = angle.Normalize(scale(f2, angleRange))
		r.Temperature = float64(f3)/tempDivisor + tempOffsetDeg
	case TypeAccel:
		r.AccelX = scale(f0, accelRangeG*gravity)
		r.AccelY = scale(f1, accelRangeG*gravity)
		r.AccelZ = scale(f2, accelRangeG*gravity)
	case TypeGyro:
		r.GyroX = scale(f0, gyroRange)
		r.GyroY = scale(f1, gyroRange)
		r.GyroZ = scale(f2, gyroRange)
	default:
		return Reading{}, &DecodeError{Kind: ErrUnknownType, Type: typ}
	}
	return r, nil
}

// field returns the i-th signed little-endian data word of a frame.
func field(buf []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(buf[2+2*i:]))
}

func scale(raw int16, fullScale float64) float64 {
	return float64(raw) / rawFullScale * fullScale
}

// Encode builds a frame of the given type around four raw data words.
func Encode(typ PacketType, words [4]int16) [PacketSize]byte {
	var p [PacketSize]byte
	p[0] = Header
	p[1] = byte(typ)
	for i, w := range words {
		binary.LittleEndian.PutUint16(p[2+2*i:], uint16(w))
	}
	p[PacketSize-1] = Checksum(p[:PacketSize-1])
	return p
}

// EncodeAngle builds an angle frame. Heading is accepted in [0, 360) and sent
// in the sensor's signed ±180° convention.
func EncodeAngle(roll, pitch, heading, temperature float64) [PacketSize]byte {
	h := angle.Normalize(heading)
	if h >= angleRange {
		h -= 360
	}
	return Encode(TypeAngle, [4]int16{
		unscale(roll, angleRange),
		unscale(pitch, angleRange),
		unscale(h, angleRange),
		toInt16((temperature - tempOffsetDeg) * tempDivisor),
	})
}

// EncodeAccel builds an acceleration frame from m/s² values.
func EncodeAccel(x, y, z float64) [PacketSize]byte {
	fs := accelRangeG * gravity
	return Encode(TypeAccel, [4]int16{unscale(x, fs), unscale(y, fs), unscale(z, fs), 0})
}

// EncodeGyro builds an angular velocity frame from °/s values.
func EncodeGyro(x, y, z float64) [PacketSize]byte {
	return Encode(TypeGyro, [4]int16{unscale(x, gyroRange), unscale(y, gyroRange), unscale(z, gyroRange), 0})
}

func unscale(v, fullScale float64) int16 {
	return toInt16(v / fullScale * rawFullScale)
}

func toInt16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
