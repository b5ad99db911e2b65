package peer

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

type MessageType byte

const (
	MessagePut  MessageType = 0x01
	MessageGet  MessageType = 0x02
	MessageList MessageType = 0x03
	MessagePing MessageType = 0x04
)

type ResponseCode byte

const (
	ResponseOK       ResponseCode = 0x00
	ResponseErr      ResponseCode = 0x01
	ResponseStale    ResponseCode = 0x02
	ResponseNotFound ResponseCode = 0x03
)

const maxPayload = 4 << 30

// Message is one request. Checksum and Data are only on the wire for puts.
type Message struct {
	Type     MessageType
	OriginID string
	VClock   map[string]uint64
	Key      string
	Checksum []byte
	Data     []byte
}

// Response carries the object for gets and newline separated keys for lists.
type Response struct {
	Code   ResponseCode
	Msg    string
	VClock map[string]uint64
	Data   []byte
}

func WriteMessage(w io.Writer, msg Message) error {
	if _, err := w.Write([]byte{byte(msg.Type)}); err != nil {
		return err
	}

	if err := writeString(w, msg.OriginID); err != nil {
		return err
	}

	if err := writeClock(w, msg.VClock); err != nil {
		return err
	}

	if err := writeString(w, msg.Key); err != nil {
		return err
	}

	if msg.Type == MessagePut {
		if len(msg.Checksum) != sha256.Size {
			return fmt.Errorf("put of %s without checksum", msg.Key)
		}

		if _, err := w.Write(msg.Checksum); err != nil {
			return err
		}

		if err := writeBytes(w, msg.Data); err != nil {
			return err
		}
	}

	return nil
}

func ReadMessage(r io.Reader) (Message, error) {
	var msg Message

	typeBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, typeBuf); err != nil {
		return msg, err
	}
	msg.Type = MessageType(typeBuf[0])

	originID, err := readString(r)
	if err != nil {
		return msg, err
	}
	msg.OriginID = originID

	if msg.VClock, err = readClock(r); err != nil {
		return msg, err
	}

	if msg.Key, err = readString(r); err != nil {
		return msg, err
	}

	if msg.Type == MessagePut {
		msg.Checksum = make([]byte, sha256.Size)
		if _, err := io.ReadFull(r, msg.Checksum); err != nil {
			return msg, err
		}

		if msg.Data, err = readBytes(r); err != nil {
			return msg, err
		}
	}

	return msg, nil
}

func WriteResponse(w io.Writer, resp Response) error {
	if _, err := w.Write([]byte{byte(resp.Code)}); err != nil {
		return err
	}

	if err := writeString(w, resp.Msg); err != nil {
		return err
	}

	if err := writeClock(w, resp.VClock); err != nil {
		return err
	}

	return writeBytes(w, resp.Data)
}

func ReadResponse(r io.Reader) (Response, error) {
	var resp Response

	codeBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, codeBuf); err != nil {
		return resp, err
	}
	resp.Code = ResponseCode(codeBuf[0])

	msg, err := readString(r)
	if err != nil {
		return resp, err
	}
	resp.Msg = msg

	if resp.VClock, err = readClock(r); err != nil {
		return resp, err
	}

	if resp.Data, err = readBytes(r); err != nil {
		return resp, err
	}

	return resp, nil
}

func writeClock(w io.Writer, clock map[string]uint64) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(clock))); err != nil {
		return err
	}

	for k, v := range clock {
		if err := writeString(w, k); err != nil {
			return err
		}

		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}

	return nil
}

func readClock(r io.Reader) (map[string]uint64, error) {
	var clockLen uint32
	if err := binary.Read(r, binary.BigEndian, &clockLen); err != nil {
		return nil, err
	}

	clock := make(map[string]uint64, clockLen)
	for range clockLen {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}

		var v uint64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}

		clock[k] = v
	}

	return clock, nil
}

func writeString(w io.Writer, s string) error {
	b := []byte(s)
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}

	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}

	return string(b), nil
}

func writeBytes(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint64(len(data))); err != nil {
		return err
	}

	_, err := w.Write(data)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var length uint64
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if length > maxPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds limit", length)
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}

	return b, nil
}

func Checksum(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}
