// Package virtual implements a TCP-backed loopback CAN bus, primarily used
// for tests and the canardctl CLI demo. It speaks to a broker server that
// fans frames out to every connected client; windelbouwman/virtualcan is a
// compatible broker.
package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/canardgo/canard"
)

func init() {
	canard.RegisterInterface("virtual", NewBus)
	canard.RegisterInterface("virtualcan", NewBus)
}

// maxFrameBytes bounds a CAN FD frame's payload (64 bytes) for the wire
// encoding below.
const maxFrameBytes = 64

// wireFrame is the fixed-size on-the-wire representation of a canard.Frame,
// serialized with encoding/binary the way the teacher's virtual bus
// serializes canopen.Frame — a plain struct of fixed-width fields, no
// slices, so binary.Write/Read can operate on it directly.
type wireFrame struct {
	ID           uint32
	CANFD        uint8
	DataLen      uint8
	DeadlineUSec uint64
	IfaceMask    uint8
	Data         [maxFrameBytes]byte
}

func toWireFrame(frame canard.Frame) wireFrame {
	var w wireFrame
	w.ID = frame.ID
	if frame.CANFD {
		w.CANFD = 1
	}
	n := copy(w.Data[:], frame.Data)
	w.DataLen = uint8(n)
	w.DeadlineUSec = frame.DeadlineUSec
	w.IfaceMask = frame.IfaceMask
	return w
}

func fromWireFrame(w wireFrame) canard.Frame {
	return canard.Frame{
		ID:           w.ID,
		Data:         append([]byte(nil), w.Data[:w.DataLen]...),
		CANFD:        w.CANFD != 0,
		DeadlineUSec: w.DeadlineUSec,
		IfaceMask:    w.IfaceMask,
	}
}

func serializeFrame(frame canard.Frame) ([]byte, error) {
	buffer := new(bytes.Buffer)
	if err := binary.Write(buffer, binary.BigEndian, toWireFrame(frame)); err != nil {
		return nil, err
	}
	dataBytes := buffer.Bytes()
	frameBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(frameBytes, uint32(len(dataBytes)))
	frameBytes = append(frameBytes, dataBytes...)
	return frameBytes, nil
}

func deserializeFrame(buffer []byte) (*canard.Frame, error) {
	var w wireFrame
	buf := bytes.NewBuffer(buffer)
	if err := binary.Read(buf, binary.BigEndian, &w); err != nil {
		return nil, err
	}
	frame := fromWireFrame(w)
	return &frame, nil
}

// Bus is a TCP client to a virtual CAN broker, implementing canard.Bus.
type Bus struct {
	logger        *logrus.Logger
	mu            sync.Mutex
	channel       string
	conn          net.Conn
	receiveOwn    bool
	listener      canard.FrameListener
	stopChan      chan bool
	wg            sync.WaitGroup
	isRunning     bool
	errSubscriber bool
}

// NewBus constructs a virtual Bus for the given broker address
// (e.g. "localhost:18000"). It satisfies canard.NewInterfaceFunc so it can
// be registered under a transport name.
func NewBus(channel string) (canard.Bus, error) {
	return &Bus{
		channel:  channel,
		stopChan: make(chan bool),
		logger:   logrus.StandardLogger(),
	}, nil
}

// SetLogger overrides the default standard logger.
func (b *Bus) SetLogger(logger *logrus.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Connect dials the broker over TCP.
func (b *Bus) Connect(...any) error {
	conn, err := net.Dial("tcp", b.channel)
	if err != nil {
		return err
	}
	b.conn = conn
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect stops the reception goroutine and closes the connection.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.errSubscriber && b.isRunning {
		b.stopChan <- true
		b.wg.Wait()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Send writes frame to the broker, and additionally delivers it to the
// local listener when SetReceiveOwn(true) was called.
func (b *Bus) Send(frame canard.Frame) error {
	if b.receiveOwn && b.listener != nil {
		b.listener.Handle(frame)
	} else if b.conn == nil {
		return errors.New("canard/virtual: no active connection, abort send")
	}
	if b.conn != nil {
		frameBytes, err := serializeFrame(frame)
		if err != nil {
			return err
		}
		_ = b.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
		_, err = b.conn.Write(frameBytes)
		return err
	}
	return nil
}

// Subscribe installs listener and starts the background reception
// goroutine, if not already running.
func (b *Bus) Subscribe(listener canard.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = listener
	if b.isRunning {
		return nil
	}
	b.wg.Add(1)
	b.isRunning = true
	b.errSubscriber = false
	go b.handleReception()
	return nil
}

// Recv blocks briefly for a single incoming frame from the broker.
func (b *Bus) Recv() (*canard.Frame, error) {
	if b.conn == nil {
		return nil, fmt.Errorf("canard/virtual: no active connection, abort receive")
	}
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	headerBytes := make([]byte, 4)
	n, err := b.conn.Read(headerBytes)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n < 4 || err != nil {
		return nil, fmt.Errorf("canard/virtual: error reading frame header: expected %v, got %v, err: %v", 4, n, err)
	}
	length := binary.BigEndian.Uint32(headerBytes)
	frameBytes := make([]byte, length)
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	n, err = b.conn.Read(frameBytes)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n != int(length) || err != nil {
		return nil, fmt.Errorf("canard/virtual: error reading frame body: expected %v, got %v", length, n)
	}
	return deserializeFrame(frameBytes)
}

func (b *Bus) handleReception() {
	defer func() {
		b.isRunning = false
		b.wg.Done()
	}()
	for {
		select {
		case <-b.stopChan:
			return
		default:
			if !b.mu.TryLock() {
				break
			}
			frame, err := b.Recv()
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// No frame available, this is expected.
			} else if err != nil {
				b.logger.WithError(err).Error("virtual bus reception loop stopped")
				b.errSubscriber = true
				b.mu.Unlock()
				return
			} else if b.listener != nil {
				b.listener.Handle(*frame)
			}
			b.mu.Unlock()
		}
	}
}

// SetReceiveOwn enables local loopback: frames sent by this Bus are also
// delivered to its own listener, without a round trip through the broker.
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.receiveOwn = receiveOwn
}
