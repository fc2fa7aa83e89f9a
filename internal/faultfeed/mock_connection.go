package faultfeed

import (
	"errors"
	"sync"
	"time"
)

// MockConnection is a mock implementation of the Connection interface
// for testing.
type MockConnection struct {
	mu sync.Mutex

	WrittenMessages []MockMessage
	ReadMessages    []MockMessage
	readIndex       int

	Closed        bool
	ReadDeadline  time.Time
	WriteDeadline time.Time
	PongHandler   func(string) error
	RemoteAddress string
	ReadLimit     int64

	// readBlock, when set, makes ReadMessage block until the connection
	// is closed instead of failing when no messages remain.
	readBlock chan struct{}
}

// MockMessage represents a message for mocking.
type MockMessage struct {
	Type int
	Data []byte
	Err  error
}

// NewMockConnection creates a new mock connection.
func NewMockConnection() *MockConnection {
	return &MockConnection{
		RemoteAddress: "127.0.0.1:8080",
		readBlock:     make(chan struct{}),
	}
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return errors.New("connection closed")
	}

	m.WrittenMessages = append(m.WrittenMessages, MockMessage{
		Type: messageType,
		Data: append([]byte(nil), data...),
	})
	return nil
}

func (m *MockConnection) ReadMessage() (messageType int, p []byte, err error) {
	m.mu.Lock()
	if m.Closed {
		m.mu.Unlock()
		return 0, nil, errors.New("connection closed")
	}
	if m.readIndex < len(m.ReadMessages) {
		msg := m.ReadMessages[m.readIndex]
		m.readIndex++
		m.mu.Unlock()
		return msg.Type, msg.Data, msg.Err
	}
	block := m.readBlock
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	return 0, nil, errors.New("no more messages")
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Closed {
		m.Closed = true
		if m.readBlock != nil {
			close(m.readBlock)
			m.readBlock = nil
		}
	}
	return nil
}

func (m *MockConnection) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadDeadline = t
	return nil
}

func (m *MockConnection) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteDeadline = t
	return nil
}

func (m *MockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadLimit = limit
}

func (m *MockConnection) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PongHandler = h
}

func (m *MockConnection) RemoteAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RemoteAddress
}

// GetWrittenMessages returns a copy of all messages written so far.
func (m *MockConnection) GetWrittenMessages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]MockMessage, len(m.WrittenMessages))
	copy(result, m.WrittenMessages)
	return result
}
