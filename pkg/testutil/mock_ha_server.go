// Package testutil provides testing utilities for the IR fan service.
// This package contains a mock Home Assistant WebSocket server and helpers
// for writing integration tests.
package testutil

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *connWrapper) write(msg Message) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.WriteJSON(msg)
}

// MockHAServer simulates a Home Assistant WebSocket server with remote
// entities that accept remote.send_command
type MockHAServer struct {
	server       *httptest.Server
	states       map[string]*EntityState
	statesMu     sync.RWMutex
	connections  []*connWrapper
	connsMu      sync.Mutex
	token        string
	serviceCalls []ServiceCall // Track all service calls for verification
	failures     map[string]*Error
	callsMu      sync.Mutex // Protects serviceCalls and failures
}

// EntityState represents a Home Assistant entity state
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// Message represents a WebSocket message
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a failed result
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMessage represents authentication request
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// CallServiceRequest represents a service call
type CallServiceRequest struct {
	ID          int                    `json:"id"`
	Type        string                 `json:"type"`
	Domain      string                 `json:"domain"`
	Service     string                 `json:"service"`
	ServiceData map[string]interface{} `json:"service_data,omitempty"`
}

// NewMockHAServer creates a new mock HA server
func NewMockHAServer(token string) *MockHAServer {
	return &MockHAServer{
		states:       make(map[string]*EntityState),
		connections:  make([]*connWrapper, 0),
		token:        token,
		serviceCalls: make([]ServiceCall, 0),
		failures:     make(map[string]*Error),
	}
}

// Start starts the mock server on a free local port
func (s *MockHAServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", s.handleWebSocket)
	s.server = httptest.NewServer(mux)
	return nil
}

// URL returns the websocket URL clients connect to
func (s *MockHAServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/websocket"
}

// Stop stops the mock server
func (s *MockHAServer) Stop() error {
	s.connsMu.Lock()
	for _, wrapper := range s.connections {
		wrapper.conn.Close()
	}
	s.connections = nil
	s.connsMu.Unlock()

	if s.server != nil {
		s.server.Close()
	}
	return nil
}

// SetState sets an entity state
func (s *MockHAServer) SetState(entityID, state string, attributes map[string]interface{}) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	now := time.Now()
	s.states[entityID] = &EntityState{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
}

// GetState retrieves a state
func (s *MockHAServer) GetState(entityID string) *EntityState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()
	return s.states[entityID]
}

// AddRemote registers an IR blaster remote entity
func (s *MockHAServer) AddRemote(entityID string) {
	s.SetState(entityID, "on", map[string]interface{}{
		"friendly_name": entityID,
	})
}

// FailService makes calls to domain.service return a failed result
func (s *MockHAServer) FailService(domain, service, code, message string) {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.failures[domain+"."+service] = &Error{Code: code, Message: message}
}

// handleWebSocket handles WebSocket connections
func (s *MockHAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	wrapper := &connWrapper{conn: conn}

	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.connsMu.Unlock()

	defer func() {
		s.connsMu.Lock()
		for i, w := range s.connections {
			if w.conn == conn {
				s.connections = append(s.connections[:i], s.connections[i+1:]...)
				break
			}
		}
		s.connsMu.Unlock()
		conn.Close()
	}()

	wrapper.write(Message{Type: "auth_required"})

	var authMsg AuthMessage
	if err := conn.ReadJSON(&authMsg); err != nil {
		return
	}

	if authMsg.AccessToken != s.token {
		wrapper.write(Message{Type: "auth_invalid"})
		return
	}

	wrapper.write(Message{Type: "auth_ok"})

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		var baseMsg struct {
			ID   int    `json:"id"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &baseMsg); err != nil {
			continue
		}

		switch baseMsg.Type {
		case "get_states":
			s.handleGetStates(wrapper, baseMsg.ID)
		case "call_service":
			s.handleCallService(wrapper, msg)
		default:
			failed := false
			wrapper.write(Message{
				ID:      baseMsg.ID,
				Type:    "result",
				Success: &failed,
				Error:   &Error{Code: "unknown_command", Message: "Unknown command."},
			})
		}
	}
}

// handleGetStates handles get_states requests
func (s *MockHAServer) handleGetStates(wrapper *connWrapper, id int) {
	s.statesMu.RLock()
	states := make([]*EntityState, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, state)
	}
	s.statesMu.RUnlock()

	statesJSON, _ := json.Marshal(states)
	success := true
	wrapper.write(Message{
		ID:      id,
		Type:    "result",
		Success: &success,
		Result:  statesJSON,
	})
}

// handleCallService handles service calls
func (s *MockHAServer) handleCallService(wrapper *connWrapper, msg json.RawMessage) {
	var req CallServiceRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return
	}

	// Track the service call for test verification
	s.callsMu.Lock()
	s.serviceCalls = append(s.serviceCalls, ServiceCall{
		Timestamp:   time.Now(),
		Domain:      req.Domain,
		Service:     req.Service,
		ServiceData: req.ServiceData,
	})
	failure := s.failures[req.Domain+"."+req.Service]
	s.callsMu.Unlock()

	if failure != nil {
		failed := false
		wrapper.write(Message{ID: req.ID, Type: "result", Success: &failed, Error: failure})
		return
	}

	if req.Domain == "remote" && req.Service == "send_command" {
		entityID, _ := req.ServiceData["entity_id"].(string)
		s.statesMu.Lock()
		if st, ok := s.states[entityID]; ok {
			if st.Attributes == nil {
				st.Attributes = make(map[string]interface{})
			}
			st.Attributes["last_command"] = req.ServiceData["command"]
			st.LastUpdated = time.Now()
		}
		s.statesMu.Unlock()
	}

	success := true
	wrapper.write(Message{
		ID:      req.ID,
		Type:    "result",
		Success: &success,
	})
}

// GetServiceCalls returns all service calls since last clear
func (s *MockHAServer) GetServiceCalls() []ServiceCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	calls := make([]ServiceCall, len(s.serviceCalls))
	copy(calls, s.serviceCalls)
	return calls
}

// ClearServiceCalls resets the service call log
func (s *MockHAServer) ClearServiceCalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.serviceCalls = nil
}

// FindServiceCall finds the most recent service call matching criteria
// Returns nil if no matching call found
func (s *MockHAServer) FindServiceCall(domain, service string, entityID string) *ServiceCall {
	return FindServiceCallWithEntityIDOrAny(s.GetServiceCalls(), domain, service, entityID)
}

// CountServiceCalls counts service calls matching criteria
func (s *MockHAServer) CountServiceCalls(domain, service string) int {
	return len(FilterServiceCalls(s.GetServiceCalls(), domain, service))
}

// SentCommands returns the IR commands sent to a remote entity, in order
func (s *MockHAServer) SentCommands(entityID string) []string {
	var out []string
	for _, call := range FilterServiceCalls(s.GetServiceCalls(), "remote", "send_command") {
		if eid, _ := call.ServiceData["entity_id"].(string); eid != entityID {
			continue
		}
		out = append(out, call.Commands()...)
	}
	return out
}
