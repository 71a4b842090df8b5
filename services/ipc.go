package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"meetinglight/models"

	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned when another agent answers on the socket
var ErrAlreadyRunning = errors.New("another meetinglight instance is already running")

const (
	ipcCommandStatus = "status"
	ipcDialTimeout   = time.Second
	ipcIOTimeout     = 5 * time.Second
)

// IPCRequest is sent from the status command to the agent.
type IPCRequest struct {
	Command string `json:"command"`
}

// IPCResponse is sent from the agent back to the status command.
type IPCResponse struct {
	Status *models.AgentStatus `json:"status,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// StatusProvider reports the live agent state
type StatusProvider interface {
	Status() models.AgentStatus
}

// IPCServer owns the agent's unix socket. Holding the socket is what makes
// an agent the single running instance.
type IPCServer struct {
	path     string
	listener net.Listener
	logger   *zap.Logger

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// ListenIPC claims the socket at path. It returns ErrAlreadyRunning when a
// live agent is listening there and replaces a stale socket file otherwise.
func ListenIPC(path string, logger *zap.Logger) (*IPCServer, error) {
	if conn, err := net.DialTimeout("unix", path, ipcDialTimeout); err == nil {
		conn.Close()
		return nil, ErrAlreadyRunning
	}

	// remove stale socket
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o700); err != nil {
		logger.Warn("Failed to restrict socket permissions", zap.String("path", path), zap.Error(err))
	}

	return &IPCServer{
		path:     path,
		listener: ln,
		logger:   logger,
	}, nil
}

// Serve answers requests until Close is called. It blocks.
func (s *IPCServer) Serve(provider StatusProvider) {
	s.logger.Info("Listening for status requests", zap.String("socket", s.path))
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Error("Status socket accept failed", zap.Error(err))
			}
			return
		}
		go s.handleConn(conn, provider)
	}
}

func (s *IPCServer) handleConn(conn net.Conn, provider StatusProvider) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcIOTimeout))

	var req IPCRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = json.NewEncoder(conn).Encode(IPCResponse{Error: "invalid request: " + err.Error()})
		return
	}

	if err := json.NewEncoder(conn).Encode(handleIPCRequest(req, provider)); err != nil {
		s.logger.Debug("Failed to write status response", zap.Error(err))
	}
}

func handleIPCRequest(req IPCRequest, provider StatusProvider) IPCResponse {
	switch req.Command {
	case ipcCommandStatus:
		status := provider.Status()
		return IPCResponse{Status: &status}
	default:
		return IPCResponse{Error: fmt.Sprintf("unknown command: %q", req.Command)}
	}
}

// Close stops accepting requests and removes the socket file. It is safe
// to call more than once and without Serve having been called.
func (s *IPCServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		err = s.listener.Close()
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	})
	return err
}

// QueryStatus asks the agent listening on path for its status
func QueryStatus(path string) (models.AgentStatus, error) {
	conn, err := net.DialTimeout("unix", path, ipcDialTimeout)
	if err != nil {
		return models.AgentStatus{}, fmt.Errorf("connect to agent: %w (is meetinglight running?)", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcIOTimeout))

	if err := json.NewEncoder(conn).Encode(IPCRequest{Command: ipcCommandStatus}); err != nil {
		return models.AgentStatus{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return models.AgentStatus{}, fmt.Errorf("read response: %w", err)
	}
	if resp.Error != "" {
		return models.AgentStatus{}, errors.New(resp.Error)
	}
	if resp.Status == nil {
		return models.AgentStatus{}, errors.New("empty status response")
	}
	return *resp.Status, nil
}
