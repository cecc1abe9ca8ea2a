package userservice

import (
	"errors"
	"sync"

	"github.com/yourusername/edgerpc/internal/protocol"
	"github.com/yourusername/edgerpc/internal/router"
)

// Method indices, matching the order RPC_SERVICE declares them in
// user_service.rpc.h.
const (
	MethodGetUser    uint8 = 0
	MethodCreateUser uint8 = 1
	MethodUpdateUser uint8 = 2
	MethodDeleteUser uint8 = 3
	MethodListUsers  uint8 = 4
	MethodWatchUsers uint8 = 5
)

// Streamer is the subset of core.Api a stream-returning method needs:
// it records which method_id an emitted event should be attributed to,
// and pushes the event frame out through every registered transport.
type Streamer interface {
	SetStreamMethodID(mid uint16)
	ClearStreamMethodID()
	StreamEmit(methodID byte, payload []byte) error
}

// Service is the in-memory UserService implementation. A production
// handler would back this with real storage; this one exists to
// exercise the router/codec/framepool/transport path end to end.
type Service struct {
	streamer   Streamer
	serviceIdx uint8
	nextID     int32
	mu         sync.Mutex
	users      map[int32]User
	watching   bool
}

// New creates a Service. serviceIdx must be the index RegisterService
// returned for this service, so WatchUsers can compute the method_id
// its stream events carry.
func New(streamer Streamer, serviceIdx int) *Service {
	return &Service{
		streamer:   streamer,
		serviceIdx: uint8(serviceIdx),
		users:      make(map[int32]User),
		nextID:     1,
	}
}

// Dispatch implements router.Dispatch.
func (s *Service) Dispatch(methodIndex uint8, payload []byte, resp *protocol.Writer) error {
	switch methodIndex {
	case MethodGetUser:
		return s.getUser(payload, resp)
	case MethodCreateUser:
		return s.createUser(payload, resp)
	case MethodUpdateUser:
		return s.updateUser(payload, resp)
	case MethodDeleteUser:
		return s.deleteUser(payload, resp)
	case MethodListUsers:
		return s.listUsers(payload, resp)
	case MethodWatchUsers:
		return s.watchUsers(resp)
	default:
		return router.ErrUnknownMethod
	}
}

func (s *Service) getUser(payload []byte, resp *protocol.Writer) error {
	r := protocol.NewReader(payload)
	id, err := r.ReadI32()
	if err != nil {
		return err
	}
	s.mu.Lock()
	u, ok := s.users[id]
	s.mu.Unlock()
	if !ok {
		return writeUserResponse(resp, UserResponse{})
	}
	return writeUserResponse(resp, UserResponse{ID: u.ID, Name: u.Name, Status: u.Status})
}

func (s *Service) createUser(payload []byte, resp *protocol.Writer) error {
	r := protocol.NewReader(payload)
	req, err := readCreateUserRequest(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	u := User{ID: id, Name: req.Name, Email: &req.Email, Status: StatusActive}
	s.users[id] = u
	s.mu.Unlock()

	return writeUserResponse(resp, UserResponse{ID: u.ID, Name: u.Name, Email: req.Email, Status: u.Status})
}

func (s *Service) updateUser(payload []byte, resp *protocol.Writer) error {
	r := protocol.NewReader(payload)
	id, err := r.ReadI32()
	if err != nil {
		return err
	}
	req, err := readCreateUserRequest(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	u, ok := s.users[id]
	if ok {
		u.Name = req.Name
		u.Email = &req.Email
		s.users[id] = u
	}
	s.mu.Unlock()

	if !ok {
		return writeUserResponse(resp, UserResponse{})
	}
	return writeUserResponse(resp, UserResponse{ID: u.ID, Name: u.Name, Email: req.Email, Status: u.Status})
}

func (s *Service) deleteUser(payload []byte, resp *protocol.Writer) error {
	r := protocol.NewReader(payload)
	id, err := r.ReadI32()
	if err != nil {
		return err
	}
	s.mu.Lock()
	_, existed := s.users[id]
	delete(s.users, id)
	s.mu.Unlock()
	return resp.WriteBool(existed)
}

func (s *Service) listUsers(payload []byte, resp *protocol.Writer) error {
	r := protocol.NewReader(payload)
	hasPage, err := r.ReadOptionalTag()
	if err != nil {
		return err
	}
	if hasPage {
		if _, err := r.ReadI32(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.Unlock()

	return protocol.WriteList(resp, out, writeUser)
}

// ErrAlreadyWatching is returned by WatchUsers if a watch is already in
// flight; the reference only supports one live stream slot per router.
var ErrAlreadyWatching = errors.New("userservice: already watching")

// watchUsers marks the service as watching and sets then clears the
// stream slot. It starts no goroutine, and CreateUser emits no event;
// User events go out only when EmitUserCreated is called. WatchUsers
// itself returns no unary response (an empty Writer), matching a
// stream-returning method per spec §4.10.
func (s *Service) watchUsers(resp *protocol.Writer) error {
	s.mu.Lock()
	if s.watching {
		s.mu.Unlock()
		return ErrAlreadyWatching
	}
	s.watching = true
	s.mu.Unlock()

	methodID := protocol.MakeMethodID(s.serviceIdx, MethodWatchUsers)
	s.streamer.SetStreamMethodID(uint16(methodID))
	// A generated handler copies the slot value before returning control
	// to the router; ours clears it immediately, since EmitUserCreated
	// recomputes the method_id itself instead of re-reading the shared
	// slot later.
	s.streamer.ClearStreamMethodID()

	// resp stays empty: nothing to send back for this invoke_id.
	_ = resp
	return nil
}

// EmitUserCreated pushes a stream event for u. A real handler would
// call this from wherever CreateUser's effect needs to fan out; wired
// here so tests can exercise the stream path directly.
func (s *Service) EmitUserCreated(u User) error {
	buf := make([]byte, 256)
	w := protocol.NewWriter(buf)
	if err := writeUser(w, u); err != nil {
		return err
	}
	methodID := protocol.MakeMethodID(s.serviceIdx, MethodWatchUsers)
	return s.streamer.StreamEmit(methodID, w.Bytes())
}
