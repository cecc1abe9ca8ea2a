package userservice

import (
	"testing"

	"github.com/yourusername/edgerpc/internal/protocol"
)

type fakeStreamer struct {
	streamMethodID uint16
	emitted        []struct {
		methodID byte
		payload  []byte
	}
}

func (f *fakeStreamer) SetStreamMethodID(mid uint16) { f.streamMethodID = mid }
func (f *fakeStreamer) ClearStreamMethodID()         { f.streamMethodID = 0xFFFF }
func (f *fakeStreamer) StreamEmit(methodID byte, payload []byte) error {
	f.emitted = append(f.emitted, struct {
		methodID byte
		payload  []byte
	}{methodID, append([]byte(nil), payload...)})
	return nil
}

func dispatch(t *testing.T, svc *Service, methodIndex uint8, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, 512)
	w := protocol.NewWriter(buf)
	if err := svc.Dispatch(methodIndex, payload, w); err != nil {
		t.Fatalf("Dispatch(%d): %v", methodIndex, err)
	}
	return w.Bytes()
}

func encodeCreateUserRequest(t *testing.T, name, email string) []byte {
	t.Helper()
	buf := make([]byte, 256)
	w := protocol.NewWriter(buf)
	if err := w.WriteString(name); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString(email); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteOptionalTag(false); err != nil {
		t.Fatal(err)
	}
	return w.Bytes()
}

func TestCreateUserThenGetUserRoundtrip(t *testing.T) {
	svc := New(&fakeStreamer{}, 0)

	createResp := dispatch(t, svc, MethodCreateUser, encodeCreateUserRequest(t, "ada", "ada@example.com"))
	r := protocol.NewReader(createResp)
	id, err := r.ReadI32()
	if err != nil {
		t.Fatalf("ReadI32: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first user id 1, got %d", id)
	}

	getResp := dispatch(t, svc, MethodGetUser, mustEncodeI32(t, id))
	gr := protocol.NewReader(getResp)
	gotID, err := gr.ReadI32()
	if err != nil {
		t.Fatalf("ReadI32: %v", err)
	}
	if gotID != id {
		t.Fatalf("GetUser id = %d, want %d", gotID, id)
	}
}

func TestDeleteUserReportsExistence(t *testing.T) {
	svc := New(&fakeStreamer{}, 0)
	dispatch(t, svc, MethodCreateUser, encodeCreateUserRequest(t, "grace", "grace@example.com"))

	resp := dispatch(t, svc, MethodDeleteUser, mustEncodeI32(t, 1))
	existed, err := protocol.NewReader(resp).ReadBool()
	if err != nil || !existed {
		t.Fatalf("DeleteUser(1) existed = %v, %v, want true, nil", existed, err)
	}

	resp = dispatch(t, svc, MethodDeleteUser, mustEncodeI32(t, 1))
	existed, err = protocol.NewReader(resp).ReadBool()
	if err != nil || existed {
		t.Fatalf("DeleteUser(1) second call existed = %v, %v, want false, nil", existed, err)
	}
}

func TestListUsersReturnsAllCreated(t *testing.T) {
	svc := New(&fakeStreamer{}, 0)
	dispatch(t, svc, MethodCreateUser, encodeCreateUserRequest(t, "a", "a@example.com"))
	dispatch(t, svc, MethodCreateUser, encodeCreateUserRequest(t, "b", "b@example.com"))

	buf := make([]byte, 256)
	w := protocol.NewWriter(buf)
	if err := w.WriteOptionalTag(false); err != nil {
		t.Fatal(err)
	}
	resp := dispatch(t, svc, MethodListUsers, w.Bytes())

	users, err := protocol.ReadList(protocol.NewReader(resp), readUser)
	if err != nil {
		t.Fatalf("ReadList: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ListUsers returned %d users, want 2", len(users))
	}
}

func TestWatchUsersSetsThenClearsStreamSlot(t *testing.T) {
	streamer := &fakeStreamer{}
	svc := New(streamer, 2)

	dispatch(t, svc, MethodWatchUsers, nil)
	if streamer.streamMethodID != 0xFFFF {
		t.Fatalf("stream slot left at 0x%04X after WatchUsers, want sentinel", streamer.streamMethodID)
	}
}

func TestWatchUsersRejectsSecondConcurrentWatch(t *testing.T) {
	svc := New(&fakeStreamer{}, 0)
	dispatch(t, svc, MethodWatchUsers, nil)

	buf := make([]byte, 8)
	w := protocol.NewWriter(buf)
	if err := svc.Dispatch(MethodWatchUsers, nil, w); err != ErrAlreadyWatching {
		t.Fatalf("second WatchUsers = %v, want ErrAlreadyWatching", err)
	}
}

func TestEmitUserCreatedCarriesWatchUsersMethodID(t *testing.T) {
	streamer := &fakeStreamer{}
	svc := New(streamer, 3)

	if err := svc.EmitUserCreated(User{ID: 9, Name: "hopper"}); err != nil {
		t.Fatalf("EmitUserCreated: %v", err)
	}
	if len(streamer.emitted) != 1 {
		t.Fatalf("expected one emitted event, got %d", len(streamer.emitted))
	}
	want := protocol.MakeMethodID(3, MethodWatchUsers)
	if streamer.emitted[0].methodID != want {
		t.Fatalf("emitted method_id = %#x, want %#x", streamer.emitted[0].methodID, want)
	}
}

func mustEncodeI32(t *testing.T, v int32) []byte {
	t.Helper()
	buf := make([]byte, 4)
	w := protocol.NewWriter(buf)
	if err := w.WriteI32(v); err != nil {
		t.Fatal(err)
	}
	return w.Bytes()
}

func readUser(r *protocol.Reader) (User, error) {
	var u User
	id, err := r.ReadI32()
	if err != nil {
		return u, err
	}
	name, err := r.ReadString(0)
	if err != nil {
		return u, err
	}
	hasEmail, err := r.ReadOptionalTag()
	if err != nil {
		return u, err
	}
	var email *string
	if hasEmail {
		e, err := r.ReadString(0)
		if err != nil {
			return u, err
		}
		email = &e
	}
	status, err := r.ReadI32()
	if err != nil {
		return u, err
	}
	tags, err := protocol.ReadList(r, func(r *protocol.Reader) (string, error) { return r.ReadString(0) })
	if err != nil {
		return u, err
	}
	metadata, err := protocol.ReadMap(r,
		func(r *protocol.Reader) (string, error) { return r.ReadString(0) },
		func(r *protocol.Reader) (string, error) { return r.ReadString(0) },
	)
	if err != nil {
		return u, err
	}
	u = User{ID: id, Name: name, Email: email, Status: Status(status), Tags: tags, Metadata: metadata}
	return u, nil
}
