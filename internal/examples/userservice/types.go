// Package userservice is a hand-written demo service exercising the
// wire types (all except u32) and dispatch shapes the core supports:
// scalar args, a nested request struct, an optional arg, a returned
// list, a map field, and a stream-returning method. It plays the role the reference's codegen
// plays for user_service.rpc.h, written by hand since there is no
// generator in this repo.
package userservice

import (
	"sort"

	"github.com/yourusername/edgerpc/internal/protocol"
)

// Status mirrors the reference's UserStatus enum, encoded on the wire
// as a plain i32.
type Status int32

const (
	StatusActive   Status = 1
	StatusInactive Status = 2
	StatusDeleted  Status = 3
)

// User is the record type ListUsers and WatchUsers return.
type User struct {
	ID       int32
	Name     string
	Email    *string // optional<string>
	Status   Status
	Tags     []string
	Metadata map[string]string
}

// CreateUserRequest is the request payload for CreateUser and the
// second argument of UpdateUser.
type CreateUserRequest struct {
	Name     string
	Email    string
	Password *string // optional<string>
}

// UserResponse is returned by GetUser, CreateUser, and UpdateUser.
type UserResponse struct {
	ID     int32
	Name   string
	Email  string
	Status Status
}

func writeUser(w *protocol.Writer, u User) error {
	if err := w.WriteI32(u.ID); err != nil {
		return err
	}
	if err := w.WriteString(u.Name); err != nil {
		return err
	}
	if err := w.WriteOptionalTag(u.Email != nil); err != nil {
		return err
	}
	if u.Email != nil {
		if err := w.WriteString(*u.Email); err != nil {
			return err
		}
	}
	if err := w.WriteI32(int32(u.Status)); err != nil {
		return err
	}
	if err := protocol.WriteList(w, u.Tags, (*protocol.Writer).WriteString); err != nil {
		return err
	}
	keys := make([]string, 0, len(u.Metadata))
	for k := range u.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sorted := make(map[string]string, len(u.Metadata))
	for _, k := range keys {
		sorted[k] = u.Metadata[k]
	}
	return protocol.WriteMap(w, sorted, (*protocol.Writer).WriteString, (*protocol.Writer).WriteString)
}

func readCreateUserRequest(r *protocol.Reader) (CreateUserRequest, error) {
	var req CreateUserRequest
	name, err := r.ReadString(0)
	if err != nil {
		return req, err
	}
	email, err := r.ReadString(0)
	if err != nil {
		return req, err
	}
	hasPassword, err := r.ReadOptionalTag()
	if err != nil {
		return req, err
	}
	var password *string
	if hasPassword {
		p, err := r.ReadString(0)
		if err != nil {
			return req, err
		}
		password = &p
	}
	req.Name, req.Email, req.Password = name, email, password
	return req, nil
}

func writeUserResponse(w *protocol.Writer, resp UserResponse) error {
	if err := w.WriteI32(resp.ID); err != nil {
		return err
	}
	if err := w.WriteString(resp.Name); err != nil {
		return err
	}
	if err := w.WriteString(resp.Email); err != nil {
		return err
	}
	return w.WriteI32(int32(resp.Status))
}
