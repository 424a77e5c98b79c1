// Structure of the realtime Event Envelope exchanged between services over Redis.

package entity

import (
	"Hearth/pkg/validation"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"
)

// EventName discriminates the payload carried by an envelope.
type EventName string

const (
	MessageEvent EventName = "MESSAGE_EVENT"
	UserEvent    EventName = "USER_EVENT"
	MultiEvent   EventName = "MULTI_EVENT"
)

// TransmissionType decides which channel(s) an envelope is published to.
type TransmissionType string

const (
	Unicast   TransmissionType = "unicast"
	Multicast TransmissionType = "multicast"
	Broadcast TransmissionType = "broadcast"
)

// Role of a forum user, part of the identity attached to an SSE connection.
type Role string

const (
	RoleUser   Role = "USER"
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
)

// Valid reports whether r is one of the forum roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleMember, RoleAdmin:
		return true
	}
	return false
}

// EventEnvelope is the unit of communication, immutable once published.
type EventEnvelope struct {
	EventName        EventName        `json:"eventName" valid:"required~eventName:is required,in(MESSAGE_EVENT|USER_EVENT|MULTI_EVENT)~eventName:unknown event name"`
	Payload          json.RawMessage  `json:"payload" valid:"-"`
	ID               string           `json:"id,omitempty" valid:"nospace~id:must not contain whitespace,optional"`
	TransmissionType TransmissionType `json:"transmissionType" valid:"required~transmissionType:is required,in(unicast|multicast|broadcast)~transmissionType:unknown transmission type"`
	// User the event goes to, only for unicast.
	TargetID int64 `json:"targetId,omitempty" valid:"-"`
	// Roles the event goes to, only for multicast.
	TargetRoles []Role `json:"targetRoles,omitempty" valid:"-"`
}

// Payload of MESSAGE_EVENT, emitted when a forum message changes.
type MessagePayload struct {
	Action    string `json:"action" valid:"required~action:is required,in(created|updated|deleted|liked)~action:unknown message action"`
	MessageID int64  `json:"messageId"`
	AuthorID  int64  `json:"authorId"`
	ThreadID  int64  `json:"threadId,omitempty"`
}

// Payload of USER_EVENT, emitted when an account changes.
type UserPayload struct {
	Action string `json:"action" valid:"required~action:is required,in(created|updated|deleted|role_changed)~action:unknown user action"`
	UserID int64  `json:"userId"`
	Role   Role   `json:"role,omitempty" valid:"upperident~role:must be an upper case role name,optional"`
}

// Payload of MULTI_EVENT, several changes delivered as one frame.
type MultiPayload struct {
	Messages []MessagePayload `json:"messages,omitempty" valid:"-"`
	Users    []UserPayload    `json:"users,omitempty" valid:"-"`
}

// ValidationError lists every issue found in an envelope, formatted as param:message.
type ValidationError struct {
	Issues []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Error())
	}
	return "invalid event envelope: " + strings.Join(msgs, "; ")
}

// DecodeEnvelope parses and validates a JSON envelope, as received on a Redis channel.
func DecodeEnvelope(data []byte) (EventEnvelope, error) {
	var env EventEnvelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return EventEnvelope{}, &ValidationError{Issues: []error{fmt.Errorf("body:%s", err.Error())}}
	}
	if err := env.Validate(); err != nil {
		return EventEnvelope{}, err
	}
	return env, nil
}

// Validate checks the envelope and decodes its payload against the shape its EventName demands.
func (e EventEnvelope) Validate() error {
	validation.RegisterCustomValidations()

	var issues []error
	if _, valerr := govalidator.ValidateStruct(e); valerr != nil {
		issues = append(issues, flatten(valerr)...)
	}

	switch e.TransmissionType {
	case Unicast:
		if e.TargetID <= 0 {
			issues = append(issues, fmt.Errorf("targetId:unicast needs a positive user id"))
		}
	case Multicast:
		if len(e.TargetRoles) == 0 {
			issues = append(issues, fmt.Errorf("targetRoles:multicast needs at least one role"))
		}
		for _, role := range e.TargetRoles {
			if !role.Valid() {
				issues = append(issues, fmt.Errorf("targetRoles:unknown role %q", role))
			}
		}
	}

	if len(e.Payload) == 0 || bytes.Equal(bytes.TrimSpace(e.Payload), []byte("null")) {
		issues = append(issues, fmt.Errorf("payload:is required"))
	} else if _, err := e.DecodePayload(); err != nil {
		if verr, ok := err.(*ValidationError); ok {
			issues = append(issues, verr.Issues...)
		} else {
			issues = append(issues, err)
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// DecodePayload returns the typed payload: MessagePayload, UserPayload or MultiPayload.
func (e EventEnvelope) DecodePayload() (interface{}, error) {
	switch e.EventName {
	case MessageEvent:
		var p MessagePayload
		if err := decodeStrict(e.Payload, &p); err != nil {
			return nil, err
		}
		return p, validateMessage(p)
	case UserEvent:
		var p UserPayload
		if err := decodeStrict(e.Payload, &p); err != nil {
			return nil, err
		}
		return p, validateUser(p)
	case MultiEvent:
		var p MultiPayload
		if err := decodeStrict(e.Payload, &p); err != nil {
			return nil, err
		}
		if len(p.Messages)+len(p.Users) == 0 {
			return nil, &ValidationError{Issues: []error{fmt.Errorf("payload:multi event carries no events")}}
		}
		var issues []error
		for _, m := range p.Messages {
			if err := validateMessage(m); err != nil {
				issues = append(issues, err.(*ValidationError).Issues...)
			}
		}
		for _, u := range p.Users {
			if err := validateUser(u); err != nil {
				issues = append(issues, err.(*ValidationError).Issues...)
			}
		}
		if len(issues) > 0 {
			return nil, &ValidationError{Issues: issues}
		}
		return p, nil
	}
	return nil, &ValidationError{Issues: []error{fmt.Errorf("payload:no shape for event %q", e.EventName)}}
}

func decodeStrict(raw json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ValidationError{Issues: []error{fmt.Errorf("payload:%s", err.Error())}}
	}
	return nil
}

func validateMessage(p MessagePayload) error {
	var issues []error
	if _, valerr := govalidator.ValidateStruct(p); valerr != nil {
		issues = append(issues, flatten(valerr)...)
	}
	if p.MessageID <= 0 {
		issues = append(issues, fmt.Errorf("messageId:must be positive"))
	}
	if p.AuthorID <= 0 {
		issues = append(issues, fmt.Errorf("authorId:must be positive"))
	}
	if p.ThreadID < 0 {
		issues = append(issues, fmt.Errorf("threadId:must not be negative"))
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validateUser(p UserPayload) error {
	var issues []error
	if _, valerr := govalidator.ValidateStruct(p); valerr != nil {
		issues = append(issues, flatten(valerr)...)
	}
	if p.UserID <= 0 {
		issues = append(issues, fmt.Errorf("userId:must be positive"))
	}
	if p.Role != "" && !p.Role.Valid() {
		issues = append(issues, fmt.Errorf("role:unknown role %q", p.Role))
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// govalidator nests Errors for nested structs, flatten keeps param:message pairs only.
func flatten(err error) []error {
	errs, ok := err.(govalidator.Errors)
	if !ok {
		return []error{err}
	}
	var out []error
	for _, e := range errs.Errors() {
		out = append(out, flatten(e)...)
	}
	return out
}
