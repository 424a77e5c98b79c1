// Package channel names the Redis pub/sub channels shared by every Hearth instance.
// It is the only place the channel format is built or parsed.
package channel

import (
	"Hearth/internal/entity"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	broadcastName = "channel:broadcast"
	rolePrefix    = "channel:role:"
	userPrefix    = "channel:user:"
)

// ErrUnknownChannel is returned by Parse for names it did not build.
var ErrUnknownChannel = errors.New("unknown channel")

// Kind of audience a channel addresses.
type Kind int

const (
	KindBroadcast Kind = iota + 1
	KindRole
	KindUser
)

// Target is the audience recovered from a channel name.
type Target struct {
	Kind   Kind
	Role   entity.Role
	UserID int64
}

// Broadcast is the channel every connected client listens to.
func Broadcast() string {
	return broadcastName
}

// Role is the channel of every client with role r.
func Role(r entity.Role) string {
	return rolePrefix + string(r)
}

// User is the channel of every connection of user id.
func User(id int64) string {
	return userPrefix + strconv.FormatInt(id, 10)
}

// Parse recovers the Target of a name built by this package.
func Parse(name string) (Target, error) {
	switch {
	case name == broadcastName:
		return Target{Kind: KindBroadcast}, nil
	case strings.HasPrefix(name, rolePrefix):
		role := entity.Role(strings.TrimPrefix(name, rolePrefix))
		if role == "" {
			return Target{}, ErrUnknownChannel
		}
		return Target{Kind: KindRole, Role: role}, nil
	case strings.HasPrefix(name, userPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(name, userPrefix), 10, 64)
		if err != nil || id <= 0 {
			return Target{}, ErrUnknownChannel
		}
		return Target{Kind: KindUser, UserID: id}, nil
	}
	return Target{}, ErrUnknownChannel
}

// ForEnvelope lists the channels an envelope is published to, one per target role for multicast.
func ForEnvelope(env entity.EventEnvelope) []string {
	switch env.TransmissionType {
	case entity.Unicast:
		return []string{User(env.TargetID)}
	case entity.Multicast:
		names := make([]string, 0, len(env.TargetRoles))
		seen := make(map[entity.Role]bool, len(env.TargetRoles))
		for _, r := range env.TargetRoles {
			if seen[r] {
				continue
			}
			seen[r] = true
			names = append(names, Role(r))
		}
		return names
	case entity.Broadcast:
		return []string{Broadcast()}
	}
	return nil
}

// ForClient lists the channels a client with this identity needs.
func ForClient(userID int64, role entity.Role) []string {
	return []string{Broadcast(), Role(role), User(userID)}
}
