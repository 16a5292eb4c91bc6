// Package callbacks encodes and parses inline button callback data as
// "action" or "action:payload" strings.
package callbacks

import (
	"strconv"
	"strings"
)

const sep = ":"

// Join builds callback data from an action and its payload.
func Join(action, payload string) string {
	if payload == "" {
		return action
	}
	return action + sep + payload
}

// JoinInt builds callback data with an integer payload.
func JoinInt(action string, payload int) string {
	return Join(action, strconv.Itoa(payload))
}

// Action returns the action part of callback data.
func Action(data string) string {
	action, _, _ := strings.Cut(data, sep)
	return action
}

// Payload returns the payload part of callback data (may be empty).
func Payload(data string) string {
	_, payload, _ := strings.Cut(data, sep)
	return payload
}

// PayloadInt parses the payload part as int.
func PayloadInt(data string) (int, error) {
	return strconv.Atoi(Payload(data))
}
