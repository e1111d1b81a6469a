package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parse failures are sentinel values so the ingestor can count drops by
// reason without string matching.
var (
	ErrEmptyLine              = errors.New("empty line")
	ErrMissingRole            = errors.New("missing role")
	ErrUnknownRole            = errors.New("unknown role")
	ErrMissingKind            = errors.New("missing evt")
	ErrUnknownKind            = errors.New("unknown evt")
	ErrMissingDeviceTimestamp = errors.New("missing dev_ts")
	ErrBadDeviceTimestamp     = errors.New("malformed dev_ts")
	ErrBadHostTimestamp       = errors.New("malformed host_ts")
)

// ParseLine decodes one telemetry line into an Event. The returned event has
// only its wire fields set; the caller stamps HostTS and Seq.
//
// The codec is permissive the way the firmware fleet requires: unknown keys
// are ignored, a repeated key keeps its last value, and evt aliases are
// normalized. It is strict where the engine depends on it: TX and RX records
// without a parseable dev_ts are rejected rather than guessed at.
func ParseLine(line string) (Event, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Event{}, ErrEmptyLine
	}

	var (
		roleTok, evtTok     string
		devTSTok, hostTSTok string
		hasRole, hasEvt     bool
		hasDevTS, hasHostTS bool
	)
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "role":
			roleTok, hasRole = value, true
		case "evt":
			evtTok, hasEvt = value, true
		case "dev_ts":
			devTSTok, hasDevTS = value, true
		case "host_ts":
			hostTSTok, hasHostTS = value, true
		}
	}

	if !hasRole {
		return Event{}, ErrMissingRole
	}
	role, err := ParseRole(roleTok)
	if err != nil {
		return Event{}, err
	}

	if !hasEvt {
		return Event{}, ErrMissingKind
	}
	kind, err := ParseKind(evtTok)
	if err != nil {
		return Event{}, err
	}

	ev := Event{Role: role, Kind: kind, Raw: line}

	switch kind {
	case KindTX, KindRX:
		if !hasDevTS {
			return Event{}, fmt.Errorf("%s record: %w", kind, ErrMissingDeviceTimestamp)
		}
		devTS, err := strconv.ParseUint(devTSTok, 10, 64)
		if err != nil {
			return Event{}, fmt.Errorf("dev_ts %q: %w", devTSTok, ErrBadDeviceTimestamp)
		}
		ev.DeviceTS = devTS
	case KindRange, KindHeartbeat:
		// host_ts is the device's own clock and optional. Heartbeats
		// conventionally send host_ts=0.
		if hasHostTS {
			hostTS, err := strconv.ParseUint(hostTSTok, 10, 64)
			if err != nil {
				return Event{}, fmt.Errorf("host_ts %q: %w", hostTSTok, ErrBadHostTimestamp)
			}
			ev.DeviceHostTS = hostTS
		}
	}

	return ev, nil
}
