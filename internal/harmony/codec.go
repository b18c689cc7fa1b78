// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// irCommand field order is part of the wire format.
type irCommand struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	Command  string `json:"command"`
}

// EncodeIRCommand renders the action payload for pressing button on the
// device. Colons are doubled because the envelope body uses single colons
// as field separators.
func EncodeIRCommand(deviceID int, button string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(irCommand{Type: "IRCommand", DeviceID: strconv.Itoa(deviceID), Command: button}); err != nil {
		return "", fmt.Errorf("encode ir command: %w", err)
	}
	return strings.ReplaceAll(strings.TrimSuffix(buf.String(), "\n"), ":", "::"), nil
}

// DecodeIRCommand is the inverse of EncodeIRCommand.
func DecodeIRCommand(s string) (int, string, error) {
	var cmd irCommand
	if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "::", ":")), &cmd); err != nil {
		return 0, "", protocolError("decode ir command: %w", err)
	}
	if cmd.Type != "IRCommand" {
		return 0, "", protocolError("decode ir command: unexpected type %q", cmd.Type)
	}
	id, err := strconv.Atoi(cmd.DeviceID)
	if err != nil {
		return 0, "", protocolError("decode ir command: device id %q: %w", cmd.DeviceID, err)
	}
	return id, cmd.Command, nil
}

// Field is one key=value pair of an envelope body.
type Field struct {
	Key   string
	Value string
}

var bodyEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// encodeBody joins fields as key=value pairs separated by colons, in order.
func encodeBody(fields []Field) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Key+"="+f.Value)
	}
	return strings.Join(parts, ":")
}

var kvRE = regexp.MustCompile(`^(.*?)=(.*)$`)

// ParseFields decodes a reply body of colon separated key=value pairs.
// Values in braces are decoded as nested maps. Pairs without '=' are
// skipped.
func ParseFields(contents string) (map[string]any, error) {
	out := make(map[string]any)
	for _, pair := range strings.Split(strings.TrimSpace(contents), ":") {
		m := kvRE.FindStringSubmatch(pair)
		if m == nil {
			continue
		}
		if strings.HasPrefix(m[2], "{") {
			nested, err := parsePseudoJSON(m[2])
			if err != nil {
				return nil, err
			}
			out[m[1]] = nested
			continue
		}
		out[m[1]] = m[2]
	}
	return out, nil
}

// parsePseudoJSON decodes values like {XMPP="1.0", HTTP="1.0"}.
func parsePseudoJSON(value string) (map[string]any, error) {
	if len(value) < 2 || value[0] != '{' || value[len(value)-1] != '}' {
		return nil, protocolError("unbalanced pseudo-json value %q", value)
	}
	out := make(map[string]any)
	inner := value[1 : len(value)-1]
	if strings.TrimSpace(inner) == "" {
		return out, nil
	}
	for _, pair := range splitPseudoJSON(inner) {
		if pair == "" {
			continue
		}
		m := kvRE.FindStringSubmatch(pair)
		if m == nil {
			return nil, protocolError("malformed pseudo-json element %q in %q", pair, value)
		}
		v, err := parsePseudoJSONValue(m[2])
		if err != nil {
			return nil, err
		}
		out[m[1]] = v
	}
	return out, nil
}

// splitPseudoJSON splits on commas outside nested braces and quotes.
func splitPseudoJSON(s string) []string {
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func parsePseudoJSONValue(value string) (any, error) {
	if value == "" {
		return "", nil
	}
	switch value[0] {
	case '{':
		return parsePseudoJSON(value)
	case '"', '\'':
		if len(value) < 2 || value[len(value)-1] != value[0] {
			return nil, protocolError("unterminated quoted value %q", value)
		}
		return value[1 : len(value)-1], nil
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f, nil
	}
	return value, nil
}

func stringField(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

func mapField(fields map[string]any, key string) map[string]any {
	if m, ok := fields[key].(map[string]any); ok {
		return m
	}
	return nil
}
