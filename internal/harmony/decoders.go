// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

// ReplyDecoder turns the body of one kind of reply into a value.
type ReplyDecoder interface {
	// ValidStatus reports whether code is an acceptable errorcode.
	ValidStatus(code string) bool
	// Decode parses the concatenated text content of the reply.
	Decode(statusCode, errorString, contents string) (any, error)
}

var validStatus = map[string]bool{
	StatusContinue:        true,
	StatusOK:              true,
	StatusBluetoothDown:   true,
	StatusCommandNotFound: true,
}

type pairDecoder struct{}

func (pairDecoder) ValidStatus(code string) bool { return validStatus[code] }

func (pairDecoder) Decode(_, _ string, contents string) (any, error) {
	fields, err := ParseFields(contents)
	if err != nil {
		return nil, err
	}
	return &PairReply{
		ServerIdentity:  stringField(fields, "serverIdentity"),
		HubID:           stringField(fields, "hubId"),
		Identity:        stringField(fields, "identity"),
		Status:          stringField(fields, "status"),
		ProtocolVersion: mapField(fields, "protocolVersion"),
		HubProfiles:     mapField(fields, "hubProfiles"),
		ProductID:       stringField(fields, "productId"),
		FriendlyName:    stringField(fields, "friendlyName"),
	}, nil
}

type startActivityDecoder struct{}

// ValidStatus also accepts 401, which the hub returns when a device of the
// activity is not set up correctly.
func (startActivityDecoder) ValidStatus(code string) bool {
	return validStatus[code] || code == StatusUnauthorized
}

func (startActivityDecoder) Decode(string, string, string) (any, error) {
	return &StartActivityReply{}, nil
}

type holdActionDecoder struct{}

func (holdActionDecoder) ValidStatus(code string) bool { return validStatus[code] }

func (holdActionDecoder) Decode(_, _ string, contents string) (any, error) {
	fields, err := ParseFields(contents)
	if err != nil {
		return nil, err
	}
	return &HoldActionReply{Fields: fields}, nil
}

// replyDecoders is keyed by the exact mime attribute of the reply.
var replyDecoders = map[string]ReplyDecoder{
	MimePair:               pairDecoder{},
	MimeStartActivity:      startActivityDecoder{},
	MimeStartActivityShort: startActivityDecoder{},
	MimeHoldAction:         holdActionDecoder{},
}
