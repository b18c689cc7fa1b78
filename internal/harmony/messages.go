// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import (
	"encoding/base64"
	"encoding/xml"
	"strconv"
	"time"

	"github.com/ManuGH/hubctl/internal/xmpp"
	"github.com/google/uuid"
)

const (
	// DeviceAll is the activity id that turns every device off.
	DeviceAll = -1

	pairDeviceIdentifier = "iOS6.0.1#iPhone"
	credentialDomain     = "connect.logitech.com/gatorade"
)

// processStart anchors the timestamps sent with commands.
var processStart = time.Now()

func commandTimestamp() string {
	return strconv.FormatInt(time.Since(processStart).Milliseconds(), 10)
}

// OARequest is an outgoing command envelope.
type OARequest struct {
	ID     string
	Mime   string
	Fields []Field
	// ReplyMimes lists the mime types a correlated reply may declare.
	ReplyMimes []string
}

// Stanza wraps the envelope in a get IQ sent from self.
func (r *OARequest) Stanza(self xmpp.JID) *xmpp.IQ {
	iq := &xmpp.IQ{
		Header:  xmpp.Header{ID: r.ID},
		Type:    xmpp.IQGet,
		Payload: &oaElement{Mime: r.Mime, Body: bodyEscaper.Replace(encodeBody(r.Fields))},
	}
	if !self.IsZero() {
		iq.From = self.String()
	}
	return iq
}

// Body returns the envelope body as sent.
func (r *OARequest) Body() string {
	return encodeBody(r.Fields)
}

type oaElement struct {
	XMLName     xml.Name `xml:"connect.logitech.com oa"`
	ErrorCode   string   `xml:"errorcode,attr,omitempty"`
	ErrorString string   `xml:"errorstring,attr,omitempty"`
	Mime        string   `xml:"mime,attr"`
	Body        string   `xml:",innerxml"`
}

// NewPairRequest asks the hub for a session identity.
func NewPairRequest() *OARequest {
	name := base64.StdEncoding.EncodeToString([]byte(uuid.NewString())) + "#" + pairDeviceIdentifier
	return &OARequest{
		ID:   xmpp.NewID(),
		Mime: MimePair,
		Fields: []Field{
			{Key: "method", Value: "pair"},
			{Key: "name", Value: name},
		},
		ReplyMimes: []string{MimePair},
	}
}

// NewStartActivityRequest starts activityID. DeviceAll powers off.
func NewStartActivityRequest(activityID int) *OARequest {
	return &OARequest{
		ID:   xmpp.NewID(),
		Mime: MimeStartActivity,
		Fields: []Field{
			{Key: "activityId", Value: strconv.Itoa(activityID)},
			{Key: "timestamp", Value: commandTimestamp()},
		},
		ReplyMimes: []string{MimeStartActivity, MimeStartActivityShort},
	}
}

// ButtonStatus is the phase of a held IR button.
type ButtonStatus string

const (
	ButtonPress   ButtonStatus = "press"
	ButtonRelease ButtonStatus = "release"
)

// NewHoldActionRequest presses or releases button on deviceID.
func NewHoldActionRequest(deviceID int, button string, status ButtonStatus) (*OARequest, error) {
	action, err := EncodeIRCommand(deviceID, button)
	if err != nil {
		return nil, err
	}
	return &OARequest{
		ID:   xmpp.NewID(),
		Mime: MimeHoldAction,
		Fields: []Field{
			{Key: "action", Value: action},
			{Key: "status", Value: string(status)},
			{Key: "timestamp", Value: commandTimestamp()},
		},
		ReplyMimes: []string{MimeHoldAction},
	}, nil
}

// OAReply is an inbound command envelope after decoding.
type OAReply struct {
	Mime        string
	StatusCode  string
	ErrorString string
	// Value is the decoder's result, for example *PairReply.
	Value any
}

// Continuation reports whether the hub will send a further reply.
func (r *OAReply) Continuation() bool {
	return r.StatusCode == StatusContinue
}

// Credentials authenticate the command connection.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) String() string {
	return c.Username + ":<redacted>"
}

// PairReply carries the session identity handed out by the hub.
type PairReply struct {
	ServerIdentity  string
	HubID           string
	Identity        string
	Status          string
	ProtocolVersion map[string]any
	HubProfiles     map[string]any
	ProductID       string
	FriendlyName    string
}

// Credentials derives the login of the command connection.
func (p *PairReply) Credentials() (Credentials, error) {
	if p.Identity == "" {
		return Credentials{}, protocolError("session authentication failed: pair reply without identity")
	}
	return Credentials{Username: p.Identity + "@" + credentialDomain, Password: p.Identity}, nil
}

// StartActivityReply is the empty acknowledgement of a start activity request.
type StartActivityReply struct{}

// HoldActionReply is the acknowledgement of a button press.
type HoldActionReply struct {
	Fields map[string]any
}
