package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal TwiML builder. Only the verbs this coordinator issues are modeled;
// responses are rendered inline into UpdateCall commands, so there is no
// dependency on a TwiML hosting endpoint for call updates.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type twimlDial struct {
	XMLName    xml.Name         `xml:"Dial"`
	Conference *twimlConference `xml:"Conference,omitempty"`
}

type twimlConference struct {
	WaitURL                string `xml:"waitUrl,attr,omitempty"`
	StartConferenceOnEnter string `xml:"startConferenceOnEnter,attr,omitempty"`
	EndConferenceOnExit    string `xml:"endConferenceOnExit,attr,omitempty"`
	StatusCallback         string `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent    string `xml:"statusCallbackEvent,attr,omitempty"`
	Room                   string `xml:",chardata"`
}

type twimlConnect struct {
	XMLName xml.Name     `xml:"Connect"`
	Stream  *twimlStream `xml:"Stream,omitempty"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter,omitempty"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConferenceTwiML joins a leg into a shared room, with an optional spoken
// announcement first.
func ConferenceTwiML(req JoinConferenceRequest) (string, error) {
	if strings.TrimSpace(req.Room) == "" {
		return "", errors.New("telephony: conference room required")
	}

	var r twimlResponse
	if req.Announcement != "" {
		r.Verbs = append(r.Verbs, twimlSay{Text: req.Announcement})
	}
	conf := &twimlConference{
		WaitURL:                req.HoldMusicURL,
		StartConferenceOnEnter: "true",
		StatusCallback:         req.StatusCallbackURL,
		Room:                   req.Room,
	}
	if req.StatusCallbackURL != "" {
		conf.StatusCallbackEvent = "join leave"
	}
	if req.EndConferenceOnExit {
		conf.EndConferenceOnExit = "true"
	}
	r.Verbs = append(r.Verbs, twimlDial{Conference: conf})
	return renderTwiML(r)
}

// StreamTwiML connects a leg to the agent media-stream endpoint.
func StreamTwiML(req RedirectToStreamRequest) (string, error) {
	if strings.TrimSpace(req.StreamURL) == "" {
		return "", errors.New("telephony: stream url required")
	}

	stream := &twimlStream{URL: req.StreamURL}
	for name, value := range req.Parameters {
		stream.Parameters = append(stream.Parameters, twimlParameter{Name: name, Value: value})
	}
	var r twimlResponse
	r.Verbs = append(r.Verbs, twimlConnect{Stream: stream})
	return renderTwiML(r)
}

// SayHangupTwiML speaks a message and ends the call.
func SayHangupTwiML(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("telephony: message required")
	}
	var r twimlResponse
	r.Verbs = append(r.Verbs, twimlSay{Text: message}, twimlHangup{})
	return renderTwiML(r)
}

// SayHoldTwiML greets a leg and keeps it on the line waiting for a later
// call update.
func SayHoldTwiML(message string, holdSeconds int) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("telephony: message required")
	}
	if holdSeconds <= 0 {
		holdSeconds = 600
	}
	var r twimlResponse
	r.Verbs = append(r.Verbs, twimlSay{Text: message}, twimlPause{Length: holdSeconds})
	return renderTwiML(r)
}

// HangupTwiML ends the call immediately.
func HangupTwiML() (string, error) {
	var r twimlResponse
	r.Verbs = append(r.Verbs, twimlHangup{})
	return renderTwiML(r)
}

func renderTwiML(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
