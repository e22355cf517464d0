package voice

import (
	"encoding/xml"
	"net/http"
)

// twimlResponse is the root <Response> element. Verbs render in order.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	FinishOnKey   string   `xml:"finishOnKey,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	Say           *say     `xml:",omitempty"`
}

type hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

func (r *twimlResponse) say(voice, text string) *twimlResponse {
	if text != "" {
		r.Verbs = append(r.Verbs, say{Voice: voice, Text: text})
	}
	return r
}

func (r *twimlResponse) gather(g gather) *twimlResponse {
	r.Verbs = append(r.Verbs, g)
	return r
}

func (r *twimlResponse) hangup() *twimlResponse {
	r.Verbs = append(r.Verbs, hangup{})
	return r
}

func writeTwiML(w http.ResponseWriter, resp *twimlResponse) error {
	body, err := xml.Marshal(resp)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
