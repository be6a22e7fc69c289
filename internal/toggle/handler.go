package toggle

import (
	"encoding/json"
	"fmt"
	"net/url"

	"blogtoggle/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type State int

const (
	StateUnknown State = iota
	// StateOn is favorited for the favorite handler and following for the
	// follow handler.
	StateOn
	StateOff
)

func (s State) String() string {
	switch s {
	case StateOn:
		return "on"
	case StateOff:
		return "off"
	default:
		return "unknown"
	}
}

// Labels are the two strings a button shows.
type Labels struct {
	On  string `json:"on"`
	Off string `json:"off"`
}

// Handler describes one kind of toggle button: where it lives on the page,
// what it sends, and how the server's status maps back onto its label.
type Handler struct {
	Name string
	// Trigger selects the button, its enclosing form gives the request target.
	Trigger   string
	StatusOn  string
	StatusOff string
	Labels    Labels

	// Payload builds the values a press sends. When nil the form enclosing the
	// trigger is serialized.
	Payload func(doc *goquery.Document) (url.Values, error)
}

// Favorite posts the whole favorite form of an article page.
var Favorite = Handler{
	Name:      "favorite",
	Trigger:   "#favorite_button",
	StatusOn:  "favorited",
	StatusOff: "notfavorited",
	Labels: Labels{
		On:  "お気に入り済み",
		Off: "お気に入りに追加",
	},
	Payload: func(doc *goquery.Document) (url.Values, error) {
		form, err := htmlutil.FindForm(doc, "form[name=favorite]")
		if err != nil {
			return nil, err
		}
		return form.Serialize(), nil
	},
}

// Follow posts only the follower field of a user page.
var Follow = Handler{
	Name:      "follow",
	Trigger:   ".btn.btn-info",
	StatusOn:  "follow",
	StatusOff: "notfollow",
	Labels: Labels{
		On:  "フォロー中",
		Off: "フォローする",
	},
	Payload: func(doc *goquery.Document) (url.Values, error) {
		input := doc.Find("input[name='follower']").First()
		if input.Length() == 0 {
			return nil, fmt.Errorf("no follower input on page")
		}
		return url.Values{"follower": {input.AttrOr("value", "")}}, nil
	},
}

// WithLabels returns a copy of h showing labels instead of the defaults, empty
// fields keep the default.
func (h Handler) WithLabels(labels Labels) Handler {
	if labels.On != "" {
		h.Labels.On = labels.On
	}
	if labels.Off != "" {
		h.Labels.Off = labels.Off
	}
	return h
}

// Parse maps a status string from the server onto a state, false means the
// status is neither of the two this handler knows.
func (h Handler) Parse(status string) (State, bool) {
	switch status {
	case h.StatusOn:
		return StateOn, true
	case h.StatusOff:
		return StateOff, true
	}
	return StateUnknown, false
}

func (h Handler) Label(state State) string {
	switch state {
	case StateOn:
		return h.Labels.On
	case StateOff:
		return h.Labels.Off
	}
	return ""
}

type statusResponse struct {
	Data *struct {
		Status *string `json:"status"`
	} `json:"data"`
}

// DecodeStatus pulls data.status out of a toggle response body.
func DecodeStatus(body []byte) (string, error) {
	var res statusResponse
	err := json.Unmarshal(body, &res)
	if err != nil {
		return "", err
	}
	if res.Data == nil || res.Data.Status == nil {
		return "", fmt.Errorf("response has no data.status")
	}
	return *res.Data.Status, nil
}
