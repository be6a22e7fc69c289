package toggle

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"blogtoggle/internal/assert"
	"blogtoggle/internal/components/telemetry"
	"blogtoggle/internal/site"
	"blogtoggle/pkg/htmlutil"

	"github.com/go-resty/resty/v2"
)

const (
	report_button_bind    = "button.bind"
	report_button_press   = "button.press"
	report_button_presses = "button.presses"
)

var (
	// ErrPending is returned when a button is pressed while its previous
	// request has not come back yet.
	ErrPending   = errors.New("toggle request already pending")
	ErrNoForm    = errors.New("toggle button not found")
	ErrRequest   = errors.New("toggle request failed")
	ErrStatus    = errors.New("toggle request rejected")
	ErrMalformed = errors.New("malformed toggle response")
)

// Poster sends a form to the server, site.Client implements it.
type Poster interface {
	PostForm(ctx context.Context, target string, values url.Values) (*resty.Response, error)
}

// Outcome is what a press ended with.
type Outcome struct {
	// Status is the raw data.status the server answered with.
	Status string
	// State and Label are the button's after the press, an unknown status
	// leaves both as they were.
	State State
	Label string
}

type Result struct {
	Outcome Outcome
	Err     error
}

// Button is a toggle button bound to a loaded page. Its label starts as the
// one the server rendered and afterwards follows the server's responses.
//
// At most one request is in flight per button, while it is pending further
// presses fail with ErrPending.
type Button struct {
	handler Handler
	target  string
	payload url.Values
	poster  Poster
	tel     telemetry.API

	presses atomic.Int64

	mu      sync.Mutex
	label   string
	state   State
	pending bool
}

// Bind finds the handler's button on page and prepares the request it sends.
func Bind(page site.Page, h Handler, poster Poster, tel telemetry.API) (*Button, error) {
	assert.NotNil(poster)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI(h.Name, tel)

	trigger := page.Doc.Find(h.Trigger).First()
	if trigger.Length() == 0 {
		return nil, fmt.Errorf("%w: no element matches '%s'", ErrNoForm, h.Trigger)
	}
	form, err := htmlutil.FindForm(page.Doc, h.Trigger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoForm, err)
	}
	target, err := page.Resolve(form.Action)
	if err != nil {
		tel.ReportBroken(report_button_bind, fmt.Errorf("resolve form action: %w", err), form.Action)
		return nil, fmt.Errorf("%w: bad form action '%s': %w", ErrNoForm, form.Action, err)
	}
	payload := form.Serialize()
	if h.Payload != nil {
		payload, err = h.Payload(page.Doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoForm, err)
		}
	}

	// <input type=submit> carries its label in value, a <button> in its text
	label, ok := trigger.Attr("value")
	if !ok {
		label = strings.TrimSpace(htmlutil.GetText(trigger.Get(0)))
	}
	state := StateUnknown
	switch label {
	case h.Labels.On:
		state = StateOn
	case h.Labels.Off:
		state = StateOff
	}

	return &Button{
		handler: h,
		target:  target.String(),
		payload: payload,
		poster:  poster,
		tel:     tel,
		label:   label,
		state:   state,
	}, nil
}

func (b *Button) Label() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.label
}

func (b *Button) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Pending reports whether a request is in flight, a pending button is
// disabled.
func (b *Button) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Target is the absolute url presses are posted to.
func (b *Button) Target() string {
	return b.target
}

// Payload returns a copy of the form values presses send.
func (b *Button) Payload() url.Values {
	out := url.Values{}
	for k, v := range b.payload {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (b *Button) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending {
		return ErrPending
	}
	b.pending = true
	return nil
}

func (b *Button) finish(outcome *Outcome, state State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = false
	if outcome == nil {
		return
	}
	if state != StateUnknown {
		b.state = state
		b.label = b.handler.Label(state)
	}
	outcome.State = b.state
	outcome.Label = b.label
}

// Press sends one toggle request and applies the answer to the label. On any
// failure the label is left as it was and the error says why; nothing is
// retried.
func (b *Button) Press(ctx context.Context) (Outcome, error) {
	err := b.begin()
	if err != nil {
		return Outcome{}, err
	}
	return b.press(ctx)
}

// PressAsync is Press in the background. The pending check happens before it
// returns, so a second PressAsync right after the first one reports
// ErrPending on its channel. The channel yields exactly one Result.
func (b *Button) PressAsync(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	err := b.begin()
	if err != nil {
		out <- Result{Err: err}
		close(out)
		return out
	}
	go func() {
		defer close(out)
		outcome, err := b.press(ctx)
		out <- Result{Outcome: outcome, Err: err}
	}()
	return out
}

func (b *Button) press(ctx context.Context) (Outcome, error) {
	b.tel.ReportCount(report_button_presses, b.presses.Add(1))

	res, err := b.poster.PostForm(ctx, b.target, b.payload)
	if err != nil {
		b.finish(nil, StateUnknown)
		b.tel.ReportBroken(report_button_press, err, b.target)
		return Outcome{}, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	if !res.IsSuccess() {
		b.finish(nil, StateUnknown)
		return Outcome{}, fmt.Errorf("%w: %s", ErrStatus, res.Status())
	}

	status, err := DecodeStatus(res.Body())
	if err != nil {
		b.finish(nil, StateUnknown)
		b.tel.ReportBroken(report_button_press, fmt.Errorf("decode response: %w", err), b.target)
		return Outcome{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	state, known := b.handler.Parse(status)
	if !known {
		b.tel.ReportWarning(report_button_press, fmt.Errorf("unknown status '%s'", status), b.target)
	}

	outcome := Outcome{Status: status}
	b.finish(&outcome, state)
	return outcome, nil
}

// Loader fetches pages, site.Client implements it.
type Loader interface {
	Page(ctx context.Context, path string) (site.Page, error)
}

// Open loads path and binds the handler's button on it.
func Open(ctx context.Context, loader Loader, poster Poster, path string, h Handler, tel telemetry.API) (*Button, error) {
	page, err := loader.Page(ctx, path)
	if err != nil {
		return nil, err
	}
	return Bind(page, h, poster, tel)
}
