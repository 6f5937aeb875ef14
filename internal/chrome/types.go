package chrome

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ioanhodean/webharness/internal/browser"
)

// Errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrProtocolError    = errors.New("protocol error")
	ErrForeignElement   = errors.New("element belongs to another session")
)

// ProtocolError represents an error returned by the Chrome DevTools Protocol.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolError
}

// ScriptError is a JavaScript exception thrown inside the page.
type ScriptError struct {
	Text string
}

func (e *ScriptError) Error() string {
	return "javascript error: " + e.Text
}

// remoteObject mirrors Runtime.RemoteObject.
type remoteObject struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
	ObjectID string `json:"objectId,omitempty"`
	Value    any    `json:"value,omitempty"`
}

type exceptionDetails struct {
	Text      string        `json:"text"`
	Exception *remoteObject `json:"exception,omitempty"`
}

func (d *exceptionDetails) err() error {
	text := d.Text
	if d.Exception != nil {
		if s, ok := d.Exception.Value.(string); ok && s != "" {
			text = s
		}
	}
	return &ScriptError{Text: text}
}

// Messages Chrome uses when a remote object or node no longer exists,
// usually because the page navigated.
var staleMessages = []string{
	"Could not find object with given id",
	"Cannot find context with specified id",
	"No node with given id found",
	"Node is detached from document",
	"Execution context was destroyed",
}

// mapError translates transport failures into the browser sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnectionClosed) {
		return fmt.Errorf("%w: %v", browser.ErrSessionClosed, err)
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		for _, m := range staleMessages {
			if strings.Contains(pe.Message, m) {
				return fmt.Errorf("%w: %v", browser.ErrStaleElement, err)
			}
		}
	}
	var se *ScriptError
	if errors.As(err, &se) {
		for _, m := range staleMessages {
			if strings.Contains(se.Text, m) {
				return fmt.Errorf("%w: %v", browser.ErrStaleElement, err)
			}
		}
	}
	return err
}
