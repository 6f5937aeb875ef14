package chrome

import (
	"context"
	"encoding/json"
	"fmt"
)

var keyCodeMap = map[string]int{
	"Enter":     13,
	"Tab":       9,
	"Escape":    27,
	"Backspace": 8,
	"Delete":    46,
}

// keyText is the text a key inserts; Enter must carry "\r" to submit forms.
var keyText = map[string]string{
	"Enter": "\r",
	"Tab":   "\t",
}

// boxCenter returns the centre of a remote object's content quad.
func (s *Session) boxCenter(ctx context.Context, objectID string) (x, y float64, err error) {
	boxResult, err := s.call(ctx, "DOM.getBoxModel", map[string]any{"objectId": objectID})
	if err != nil {
		return 0, 0, fmt.Errorf("getting box model: %w", err)
	}

	var boxResp struct {
		Model struct {
			Content []float64 `json:"content"`
		} `json:"model"`
	}
	if err := json.Unmarshal(boxResult, &boxResp); err != nil {
		return 0, 0, fmt.Errorf("parsing box model response: %w", err)
	}

	content := boxResp.Model.Content
	if len(content) < 8 {
		return 0, 0, fmt.Errorf("invalid box model")
	}

	x = (content[0] + content[2] + content[4] + content[6]) / 4
	y = (content[1] + content[3] + content[5] + content[7]) / 4
	return x, y, nil
}

// dispatchMouseClick dispatches mouseMoved, mousePressed, and mouseReleased events.
func (s *Session) dispatchMouseClick(ctx context.Context, x, y float64) error {
	events := []map[string]any{
		{"type": "mouseMoved", "x": x, "y": y},
		{"type": "mousePressed", "x": x, "y": y, "button": "left", "clickCount": 1},
		{"type": "mouseReleased", "x": x, "y": y, "button": "left", "clickCount": 1},
	}
	for _, ev := range events {
		if _, err := s.call(ctx, "Input.dispatchMouseEvent", ev); err != nil {
			return fmt.Errorf("dispatching %s: %w", ev["type"], err)
		}
	}
	return nil
}

func (s *Session) insertText(ctx context.Context, text string) error {
	if _, err := s.call(ctx, "Input.insertText", map[string]any{"text": text}); err != nil {
		return fmt.Errorf("inserting text: %w", err)
	}
	return nil
}

// pressKey sends keyDown and keyUp for a named key.
func (s *Session) pressKey(ctx context.Context, key string) error {
	keyCode := keyCodeMap[key]
	params := map[string]any{
		"type":                  "keyDown",
		"key":                   key,
		"windowsVirtualKeyCode": keyCode,
		"nativeVirtualKeyCode":  keyCode,
	}
	if text := keyText[key]; text != "" {
		params["text"] = text
	}
	if _, err := s.call(ctx, "Input.dispatchKeyEvent", params); err != nil {
		return fmt.Errorf("keyDown for %q: %w", key, err)
	}

	_, err := s.call(ctx, "Input.dispatchKeyEvent", map[string]any{
		"type":                  "keyUp",
		"key":                   key,
		"windowsVirtualKeyCode": keyCode,
		"nativeVirtualKeyCode":  keyCode,
	})
	if err != nil {
		return fmt.Errorf("keyUp for %q: %w", key, err)
	}
	return nil
}
