// Package model defines data structures used throughout the application.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Decoding errors for item request bodies.
var (
	ErrInvalidItem = errors.New("item must be a JSON object with string 'name' and 'description'")
	ErrEmptyPatch  = errors.New("item update must be a non-empty JSON object")
	ErrFieldType   = errors.New("item field must be a string")
)

// Client-facing messages.
const (
	MsgItemNotFound    = "Item not found"
	MsgInvalidNewItem  = "Invalid item data. 'name' and 'description' are required."
	MsgInvalidItem     = "Invalid item data"
	MsgPreflightOK     = "CORS preflight request successful"
	MsgNotFound        = "Not found"
	MsgMethodNotAllow  = "Method not allowed"
	MsgInternalError   = "Internal server error"
	MsgInvalidJSONBody = "Invalid JSON body"
)

// Item is the single record kept by the service.
type Item struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ItemPatch holds the fields of an update request. Nil fields are left as is.
type ItemPatch struct {
	Name        *string
	Description *string
}

// Apply overwrites the fields of item that are present in the patch.
func (p *ItemPatch) Apply(item *Item) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
}

// DecodeNewItem parses a create request body. Both fields must be present.
func DecodeNewItem(data []byte) (*Item, error) {
	fields, err := decodeObject(data)
	if err != nil || len(fields) == 0 {
		return nil, ErrInvalidItem
	}

	name, ok := fields["name"]
	if !ok {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidItem)
	}
	description, ok := fields["description"]
	if !ok {
		return nil, fmt.Errorf("%w: missing description", ErrInvalidItem)
	}

	item := &Item{}
	if err := decodeString(name, &item.Name); err != nil {
		return nil, fmt.Errorf("%w: name: %w", ErrInvalidItem, err)
	}
	if err := decodeString(description, &item.Description); err != nil {
		return nil, fmt.Errorf("%w: description: %w", ErrInvalidItem, err)
	}

	return item, nil
}

// DecodeItemPatch parses an update request body. Unknown keys are ignored.
func DecodeItemPatch(data []byte) (*ItemPatch, error) {
	fields, err := decodeObject(data)
	if err != nil || len(fields) == 0 {
		return nil, ErrEmptyPatch
	}

	patch := &ItemPatch{}
	if raw, ok := fields["name"]; ok {
		var name string
		if err := decodeString(raw, &name); err != nil {
			return nil, fmt.Errorf("name: %w", err)
		}
		patch.Name = &name
	}
	if raw, ok := fields["description"]; ok {
		var description string
		if err := decodeString(raw, &description); err != nil {
			return nil, fmt.Errorf("description: %w", err)
		}
		patch.Description = &description
	}

	return patch, nil
}

// decodeObject decodes data as a JSON object. JSON null yields a nil map.
func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding object: %w", err)
	}
	return fields, nil
}

func decodeString(raw json.RawMessage, dst *string) error {
	if err := json.Unmarshal(raw, dst); err != nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ErrFieldType
	}
	return nil
}

// ItemList is the body of the list endpoint.
type ItemList struct {
	Items []Item `json:"items"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse carries a single human-readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

// CORSTestResponse is returned by the CORS test endpoint.
// Body is only set for methods that carry a payload.
type CORSTestResponse struct {
	Message string          `json:"message"`
	Method  string          `json:"method"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// EchoResponse describes the request as the server received it.
type EchoResponse struct {
	RequestHeaders map[string]string `json:"request_headers"`
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Args           map[string]string `json:"args"`
	Form           map[string]string `json:"form"`
	JSON           json.RawMessage   `json:"json"`
}

// Item event types.
const (
	EventItemCreated = "item.created"
	EventItemUpdated = "item.updated"
	EventItemDeleted = "item.deleted"
)

// ItemEvent is sent to websocket subscribers after a mutation.
type ItemEvent struct {
	Type      string    `json:"type"`
	Item      Item      `json:"item"`
	Timestamp time.Time `json:"timestamp"`
}

// NewItemEvent creates an event of the given type for item.
func NewItemEvent(eventType string, item Item) ItemEvent {
	return ItemEvent{
		Type:      eventType,
		Item:      item,
		Timestamp: time.Now().UTC(),
	}
}
