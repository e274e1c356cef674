package farez

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeTree decodes a JSON document into a generic tree, keeping numbers
// as json.Number so amounts are never rounded through float64.
func decodeTree(data []byte) (any, error) {
	var tree any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// parseDocument fills out from data and returns the generic tree.
func parseDocument(data []byte, out any) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNilResponse
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode %T: %w", out, err)
	}
	tree, err := decodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return tree, nil
}

// ParseSearchResponse decodes a Search response body.
func ParseSearchResponse(data []byte) (*SearchResponse, error) {
	var resp SearchResponse
	tree, err := parseDocument(data, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = tree
	return &resp, nil
}

// ParseFareConfirmResponse decodes a FareConfirm response body.
func ParseFareConfirmResponse(data []byte) (*FareConfirmResponse, error) {
	var resp FareConfirmResponse
	tree, err := parseDocument(data, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = tree
	return &resp, nil
}

// ParseBookingResponse decodes a Book or Retrieve response body.
func ParseBookingResponse(data []byte) (*BookingResponse, error) {
	var resp BookingResponse
	tree, err := parseDocument(data, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = tree
	return &resp, nil
}

// ParseSearchPayload decodes the Search request body.
func ParseSearchPayload(data []byte) (*SearchPayload, error) {
	var p SearchPayload
	if _, err := parseDocument(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseAddPaxPayload decodes the AddPax request body.
func ParseAddPaxPayload(data []byte) (*AddPaxPayload, error) {
	var p AddPaxPayload
	if _, err := parseDocument(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// fromValue re-encodes an already parsed JSON value and decodes it with
// parse.
func fromValue[T any](v any, parse func([]byte) (T, error)) (T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("encode value: %w", err)
	}
	return parse(data)
}

// SearchResponseFromValue converts an already parsed JSON value.
func SearchResponseFromValue(v any) (*SearchResponse, error) {
	return fromValue(v, ParseSearchResponse)
}

// FareConfirmResponseFromValue converts an already parsed JSON value.
func FareConfirmResponseFromValue(v any) (*FareConfirmResponse, error) {
	return fromValue(v, ParseFareConfirmResponse)
}

// BookingResponseFromValue converts an already parsed JSON value.
func BookingResponseFromValue(v any) (*BookingResponse, error) {
	return fromValue(v, ParseBookingResponse)
}
