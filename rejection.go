package farez

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Rejected steps: negative scenarios whose request the API must refuse.
const (
	StageSearchRejected StageName = "search-rejected"
	StageAddPaxRejected StageName = "addpax-rejected"
)

// Rule names recorded by the rejection suite.
const (
	RuleValidationErrors = "validation-errors"
	RuleExpectedError    = "expected-error"
)

// DefaultRejectionMessage is expected when a scenario is not listed.
const DefaultRejectionMessage = "validation error"

// Keys that may hold the list of validation errors, in lookup order.
var validationErrorKeys = []string{"ValidationErrors", "validationErrors"}

var searchRejections = map[string]string{
	"EMPTY_SEARCH_CRITERIA":       "at least one search segment is required",
	"BLANK_CRITERIA":              "at least one search segment is required",
	"EMPTY_PASSENGER_TYPE_CODE":   "invalid passenger type",
	"INVALID_PASSENGER_TYPE":      "invalid passenger type",
	"BLANK_ORIGIN":                "the origin field is required",
	"MISSING_ORIGIN":              "the origin field is required",
	"BLANK_DESTINATION":           "the destination field is required",
	"MISSING_DESTINATION":         "the destination field is required",
	"BLANK_DATE":                  "date must be in the future",
	"MISSING_DATE":                "date must be in the future",
	"SAME_ORIGIN_DESTINATION":     "the origin location cannot be the same as the destination",
	"INVALID_RETURN_JOURNEY_DATE": "cannot be before the previous outbound journey date",
	"INFANT_TO_ADULT_RATIO":       "infants (inf) must not exceed the number of adults (adt)",
	"BLANK_PASSENGER_COUNT":       "passenger count must be greater than 0",
	"EMPTY_PASSENGERS_LIST":       "at least one passenger is required",
	"BLANK_PASSENGER_TYPE_FIELD":  "must exist at least one adult",
	"INVALID_CODE_LENGTH":         "must be exactly 3 uppercase letters",
	"NON_EXISTING_PASSENGER_CODE": "Invalid passenger type. Please select a valid type. Allowed values: ADT (Adult), CHD (Child), INF (Infant)",
	"FUTURE_DATE_ONLY":            "The search date must be in the future",
	"ORIGIN_DATA_TYPE":            "Origin must be exactly 3 uppercase letters",
	"WRONG_DATE_FORMAT":           "Could not convert string to DateTime: 2025-27-05.",
}

var addPaxRejections = map[string]string{
	"PASSENGER_TITLE_GENDER_ALIGN": "title and gender do not align",
	"FIRST_NAME_REQUIRED":          "First Name is required.",
	"PASSENGER_DATA_MISMATCH":      "Passenger data must match travel document details",
	"INF_REFER_TO_EXIST_ADT":       "referenced passenger 'adt2' does not exist",
	"INF_REFER_TO_ONLY_ONE_ADT":    "adult passenger 'adt1' is referenced by more than one infant, which is not allowed.",
	"DUPLICATE_PASSENGER_DATA":     "Duplicate passengers detected: Duplicate for",
	"DUPLICATE_TRAVEL_DOCUMENT":    "Duplicate travel document detected. Each combination of Document Number and Type must be unique",
	"PASSENGER_COUNT_MISMATCH":     "Passenger count mismatch.",
	"FIRST_NAME_ONE_CHARACTER":     "First Name must be more than one character.",
	"LAST_NAME_ONE_CHARACTER":      "Last Name must be more than one character.",
	"LAST_NAME_REQUIRED":           "LAST Name is required.",
	"GENDER_REQUIRED":              "Invalid gender. Please select either Male or Female",
	"INVALID_DOCUMENT_TYPE":        "Invalid document type. Allowed values: Passport, IQAMA, NationalId.",
	"DOCUMENT_TYPE_REQUIRED":       "Document type is required for international flights.",
	"PASSPORT_>_BIRTH_DATE":        "Travel document expiration date must be after the birth date.",
	"RESIDENCE_CODE_REQUIRED":      "Residence country code is required.",
	"RESIDENCE_CODE_INVALID":       "Residence country code is invalid",
	"NATIONAL_CODE_REQUIRED":       "Nationality country code is required.",
	"NATIONAL_CODE_INVALID":        "Nationality country code is invalid",
	"ISSUANCE_CODE_REQUIRED":       "Issuance country code is required.",
	"ISSUANCE_CODE_INVALID":        "Issuance country code is invalid",
}

// ExpectedRejection returns the error message the API must return when
// refusing scenario at stage. Scenarios match case-insensitively; an
// unlisted scenario or stage expects DefaultRejectionMessage.
func ExpectedRejection(stage StageName, scenario string) string {
	table := searchRejections
	if stage == StageAddPaxRejected {
		table = addPaxRejections
	}
	if msg, ok := table[strings.ToUpper(strings.TrimSpace(scenario))]; ok {
		return msg
	}
	return DefaultRejectionMessage
}

// APIError is one entry of a response's validation error list.
type APIError struct {
	Property string
	Message  string
	// Fields holds every key and value of the entry, lower-cased and
	// trimmed, for case-insensitive matching.
	Fields   map[string]string
}

// ErrorResponse is the body of a refused request.
type ErrorResponse struct {
	Errors []APIError
	// Listed reports whether the body carried a validation error list.
	Listed bool
	Raw    any
}

// Messages returns the error message of every entry.
func (r *ErrorResponse) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Message
	}
	return out
}

// ParseErrorResponse decodes the body of a refused request. The error list
// is read from ValidationErrors, or validationErrors when that is absent.
func ParseErrorResponse(data []byte) (*ErrorResponse, error) {
	var body map[string]any
	tree, err := parseDocument(data, &body)
	if err != nil {
		return nil, err
	}
	return errorResponseFromTree(tree), nil
}

// ErrorResponseFromValue converts an already parsed JSON value.
func ErrorResponseFromValue(v any) (*ErrorResponse, error) {
	return fromValue(v, ParseErrorResponse)
}

func errorResponseFromTree(tree any) *ErrorResponse {
	resp := &ErrorResponse{Raw: tree}
	var list []any
	for _, key := range validationErrorKeys {
		if l, ok := lookup(tree, key).([]any); ok {
			list, resp.Listed = l, true
			break
		}
	}
	for _, item := range list {
		entry := APIError{Fields: make(map[string]string)}
		for k, v := range asObject(item) {
			key := strings.ToLower(strings.TrimSpace(k))
			entry.Fields[key] = strings.ToLower(strings.TrimSpace(cast.ToString(v)))
			switch key {
			case "propertyname":
				entry.Property = cast.ToString(v)
			case "errormessage":
				entry.Message = cast.ToString(v)
			}
		}
		resp.Errors = append(resp.Errors, entry)
	}
	return resp
}

// RejectionInput is everything needed to validate the response to a
// request the API must refuse. ExpectedMessage, when set, overrides the
// message the stage table gives for Scenario. A zero Status skips the
// status check.
type RejectionInput struct {
	Response        *ErrorResponse
	Stage           StageName
	Scenario        string
	ExpectedMessage string
	Status          int
}

// expected returns the message the response must contain.
func (in RejectionInput) expected() string {
	if in.ExpectedMessage != "" {
		return in.ExpectedMessage
	}
	return ExpectedRejection(in.Stage, in.Scenario)
}

type rejectionRun struct {
	RejectionInput
	collector *Collector
}

func (r *rejectionRun) Collector() *Collector { return r.collector }

// ValidateRejection validates the response to a negative scenario: the API
// must refuse the request with the configured rejection status and list the
// expected validation error. Stage defaults to StageSearchRejected.
func (e *Engine) ValidateRejection(ctx context.Context, in RejectionInput) (*Report, error) {
	if in.Stage == "" {
		in.Stage = StageSearchRejected
	}
	run := &rejectionRun{RejectionInput: in, collector: e.newCollector()}
	return validate(ctx, e, e.rejection, in.Stage, gate{status: in.Status, present: in.Response != nil, rejection: true}, run)
}

func newRejectionStage() *Stage[*rejectionRun] {
	listPath := field(Root, validationErrorKeys[0])
	return NewStage[*rejectionRun]("rejection",
		Check(RuleValidationErrors, func(_ context.Context, run *rejectionRun, rec Recorder) {
			switch {
			case !run.Response.Listed:
				rec.Missing(listPath, "response carries no ValidationErrors list")
			case len(run.Response.Errors) == 0:
				rec.Missing(listPath, "ValidationErrors is empty")
			}
		}),
		NewPrerequisite("validation-errors-present",
			func(_ context.Context, run *rejectionRun) (bool, string) {
				return len(run.Response.Errors) > 0, "no validation errors to search"
			},
			Check(RuleExpectedError, func(_ context.Context, run *rejectionRun, rec Recorder) {
				CheckExpectedError(rec, listPath, run.Response, run.expected())
			}),
		),
	)
}

// CheckExpectedError verifies that some validation error carries expected,
// matched case-insensitively as a substring of any of its values.
func CheckExpectedError(rec Recorder, path string, resp *ErrorResponse, expected string) {
	want := strings.ToLower(strings.TrimSpace(expected))
	for i, e := range resp.Errors {
		for _, v := range e.Fields {
			if strings.Contains(v, want) {
				rec.Info(index(path, i), "expected error %q found (property %s)", expected, e.Property)
				return
			}
		}
	}
	rec.Mismatch(path, "expected error message not found", expected, fmt.Sprintf("%q", resp.Messages()))
}
