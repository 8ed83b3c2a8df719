package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/antonbillionaire/staffix/internal/timezone"
)

const (
	ToolCheckAvailability = "check_availability"
	ToolCreateBooking     = "create_booking"
	ToolListServices      = "list_services"
	ToolListStaff         = "list_staff"
	ToolGetClientBookings = "get_client_bookings"
	ToolCancelBooking     = "cancel_booking"
)

// Tool error codes returned to the model.
const (
	codeNotFound     = "not_found"
	codeSlotConflict = "slot_conflict"
	codeForbidden    = "forbidden"
	codeValidation   = "validation_error"
	codeInternal     = "internal_error"
)

const localLayout = "2006-01-02T15:04"

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// ToolDefinitions is the fixed tool set offered to the model.
func ToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolCheckAvailability,
			Description: "List free appointment slots for a service. Dates are local calendar dates of the business.",
			Parameters: objectSchema([]string{"service_id", "date_from"}, map[string]any{
				"service_id": stringProp("Service id from the services list."),
				"staff_id":   stringProp("Optional staff id; omit to search every eligible staff member."),
				"date_from":  stringProp("First date, YYYY-MM-DD."),
				"date_to":    stringProp("Last date inclusive, YYYY-MM-DD. Defaults to date_from."),
			}),
		},
		{
			Name:        ToolCreateBooking,
			Description: "Book a slot returned by check_availability for the current client.",
			Parameters: objectSchema([]string{"service_id", "staff_id", "start_time"}, map[string]any{
				"service_id": stringProp("Service id."),
				"staff_id":   stringProp("Staff id of the chosen slot."),
				"start_time": stringProp("Local start time, YYYY-MM-DDTHH:MM."),
				"notes":      stringProp("Optional short note from the client."),
			}),
		},
		{
			Name:        ToolListServices,
			Description: "List the services of the business with duration and price.",
			Parameters:  objectSchema(nil, map[string]any{}),
		},
		{
			Name:        ToolListStaff,
			Description: "List staff members, optionally only those offering a service.",
			Parameters: objectSchema(nil, map[string]any{
				"service_id": stringProp("Optional service id filter."),
			}),
		},
		{
			Name:        ToolGetClientBookings,
			Description: "List the current client's bookings.",
			Parameters:  objectSchema(nil, map[string]any{}),
		},
		{
			Name:        ToolCancelBooking,
			Description: "Cancel one of the current client's bookings.",
			Parameters: objectSchema([]string{"booking_id"}, map[string]any{
				"booking_id": stringProp("Booking id from get_client_bookings."),
			}),
		},
	}
}

type checkAvailabilityArgs struct {
	ServiceID string `json:"service_id"`
	StaffID   string `json:"staff_id"`
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`

	from, to time.Time
}

func (a *checkAvailabilityArgs) validate(string) error {
	if err := requireField("service_id", a.ServiceID); err != nil {
		return err
	}
	if err := requireField("date_from", a.DateFrom); err != nil {
		return err
	}
	from, err := timezone.ParseDate(a.DateFrom)
	if err != nil {
		return &argError{Field: "date_from", Reason: "expected YYYY-MM-DD"}
	}
	to := from
	if strings.TrimSpace(a.DateTo) != "" {
		if to, err = timezone.ParseDate(a.DateTo); err != nil {
			return &argError{Field: "date_to", Reason: "expected YYYY-MM-DD"}
		}
	}
	a.from, a.to = from, to
	return nil
}

type createBookingArgs struct {
	ServiceID string `json:"service_id"`
	StaffID   string `json:"staff_id"`
	StartTime string `json:"start_time"`
	Notes     string `json:"notes"`

	start time.Time
}

func (a *createBookingArgs) validate(tz string) error {
	if err := requireField("service_id", a.ServiceID); err != nil {
		return err
	}
	if err := requireField("staff_id", a.StaffID); err != nil {
		return err
	}
	if err := requireField("start_time", a.StartTime); err != nil {
		return err
	}
	start, err := timezone.ParseLocal(a.StartTime, tz)
	if err != nil {
		return &argError{Field: "start_time", Reason: "expected YYYY-MM-DDTHH:MM"}
	}
	a.start = start
	return nil
}

type listStaffArgs struct {
	ServiceID string `json:"service_id"`
}

func (a *listStaffArgs) validate(string) error { return nil }

type cancelBookingArgs struct {
	BookingID string `json:"booking_id"`
}

func (a *cancelBookingArgs) validate(string) error {
	return requireField("booking_id", a.BookingID)
}

type noArgs struct{}

func (noArgs) validate(string) error { return nil }

type validator interface {
	validate(tz string) error
}

// argError is a rejected tool argument.
type argError struct {
	Field  string
	Reason string
}

func (e *argError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &argError{Field: field, Reason: "required"}
	}
	return nil
}

// decodeArgs strictly decodes raw into v and validates it. Unknown fields,
// trailing data and wrong types are rejected.
func decodeArgs(raw json.RawMessage, tz string, v validator) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{}`)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &argError{Reason: "malformed arguments: " + err.Error()}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &argError{Reason: "malformed arguments: trailing data"}
	}
	return v.validate(tz)
}

// toolError is the structured error payload of a failed tool call.
type toolError struct {
	Code         string     `json:"code"`
	Message      string     `json:"message"`
	Field        string     `json:"field,omitempty"`
	Alternatives []slotView `json:"alternatives,omitempty"`
}

type slotView struct {
	StaffID   string `json:"staff_id"`
	StaffName string `json:"staff_name,omitempty"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

type bookingView struct {
	ID        string `json:"booking_id"`
	ServiceID string `json:"service_id"`
	StaffID   string `json:"staff_id"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

type serviceView struct {
	ID              string `json:"service_id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
}

type staffView struct {
	ID   string `json:"staff_id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

func encodeResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":{"code":"internal_error","message":"result encoding failed"}}`
	}
	return string(data)
}
