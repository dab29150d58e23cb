package events

import (
	"errors"
	"fmt"

	"github.com/casualjim/folio/book"
	"github.com/casualjim/folio/executor"
	"github.com/casualjim/folio/types"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Type is the discriminator of a wire message.
type Type string

const (
	TypeExecute  Type = "execute"
	TypeCancel   Type = "cancel"
	TypeSession  Type = "session"
	TypeProgress Type = "progress"
	TypeReport   Type = "report"
	TypeError    Type = "error"
)

var (
	executeJSON  = []byte(`{"type":"execute"}`)
	cancelJSON   = []byte(`{"type":"cancel"}`)
	sessionJSON  = []byte(`{"type":"session"}`)
	progressJSON = []byte(`{"type":"progress"}`)
	reportJSON   = []byte(`{"type":"report"}`)
	errorJSON    = []byte(`{"type":"error"}`)
)

// Event is a message exchanged between a remote client and the server.
type Event interface {
	Type() Type
}

// Execute asks the server to run a pipeline. Exactly one of Book and Pipeline is set.
type Execute struct {
	RequestID  uuid.UUID        `json:"request_id"`
	Book       string           `json:"book,omitempty"`
	Pipeline   *book.Document   `json:"pipeline,omitempty"`
	Parameters types.Parameters `json:"parameters,omitempty"`
	Timestamp  strfmt.DateTime  `json:"timestamp,omitempty"`
}

func (Execute) Type() Type { return TypeExecute }

// Document returns the pipeline to run, compiling Book when needed.
func (e Execute) Document() (*book.Document, error) {
	switch {
	case e.Pipeline != nil && e.Book != "":
		return nil, errors.New("execute carries both a book and a compiled pipeline")
	case e.Pipeline != nil:
		return e.Pipeline, nil
	case e.Book != "":
		return book.Compile(e.Book)
	default:
		return nil, errors.New("execute carries neither a book nor a compiled pipeline")
	}
}

// Cancel asks the server to stop a running request.
type Cancel struct {
	RequestID uuid.UUID       `json:"request_id"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Cancel) Type() Type { return TypeCancel }

// Session is the first message of a connection, naming the client id assigned by the server.
type Session struct {
	ClientID  uuid.UUID       `json:"client_id"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Session) Type() Type { return TypeSession }

// Progress reports one completed template of a request.
type Progress struct {
	RequestID uuid.UUID         `json:"request_id"`
	Progress  executor.Progress `json:"progress"`
	Timestamp strfmt.DateTime   `json:"timestamp,omitempty"`
}

func (Progress) Type() Type { return TypeProgress }

// Report is the final result of a request.
type Report struct {
	RequestID uuid.UUID        `json:"request_id"`
	Result    *executor.Result `json:"result"`
	Timestamp strfmt.DateTime  `json:"timestamp,omitempty"`
}

func (Report) Type() Type { return TypeReport }

// Error is a failure that ends a request, or a malformed client message when RequestID is nil.
type Error struct {
	RequestID uuid.UUID       `json:"request_id"`
	Err       error           `json:"error"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Error) Type() Type { return TypeError }

func (e Error) Error() string {
	return fmt.Sprintf("request_id: %s, timestamp: %s, error: %v", e.RequestID, e.Timestamp, e.Err)
}

func (e Error) Unwrap() error { return e.Err }

// ToJSON encodes an event with its type discriminator.
func ToJSON(e Event) ([]byte, error) {
	if e == nil {
		return nil, errors.New("event is required")
	}
	return json.Marshal(e)
}

// FromJSON decodes an event, choosing its concrete type from the "type" field.
func FromJSON(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	switch t := Type(gjson.GetBytes(data, "type").String()); t {
	case TypeExecute:
		var e Execute
		err := e.UnmarshalJSON(data)
		return e, err
	case TypeCancel:
		var e Cancel
		err := e.UnmarshalJSON(data)
		return e, err
	case TypeSession:
		var e Session
		err := e.UnmarshalJSON(data)
		return e, err
	case TypeProgress:
		var e Progress
		err := e.UnmarshalJSON(data)
		return e, err
	case TypeReport:
		var e Report
		err := e.UnmarshalJSON(data)
		return e, err
	case TypeError:
		var e Error
		err := e.UnmarshalJSON(data)
		return e, err
	case "":
		return nil, errors.New("missing required field 'type'")
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

func checkType(data []byte, want Type) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || Type(msgType.String()) != want {
		return fmt.Errorf("missing or invalid type, expected '%s'", want)
	}
	return nil
}

func requiredUUID(data []byte, field string, dst *uuid.UUID) error {
	v := gjson.GetBytes(data, field)
	if !v.Exists() {
		return fmt.Errorf("missing required field '%s'", field)
	}
	if err := dst.UnmarshalText([]byte(v.String())); err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	return nil
}

func setTimestamp(result []byte, ts strfmt.DateTime) ([]byte, error) {
	if ts.IsZero() {
		return result, nil
	}
	return sjson.SetBytes(result, "timestamp", ts.String())
}

func getTimestamp(data []byte, dst *strfmt.DateTime) error {
	if ts := gjson.GetBytes(data, "timestamp"); ts.Exists() {
		if err := dst.UnmarshalText([]byte(ts.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for Execute
func (e Execute) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(executeJSON, "request_id", e.RequestID.String())
	if err != nil {
		return nil, err
	}

	if e.Book != "" {
		if result, err = sjson.SetBytes(result, "book", e.Book); err != nil {
			return nil, err
		}
	}

	if e.Pipeline != nil {
		pipeline, err := book.ToJSON(e.Pipeline)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pipeline: %w", err)
		}
		if result, err = sjson.SetRawBytes(result, "pipeline", pipeline); err != nil {
			return nil, err
		}
	}

	if len(e.Parameters) > 0 {
		params, err := json.Marshal(e.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameters: %w", err)
		}
		if result, err = sjson.SetRawBytes(result, "parameters", params); err != nil {
			return nil, err
		}
	}

	return setTimestamp(result, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Execute
func (e *Execute) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeExecute); err != nil {
		return err
	}
	if err := requiredUUID(data, "request_id", &e.RequestID); err != nil {
		return err
	}

	e.Book = gjson.GetBytes(data, "book").String()

	if pipeline := gjson.GetBytes(data, "pipeline"); pipeline.Exists() {
		doc, err := book.FromJSON([]byte(pipeline.Raw))
		if err != nil {
			return fmt.Errorf("invalid pipeline: %w", err)
		}
		e.Pipeline = doc
	}

	if params := gjson.GetBytes(data, "parameters"); params.Exists() {
		if err := json.Unmarshal([]byte(params.Raw), &e.Parameters); err != nil {
			return fmt.Errorf("invalid parameters: %w", err)
		}
	}

	return getTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for Cancel
func (c Cancel) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(cancelJSON, "request_id", c.RequestID.String())
	if err != nil {
		return nil, err
	}
	return setTimestamp(result, c.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Cancel
func (c *Cancel) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeCancel); err != nil {
		return err
	}
	if err := requiredUUID(data, "request_id", &c.RequestID); err != nil {
		return err
	}
	return getTimestamp(data, &c.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for Session
func (s Session) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(sessionJSON, "client_id", s.ClientID.String())
	if err != nil {
		return nil, err
	}
	return setTimestamp(result, s.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Session
func (s *Session) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeSession); err != nil {
		return err
	}
	if err := requiredUUID(data, "client_id", &s.ClientID); err != nil {
		return err
	}
	return getTimestamp(data, &s.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for Progress
func (p Progress) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(progressJSON, "request_id", p.RequestID.String())
	if err != nil {
		return nil, err
	}

	progress, err := json.Marshal(p.Progress)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal progress: %w", err)
	}
	if result, err = sjson.SetRawBytes(result, "progress", progress); err != nil {
		return nil, err
	}

	return setTimestamp(result, p.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Progress
func (p *Progress) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeProgress); err != nil {
		return err
	}
	if err := requiredUUID(data, "request_id", &p.RequestID); err != nil {
		return err
	}

	progress := gjson.GetBytes(data, "progress")
	if !progress.Exists() {
		return fmt.Errorf("missing required field 'progress'")
	}
	if err := json.Unmarshal([]byte(progress.Raw), &p.Progress); err != nil {
		return fmt.Errorf("invalid progress: %w", err)
	}
	restoreEntryError(&p.Progress.Entry)

	return getTimestamp(data, &p.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for Report. The result errors are
// written as a list of messages.
func (r Report) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(reportJSON, "request_id", r.RequestID.String())
	if err != nil {
		return nil, err
	}

	if r.Result == nil {
		return nil, errors.New("report has no result")
	}
	res, err := json.Marshal(r.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	if result, err = sjson.SetRawBytes(result, "result", res); err != nil {
		return nil, err
	}
	if result, err = sjson.SetBytes(result, "result.errors", r.Result.ErrorMessages()); err != nil {
		return nil, err
	}

	return setTimestamp(result, r.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Report
func (r *Report) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeReport); err != nil {
		return err
	}
	if err := requiredUUID(data, "request_id", &r.RequestID); err != nil {
		return err
	}

	res := gjson.GetBytes(data, "result")
	if !res.Exists() {
		return fmt.Errorf("missing required field 'result'")
	}
	var result executor.Result
	if err := json.Unmarshal([]byte(res.Raw), &result); err != nil {
		return fmt.Errorf("invalid result: %w", err)
	}
	for _, msg := range res.Get("errors").Array() {
		result.Errors = append(result.Errors, errors.New(msg.String()))
	}
	for i := range result.Report.Entries {
		restoreEntryError(&result.Report.Entries[i])
	}
	r.Result = &result

	return getTimestamp(data, &r.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for Error
func (e Error) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(errorJSON, "request_id", e.RequestID.String())
	if err != nil {
		return nil, err
	}

	if e.Err != nil {
		if result, err = sjson.SetBytes(result, "error", e.Err.Error()); err != nil {
			return nil, err
		}
	}

	return setTimestamp(result, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Error
func (e *Error) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeError); err != nil {
		return err
	}
	if err := requiredUUID(data, "request_id", &e.RequestID); err != nil {
		return err
	}

	errMsg := gjson.GetBytes(data, "error")
	if !errMsg.Exists() {
		return errors.New("missing required field 'error'")
	}
	e.Err = errors.New(errMsg.String())

	return getTimestamp(data, &e.Timestamp)
}

// restoreEntryError rebuilds the error of a decoded report entry from its message.
func restoreEntryError(e *executor.ReportEntry) {
	switch {
	case e.ExpectError != nil:
		e.Err = e.ExpectError
	case e.ErrorMessage != "":
		e.Err = errors.New(e.ErrorMessage)
	}
}
