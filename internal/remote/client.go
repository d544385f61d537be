// Package remote is the REST client for the clinic backend.
//
// The sync engine treats every error from this package as either a network
// failure (recoverable, the document stays pending and is retried next pass)
// or an *APIError carrying the backend's HTTP status. 4xx responses indicate
// the payload was rejected and retrying unchanged will fail identically.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds every request so a hung call delays only its own
// push/pull step, never the whole pass.
const DefaultTimeout = 15 * time.Second

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// IsValidation reports whether the backend rejected the payload itself
// (constraint violation, bad fields). Such failures will not succeed on an
// unchanged retry.
func (e *APIError) IsValidation() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsRecoverable reports whether err is worth retrying on a later sync pass
// with an unchanged payload: network failures, timeouts and 5xx responses.
func IsRecoverable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.IsValidation()
	}
	return err != nil
}

// errorBody matches the backend's {error: "..."} failure shape.
type errorBody struct {
	Error string `json:"error"`
}

// Client talks to the clinic backend.
type Client struct {
	http   *resty.Client
	logger *log.Logger
}

// New creates a client for the backend at baseURL.
// If logger is nil, a default logger writing to stderr is used.
func New(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: http, logger: logger}
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string { return c.http.BaseURL }

// SetToken attaches a bearer token to subsequent requests.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// check converts a completed resty response into the package error taxonomy.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		if body, ok := resp.Error().(*errorBody); ok && body != nil {
			apiErr.Message = body.Error
		}
		return apiErr
	}
	return nil
}

// Health probes the backend. A nil error means the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).SetError(&errorBody{}).Get("/api/health")
	return check(resp, err)
}

// ListPatients fetches all patient rows.
func (c *Client) ListPatients(ctx context.Context) ([]PatientRecord, error) {
	var out []PatientRecord
	resp, err := c.http.R().SetContext(ctx).
		SetResult(&out).SetError(&errorBody{}).
		Get("/api/patients")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out, nil
}

// CreatePatient pushes a new patient and returns the server-assigned row id.
func (c *Client) CreatePatient(ctx context.Context, req PatientRequest) (int64, error) {
	var out createResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(req).SetResult(&out).SetError(&errorBody{}).
		Post("/api/patients")
	if err := check(resp, err); err != nil {
		return 0, fmt.Errorf("create patient: %w", err)
	}
	return out.ID, nil
}

// UpdatePatient replaces a patient row.
func (c *Client) UpdatePatient(ctx context.Context, id int64, req PatientRequest) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(req).SetError(&errorBody{}).
		Put(fmt.Sprintf("/api/patients/%d", id))
	if err := check(resp, err); err != nil {
		return fmt.Errorf("update patient %d: %w", id, err)
	}
	return nil
}

// DeletePatient removes a patient row.
func (c *Client) DeletePatient(ctx context.Context, id int64) error {
	resp, err := c.http.R().SetContext(ctx).
		SetError(&errorBody{}).
		Delete(fmt.Sprintf("/api/patients/%d", id))
	if err := check(resp, err); err != nil {
		return fmt.Errorf("delete patient %d: %w", id, err)
	}
	return nil
}

// ListConsultations fetches all consultation rows.
func (c *Client) ListConsultations(ctx context.Context) ([]ConsultationRecord, error) {
	var out []ConsultationRecord
	resp, err := c.http.R().SetContext(ctx).
		SetResult(&out).SetError(&errorBody{}).
		Get("/api/consultations")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	return out, nil
}

// CreateConsultation pushes a new consultation and returns its row id.
func (c *Client) CreateConsultation(ctx context.Context, req ConsultationRequest) (int64, error) {
	var out createResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(req).SetResult(&out).SetError(&errorBody{}).
		Post("/api/consultations")
	if err := check(resp, err); err != nil {
		return 0, fmt.Errorf("create consultation: %w", err)
	}
	return out.ID, nil
}

// UpdateConsultation replaces a consultation row.
func (c *Client) UpdateConsultation(ctx context.Context, id int64, req ConsultationRequest) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(req).SetError(&errorBody{}).
		Put(fmt.Sprintf("/api/consultations/%d", id))
	if err := check(resp, err); err != nil {
		return fmt.Errorf("update consultation %d: %w", id, err)
	}
	return nil
}

// DeleteConsultation removes a consultation row.
func (c *Client) DeleteConsultation(ctx context.Context, id int64) error {
	resp, err := c.http.R().SetContext(ctx).
		SetError(&errorBody{}).
		Delete(fmt.Sprintf("/api/consultations/%d", id))
	if err := check(resp, err); err != nil {
		return fmt.Errorf("delete consultation %d: %w", id, err)
	}
	return nil
}

// ListAntecedents fetches a patient's antecedent rows.
func (c *Client) ListAntecedents(ctx context.Context, patientID int64) ([]AntecedentRecord, error) {
	var out []AntecedentRecord
	resp, err := c.http.R().SetContext(ctx).
		SetResult(&out).SetError(&errorBody{}).
		Get(fmt.Sprintf("/api/patients/%d/antecedents", patientID))
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("list antecedents for patient %d: %w", patientID, err)
	}
	return out, nil
}

// CreateAntecedent pushes a new antecedent under a patient.
func (c *Client) CreateAntecedent(ctx context.Context, patientID int64, req AntecedentRequest) (int64, error) {
	var out createResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(req).SetResult(&out).SetError(&errorBody{}).
		Post(fmt.Sprintf("/api/patients/%d/antecedents", patientID))
	if err := check(resp, err); err != nil {
		return 0, fmt.Errorf("create antecedent for patient %d: %w", patientID, err)
	}
	return out.ID, nil
}

// ListVaccinations fetches a patient's vaccination rows.
func (c *Client) ListVaccinations(ctx context.Context, patientID int64) ([]VaccinationRecord, error) {
	var out []VaccinationRecord
	resp, err := c.http.R().SetContext(ctx).
		SetResult(&out).SetError(&errorBody{}).
		Get(fmt.Sprintf("/api/patients/%d/vaccinations", patientID))
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("list vaccinations for patient %d: %w", patientID, err)
	}
	return out, nil
}

// CreateVaccination pushes a new vaccination under a patient.
func (c *Client) CreateVaccination(ctx context.Context, patientID int64, req VaccinationRequest) (int64, error) {
	var out createResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(req).SetResult(&out).SetError(&errorBody{}).
		Post(fmt.Sprintf("/api/patients/%d/vaccinations", patientID))
	if err := check(resp, err); err != nil {
		return 0, fmt.Errorf("create vaccination for patient %d: %w", patientID, err)
	}
	return out.ID, nil
}

// ListNotes fetches a patient's note rows.
func (c *Client) ListNotes(ctx context.Context, patientID int64) ([]NoteRecord, error) {
	var out []NoteRecord
	resp, err := c.http.R().SetContext(ctx).
		SetResult(&out).SetError(&errorBody{}).
		Get(fmt.Sprintf("/api/patients/%d/notes", patientID))
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("list notes for patient %d: %w", patientID, err)
	}
	return out, nil
}

// CreateNote pushes a new note under a patient.
func (c *Client) CreateNote(ctx context.Context, patientID int64, req NoteRequest) (int64, error) {
	var out createResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(req).SetResult(&out).SetError(&errorBody{}).
		Post(fmt.Sprintf("/api/patients/%d/notes", patientID))
	if err := check(resp, err); err != nil {
		return 0, fmt.Errorf("create note for patient %d: %w", patientID, err)
	}
	return out.ID, nil
}

// ListUsers fetches all user rows (without password hashes).
func (c *Client) ListUsers(ctx context.Context) ([]UserRecord, error) {
	var out []UserRecord
	resp, err := c.http.R().SetContext(ctx).
		SetResult(&out).SetError(&errorBody{}).
		Get("/api/users")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// Login authenticates against the backend. This is the only call that ever
// carries a plaintext password.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).SetError(&errorBody{}).
		Post("/api/auth/login")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &out, nil
}

// Register creates a backend account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	var out LoginResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(req).SetResult(&out).SetError(&errorBody{}).
		Post("/api/auth/register")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &out, nil
}

// VaccinationCertificate downloads the PDF certificate for a patient.
func (c *Client) VaccinationCertificate(ctx context.Context, patientID int64) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).
		Get(fmt.Sprintf("/api/patients/%d/vaccinations/certificate", patientID))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}
