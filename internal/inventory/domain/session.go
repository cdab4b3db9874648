package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ImportStatus is the state of a catalog import session
type ImportStatus string

const (
	ImportSelecting  ImportStatus = "selecting"
	ImportUploading  ImportStatus = "uploading"
	ImportValidating ImportStatus = "validating"
	ImportCommitting ImportStatus = "committing"
	ImportDone       ImportStatus = "done"
	ImportFailed     ImportStatus = "failed"
)

// transitions lists the allowed forward moves of the session state machine
var transitions = map[ImportStatus][]ImportStatus{
	ImportSelecting:  {ImportUploading},
	ImportUploading:  {ImportValidating, ImportFailed},
	ImportValidating: {ImportCommitting},
	ImportCommitting: {ImportDone, ImportFailed},
}

// Terminal reports whether no further transition is possible
func (s ImportStatus) Terminal() bool {
	return s == ImportDone || s == ImportFailed
}

// CanTransition reports whether from → to is an allowed move
func CanTransition(from, to ImportStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RowError is one entry of a session's error log, one per failed row. Row 0 refers to the file itself.
// When several fields of a row failed, Fields lists them and Reason joins their reasons.
type RowError struct {
	Row    int      `json:"row"`
	Field  string   `json:"field"`
	Fields []string `json:"fields,omitempty"`
	Reason string   `json:"reason"`
}

// ErrorLog is stored as JSONB
type ErrorLog []RowError

// Value implements driver.Valuer
func (l ErrorLog) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *ErrorLog) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into ErrorLog", src)
	}
}

// ImportSession tracks one catalog upload from selection to a terminal state
type ImportSession struct {
	ID              string        `db:"id" json:"id"`
	SupplierID      string        `db:"supplier_id" json:"supplier_id"`
	SalesCategory   SalesCategory `db:"sales_category" json:"sales_category"`
	FileName        string        `db:"file_name" json:"file_name"`
	Status          ImportStatus  `db:"status" json:"status"`
	RowsTotal       int           `db:"rows_total" json:"rows_total"`
	RowsSucceeded   int           `db:"rows_succeeded" json:"rows_succeeded"`
	RowsFailed      int           `db:"rows_failed" json:"rows_failed"`
	SupersededLots  int           `db:"superseded_lots" json:"superseded_lots"`
	CreatedLots     int           `db:"created_lots" json:"created_lots"`
	CreatedProducts int           `db:"created_products" json:"created_products"`
	ErrorLog        ErrorLog      `db:"error_log" json:"error_log"`
	FailureReason   *string       `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
	FinishedAt      *time.Time    `db:"finished_at" json:"finished_at,omitempty"`
}

// Scope returns the replacement scope targeted by the session
func (s *ImportSession) Scope() Scope {
	return Scope{SupplierID: s.SupplierID, SalesCategory: s.SalesCategory}
}

// Transition moves the session to status to. Terminal moves stamp FinishedAt.
func (s *ImportSession) Transition(to ImportStatus, at time.Time) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("import session %s cannot move from %s to %s", s.ID, s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = at
	if to.Terminal() {
		finished := at
		s.FinishedAt = &finished
	}
	return nil
}

// Fail moves the session to failed and records reason
func (s *ImportSession) Fail(reason string, at time.Time) error {
	if err := s.Transition(ImportFailed, at); err != nil {
		return err
	}
	s.FailureReason = &reason
	return nil
}

// Snapshot returns a copy safe to hand out while the original keeps changing
func (s *ImportSession) Snapshot() *ImportSession {
	c := *s
	if s.ErrorLog != nil {
		c.ErrorLog = append(ErrorLog(nil), s.ErrorLog...)
		for i := range c.ErrorLog {
			if c.ErrorLog[i].Fields != nil {
				c.ErrorLog[i].Fields = append([]string(nil), c.ErrorLog[i].Fields...)
			}
		}
	}
	if s.FailureReason != nil {
		reason := *s.FailureReason
		c.FailureReason = &reason
	}
	if s.FinishedAt != nil {
		finished := *s.FinishedAt
		c.FinishedAt = &finished
	}
	return &c
}
