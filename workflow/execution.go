package workflow

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the custom type to define the current state of an Execution
type Status string

// Defining the valid statuses of an Execution
// pending -> running -> sleeping/completed/failed
// sleeping -> running (when WakeAt arrives)
const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusSleeping  Status = "Sleeping"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// Execution is the durable record of one long-running task. The journal and
// the wake-up time together form the serializable continuation: a worker can
// crash at any step boundary and another worker resumes from the record alone.
type Execution struct {
	ID        string     `json:"id" gorm:"primaryKey"`     // UUID assigned at trigger time
	Kind      string     `json:"kind" gorm:"index"`        // identifies the registered handler
	SubjectID string     `json:"subjectId" gorm:"index"`   // the domain record this execution is about
	Status    Status     `json:"status" gorm:"index"`
	WakeAt    *time.Time `json:"wakeAt" gorm:"index"`      // non-nil only while sleeping
	Journal   Journal    `json:"journal" gorm:"type:text"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Journal records the result of every committed step by name. A step whose
// name is present is never executed again on replay.
type Journal map[string]json.RawMessage

// Value implements driver.Valuer so gorm can persist the journal as JSON text
func (j Journal) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (j *Journal) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = Journal{}
		return nil
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("workflow: cannot scan journal from %T", src)
	}
}
