// Package models defines the data structures shared between the attack
// engine, the persistence layer, and the HTTP API.
package models

import "time"

// TargetInfo describes one catalog entry for API consumers.
type TargetInfo struct {
	Index             int    `json:"index"`
	Name              string `json:"name"`
	FrequencyHz       uint32 `json:"frequencyHz,omitempty"`
	AlphabetSize      uint8  `json:"alphabetSize,omitempty"`
	DigitCount        uint8  `json:"digitCount,omitempty"`
	BitLengthPerDigit uint8  `json:"bitLengthPerDigit,omitempty"`
	Encoding          string `json:"encoding"`
	Meta              bool   `json:"meta"`
	UserSelectable    bool   `json:"userSelectable"`
	KeyspaceSize      uint32 `json:"keyspaceSize,omitempty"`
	HasSavedCode      bool   `json:"hasSavedCode"`
}

// AttackParameters is the request body for starting an attack run.
type AttackParameters struct {
	TargetIndex int    `json:"targetIndex"`
	Mode        string `json:"mode"`
}

// StopParameters is the request body for stopping an attack run.
type StopParameters struct {
	Save bool `json:"save,omitempty"`
}

// AttackProgress is the poll-friendly snapshot of the running (or last)
// attack exposed by the control surface.
type AttackProgress struct {
	Running          bool     `json:"running"`
	RunID            string   `json:"runId,omitempty"`
	Mode             string   `json:"mode,omitempty"`
	TargetIndex      int      `json:"targetIndex"`
	ActiveTarget     string   `json:"activeTarget,omitempty"`
	CurrentCode      uint32   `json:"currentCode"`
	CodesTransmitted uint32   `json:"codesTransmitted"`
	MaxCode          uint32   `json:"maxCode"`
	LastCodes        []uint32 `json:"lastCodes"`
	Status           string   `json:"status"` // idle, running, completed, cancelled, error
}

// SavedCode is one persisted working code for a concrete target.
type SavedCode struct {
	TargetName string    `json:"targetName"`
	Code       uint32    `json:"code"`
	SavedAt    time.Time `json:"savedAt"`
}

// AttackRun is one row of the attack run history.
type AttackRun struct {
	ID               int64     `json:"id"`
	RunID            string    `json:"runId"`
	Timestamp        time.Time `json:"timestamp"`
	Target           string    `json:"target"`
	Mode             string    `json:"mode"`
	CodesTransmitted uint32    `json:"codesTransmitted"`
	MaxCode          uint32    `json:"maxCode"`
	Status           string    `json:"status"` // running, completed, cancelled, error
	ErrorMessage     string    `json:"errorMessage,omitempty"`
}

// SystemStatus is the overall service status.
type SystemStatus struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	StartedAt    time.Time `json:"startedAt"`
	AttackActive bool      `json:"attackActive"`
	RadioBackend string    `json:"radioBackend"`
	DatabaseSize int64     `json:"databaseSize"`
	TargetCount  int       `json:"targetCount"`
}
