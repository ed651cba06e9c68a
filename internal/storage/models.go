package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrStorage matches every error returned by a store. Use errors.Is.
var ErrStorage = errors.New("storage failure")

// StorageError carries the store operation that failed and its cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Project is one persisted catalog entry.
type Project struct {
	ID              int64      `json:"id" yaml:"id"`
	Name            string     `json:"name" yaml:"name"`
	Description     string     `json:"description" yaml:"description"`
	Status          string     `json:"status" yaml:"status"`
	FolderPath      string     `json:"folder_path" yaml:"folder_path"`
	Language        string     `json:"language" yaml:"language"`
	LastInteraction *time.Time `json:"last_interaction,omitempty" yaml:"last_interaction,omitempty"`
}

// Clone returns a copy that shares no pointers with p.
func (p Project) Clone() Project {
	if p.LastInteraction != nil {
		t := *p.LastInteraction
		p.LastInteraction = &t
	}
	return p
}
