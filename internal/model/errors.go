package model

import (
	"errors"
	"fmt"
)

// ErrEmptyDataset is returned when a stage receives zero rows.
var ErrEmptyDataset = errors.New("empty dataset")

// ErrNotTrained is returned when evaluation or prediction is requested
// before a model has been trained.
var ErrNotTrained = errors.New("model not trained")

// TrainingError reports a failure inside the learning engine.
type TrainingError struct {
	Stage string
	Err   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed during %s: %v", e.Stage, e.Err)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// NewTrainingError wraps err as a training failure at the given stage.
func NewTrainingError(stage string, err error) *TrainingError {
	return &TrainingError{Stage: stage, Err: err}
}

// MalformedBatchError reports a batch input from which no rows could be parsed.
type MalformedBatchError struct {
	Source string
	Reason string
}

func (e *MalformedBatchError) Error() string {
	return fmt.Sprintf("malformed batch %s: %s", e.Source, e.Reason)
}

// IsEmptyDataset reports whether err (or any error in its chain) is ErrEmptyDataset.
func IsEmptyDataset(err error) bool {
	return errors.Is(err, ErrEmptyDataset)
}

// IsNotTrained reports whether err (or any error in its chain) is ErrNotTrained.
func IsNotTrained(err error) bool {
	return errors.Is(err, ErrNotTrained)
}

// IsTrainingFailure reports whether err (or any error in its chain) is a TrainingError.
func IsTrainingFailure(err error) bool {
	var te *TrainingError
	return errors.As(err, &te)
}

// IsMalformedBatch reports whether err (or any error in its chain) is a MalformedBatchError.
func IsMalformedBatch(err error) bool {
	var me *MalformedBatchError
	return errors.As(err, &me)
}
