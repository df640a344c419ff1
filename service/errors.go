package service

import (
	"errors"
	"fmt"
)

var (
	// ErrProcessNotFound is returned when a code or id resolves to no ledger row
	ErrProcessNotFound = errors.New("process not found")
	// ErrAlreadyFinalized is returned for any mutation of a finalized process
	ErrAlreadyFinalized = errors.New("process already finalized")
	// ErrStatusConflict is returned when a conditional update finds another status
	ErrStatusConflict = errors.New("process status changed concurrently")
	// ErrDuplicateCode is returned by Ledger.Insert when the human code is taken
	ErrDuplicateCode = errors.New("process code already exists")
	// ErrSurveyNotStaged is returned by Ledger.GetSurvey when nothing was staged
	ErrSurveyNotStaged = errors.New("survey not staged")
	// ErrArtifactNotFound is returned by ArtifactStore.Fetch for absent objects
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrObjectExists is returned when a write would replace an existing object
	ErrObjectExists = errors.New("object already exists")
)

// Artifact names reported by ArtifactMissingError
const (
	ArtifactTermo      = "termo"
	ArtifactExceptions = "ressalvas"
	ArtifactSurvey     = "nps"
)

// ArtifactMissingError names the first finalization precondition that failed.
type ArtifactMissingError struct {
	Artifact string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("artifact missing: %s", e.Artifact)
}

// StorageWriteFailedError wraps any artifact store write failure.
type StorageWriteFailedError struct {
	Path string
	Err  error
}

func (e *StorageWriteFailedError) Error() string {
	return fmt.Sprintf("storage write failed for %s: %v", e.Path, e.Err)
}

func (e *StorageWriteFailedError) Unwrap() error {
	return e.Err
}
