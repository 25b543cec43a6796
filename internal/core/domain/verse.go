package domain

import (
	"time"

	"github.com/thanhpk/randstr"
)

// VerseStatus ...
type VerseStatus int

const (
	VerseStatusActive VerseStatus = iota
	VerseStatusMerged
)

func (s VerseStatus) String() string {
	switch s {
	case VerseStatusActive:
		return "ACTIVE"
	case VerseStatusMerged:
		return "MERGED"
	default:
		return "UNKNOWN"
	}
}

// Verse is an isolated collateral domain. Positions of a verse are backed
// only by the margin locked within the same verse.
type Verse struct {
	ID       string
	Title    string
	ParentID string
	Status   VerseStatus
	// Successors are the verses that took over the positions of a merged
	// verse.
	Successors []string
	CreatedAt  int64
	MergedAt   int64
}

// NewVerse returns a new active verse, optionally nested under parentID.
func NewVerse(title, parentID string, now time.Time) *Verse {
	return &Verse{
		ID:        randstr.Hex(16),
		Title:     title,
		ParentID:  parentID,
		Status:    VerseStatusActive,
		CreatedAt: now.Unix(),
	}
}

// IsActive ...
func (v *Verse) IsActive() bool {
	return v.Status == VerseStatusActive
}

// Merge marks the verse as dissolved into the given successors.
func (v *Verse) Merge(successors []string, now time.Time) error {
	if !v.IsActive() {
		return ErrVerseNotActive
	}
	if len(successors) == 0 {
		return ErrVerseInvalidSuccessor
	}
	for _, s := range successors {
		if s == "" || s == v.ID {
			return ErrVerseInvalidSuccessor
		}
	}
	v.Status = VerseStatusMerged
	v.Successors = append([]string(nil), successors...)
	v.MergedAt = now.Unix()
	return nil
}
