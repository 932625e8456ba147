package models

import "time"

// TrackType enumerates the broad category of circuit.
type TrackType int

const (
	TrackTypeUnknown TrackType = iota
	TrackTypeRoadCourse
	TrackTypeOval
	TrackTypeRallycross
	TrackTypeStreet
)

// SessionType enumerates the kind of on-track activity.
type SessionType int

const (
	SessionTypeUnknown SessionType = iota
	SessionTypePractice
	SessionTypeQualify
	SessionTypeRace
	SessionTypeTimeTrial
)

// SessionDescriptor is the stable metadata for one continuous simulator
// session. It is immutable once created; a change of SessionID means a new
// descriptor replaces the old one, it is never mutated in place.
type SessionDescriptor struct {
	SessionID    string
	TrackID      int32
	TrackConfig  string
	TrackType    TrackType
	CarID        string
	CarClass     string
	SeriesID     string
	SessionType  SessionType
	CreatedAt    time.Time
}
