package services

import (
	"strings"
	"time"

	"github.com/consultbridge/ConsultBridge-Backend/internal/apperrors"
	"github.com/consultbridge/ConsultBridge-Backend/internal/models"
)

// timestampTolerance bounds how far a same-day recording may start from
// the session's scheduled start before the match is considered a guess.
const timestampTolerance = 2 * time.Hour

// matchFunc is one pure matching heuristic. A nil recording with a nil
// error means "no opinion, ask the next strategy". ErrAmbiguousMatch
// means the strategy found candidates but no confident tie-break.
type matchFunc func(session *models.ConsultingSession, recordings []models.ExternalRecording) (*models.ExternalRecording, error)

type matchStrategy struct {
	name  string
	match matchFunc
}

// matchStrategies is evaluated in order; the first strategy returning a
// recording wins. Order encodes confidence and is load-bearing.
var matchStrategies = []matchStrategy{
	{name: "recording_id", match: matchByRecordingID},
	{name: "exact_room", match: matchByExactRoomName},
	{name: "id_substring", match: matchByIDSubstring},
	{name: "fuzzy_room", match: matchByFuzzyRoomName},
	{name: "timestamp", match: matchByTimestamp},
}

// matchByRecordingID uses a provider recording id stored by a previous
// partial match. Exact key, highest confidence.
func matchByRecordingID(session *models.ConsultingSession, recordings []models.ExternalRecording) (*models.ExternalRecording, error) {
	if session.ProviderRecordingID == "" {
		return nil, nil
	}
	for i := range recordings {
		if recordings[i].ID == session.ProviderRecordingID {
			return &recordings[i], nil
		}
	}
	return nil, nil
}

func matchByExactRoomName(session *models.ConsultingSession, recordings []models.ExternalRecording) (*models.ExternalRecording, error) {
	for i := range recordings {
		if recordings[i].RoomName == session.RoomTopic {
			return &recordings[i], nil
		}
	}
	return nil, nil
}

// matchByIDSubstring covers providers that embed the caller-supplied
// identifier in their own room naming, with prefixes or suffixes.
func matchByIDSubstring(session *models.ConsultingSession, recordings []models.ExternalRecording) (*models.ExternalRecording, error) {
	id := session.ID.String()
	// The trailing uuid group survives most provider renaming schemes.
	tail := id
	if idx := strings.LastIndex(id, "-"); idx >= 0 {
		tail = id[idx+1:]
	}

	for i := range recordings {
		name := recordings[i].RoomName
		if name == "" {
			continue
		}
		if strings.Contains(name, id) || strings.Contains(name, tail) {
			return &recordings[i], nil
		}
	}
	return nil, nil
}

// matchByFuzzyRoomName tolerates case and formatting drift: one room
// name containing the other, either direction, case-insensitively.
func matchByFuzzyRoomName(session *models.ConsultingSession, recordings []models.ExternalRecording) (*models.ExternalRecording, error) {
	topic := strings.ToLower(session.RoomTopic)
	if topic == "" {
		return nil, nil
	}
	for i := range recordings {
		name := strings.ToLower(recordings[i].RoomName)
		if name == "" {
			continue
		}
		if strings.Contains(name, topic) || strings.Contains(topic, name) {
			return &recordings[i], nil
		}
	}
	return nil, nil
}

// matchByTimestamp is the last resort: recordings started on the same
// calendar day as the session. A single candidate is accepted; among
// several, the closest wins only inside the tolerance. Anything less
// certain stays unmatched rather than guessed.
func matchByTimestamp(session *models.ConsultingSession, recordings []models.ExternalRecording) (*models.ExternalRecording, error) {
	sessionDay := session.ScheduledStart.UTC().Truncate(24 * time.Hour)

	var candidates []int
	for i := range recordings {
		day := recordings[i].StartedAt.UTC().Truncate(24 * time.Hour)
		if day.Equal(sessionDay) {
			candidates = append(candidates, i)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return &recordings[candidates[0]], nil
	}

	best := -1
	var bestDiff time.Duration
	for _, i := range candidates {
		diff := recordings[i].StartedAt.Sub(session.ScheduledStart)
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}

	if bestDiff >= timestampTolerance {
		return nil, apperrors.ErrAmbiguousMatch
	}
	return &recordings[best], nil
}
