// Package features turns raw interaction events and article rows into the
// numeric inputs of the ranking model: training labels, the user preference
// vector and the per-(article, user) feature vector.
package features

import (
	"time"

	"horse.fit/lens/internal/db"
)

// Label is the training outcome for one (article, user) pair.
type Label int

const (
	LabelUnlabeled Label = iota
	LabelPositive
	LabelNegative
)

func (l Label) String() string {
	switch l {
	case LabelPositive:
		return "positive"
	case LabelNegative:
		return "negative"
	default:
		return "unlabeled"
	}
}

// DeriveLabel assigns one label from a user's event history on one article.
// Events must be ordered oldest-first. The rules are checked in order of
// signal strength and the first match wins:
//
//	star                                   -> positive
//	external_click                         -> positive
//	open with duration >= dwell threshold  -> positive
//	dismiss or downvote                    -> negative
//	impression never followed by an open,
//	  older than the impression timeout    -> negative
//	otherwise                              -> unlabeled
func DeriveLabel(events []db.EventRecord, now time.Time, dwellThresholdMS int64, impressionTimeout time.Duration) Label {
	var (
		hasStar          bool
		hasExternalClick bool
		hasDwellOpen     bool
		hasDismiss       bool
		hasAnyOpen       bool
		firstImpression  time.Time
	)

	for _, event := range events {
		switch event.EventType {
		case "star":
			hasStar = true
		case "external_click":
			hasExternalClick = true
		case "open":
			hasAnyOpen = true
			if event.DurationMS != nil && *event.DurationMS >= dwellThresholdMS {
				hasDwellOpen = true
			}
		case "dismiss", "downvote":
			hasDismiss = true
		case "impression":
			if firstImpression.IsZero() || event.CreatedAt.Before(firstImpression) {
				firstImpression = event.CreatedAt
			}
		}
	}

	switch {
	case hasStar:
		return LabelPositive
	case hasExternalClick:
		return LabelPositive
	case hasDwellOpen:
		return LabelPositive
	case hasDismiss:
		return LabelNegative
	case !firstImpression.IsZero() && !hasAnyOpen && now.Sub(firstImpression) > impressionTimeout:
		return LabelNegative
	default:
		return LabelUnlabeled
	}
}
