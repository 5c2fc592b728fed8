package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/domain/resume"
)

// Scorer converts a reconstruction into a trust assessment. Pure arithmetic
// over the configured constants; same input always yields the same score.
type Scorer struct {
	cfg config.Scoring
}

// NewScorer creates a scorer from the configured model constants.
func NewScorer(cfg config.Scoring) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the confidence for rec and attaches it. The score is clamped
// to [0,100] and bucketed into a level.
func (s *Scorer) Score(rec *resume.Reconstruction) resume.Confidence {
	score := s.base(rec.Source)
	var reasons []string
	reasons = append(reasons, fmt.Sprintf("source=%s (base %d)", rec.Source, score))

	age := time.Duration(rec.AgeMinutes * float64(time.Minute))
	if p, why := s.agePenalty(rec.Source, age); p > 0 {
		score -= p
		reasons = append(reasons, why)
	}

	for _, f := range rec.Validation {
		p := s.validationPenalty(f)
		score -= p
		reasons = append(reasons, fmt.Sprintf("%s (-%d)", f, p))
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	c := resume.Confidence{
		Score:  score,
		Level:  s.level(score),
		Reason: strings.Join(reasons, "; "),
	}
	rec.Confidence = &c
	return c
}

func (s *Scorer) base(src resume.Source) int {
	switch src {
	case resume.SourceCheckpoint:
		return s.cfg.BaseCheckpoint
	case resume.SourceEvents:
		return s.cfg.BaseEvents
	case resume.SourceCommands:
		return s.cfg.BaseCommands
	default:
		return s.cfg.BaseBasic
	}
}

// agePenalty applies the bracketed model for checkpoints and linear decay for
// event and command reconstructions. Basic reconstructions carry no age
// penalty; their base score already reflects how little they assert.
func (s *Scorer) agePenalty(src resume.Source, age time.Duration) (int, string) {
	switch src {
	case resume.SourceCheckpoint:
		switch {
		case age < s.cfg.CheckpointFreshAge:
			return 0, ""
		case age < s.cfg.CheckpointMediumAge:
			return s.cfg.PenaltyMediumAge, fmt.Sprintf("checkpoint age %s (-%d)", age.Round(time.Minute), s.cfg.PenaltyMediumAge)
		default:
			return s.cfg.PenaltyOldAge, fmt.Sprintf("checkpoint age %s (-%d)", age.Round(time.Minute), s.cfg.PenaltyOldAge)
		}
	case resume.SourceEvents, resume.SourceCommands:
		if s.cfg.DecayInterval <= 0 {
			return 0, ""
		}
		intervals := int(age / s.cfg.DecayInterval)
		if intervals <= 0 {
			return 0, ""
		}
		p := intervals * s.cfg.DecayPenalty
		return p, fmt.Sprintf("data age %s (-%d)", age.Round(time.Minute), p)
	default:
		return 0, ""
	}
}

func (s *Scorer) validationPenalty(f resume.ValidationFailure) int {
	switch f {
	case resume.FailureProjectDirMissing:
		return s.cfg.PenaltyDirMissing
	case resume.FailureBranchMissing:
		return s.cfg.PenaltyBranchMissing
	case resume.FailureFilesMissing:
		return s.cfg.PenaltyFilesMissing
	default:
		return 0
	}
}

func (s *Scorer) level(score int) resume.Level {
	switch {
	case score >= s.cfg.HighMin:
		return resume.LevelHigh
	case score >= s.cfg.ModerateMin:
		return resume.LevelModerate
	case score >= s.cfg.LowMin:
		return resume.LevelLow
	default:
		return resume.LevelVeryLow
	}
}
