// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Category is a scoring dimension a reviewer can be competent in.
type Category string

const (
	CategoryTechnical    Category = "technical"
	CategoryProject      Category = "project"
	CategoryCommunityFit Category = "community_fit"
	CategoryVideo        Category = "video"
	CategoryOverall      Category = "overall"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryTechnical,
	CategoryProject,
	CategoryCommunityFit,
	CategoryVideo,
	CategoryOverall,
}

// ParseCategory accepts the canonical names and the hyphenated community-fit alias.
func ParseCategory(s string) (Category, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "community-fit" {
		v = string(CategoryCommunityFit)
	}
	for _, c := range Categories {
		if string(c) == v {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// Recommendation is a reviewer's verdict on an application.
type Recommendation string

const (
	RecommendAccept        Recommendation = "ACCEPT"
	RecommendReject        Recommendation = "REJECT"
	RecommendWaitlist      Recommendation = "WAITLIST"
	RecommendNeedsMoreInfo Recommendation = "NEEDS_MORE_INFO"
)

var recommendations = []Recommendation{
	RecommendAccept,
	RecommendReject,
	RecommendWaitlist,
	RecommendNeedsMoreInfo,
}

// ParseRecommendation is case-insensitive and tolerates hyphens.
func ParseRecommendation(s string) (Recommendation, error) {
	v := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, r := range recommendations {
		if string(r) == v {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRecommendation, s)
}

// Stage is a step of the review pipeline.
type Stage string

const (
	StageScreening      Stage = "SCREENING"
	StageDetailedReview Stage = "DETAILED_REVIEW"
	StageVideoReview    Stage = "VIDEO_REVIEW"
	StageConsensus      Stage = "CONSENSUS"
	StageFinalDecision  Stage = "FINAL_DECISION"
)

var stages = []Stage{
	StageScreening,
	StageDetailedReview,
	StageVideoReview,
	StageConsensus,
	StageFinalDecision,
}

// ParseStage is case-insensitive and tolerates hyphens.
func ParseStage(s string) (Stage, error) {
	v := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, st := range stages {
		if string(st) == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStage, s)
}

// Source tells human reviews apart from model-generated drafts.
type Source string

const (
	SourceHuman Source = "human"
	SourceAI    Source = "ai"
)
