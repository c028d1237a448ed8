// Package repository holds helpers shared by the session store implementations.
package repository

import (
	"encoding/json"
	"fmt"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

// Documents are the JSON-encoded aggregate fields of a session row
type Documents struct {
	Extracted []byte
	History   []byte
	Summaries []byte
	Topics    []byte
}

// EncodeDocuments marshals the nested session fields for column storage
func EncodeDocuments(s *domain.Session) (Documents, error) {
	var d Documents
	var err error

	extracted := s.ExtractedData
	if extracted == nil {
		extracted = domain.ExtractedData{}
	}
	if d.Extracted, err = json.Marshal(extracted); err != nil {
		return d, fmt.Errorf("failed to marshal extracted data: %w", err)
	}

	history := s.ConversationHistory
	if history == nil {
		history = []domain.Turn{}
	}
	if d.History, err = json.Marshal(history); err != nil {
		return d, fmt.Errorf("failed to marshal conversation history: %w", err)
	}

	summaries := s.StageSummaries
	if summaries == nil {
		summaries = map[int]string{}
	}
	if d.Summaries, err = json.Marshal(summaries); err != nil {
		return d, fmt.Errorf("failed to marshal stage summaries: %w", err)
	}

	topics := s.StageTopics
	if topics == nil {
		topics = []string{}
	}
	if d.Topics, err = json.Marshal(topics); err != nil {
		return d, fmt.Errorf("failed to marshal stage topics: %w", err)
	}

	return d, nil
}

// DecodeDocuments unmarshals column data back into s
func DecodeDocuments(s *domain.Session, d Documents) error {
	s.ExtractedData = domain.ExtractedData{}
	s.StageSummaries = map[int]string{}
	s.StageTopics = []string{}
	s.ConversationHistory = nil

	if len(d.Extracted) > 0 {
		if err := json.Unmarshal(d.Extracted, &s.ExtractedData); err != nil {
			return fmt.Errorf("failed to unmarshal extracted data: %w", err)
		}
	}
	if len(d.History) > 0 {
		if err := json.Unmarshal(d.History, &s.ConversationHistory); err != nil {
			return fmt.Errorf("failed to unmarshal conversation history: %w", err)
		}
	}
	if len(d.Summaries) > 0 {
		if err := json.Unmarshal(d.Summaries, &s.StageSummaries); err != nil {
			return fmt.Errorf("failed to unmarshal stage summaries: %w", err)
		}
	}
	if len(d.Topics) > 0 {
		if err := json.Unmarshal(d.Topics, &s.StageTopics); err != nil {
			return fmt.Errorf("failed to unmarshal stage topics: %w", err)
		}
	}
	return nil
}
