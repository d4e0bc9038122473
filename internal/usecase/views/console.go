package views

import (
	"fmt"

	"safety-map/internal/domain"
)

// ConsoleView — экран модерации.
type ConsoleView struct {
	PendingCount  int    `json:"pendingCount"`
	ApprovedCount int    `json:"approvedCount"`
	Pending       []Card `json:"pending"`
	Approved      []Card `json:"approved"`
}

// Card — карточка истории в консоли модерации.
type Card struct {
	ID           int64    `json:"id"`
	Badge        string   `json:"badge"`
	Preview      string   `json:"preview"`
	HasFullStory bool     `json:"hasFullStory"`
	FullText     string   `json:"fullText,omitempty"`
	Lat          string   `json:"lat,omitempty"`
	Lng          string   `json:"lng,omitempty"`
	Submitted    string   `json:"submitted"`
	SubmittedAt  string   `json:"submittedAt"`
	ApprovedAt   *string  `json:"approvedAt,omitempty"`
	Actions      []string `json:"actions"`
}

// Console строит экран модерации из текущих коллекций.
func Console(pending, approved []domain.Story) ConsoleView {
	view := ConsoleView{
		PendingCount:  len(pending),
		ApprovedCount: len(approved),
		Pending:       make([]Card, 0, len(pending)),
		Approved:      make([]Card, 0, len(approved)),
	}
	for _, s := range pending {
		view.Pending = append(view.Pending, card(s))
	}
	for _, s := range approved {
		view.Approved = append(view.Approved, card(s))
	}
	return view
}

func card(s domain.Story) Card {
	preview, full := Preview(s.Text)
	c := Card{
		ID:           s.ID,
		Preview:      preview,
		HasFullStory: full,
		Submitted:    s.SubmittedAt.Format(dateLayout),
		SubmittedAt:  s.SubmittedAt.Format(dateTimeLayout),
	}
	if full {
		c.FullText = s.Text
	}
	if s.Location != nil {
		c.Lat = fmt.Sprintf("%.6f", s.Location.Lat)
		c.Lng = fmt.Sprintf("%.6f", s.Location.Lng)
	}
	switch s.Status {
	case domain.StoryStatusApproved:
		c.Badge = "Approved"
		c.Actions = []string{"delete"}
		if s.ApprovedAt != nil {
			at := s.ApprovedAt.Format(dateTimeLayout)
			c.ApprovedAt = &at
		}
	default:
		c.Badge = "Pending"
		c.Actions = []string{"approve", "reject"}
	}
	return c
}
