package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrValidation объединяет ошибки пользовательского ввода.
	ErrValidation = errors.New("validation failed")
	// ErrEmptyStory возвращается, если текст истории пуст после обрезки пробелов.
	ErrEmptyStory = fmt.Errorf("%w: story text is empty", ErrValidation)
	// ErrInvalidLocation возвращается для нечисловых координат или координат вне диапазона.
	ErrInvalidLocation = fmt.Errorf("%w: location is out of range", ErrValidation)
	// ErrNoDraft возвращается при попытке прикрепить точку без черновика.
	ErrNoDraft = errors.New("no draft story in session")
	// ErrMalformedStorage описывает повреждённое значение в хранилище.
	// Наружу из адаптера хранения не выходит.
	ErrMalformedStorage = errors.New("malformed stored value")
)

// StoryStatus описывает стадию жизненного цикла истории.
type StoryStatus string

const (
	StoryStatusDraft    StoryStatus = "draft"
	StoryStatusPending  StoryStatus = "pending"
	StoryStatusApproved StoryStatus = "approved"
)

// Location — точка на карте.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate проверяет, что координаты конечны и лежат в допустимых пределах.
func (l Location) Validate() error {
	if math.IsNaN(l.Lat) || math.IsInf(l.Lat, 0) || math.IsNaN(l.Lng) || math.IsInf(l.Lng, 0) {
		return ErrInvalidLocation
	}
	if l.Lat < -90 || l.Lat > 90 || l.Lng < -180 || l.Lng > 180 {
		return ErrInvalidLocation
	}
	return nil
}

// Story — история жителя о небезопасном месте.
type Story struct {
	ID          int64       `json:"id"`
	Text        string      `json:"text"`
	SubmittedAt time.Time   `json:"submittedAt"`
	Location    *Location   `json:"location,omitempty"`
	Status      StoryStatus `json:"status"`
	ApprovedAt  *time.Time  `json:"approvedAt,omitempty"`
}

// Clone возвращает глубокую копию истории.
func (s Story) Clone() Story {
	out := s
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	if s.ApprovedAt != nil {
		at := *s.ApprovedAt
		out.ApprovedAt = &at
	}
	return out
}

// Located сообщает, прикреплена ли к истории точка.
func (s Story) Located() bool {
	return s.Location != nil
}

// CloneStories копирует коллекцию, чтобы снимки не делили память с хранилищем.
func CloneStories(stories []Story) []Story {
	out := make([]Story, 0, len(stories))
	for _, s := range stories {
		out = append(out, s.Clone())
	}
	return out
}
