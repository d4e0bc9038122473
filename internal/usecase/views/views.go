package views

import (
	"fmt"
	"unicode/utf8"

	"safety-map/internal/domain"
)

const (
	// DefaultZoom — масштаб карты выбора точки и публичной карты.
	DefaultZoom = 20

	previewThreshold = 200
	previewLength    = 40

	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// DefaultCenter — центр карты по умолчанию.
var DefaultCenter = domain.Location{Lat: 14.412687356644929, Lng: 120.98123147922286}

// Сообщения пользователю.
const (
	MsgEmptyStory      = "Please enter a story before submitting."
	MsgNoLocation      = "Please pin a location on the map first."
	MsgNoDraft         = "No story data found."
	MsgSubmitted       = "Your story has been submitted with location and is pending approval!"
	MsgPickInstruction = "Click the marker tool (📍) on the map to pin your location, then click Submit."
)

// Маршруты, на которые представления отправляют клиента.
const (
	RouteStory        = "/story"
	RoutePinSafetyMap = "/pin-safety-map"
	RouteManage       = "/manageStories"
)

// MapSettings задаёт центр и масштаб виджета карты.
type MapSettings struct {
	Center domain.Location
	Zoom   int
}

// DefaultMapSettings возвращает настройки карты по умолчанию.
func DefaultMapSettings() MapSettings {
	return MapSettings{Center: DefaultCenter, Zoom: DefaultZoom}
}

// MapWidget описывает состояние виджета карты.
type MapWidget struct {
	Center  domain.Location `json:"center"`
	Zoom    int             `json:"zoom"`
	Markers []Marker        `json:"markers"`
}

// Marker — точка на карте с содержимым всплывающей подсказки.
type Marker struct {
	StoryID int64   `json:"storyId,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Popup   *Popup  `json:"popup,omitempty"`
}

// Popup — содержимое подсказки маркера на публичной карте.
type Popup struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	Location string `json:"location"`
	Reported string `json:"reported"`
	Badge    string `json:"badge"`
}

// PickerView — экран выбора точки для черновика.
type PickerView struct {
	Map          MapWidget `json:"map"`
	StoryID      int64     `json:"storyId"`
	Text         string    `json:"text"`
	Instructions string    `json:"instructions"`
	// MarkerLimit: на карте выбора допускается только одна точка.
	MarkerLimit int `json:"markerLimit"`
}

// Picker строит экран выбора точки. Карта выбора начинается без маркеров.
func Picker(settings MapSettings, draft domain.Story) PickerView {
	return PickerView{
		Map:          MapWidget{Center: settings.Center, Zoom: settings.Zoom, Markers: []Marker{}},
		StoryID:      draft.ID,
		Text:         draft.Text,
		Instructions: MsgPickInstruction,
		MarkerLimit:  1,
	}
}

// FormatLocation форматирует координаты с точностью до шести знаков.
func FormatLocation(loc domain.Location) string {
	return fmt.Sprintf("%.6f, %.6f", loc.Lat, loc.Lng)
}

// Preview сокращает длинный текст для карточки модерации.
// Текст длиннее 200 символов показывается первыми 40 символами и многоточием.
func Preview(text string) (string, bool) {
	if utf8.RuneCountInString(text) <= previewThreshold {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:previewLength]) + "...", true
}
