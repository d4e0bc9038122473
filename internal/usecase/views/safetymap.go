package views

import "safety-map/internal/domain"

// SafetyMapView — публичная карта одобренных историй.
type SafetyMapView struct {
	Map   MapWidget `json:"map"`
	Count int       `json:"count"`
}

// SafetyMap строит публичную карту. Истории без точки не отображаются.
func SafetyMap(settings MapSettings, approved []domain.Story) SafetyMapView {
	markers := make([]Marker, 0, len(approved))
	for _, s := range approved {
		if s.Location == nil {
			continue
		}
		markers = append(markers, Marker{
			StoryID: s.ID,
			Lat:     s.Location.Lat,
			Lng:     s.Location.Lng,
			Popup: &Popup{
				Title:    "Story Incident",
				Text:     s.Text,
				Location: FormatLocation(*s.Location),
				Reported: s.SubmittedAt.Format(dateLayout),
				Badge:    "Verified Report",
			},
		})
	}
	return SafetyMapView{
		Map:   MapWidget{Center: settings.Center, Zoom: settings.Zoom, Markers: markers},
		Count: len(markers),
	}
}
