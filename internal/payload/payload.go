package payload

import "fmt"

const (
	EventFavoriteRouteActive = "favorite_route_active"
	EventAnnouncement        = "announcement"

	busActiveBody = "Tu ruta favorita acaba de comenzar su recorrido"

	// The mobile client needs this to route notification taps.
	clickAction = "FLUTTER_NOTIFICATION_CLICK"
)

// Notification is the transport-agnostic message format. The FCM and
// OneSignal clients translate it to their own wire formats.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// ForBusActivation builds the push sent when a bus on a favorited route
// starts its run.
func ForBusActivation(routeName, busID string) (*Notification, error) {
	if routeName == "" {
		return nil, fmt.Errorf("bus %s activated without a route name", busID)
	}

	return &Notification{
		Title: fmt.Sprintf("🚌 %s en Movimiento", routeName),
		Body:  busActiveBody,
		Data: map[string]string{
			"type":         EventFavoriteRouteActive,
			"routeName":    routeName,
			"busId":        busID,
			"click_action": clickAction,
		},
	}, nil
}

// ForAnnouncement builds the push for a new route announcement. The visible
// body carries only the subject; the full message rides in the data map.
func ForAnnouncement(routeName, announcementID, subject, message string) (*Notification, error) {
	if routeName == "" {
		return nil, fmt.Errorf("announcement %s created without a route name", announcementID)
	}

	return &Notification{
		Title: routeName,
		Body:  subject,
		Data: map[string]string{
			"type":           EventAnnouncement,
			"routeName":      routeName,
			"announcementId": announcementID,
			"message":        message,
			"click_action":   clickAction,
		},
	}, nil
}
