package caldav

// Calendar describes one calendar collection on the CalDAV server.
type Calendar struct {
	ID          string // calendar path
	DisplayName string
	URL         string
}
