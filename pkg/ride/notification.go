package ride

type NotificationData struct {
	Title   string
	Message string
}
