package domain

// Persisted collection names
const (
	CollectionScrims       = "scrims"
	CollectionApplications = "postulaciones"
	CollectionStatistics   = "estadisticas"
	CollectionUsers        = "users"
	CollectionFeedback     = "feedback"
)

// Collections lists every collection the service expects to exist
func Collections() []string {
	return []string{
		CollectionScrims,
		CollectionApplications,
		CollectionStatistics,
		CollectionUsers,
		CollectionFeedback,
	}
}
