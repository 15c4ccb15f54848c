package gps

// Position is one sampled position fix.
type Position struct {
	Lat     float64
	Lng     float64
	Speed   float64 // km/h
	Heading int     // degrees from north
	Sats    int     // satellites in view
}

// Provider interface defines the methods for position providers
type Provider interface {
	GetPosition() (Position, error)
	Close() error
}
