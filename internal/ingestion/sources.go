package ingestion

import "github.com/blok-hamster/kol-play-core/internal/domain"

// SnapshotSource delivers full connection-map snapshots from an external feed.
// Each delivery replaces the previous one; there is no incremental update log.
type SnapshotSource interface {
	// Snapshots returns the channel of incoming snapshots. The channel is
	// closed when the source shuts down.
	Snapshots() <-chan domain.ConnectionMap

	// Close terminates the source and closes the snapshot channel.
	Close() error
}
