package declutter

import (
	"time"

	"github.com/google/uuid"
)

// Clock stamps snapshots, recommendations and remote-delete tasks, and
// anchors the access-frequency windows.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator names background jobs.
type IDGenerator interface {
	New() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
