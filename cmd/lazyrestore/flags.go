package main

import "time"

// GlobalFlags holds persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags selects the daemon a client command talks to
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for serve command
type ServeFlags struct {
	Listen          string
	StoreDSN        string
	ShutdownTimeout time.Duration
}

// RegisterFlags holds flags for register command
type RegisterFlags struct {
	TabID     int
	TargetURL string
	CreatedAt string
	APIFlags
}

// TabFlags holds flags for commands addressing a single tab
type TabFlags struct {
	TabID int
	APIFlags
}

// UpdatedFlags holds flags for the updated event command
type UpdatedFlags struct {
	TabID      int
	ChangeURL  string
	Status     string
	URL        string
	PendingURL string
	Active     bool
	Discarded  bool
	APIFlags
}

// EntriesFlags holds flags for entries command
type EntriesFlags struct {
	StoreDSN string
	APIFlags
}
