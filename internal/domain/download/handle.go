package download

// Progress is one progress report from the engine.
type Progress struct {
	ReceivedBytes int64
	TotalBytes    int64
	Paused        bool
}

// Handle is the content engine's view of one download. URLChain lists the
// originating URL first and the final URL after redirects last.
type Handle interface {
	URLChain() []string
	SuggestedFilename() string
	MIMEType() string
	TotalBytes() int64
	ReceivedBytes() int64
	SavePath() string
	SetSavePath(path string)

	Pause() error
	Resume() error
	Cancel() error

	// OnUpdated and OnDone register listeners. OnDone reports one of the
	// terminal states.
	OnUpdated(fn func(Progress))
	OnDone(fn func(State))
}

// Publisher receives download notifications.
type Publisher interface {
	Publish(name string, data any)
}
