package model

import "time"

// Message represents a single email message extracted from an mbox archive,
// together with the archive labels it carried there. It is immutable once
// produced; Identity is reproducible across runs over the same source file.
type Message struct {
	Identity   string
	Labels     []string
	ReceivedAt time.Time
	Size       int64
	Raw        []byte
}

// Envelope wraps a message alongside an optional error encountered while decoding.
type Envelope struct {
	Message Message
	Err     error
}
