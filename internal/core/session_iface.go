package core

// SessionID is the client token a signaling connection and its peer session are keyed by.
type SessionID string
