package tracker

// ClientError is an error whose message is safe to return to a BitTorrent
// client verbatim, as a bencoded "failure reason". Any other error
// surfaced by a validation or store call is treated as an internal fault:
// logged, and reported to the client as a generic message.
type ClientError string

// Error implements the error interface for ClientError.
func (c ClientError) Error() string { return string(c) }
