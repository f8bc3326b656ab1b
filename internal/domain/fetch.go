package domain

// FetchStatus says why a fetch returned what it did. Every status other
// than FetchOK and FetchEmpty is a degraded fetch.
type FetchStatus string

const (
	FetchOK              FetchStatus = "ok"
	FetchEmpty           FetchStatus = "empty"
	FetchUnauthenticated FetchStatus = "unauthenticated"
	FetchTransport       FetchStatus = "transport"
	FetchRejected        FetchStatus = "rejected"
	FetchMalformed       FetchStatus = "malformed"
)

// Degraded reports whether the fetch failed and was turned into an empty batch.
func (s FetchStatus) Degraded() bool {
	return s != FetchOK && s != FetchEmpty
}

// FetchResult is the outcome of one fetch. Entries is never nil.
type FetchResult struct {
	Entries []InboundEntry
	Status  FetchStatus
	// Err describes a degraded fetch. It is informational only.
	Err error
	// Skipped counts array elements that could not be decoded.
	Skipped int
}
