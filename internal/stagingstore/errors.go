package stagingstore

import "errors"

var (
	// ErrStagingStoreURLEmpty is returned when the staging-store URL is an empty string.
	ErrStagingStoreURLEmpty = errors.New("staging store URL cannot be empty")

	// ErrNoSuchKey is returned when a RENAME source key has already disappeared,
	// the expected race in the drain protocol between EXISTS and RENAME.
	ErrNoSuchKey = errors.New("staging store: no such key")

	// ErrConnectionUnavailable is returned when EnsureClient cannot obtain a healthy client.
	ErrConnectionUnavailable = errors.New("staging store: no connection available")

	// ErrKeyExists is the typed form of the original's string-matched
	// "key already exists" pipeline result: a time-series/counter updater
	// racing a duplicate event, not a failure worth propagating.
	ErrKeyExists = errors.New("staging store: key already exists")
)

// ErrorKind classifies an error returned from a staging-store operation so a
// retry combinator can decide whether to retry, give up, or escalate.
type ErrorKind int

const (
	// KindFatal errors are never retried (bad arguments, auth failures).
	KindFatal ErrorKind = iota
	// KindTransient errors are safe to retry (timeouts, connection resets).
	KindTransient
	// KindSemantic errors are application-level outcomes that look like
	// failures but are expected states (key already renamed, no such key).
	KindSemantic
)

// ErrClassifier maps an error returned from a staging-store call to its kind.
// Each call site supplies its own classifier, since the same underlying Redis
// error (e.g. "no such key") means different things to different callers.
type ErrClassifier func(error) ErrorKind

// DefaultClassifier treats ErrNoSuchKey as semantic and every other non-nil
// error as transient; it does not single out fatal errors such as auth
// failures, which are therefore retried like transient ones. A nil error is
// reported as KindFatal. Callers needing other classification (e.g. RENAME
// racing a concurrent DEL) should supply their own classifier.
func DefaultClassifier(err error) ErrorKind {
	if err == nil {
		return KindFatal
	}

	if errors.Is(err, ErrNoSuchKey) {
		return KindSemantic
	}

	return KindTransient
}
