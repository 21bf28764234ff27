// Package metrics registers the subsystem's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RevisionsEncrypted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Name:      "revisions_encrypted_total",
		Help:      "Content revisions encrypted and appended.",
	})

	RevisionsDecrypted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Name:      "revisions_decrypted_total",
		Help:      "Content revisions decrypted for readers.",
	})

	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Name:      "version_conflicts_total",
		Help:      "Optimistic-lock preconditions that failed.",
	})

	CryptoFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docvault",
		Name:      "crypto_failures_total",
		Help:      "Unwrap, authentication and checksum failures.",
	}, []string{"kind"})

	RewrapAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "rotation",
		Name:      "rewrap_attempts_total",
		Help:      "Revision rows the rotation worker attempted to rewrap.",
	})

	RewrapFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "rotation",
		Name:      "rewrap_failures_total",
		Help:      "Rewrap attempts that failed and were left stale.",
	})

	RewrapSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docvault",
		Subsystem: "rotation",
		Name:      "rewrap_skipped_total",
		Help:      "Rows skipped because a concurrent pass already rewrapped them.",
	})
)
