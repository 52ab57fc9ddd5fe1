// Package store provides the durable decision cache backends. Every backend
// implements modq.DecisionStore and owns both the pending records and the
// derived fingerprint index.
package store

import (
	"time"

	"modq-go/internal/modq"
	"modq-go/internal/vision"
)

// expired reports whether a record is past the retention policy at now.
// Undecided records age out on one threshold; decided-but-unexecuted records
// on the other. Age is measured from NotifiedAt.
func expired(req modq.PendingRequest, now time.Time, policy modq.CleanupPolicy) bool {
	age := now.Sub(req.NotifiedAt)
	if req.Decision == modq.DecisionNone {
		return policy.UndecidedMaxAge > 0 && age > policy.UndecidedMaxAge
	}
	if !req.Executed {
		return policy.UnexecutedMaxAge > 0 && age > policy.UnexecutedMaxAge
	}
	return false
}

// closestFingerprint scans the identity-to-fingerprint candidates for the
// entry with the smallest Hamming distance to fp, accepting it only when the
// distance is within maxDistance. A maxDistance of 0 disables matching.
// Unparseable stored fingerprints are skipped rather than failing the scan.
func closestFingerprint(fp string, maxDistance int, candidates map[string]string) (string, bool) {
	if maxDistance <= 0 || fp == "" {
		return "", false
	}
	bestIdentity := ""
	bestDistance := maxDistance + 1
	for identity, candidate := range candidates {
		if candidate == "" {
			continue
		}
		d, err := vision.HammingDistance(fp, candidate)
		if err != nil {
			continue
		}
		if d < bestDistance {
			bestIdentity = identity
			bestDistance = d
		}
	}
	if bestDistance > maxDistance {
		return "", false
	}
	return bestIdentity, true
}

// cloneRequest deep-copies a record so callers cannot mutate stored state
// through the shared Buttons map.
func cloneRequest(req modq.PendingRequest) modq.PendingRequest {
	if req.Buttons != nil {
		buttons := make(map[string]modq.CardPoint, len(req.Buttons))
		for k, v := range req.Buttons {
			buttons[k] = v
		}
		req.Buttons = buttons
	}
	return req
}
