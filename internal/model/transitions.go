package model

// Status transitions for campaigns and recipients live here so that every
// mutator shares one table instead of guarding moves ad hoc at call sites.

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:   {CampaignRunning, CampaignCancelled},
	CampaignRunning: {CampaignPaused, CampaignDone, CampaignFailed, CampaignCancelled},
	CampaignPaused:  {CampaignRunning, CampaignCancelled},
}

// CampaignTransitionAllowed reports whether a campaign may move from one
// status to another. Self-transitions are treated as no-ops and allowed.
func CampaignTransitionAllowed(from, to CampaignStatus) bool {
	if from == to {
		return true
	}
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// recipientRank orders the forward delivery path queued -> sent -> delivered
// -> read. failed and skipped sit outside the path.
var recipientRank = map[RecipientStatus]int{
	RecipientQueued:    0,
	RecipientSent:      1,
	RecipientDelivered: 2,
	RecipientRead:      3,
}

// RecipientRank returns the position of a status on the delivery path, or -1
// for failed/skipped.
func RecipientRank(s RecipientStatus) int {
	if r, ok := recipientRank[s]; ok {
		return r
	}
	return -1
}

// RecipientTransitionAllowed reports whether a recipient may move from one
// status to another. The delivery path is strictly forward; a webhook that
// reports "sent" after "delivered" must be dropped by the caller (the
// transition is simply not allowed, the caller treats it as a no-op).
// failed is reachable from queued (send rejected) and from sent (a delivery
// error reported asynchronously). skipped is reachable from queued only
// (campaign cancelled). The single backward edge, failed -> queued, belongs
// to the explicit operator retry and the transient auto-requeue.
func RecipientTransitionAllowed(from, to RecipientStatus) bool {
	switch to {
	case RecipientFailed:
		return from == RecipientQueued || from == RecipientSent
	case RecipientSkipped:
		return from == RecipientQueued
	case RecipientQueued:
		return from == RecipientFailed
	default:
		return RecipientRank(to) > RecipientRank(from) && RecipientRank(from) >= 0
	}
}
