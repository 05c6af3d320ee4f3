package internaldefs

import (
	"strconv"
	"time"

	"github.com/MrEthical07/shelfauth"
)

// MailDroppedID is a pseudo id for Engine.MailDropped. It sits outside the
// engine's id range so exporters can fold it into the mail family.
const MailDroppedID = ^shelfauth.MetricID(0)

// Member is one labelled series of a family.
type Member struct {
	ID    shelfauth.MetricID
	Value string
}

// Family groups related counters under one metric name. A family without a
// Label has exactly one member and renders as a plain counter.
type Family struct {
	Name    string
	Help    string
	Label   string
	Members []Member
}

// Families lists every exported counter family in render order.
var Families = []Family{
	{
		Name:  "shelfauth_sign_in_total",
		Help:  "Password sign-in attempts by result.",
		Label: "result",
		Members: []Member{
			{shelfauth.MetricSignInSuccess, "success"},
			{shelfauth.MetricSignInFailure, "failure"},
		},
	},
	{
		Name:  "shelfauth_sign_up_total",
		Help:  "Sign-up attempts by result.",
		Label: "result",
		Members: []Member{
			{shelfauth.MetricSignUpSuccess, "success"},
			{shelfauth.MetricSignUpDuplicate, "duplicate"},
			{shelfauth.MetricSignUpIncomplete, "incomplete"},
		},
	},
	{
		Name:    "shelfauth_rate_limited_total",
		Help:    "Requests refused by the rate limiter.",
		Members: []Member{{ID: shelfauth.MetricRateLimited}},
	},
	{
		Name:    "shelfauth_rate_limiter_degraded_total",
		Help:    "Rate-limit decisions taken without Redis.",
		Members: []Member{{ID: shelfauth.MetricRateLimiterDegraded}},
	},
	{
		Name:  "shelfauth_sessions_total",
		Help:  "Session lifecycle events.",
		Label: "event",
		Members: []Member{
			{shelfauth.MetricSessionCreated, "created"},
			{shelfauth.MetricSessionInvalidated, "invalidated"},
			{shelfauth.MetricSessionRenewed, "renewed"},
		},
	},
	{
		Name:  "shelfauth_verification_total",
		Help:  "Email verification events.",
		Label: "event",
		Members: []Member{
			{shelfauth.MetricVerificationIssued, "issued"},
			{shelfauth.MetricVerificationRedeemed, "redeemed"},
			{shelfauth.MetricVerificationFailed, "failed"},
		},
	},
	{
		Name:  "shelfauth_oauth_total",
		Help:  "Google sign-in events.",
		Label: "event",
		Members: []Member{
			{shelfauth.MetricOAuthStarted, "started"},
			{shelfauth.MetricOAuthCompleted, "completed"},
			{shelfauth.MetricOAuthStateMismatch, "state_mismatch"},
			{shelfauth.MetricOAuthFailed, "failed"},
		},
	},
	{
		Name:  "shelfauth_mail_total",
		Help:  "Verification emails by delivery result.",
		Label: "result",
		Members: []Member{
			{shelfauth.MetricMailSent, "sent"},
			{shelfauth.MetricMailFailed, "failed"},
			{MailDroppedID, "dropped"},
		},
	},
	{
		Name:    "shelfauth_password_rehashed_total",
		Help:    "Password hashes upgraded at sign-in.",
		Members: []Member{{ID: shelfauth.MetricPasswordRehashed}},
	},
	{
		Name:    "shelfauth_store_errors_total",
		Help:    "Operations that failed in the datastore.",
		Members: []Member{{ID: shelfauth.MetricStoreError}},
	},
}

// Histogram describes one engine latency histogram.
type Histogram struct {
	ID   shelfauth.MetricID
	Name string
	Help string
}

// Histograms lists every exported histogram.
var Histograms = []Histogram{
	{ID: shelfauth.MetricSignInLatency, Name: "shelfauth_sign_in_duration_seconds", Help: "Sign-in latency."},
}

// BucketLabels spells the engine's bucket bounds in seconds for the le label.
var BucketLabels = func() [8]string {
	var out [8]string
	for i, d := range shelfauth.LatencyBounds {
		out[i] = strconv.FormatFloat(d.Seconds(), 'g', -1, 64)
	}
	out[len(out)-1] = "+Inf"
	return out
}()

// Values merges a snapshot's counters with the mail drop count, keyed the way
// Families expects.
func Values(snapshot shelfauth.MetricsSnapshot, mailDropped uint64) map[shelfauth.MetricID]uint64 {
	out := make(map[shelfauth.MetricID]uint64, len(snapshot.Counters)+1)
	for id, v := range snapshot.Counters {
		out[id] = v
	}
	out[MailDroppedID] = mailDropped
	return out
}

// HistogramPoint is the cumulative view of one histogram.
type HistogramPoint struct {
	Buckets [8]uint64
	Count   uint64
	Sum     time.Duration
}

// Point converts the snapshot's per-bucket counts for id into cumulative
// buckets. Missing buckets count as zero.
func Point(snapshot shelfauth.MetricsSnapshot, id shelfauth.MetricID) HistogramPoint {
	var p HistogramPoint
	raw := snapshot.Histograms[id]
	var running uint64
	for i := range p.Buckets {
		if i < len(raw) {
			running += raw[i]
		}
		p.Buckets[i] = running
	}
	p.Count = running
	p.Sum = snapshot.LatencySums[id]
	return p
}
