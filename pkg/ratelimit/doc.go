// Package ratelimit provides client-side pacing and upstream quota gating.
//
// Limiters pace outgoing traffic on our side:
//
//   - TokenBucket refills to capacity once per period; site fetchers use it
//     for their polite inter-request pause.
//   - SlidingWindow caps requests inside a moving window; the media download
//     pool uses it for requests_per_minute.
//
// QuotaGate reacts to allowances reported by the upstream API. After a
// successful response reports remaining=0 the gate blocks until the reported
// reset time plus a safety margin, so the caller's next request never lands
// inside an exhausted window:
//
//	gate := ratelimit.NewQuotaGate(10*time.Second, log)
//	if state, ok := ratelimit.ParseHeaders(resp.Header); ok {
//	    if err := gate.Observe(ctx, ratelimit.Family(endpoint), state); err != nil {
//	        return err
//	    }
//	}
package ratelimit
