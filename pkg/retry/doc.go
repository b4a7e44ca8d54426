// Package retry runs an operation under a bounded Policy.
//
// The upstream API client absorbs 503 responses with the Unavailable policy
// sized from the quota config; media and site downloads use Download:
//
//	p := retry.Unavailable(cfg.Quota.UnavailableRetryMax, cfg.Quota.UnavailableRetryDelay)
//	p.Logger = log
//	body, err := retry.DoValue(ctx, p, func(ctx context.Context) ([]byte, error) {
//		return send(ctx, req)
//	})
//
// Only network and service-unavailable errors are retried by Transient; every
// other classified error ends the loop on the spot.
package retry
