package smartapp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/smartapp-tw/smartapp/pkg/log"
)

// authed runs op with the standard recovery rules for authenticated calls:
//
//   - capability token expired: refresh once, replay once
//   - invalid refresh token or login failure: full login once, replay once
//   - rate limited: propagate untouched, the poller falls back to the
//     overview endpoint and an inline retry would only worsen throttling
//   - device offline or anything unexpected: log and swallow, leaving op's
//     results empty, so one unreachable appliance never aborts a poll cycle
//
// A replay's error propagates unchanged.
func (c *Client) authed(ctx context.Context, op func(ctx context.Context, cptoken string) error) error {
	token, gen := c.capabilityToken()
	err := op(ctx, token)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTokenExpired):
		if rerr := c.recoverAuth(ctx, gen, false); rerr != nil {
			return rerr
		}
	case errors.Is(err, ErrInvalidRefreshToken), errors.Is(err, ErrLoginFailed):
		if rerr := c.recoverAuth(ctx, gen, true); rerr != nil {
			return rerr
		}
	case errors.Is(err, ErrRateLimited):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// an abandoned cycle is not a device failure
		return err
	default:
		log.Ctx(ctx).WarnContext(ctx, "degrading failed call to empty result", slog.Any("error", err))
		return nil
	}

	token, _ = c.capabilityToken()
	return op(ctx, token)
}

// recoverAuth refreshes or re-logs in, unless another call already rotated
// the tokens past the generation the failing call saw. authMu guarantees at
// most one re-auth round-trip at a time.
func (c *Client) recoverAuth(ctx context.Context, gen uint64, relogin bool) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	if _, cur := c.capabilityToken(); cur != gen {
		log.Ctx(ctx).DebugContext(ctx, "tokens already rotated by a concurrent call")
		return nil
	}
	if relogin {
		return c.Login(ctx)
	}
	return c.RefreshTokens(ctx)
}
