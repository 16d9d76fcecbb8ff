// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/go-kivik/couch/cmd/couch/errors"
)

// retryFlags are the raw values of the retry and timeout flags.
type retryFlags struct {
	retries        int
	requestTimeout string
	delay          string
	timeout        string
}

// retryPolicy is the parsed form of retryFlags.
type retryPolicy struct {
	retries        int
	requestTimeout time.Duration
	// fixedDelay is set when --retry-delay was given, even as 0.
	fixedDelay bool
	delay      time.Duration
	timeout    time.Duration
}

func (f retryFlags) parse() (retryPolicy, error) {
	p := retryPolicy{retries: f.retries, fixedDelay: f.delay != ""}
	var err error
	if p.requestTimeout, err = parseDuration(f.requestTimeout); err != nil {
		return p, err
	}
	if p.delay, err = parseDuration(f.delay); err != nil {
		return p, err
	}
	p.timeout, err = parseDuration(f.timeout)
	return p, err
}

// parseDuration accepts a Go duration, or a plain number of seconds. An
// empty value is zero.
func parseDuration(val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		secs, floatErr := strconv.ParseFloat(val, 64)
		if floatErr != nil {
			return 0, errors.Code(errors.ErrUsage, err)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d < 0 {
		return 0, errors.Code(errors.ErrUsage, "negative timeout not permitted")
	}
	return d, nil
}

func (p retryPolicy) backOff() backoff.BackOff {
	var bo backoff.BackOff
	switch {
	case p.fixedDelay && p.delay == 0:
		bo = &backoff.ZeroBackOff{}
	case p.fixedDelay:
		bo = backoff.NewConstantBackOff(p.delay)
	default:
		bo = backoff.NewExponentialBackOff()
	}
	if p.retries > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(p.retries))
	}
	return bo
}

// retry runs fn, and again on transient failure, as the retry flags allow.
// A warning is logged before each new attempt.
func (r *root) retry(fn func() error) error {
	p := r.policy
	if p.retries == 0 {
		return fn()
	}
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	attempts := 0
	op := func() error {
		attempts++
		err := fn()
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		msg := fmt.Sprintf("Warning: Transient problem: %s.", err)
		if wait > 0 {
			msg += fmt.Sprintf(" Will retry in %s.", fmtDuration(wait))
		}
		if left := p.retries - attempts; left > 0 {
			msg += fmt.Sprintf(" %d retries left.", left)
		}
		r.log.Info(msg)
	}
	return backoff.RetryNotify(op, backoff.WithContext(p.backOff(), ctx), notify)
}

// transient reports whether err is worth retrying: no response was
// received, or the server failed.
func transient(err error) bool {
	switch errors.InspectErrorCode(err) {
	case errors.ErrUnavailable, errors.ErrInternalServerError, errors.ErrUnknown:
		return true
	}
	return false
}

// fmtDuration renders d in seconds, with two decimals, below a minute, and
// in its largest whole units above.
func fmtDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%0.2fs", d.Seconds())
	}
	const day = 24 * time.Hour
	days, rest := int64(d/day), d%day
	hours, rest := int64(rest/time.Hour), rest%time.Hour
	minutes, rest := int64(rest/time.Minute), rest%time.Minute
	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh%dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	return fmt.Sprintf("%dm%ds", minutes, int64(rest/time.Second))
}
