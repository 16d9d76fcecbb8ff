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

package chttp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-kivik/couch/errors"
)

const metricsNamespace = "couch"

type metrics struct {
	registerer prometheus.Registerer
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		registerer: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "CouchDB requests, by status code and method.",
		}, []string{"code", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "CouchDB request latency, by status code and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),
	}
}

// register registers the collectors, re-using identical collectors already
// registered by another client.
func (m *metrics) register() error {
	if err := m.registerer.Register(m.requests); err != nil {
		existing, err := alreadyRegistered(err)
		if err != nil {
			return err
		}
		m.requests = existing.(*prometheus.CounterVec)
	}
	if err := m.registerer.Register(m.latency); err != nil {
		existing, err := alreadyRegistered(err)
		if err != nil {
			return err
		}
		m.latency = existing.(*prometheus.HistogramVec)
	}
	return nil
}

func alreadyRegistered(err error) (prometheus.Collector, error) {
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector, nil
	}
	return nil, errors.Wrap(err, "chttp: register metrics")
}

type optionMetrics struct {
	reg prometheus.Registerer
}

func (o optionMetrics) Apply(target interface{}) {
	if client, ok := target.(*Client); ok {
		client.metrics = newMetrics(o.reg)
	}
}

func (optionMetrics) String() string { return "[Metrics]" }

// OptionMetrics instruments every request made by the client with a request
// counter and a latency histogram, registered with reg.
func OptionMetrics(reg prometheus.Registerer) Option {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return optionMetrics{reg: reg}
}

// instrument wraps the client's transport with the configured metrics. It
// runs before authentication is set up, so auth requests are counted too.
func (c *Client) instrument() error {
	if c.metrics == nil {
		return nil
	}
	if err := c.metrics.register(); err != nil {
		return err
	}
	c.Transport = promhttp.InstrumentRoundTripperCounter(c.metrics.requests,
		promhttp.InstrumentRoundTripperDuration(c.metrics.latency, baseTransport(c)),
	)
	return nil
}
