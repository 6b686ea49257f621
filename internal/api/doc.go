// Package api exposes the REST surface for driving payments, trades,
// scheduled payments and natural-language commands, plus the Prometheus
// metrics endpoint.
package api
