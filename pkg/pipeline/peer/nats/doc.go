// Package nats publishes dispatched messages to NATS JetStream.
//
// NATS subject (aka topic) patterns:
//   - Case-sensitive, dot-separated, no spaces
//   - Valid chars: alphanumeric, `-` or `_`
//   - Max length: 255 bytes
//
// Each topic is published on `<subjectPrefix>.<topic>` and captured by one
// stream bound to `<subjectPrefix>.>`. The payload is the encoded event and
// the row key travels base64 encoded in the Cellbridge-Key header.
//
// Examples:
//   - topic audit       → cellbridge.audit
//   - topic orders.eu   → cellbridge.orders.eu
package nats
